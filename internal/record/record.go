// Package record derives the summary record published for an OL3 inversion:
// named tensor components, scalar moment, magnitude, nodal planes and the
// DC/CLVD split.
package record

import (
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/geoscience-au/wphase-post/internal/inversion"
	"github.com/geoscience-au/wphase-post/internal/tensor"
)

// MagnitudeType is the magnitude type reported for every record.
const MagnitudeType = "Mww"

// ErrInvalidMoment is returned when the scalar moment is not a positive
// finite number.
var ErrInvalidMoment = eris.New("record: scalar moment is not positive and finite")

// Record is the derived OL3 summary. DC and CLVD are nil when the tensor
// could not be decomposed.
type Record struct {
	Tmrr float64 `json:"tmrr"`
	Tmtt float64 `json:"tmtt"`
	Tmpp float64 `json:"tmpp"`
	Tmrt float64 `json:"tmrt"`
	Tmrp float64 `json:"tmrp"`
	Tmtp float64 `json:"tmtp"`

	DC   *float64 `json:"dc,omitempty"`
	CLVD *float64 `json:"clvd,omitempty"`

	ScalarMoment  float64 `json:"scm"`
	Magnitude     float64 `json:"drmag"`
	MagnitudeType string  `json:"drmagt"`

	Latitude  float64 `json:"drlat"`
	Longitude float64 `json:"drlon"`
	Depth     float64 `json:"drdepth"`

	Plane1 tensor.NodalPlane `json:"-"`
	Plane2 tensor.NodalPlane `json:"-"`

	Authority string `json:"auth"`
}

// FromTensor builds the record for moment tensor m located at cen.
func FromTensor(m tensor.MT, cen inversion.Location, authority string) (*Record, error) {
	r := &Record{
		Tmrr:          m[tensor.RR],
		Tmtt:          m[tensor.TT],
		Tmpp:          m[tensor.PP],
		Tmrt:          m[tensor.RT],
		Tmrp:          m[tensor.RP],
		Tmtp:          m[tensor.TP],
		MagnitudeType: MagnitudeType,
		Latitude:      cen.Latitude,
		Longitude:     cen.Longitude,
		Depth:         cen.Depth,
		Authority:     authority,
	}

	if dc, clvd, err := tensor.Decompose(m); err != nil {
		zap.L().Warn("record: DC/CLVD decomposition failed, omitting dc and clvd", zap.Error(err))
	} else {
		r.DC = &dc
		r.CLVD = &clvd
	}

	m0, err := ScalarMoment(m)
	if err != nil {
		return nil, err
	}
	r.ScalarMoment = m0
	r.Magnitude = Magnitude(m0)

	p1, err := tensor.PrimaryPlane(m)
	if err != nil {
		return nil, eris.Wrap(err, "record: nodal plane")
	}
	r.Plane1 = p1
	r.Plane2 = tensor.AuxPlane(p1)

	return r, nil
}

// ScalarMoment returns sqrt(0.5*(rr²+tt²+pp²) + rt²+rp²+tp²).
func ScalarMoment(m tensor.MT) (float64, error) {
	diag := m[tensor.RR]*m[tensor.RR] + m[tensor.TT]*m[tensor.TT] + m[tensor.PP]*m[tensor.PP]
	off := m[tensor.RT]*m[tensor.RT] + m[tensor.RP]*m[tensor.RP] + m[tensor.TP]*m[tensor.TP]
	m0 := math.Sqrt(0.5*diag + off)
	if math.IsNaN(m0) || math.IsInf(m0, 0) || m0 <= 0 {
		return 0, ErrInvalidMoment
	}
	return m0, nil
}

// Magnitude converts a scalar moment in N·m to moment magnitude.
func Magnitude(m0 float64) float64 {
	return 2.0 / 3.0 * (math.Log10(m0) - 9.10)
}

// Fields returns the record as a flat name/value mapping.
func (r *Record) Fields() map[string]any {
	f := map[string]any{
		"tmrr":    r.Tmrr,
		"tmtt":    r.Tmtt,
		"tmpp":    r.Tmpp,
		"tmrt":    r.Tmrt,
		"tmrp":    r.Tmrp,
		"tmtp":    r.Tmtp,
		"scm":     r.ScalarMoment,
		"drmag":   r.Magnitude,
		"drmagt":  r.MagnitudeType,
		"drlat":   r.Latitude,
		"drlon":   r.Longitude,
		"drdepth": r.Depth,
		"str1":    r.Plane1.Strike,
		"dip1":    r.Plane1.Dip,
		"rake1":   r.Plane1.Rake,
		"str2":    r.Plane2.Strike,
		"dip2":    r.Plane2.Dip,
		"rake2":   r.Plane2.Rake,
		"auth":    r.Authority,
	}
	if r.DC != nil {
		f["dc"] = *r.DC
	}
	if r.CLVD != nil {
		f["clvd"] = *r.CLVD
	}
	return f
}
