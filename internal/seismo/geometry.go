// Package seismo holds the station geometry used to judge an inversion's
// coverage: station lookup, azimuthal gap and station/channel counts.
package seismo

import (
	"math"
	"slices"
	"strings"

	"github.com/montanaflynn/stats"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/geoscience-au/wphase-post/internal/inversion"
)

var (
	// ErrUnknownStation is returned when a trace has no metadata entry.
	ErrUnknownStation = eris.New("seismo: no metadata for trace")
	// ErrNoStations is returned when a computation needs at least one station.
	ErrNoStations = eris.New("seismo: no stations")
)

// Station is the position of one recording station in degrees.
type Station struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
	Elevation float64 `json:"elevation,omitempty" yaml:"elevation,omitempty"`
}

// Metadata maps trace IDs (NET.STA.LOC.CHA) or station IDs (NET.STA) to
// station positions.
type Metadata map[string]Station

// LoadMetadata reads station metadata from a JSON or YAML file.
func LoadMetadata(path string) (Metadata, error) {
	meta := Metadata{}
	if err := inversion.DecodeFile(path, &meta); err != nil {
		return nil, eris.Wrap(err, "seismo: load metadata")
	}
	return meta, nil
}

// Lookup returns the latitude and longitude for a trace ID. An exact entry
// wins; otherwise the NET.STA prefix is tried.
func (m Metadata) Lookup(traceID string) (lat, lon float64, err error) {
	if s, ok := m[traceID]; ok {
		return s.Latitude, s.Longitude, nil
	}
	parts := strings.Split(traceID, ".")
	if len(parts) >= 2 {
		if s, ok := m[parts[0]+"."+parts[1]]; ok {
			return s.Latitude, s.Longitude, nil
		}
	}
	return 0, 0, eris.Wrapf(ErrUnknownStation, "seismo: lookup %q", traceID)
}

// Point returns the station of a trace as a lon/lat point in EPSG:4326.
func (m Metadata) Point(traceID string) (*geom.Point, error) {
	lat, lon, err := m.Lookup(traceID)
	if err != nil {
		return nil, err
	}
	return NewPoint(lat, lon), nil
}

// NewPoint builds a lon/lat point in EPSG:4326.
func NewPoint(lat, lon float64) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(4326)
}

// Azimuth returns the great-circle forward azimuth in degrees [0, 360) from
// one lon/lat point to another.
func Azimuth(from, to *geom.Point) float64 {
	lat1 := from.Y() * math.Pi / 180
	lat2 := to.Y() * math.Pi / 180
	dlon := (to.X() - from.X()) * math.Pi / 180

	y := math.Sin(dlon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dlon)
	az := math.Mod(math.Atan2(y, x)*180/math.Pi+360, 360)
	if az >= 360 {
		az -= 360
	}
	return az
}

// AzimuthalGap returns the largest angle between adjacent station azimuths
// seen from the hypocenter, including the wrap through north, and the sorted
// azimuths themselves.
func AzimuthalGap(meta Metadata, traces []string, hypocenter *geom.Point) (float64, []float64, error) {
	if len(traces) == 0 {
		return 0, nil, ErrNoStations
	}

	azimuths := make([]float64, 0, len(traces))
	for _, id := range traces {
		p, err := meta.Point(id)
		if err != nil {
			return 0, nil, err
		}
		azimuths = append(azimuths, Azimuth(hypocenter, p))
	}
	slices.Sort(azimuths)

	gaps := make([]float64, len(azimuths))
	for i := 1; i < len(azimuths); i++ {
		gaps[i-1] = azimuths[i] - azimuths[i-1]
	}
	gaps[len(gaps)-1] = 360 - azimuths[len(azimuths)-1] + azimuths[0]

	gap, err := stats.Max(gaps)
	if err != nil {
		return 0, nil, eris.Wrap(err, "seismo: azimuthal gap")
	}
	return gap, azimuths, nil
}

// StationCode returns the station part of a NET.STA.LOC.CHA trace ID, or the
// whole ID when it has no dots.
func StationCode(traceID string) string {
	parts := strings.Split(traceID, ".")
	if len(parts) < 2 {
		return traceID
	}
	return parts[1]
}

// CountStations returns the number of distinct station codes among traces.
func CountStations(traces []string) int {
	seen := make(map[string]struct{}, len(traces))
	for _, id := range traces {
		seen[StationCode(id)] = struct{}{}
	}
	return len(seen)
}

// CountChannels returns the number of traces.
func CountChannels(traces []string) int {
	return len(traces)
}
