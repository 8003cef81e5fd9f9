package tensor

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	r2d = 180 / math.Pi
	d2r = math.Pi / 180

	// axisEps is the tolerance below which a direction cosine counts as zero.
	axisEps = 1e-6
)

// NodalPlane is a fault plane in degrees: strike in [0, 360), dip in
// [0, 90] and rake in (-180, 180].
type NodalPlane struct {
	Strike float64 `json:"strike"`
	Dip    float64 `json:"dip"`
	Rake   float64 `json:"rake"`
}

// PrimaryPlane derives a nodal plane from the tensor's T and P axes. The
// choice between the two planes is deterministic for a given tensor.
func PrimaryPlane(m MT) (NodalPlane, error) {
	vals, vecs, err := m.Eigen()
	if err != nil {
		return NodalPlane{}, err
	}
	spread := vals[2] - vals[0]
	scale := math.Max(math.Abs(vals[0]), math.Abs(vals[2]))
	if spread <= 1e-12*scale || scale == 0 {
		return NodalPlane{}, ErrUndefinedPlane
	}

	tAxis := toSouthEastDown(mat.Col(nil, 2, vecs))
	pAxis := toSouthEastDown(mat.Col(nil, 0, vecs))

	var normal, slip [3]float64
	for i := range 3 {
		slip[i] = (tAxis[i] + pAxis[i]) / math.Sqrt2
		normal[i] = (tAxis[i] - pAxis[i]) / math.Sqrt2
	}
	slip = unit(slip)
	normal = unit(normal)

	plane, ok := planeFromVectors(normal, slip)
	if !ok {
		// A horizontal plane has no defined strike; use the conjugate.
		plane, ok = planeFromVectors(slip, normal)
		if !ok {
			return NodalPlane{}, ErrUndefinedPlane
		}
	}
	return plane, nil
}

// AuxPlane returns the auxiliary nodal plane for the given plane.
func AuxPlane(p NodalPlane) NodalPlane {
	z := (p.Strike + 90) * d2r
	z2 := p.Dip * d2r
	z3 := p.Rake * d2r

	// Slip vector of plane 1.
	sl1 := -math.Cos(z3)*math.Cos(z) - math.Sin(z3)*math.Sin(z)*math.Cos(z2)
	sl2 := math.Cos(z3)*math.Sin(z) - math.Sin(z3)*math.Cos(z)*math.Cos(z2)
	sl3 := math.Sin(z3) * math.Sin(z2)

	// Horizontal slip makes the auxiliary plane vertical, where the sign of
	// sl3 no longer fixes the rake. Swap normal and slip explicitly instead.
	if math.Abs(sl3) < axisEps {
		normal, slip := planeVectors(p)
		if aux, ok := planeFromVectors(slip, normal); ok {
			return aux
		}
	}
	strike, dip := strikeDip(sl2, sl1, sl3)

	// Normal of plane 1 and strike vector of plane 2; both horizontal
	// components only, the vertical part drops out of the dot product.
	n1 := math.Sin(z) * math.Sin(z2)
	n2 := math.Cos(z) * math.Sin(z2)
	h1 := -sl2
	h2 := sl1

	var c float64
	if h := math.Hypot(h1, h2); h > 0 {
		c = math.Max(-1, math.Min(1, (h1*n1+h2*n2)/h))
	}
	rake := math.Acos(c) * r2d
	if sl3 <= 0 {
		rake = -rake
	}
	return normalize(NodalPlane{Strike: strike, Dip: dip, Rake: rake})
}

// FromPlane builds the double-couple tensor of scalar moment m0 for a plane.
func FromPlane(p NodalPlane, m0 float64) MT {
	phi := p.Strike * d2r
	delta := p.Dip * d2r
	lambda := p.Rake * d2r

	sd, cd := math.Sincos(delta)
	sl, cl := math.Sincos(lambda)
	sp, cp := math.Sincos(phi)
	s2d, c2d := math.Sin(2*delta), math.Cos(2*delta)
	s2p, c2p := math.Sin(2*phi), math.Cos(2*phi)

	var m MT
	m[RR] = m0 * s2d * sl
	m[TT] = -m0 * (sd*cl*s2p + s2d*sl*sp*sp)
	m[PP] = m0 * (sd*cl*s2p - s2d*sl*cp*cp)
	m[RT] = -m0 * (cd*cl*cp + c2d*sl*sp)
	m[RP] = m0 * (cd*cl*sp - c2d*sl*cp)
	m[TP] = -m0 * (sd*cl*c2p + 0.5*s2d*sl*s2p)
	return m
}

// planeVectors returns the unit normal and slip vector of a plane in the
// (t, p, -r) frame.
func planeVectors(p NodalPlane) (normal, slip [3]float64) {
	sp, cp := math.Sincos(p.Strike * d2r)
	sd, cd := math.Sincos(p.Dip * d2r)
	sl, cl := math.Sincos(p.Rake * d2r)

	// North-east-down components, with north negated for south.
	normal = [3]float64{sd * sp, sd * cp, -cd}
	slip = [3]float64{
		-(cl*cp + sl*cd*sp),
		cl*sp - sl*cd*cp,
		-sl * sd,
	}
	return normal, slip
}

// toSouthEastDown maps an (r, t, p) vector onto (t, p, -r).
func toSouthEastDown(v []float64) [3]float64 {
	return [3]float64{v[1], v[2], -v[0]}
}

func unit(v [3]float64) [3]float64 {
	n := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	if n == 0 {
		return v
	}
	return [3]float64{v[0] / n, v[1] / n, v[2] / n}
}

// planeFromVectors converts a unit normal and slip vector into a plane. The
// normal is flipped to point upward first, together with the slip vector.
func planeFromVectors(normal, slip [3]float64) (NodalPlane, bool) {
	if normal[2] > 0 {
		for i := range 3 {
			normal[i] = -normal[i]
			slip[i] = -slip[i]
		}
	}
	ft, fd, fl, ok := tdl(normal, slip)
	if !ok {
		return NodalPlane{}, false
	}
	return normalize(NodalPlane{Strike: 360 - ft, Dip: fd, Rake: 180 - fl}), true
}

// tdl extracts the trend, dip and slip angles from a normal (an) and a slip
// vector (bn) in the (t, p, -r) frame.
func tdl(an, bn [3]float64) (ft, fd, fl float64, ok bool) {
	xn, yn, zn := an[0], an[1], an[2]
	xe, ye, ze := bn[0], bn[1], bn[2]

	if math.Abs(zn) < axisEps {
		fd = 90
		ft = math.Asin(math.Min(math.Abs(xn), 1)) * r2d
		ft = strikeQuadrant(ft, -xn, yn)

		fl = math.Asin(math.Min(math.Abs(ze), 1)) * r2d
		var cl float64
		if math.Abs(xn) < axisEps {
			cl = xe / yn
		} else {
			cl = -ye / xn
		}
		fl = rakeQuadrant(fl, -ze, cl)
		return ft, fd, fl, true
	}

	if -zn > 1 {
		zn = -1
	}
	fdh := math.Acos(-zn)
	fd = fdh * r2d
	sd := math.Sin(fdh)
	if sd < axisEps {
		return 0, 0, 0, false
	}

	st := -xn / sd
	ct := yn / sd
	ft = math.Asin(math.Min(math.Abs(st), 1)) * r2d
	ft = strikeQuadrant(ft, st, ct)

	sl := -ze / sd
	fl = math.Asin(math.Min(math.Abs(sl), 1)) * r2d
	var cl float64
	switch {
	case st == 0:
		cl = xe / ct
	case ct == 0:
		cl = ye / st
	default:
		xxx := yn*zn*ze/sd/sd + ye
		cl = -sd * xxx / xn
	}
	fl = rakeQuadrant(fl, sl, cl)
	return ft, fd, fl, true
}

func strikeQuadrant(ft, st, ct float64) float64 {
	switch {
	case st >= 0 && ct < 0:
		return 180 - ft
	case st < 0 && ct <= 0:
		return 180 + ft
	case st < 0 && ct > 0:
		return 360 - ft
	}
	return ft
}

func rakeQuadrant(fl, sl, cl float64) float64 {
	switch {
	case sl >= 0 && cl < 0:
		return 180 - fl
	case sl < 0 && cl <= 0:
		return fl - 180
	case sl < 0 && cl > 0:
		return -fl
	}
	return fl
}

// strikeDip returns the strike and dip of the plane whose normal is
// (n, e, u) in north-east-up components.
func strikeDip(n, e, u float64) (strike, dip float64) {
	if u < 0 {
		n, e, u = -n, -e, -u
	}
	strike = math.Atan2(e, n)*r2d - 90
	strike = wrap360(strike)
	dip = math.Atan2(math.Hypot(n, e), u) * r2d
	return strike, dip
}

func wrap360(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	if a >= 360 {
		a -= 360
	}
	return a
}

func normalize(p NodalPlane) NodalPlane {
	p.Strike = wrap360(p.Strike)
	rake := math.Mod(p.Rake, 360)
	if rake > 180 {
		rake -= 360
	}
	if rake <= -180 {
		rake += 360
	}
	p.Rake = rake
	return p
}
