// Package tensor holds the moment tensor type and the numeric routines that
// operate on it: eigen decomposition, DC/CLVD decomposition and nodal planes.
package tensor

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
)

// Component indices into MT.
const (
	RR = iota
	TT
	PP
	RT
	RP
	TP
)

var (
	// ErrDegenerateTensor is returned when all eigenvalues are equal, so the
	// decomposition has nothing to normalize by.
	ErrDegenerateTensor = eris.New("tensor: degenerate moment tensor")
	// ErrEigenFactorization is returned when the eigen solver does not converge.
	ErrEigenFactorization = eris.New("tensor: eigen factorization failed")
	// ErrUndefinedPlane is returned when no nodal plane can be derived.
	ErrUndefinedPlane = eris.New("tensor: nodal plane undefined")
)

// MT is a moment tensor in the (rr, tt, pp, rt, rp, tp) convention.
type MT [6]float64

// FromSlice builds an MT from a six-element slice.
func FromSlice(v []float64) (MT, error) {
	var m MT
	if len(v) != 6 {
		return m, eris.Errorf("tensor: need 6 components, got %d", len(v))
	}
	copy(m[:], v)
	return m, nil
}

// Matrix returns the full symmetric 3x3 tensor in (r, t, p) coordinates.
func (m MT) Matrix() *mat.SymDense {
	return mat.NewSymDense(3, []float64{
		m[RR], m[RT], m[RP],
		m[RT], m[TT], m[TP],
		m[RP], m[TP], m[PP],
	})
}

// Trace returns rr + tt + pp.
func (m MT) Trace() float64 {
	return m[RR] + m[TT] + m[PP]
}

// Eigen returns the eigenvalues in ascending order and the matching
// eigenvectors as the columns of a 3x3 matrix.
func (m MT) Eigen() ([]float64, *mat.Dense, error) {
	var es mat.EigenSym
	if ok := es.Factorize(m.Matrix(), true); !ok {
		return nil, nil, ErrEigenFactorization
	}
	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)
	return vals, &vecs, nil
}

// Decompose splits a deviatoric moment tensor into its double-couple and
// CLVD fractions following Vavryčuk (2015). The two fractions are in [0, 1]
// and sum to 1. The tensor is assumed trace-free; any isotropic part is
// ignored.
func Decompose(m MT) (dc, clvd float64, err error) {
	vals, _, err := m.Eigen()
	if err != nil {
		return 0, 0, err
	}
	// Ascending from the solver, so M1 >= M2 >= M3 reads back to front.
	m1, m2, m3 := vals[2], vals[1], vals[0]

	mCLVD := (2.0 / 3.0) * (m1 + m3 - 2*m2)
	mDC := 0.5 * (m1 - m3 - math.Abs(m1+m3-2*m2))
	total := math.Abs(mCLVD) + math.Abs(mDC)
	if total == 0 || math.IsNaN(total) {
		return 0, 0, ErrDegenerateTensor
	}
	return math.Abs(mDC) / total, math.Abs(mCLVD) / total, nil
}
