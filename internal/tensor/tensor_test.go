package tensor

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromSlice(t *testing.T) {
	m, err := FromSlice([]float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, MT{1, 2, 3, 4, 5, 6}, m)

	_, err = FromSlice([]float64{1, 2, 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "need 6 components")
}

func TestMatrix_Symmetric(t *testing.T) {
	m := MT{1, 2, 3, 4, 5, 6}
	s := m.Matrix()
	assert.Equal(t, 1.0, s.At(0, 0))
	assert.Equal(t, 2.0, s.At(1, 1))
	assert.Equal(t, 3.0, s.At(2, 2))
	assert.Equal(t, 4.0, s.At(0, 1))
	assert.Equal(t, 4.0, s.At(1, 0))
	assert.Equal(t, 5.0, s.At(0, 2))
	assert.Equal(t, 6.0, s.At(1, 2))
	assert.InDelta(t, 6.0, m.Trace(), 1e-12)
}

func TestEigen_Ascending(t *testing.T) {
	vals, vecs, err := MT{0, 0, 0, 0, 0, -1}.Eigen()
	require.NoError(t, err)
	require.Len(t, vals, 3)
	assert.InDelta(t, -1, vals[0], 1e-12)
	assert.InDelta(t, 0, vals[1], 1e-12)
	assert.InDelta(t, 1, vals[2], 1e-12)
	r, c := vecs.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 3, c)
}

func TestDecompose_PureDoubleCouple(t *testing.T) {
	planes := []NodalPlane{
		{Strike: 0, Dip: 90, Rake: 0},
		{Strike: 30, Dip: 60, Rake: 45},
		{Strike: 210, Dip: 15, Rake: 90},
	}
	for _, p := range planes {
		dc, clvd, err := Decompose(FromPlane(p, 1e20))
		require.NoError(t, err)
		assert.InDelta(t, 1.0, dc, 1e-9)
		assert.InDelta(t, 0.0, clvd, 1e-9)
	}
}

func TestDecompose_PureCLVD(t *testing.T) {
	tests := []struct {
		name string
		m    MT
	}{
		{"positive", MT{1, -0.5, -0.5, 0, 0, 0}},
		{"negative", MT{-1, 0.5, 0.5, 0, 0, 0}},
		{"rotated", MT{-0.5, 1, -0.5, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dc, clvd, err := Decompose(tt.m)
			require.NoError(t, err)
			assert.InDelta(t, 0.0, dc, 1e-9)
			assert.InDelta(t, 1.0, clvd, 1e-9)
		})
	}
}

func TestDecompose_ZeroTensor(t *testing.T) {
	_, _, err := Decompose(MT{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDegenerateTensor))
}

func TestDecompose_FractionsSumToOne(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 500; i++ {
		tt := rng.NormFloat64()
		pp := rng.NormFloat64()
		m := MT{-(tt + pp), tt, pp, rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()}
		for j := range m {
			m[j] *= 1e19
		}

		dc, clvd, err := Decompose(m)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, dc, 0.0)
		assert.LessOrEqual(t, dc, 1.0)
		assert.GreaterOrEqual(t, clvd, 0.0)
		assert.LessOrEqual(t, clvd, 1.0)
		assert.InDelta(t, 1.0, dc+clvd, 1e-9)
	}
}

func TestFromPlane_VerticalStrikeSlip(t *testing.T) {
	m := FromPlane(NodalPlane{Strike: 0, Dip: 90, Rake: 0}, 1)
	want := MT{0, 0, 0, 0, 0, -1}
	for i := range m {
		assert.InDelta(t, want[i], m[i], 1e-12, "component %d", i)
	}
}

func TestPrimaryPlane_RoundTrip(t *testing.T) {
	planes := []NodalPlane{
		{Strike: 0, Dip: 90, Rake: 0},
		{Strike: 0, Dip: 45, Rake: 90},
		{Strike: 30, Dip: 60, Rake: 45},
		{Strike: 120, Dip: 30, Rake: -90},
		{Strike: 250, Dip: 80, Rake: 170},
		{Strike: 10, Dip: 20, Rake: -30},
		{Strike: 0, Dip: 90, Rake: 90},
		{Strike: 0, Dip: 45, Rake: 0},
	}
	rng := rand.New(rand.NewPCG(3, 5))
	for i := 0; i < 200; i++ {
		planes = append(planes, NodalPlane{
			Strike: rng.Float64() * 360,
			Dip:    5 + rng.Float64()*84,
			Rake:   -179 + rng.Float64()*358,
		})
	}

	for _, p := range planes {
		want := FromPlane(p, 1)
		got, err := PrimaryPlane(want)
		require.NoError(t, err)
		assertPlaneRanges(t, got)
		assertTensorNear(t, want, FromPlane(got, 1), fmt.Sprintf("primary plane of %+v = %+v", p, got))

		aux := AuxPlane(got)
		assertPlaneRanges(t, aux)
		assertTensorNear(t, want, FromPlane(aux, 1), fmt.Sprintf("aux plane of %+v = %+v", got, aux))
	}
}

func TestPrimaryPlane_Deterministic(t *testing.T) {
	m := MT{1.2e20, -0.7e20, -0.5e20, 0.3e20, -0.9e20, 0.4e20}
	a, err := PrimaryPlane(m)
	require.NoError(t, err)
	b, err := PrimaryPlane(m)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPrimaryPlane_Undefined(t *testing.T) {
	tests := []struct {
		name string
		m    MT
	}{
		{"zero", MT{}},
		{"isotropic", MT{1, 1, 1, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PrimaryPlane(tt.m)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUndefinedPlane))
		})
	}
}

func TestAuxPlane_Involution(t *testing.T) {
	planes := []NodalPlane{
		{Strike: 30, Dip: 60, Rake: 45},
		{Strike: 0, Dip: 45, Rake: 0},
		{Strike: 200, Dip: 60, Rake: 180},
		{Strike: 90, Dip: 90, Rake: 90},
	}
	for _, p := range planes {
		back := AuxPlane(AuxPlane(p))
		assertTensorNear(t, FromPlane(p, 1), FromPlane(back, 1), fmt.Sprintf("aux(aux(%+v)) = %+v", p, back))
	}
}

func TestAuxPlane_KnownPair(t *testing.T) {
	// A 45 degree thrust striking north pairs with one striking south.
	aux := AuxPlane(NodalPlane{Strike: 0, Dip: 45, Rake: 90})
	assert.InDelta(t, 180, aux.Strike, 1e-9)
	assert.InDelta(t, 45, aux.Dip, 1e-9)
	assert.InDelta(t, 90, aux.Rake, 1e-9)
}

func assertPlaneRanges(t *testing.T, p NodalPlane) {
	t.Helper()
	assert.GreaterOrEqual(t, p.Strike, 0.0)
	assert.Less(t, p.Strike, 360.0)
	assert.GreaterOrEqual(t, p.Dip, 0.0)
	assert.LessOrEqual(t, p.Dip, 90.0+1e-9)
	assert.Greater(t, p.Rake, -180.0)
	assert.LessOrEqual(t, p.Rake, 180.0)
}

func assertTensorNear(t *testing.T, want, got MT, context string) {
	t.Helper()
	for i := range want {
		if math.Abs(want[i]-got[i]) > 1e-6 {
			t.Errorf("%s: tensor mismatch, want %v got %v", context, want, got)
			return
		}
	}
}
