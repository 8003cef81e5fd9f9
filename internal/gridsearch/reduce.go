// Package gridsearch collapses a centroid grid search over (lat, lon, depth)
// into a 2D misfit field over the shared lat/lon footprint.
package gridsearch

import (
	"slices"

	"github.com/montanaflynn/stats"
	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/floats"

	"github.com/geoscience-au/wphase-post/internal/inversion"
)

var (
	// ErrIrregularGrid is returned when the depth slices do not share one
	// lat/lon footprint.
	ErrIrregularGrid = eris.New("gridsearch: depth slices do not share a footprint")
	// ErrNonPositiveMinimum is returned when the summed field cannot be
	// normalized by its minimum.
	ErrNonPositiveMinimum = eris.New("gridsearch: minimum of summed misfit is not positive")
)

// Field is the depth-summed misfit over the footprint, divided by its minimum.
type Field struct {
	// Footprint holds one (lat, lon) pair per field element.
	Footprint [][2]float64
	Scaled    []float64
}

// Latitudes returns the footprint latitudes in order.
func (f *Field) Latitudes() []float64 {
	out := make([]float64, len(f.Footprint))
	for i, p := range f.Footprint {
		out[i] = p[0]
	}
	return out
}

// Longitudes returns the footprint longitudes in order.
func (f *Field) Longitudes() []float64 {
	out := make([]float64, len(f.Footprint))
	for i, p := range f.Footprint {
		out[i] = p[1]
	}
	return out
}

// MarkerSizes returns 100/s² for each scaled value s, so the best-fitting
// location is drawn largest.
func (f *Field) MarkerSizes() []float64 {
	out := make([]float64, len(f.Scaled))
	for i, s := range f.Scaled {
		out[i] = 100 / (s * s)
	}
	return out
}

// Reduce sums the misfits over depth and scales the result by its minimum.
func Reduce(candidates []inversion.Location, misfits []float64) (*Field, error) {
	if len(candidates) != len(misfits) {
		return nil, eris.Wrapf(ErrIrregularGrid, "gridsearch: %d candidates but %d misfits",
			len(candidates), len(misfits))
	}
	if len(candidates) == 0 {
		return nil, eris.Wrap(ErrIrregularGrid, "gridsearch: no candidates")
	}

	depths := make([]float64, 0)
	for _, c := range candidates {
		depths = append(depths, c.Depth)
	}
	slices.Sort(depths)
	depths = slices.Compact(depths)

	if len(candidates)%len(depths) != 0 {
		return nil, eris.Wrapf(ErrIrregularGrid, "gridsearch: %d candidates over %d depths",
			len(candidates), len(depths))
	}
	size := len(candidates) / len(depths)

	var footprint [][2]float64
	var sum []float64
	for _, d := range depths {
		var pts [][2]float64
		var vals []float64
		for i, c := range candidates {
			if c.Depth == d {
				pts = append(pts, [2]float64{c.Latitude, c.Longitude})
				vals = append(vals, misfits[i])
			}
		}
		if len(vals) != size {
			return nil, eris.Wrapf(ErrIrregularGrid, "gridsearch: depth %g has %d points, want %d",
				d, len(vals), size)
		}
		if footprint == nil {
			footprint = pts
			sum = vals
			continue
		}
		if !slices.Equal(footprint, pts) {
			return nil, eris.Wrapf(ErrIrregularGrid, "gridsearch: footprint at depth %g differs", d)
		}
		floats.Add(sum, vals)
	}

	minimum, err := stats.Min(sum)
	if err != nil {
		return nil, eris.Wrap(err, "gridsearch: minimum")
	}
	if minimum <= 0 {
		return nil, ErrNonPositiveMinimum
	}
	for i := range sum {
		sum[i] /= minimum
	}

	return &Field{Footprint: footprint, Scaled: sum}, nil
}
