package postprocess

import (
	"context"

	"github.com/twpayne/go-geom"

	"github.com/geoscience-au/wphase-post/internal/gridsearch"
	"github.com/geoscience-au/wphase-post/internal/inversion"
	"github.com/geoscience-au/wphase-post/internal/seismo"
	"github.com/geoscience-au/wphase-post/internal/tensor"
)

// Renderer produces the diagnostic artifacts. Paths are given without an
// extension; implementations append the extensions of the files they write.
type Renderer interface {
	Beachball(ctx context.Context, m tensor.MT, path string) error
	StationCoverage(ctx context.Context, cov Coverage, path string) error
	PreliminaryFit(ctx context.Context, details map[string]any, path string) error
	Waveforms(ctx context.Context, fit WaveformFit, path string) error
	GridSearch(ctx context.Context, plot GridPlot, path string) error
}

// Coverage is the input to a station coverage map.
type Coverage struct {
	Epicenter *geom.Point
	Stations  []*geom.Point
	TraceIDs  []string
}

// WaveformFit is the input to the observed/synthetic comparison plot.
type WaveformFit struct {
	Observed     []float64
	Synthetic    []float64
	TraceLengths []inversion.TraceLength
}

// GridPlot is the input to the grid-search heat map.
type GridPlot struct {
	Epicenter inversion.Location
	Centroid  inversion.Location
	Field     *gridsearch.Field
	// Sizes and Colors hold one value per footprint element.
	Sizes  []float64
	Colors []float64
}

// Geometry computes the quality parameters of an inversion.
type Geometry interface {
	AzimuthalGap(meta seismo.Metadata, traces []string, hypocenter *geom.Point) (float64, []float64, error)
	CountStations(traces []string) int
	CountChannels(traces []string) int
}

// SeismoGeometry is the Geometry backed by package seismo.
type SeismoGeometry struct{}

func (SeismoGeometry) AzimuthalGap(meta seismo.Metadata, traces []string, hypocenter *geom.Point) (float64, []float64, error) {
	return seismo.AzimuthalGap(meta, traces, hypocenter)
}

func (SeismoGeometry) CountStations(traces []string) int { return seismo.CountStations(traces) }

func (SeismoGeometry) CountChannels(traces []string) int { return seismo.CountChannels(traces) }
