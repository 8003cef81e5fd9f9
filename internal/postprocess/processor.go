// Package postprocess turns a classified inversion result into the published
// output container: derived tensor record, centroid, quality parameters and
// diagnostic artifacts. Artifact failures degrade to warnings; derivation
// failures are returned.
package postprocess

import (
	"context"
	"fmt"
	"math"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/geoscience-au/wphase-post/internal/gridsearch"
	"github.com/geoscience-au/wphase-post/internal/inversion"
	"github.com/geoscience-au/wphase-post/internal/output"
	"github.com/geoscience-au/wphase-post/internal/record"
	"github.com/geoscience-au/wphase-post/internal/seismo"
	"github.com/geoscience-au/wphase-post/internal/tensor"
)

// Output container keys.
const (
	KeyQualityParams = "QualityParams"
	KeyMomentTensor  = "MomentTensor"
	KeyCentroid      = "Centroid"
	KeyOL2           = "OL2"
	KeyOL2Tensor     = "M"
)

// ErrMissingPrecondition is wrapped by every "input not available" artifact
// error. It always ends up as a warning.
var ErrMissingPrecondition = eris.New("postprocess: missing precondition")

// Settings names the artifacts and labels the record.
type Settings struct {
	BeachballPrefix           string
	StationDistributionPrefix string
	PreliminaryFitPrefix      string
	RawTracesPrefix           string
	GridSearchPrefix          string
	Authority                 string
	WorkDir                   string
}

// DefaultSettings returns the standard prefixes and authority, writing to the
// current directory.
func DefaultSettings() Settings {
	return Settings{
		BeachballPrefix:           "beachball",
		StationDistributionPrefix: "station_distribution",
		PreliminaryFitPrefix:      "preliminary_fit",
		RawTracesPrefix:           "raw_traces",
		GridSearchPrefix:          "grid_search",
		Authority:                 "GA W-phase",
		WorkDir:                   ".",
	}
}

// Processor runs the post-processing steps. It holds no per-run state and
// may be shared between goroutines as long as the Renderer can.
type Processor struct {
	renderer Renderer
	geometry Geometry
	settings Settings
	maps     bool
	plots    bool
}

// Option configures a Processor.
type Option func(*Processor)

// WithSettings replaces the default settings.
func WithSettings(s Settings) Option {
	return func(p *Processor) { p.settings = s }
}

// WithGeometry replaces the seismo-backed geometry.
func WithGeometry(g Geometry) Option {
	return func(p *Processor) { p.geometry = g }
}

// WithMaps toggles the station coverage and grid-search maps.
func WithMaps(on bool) Option {
	return func(p *Processor) { p.maps = on }
}

// WithPlots toggles the beachball and waveform plots.
func WithPlots(on bool) Option {
	return func(p *Processor) { p.plots = on }
}

// NewProcessor creates a Processor with maps and plots enabled.
func NewProcessor(renderer Renderer, opts ...Option) *Processor {
	p := &Processor{
		renderer: renderer,
		geometry: SeismoGeometry{},
		settings: DefaultSettings(),
		maps:     true,
		plots:    true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Request is one post-processing invocation.
type Request struct {
	Result inversion.Result
	// Output receives the results; a new container is used when nil.
	Output   *output.Container
	Event    inversion.Event
	Metadata seismo.Metadata
}

// run carries the state of one Process call.
type run struct {
	*Processor
	ctx    context.Context
	out    *output.Container
	req    Request
	level  inversion.Level
	traces []string
}

// Process populates the output container for req. The container is returned
// even on error and holds every field finished before the failure.
func (p *Processor) Process(ctx context.Context, req Request) (*output.Container, error) {
	out := req.Output
	if out == nil {
		out = output.New()
	}
	if req.Result == nil {
		return out, eris.New("postprocess: nil result")
	}
	if err := ctx.Err(); err != nil {
		return out, eris.Wrap(err, "postprocess: process")
	}

	r := &run{Processor: p, ctx: ctx, out: out, req: req}
	r.classify()
	r.preliminaryFit()

	if r.level >= inversion.LevelTensor {
		r.qualityParams()
	}
	if cr, ok := req.Result.(*inversion.CentroidResult); ok {
		if err := r.centroid(cr); err != nil {
			return out, err
		}
	}
	r.dropOL2Tensor()

	if p.maps {
		r.stationCoverage()
	}
	if p.plots {
		r.beachball()
		r.waveforms()
	}
	if cr, ok := req.Result.(*inversion.CentroidResult); ok && p.maps {
		r.gridSearch(cr)
	}

	zap.L().Info("postprocess: finished",
		zap.String("event", req.Event.ID),
		zap.Stringer("level", r.level),
		zap.Int("warnings", len(out.Warnings())),
	)
	return out, nil
}

func (r *run) path(prefix string, suffix string) string {
	return filepath.Join(r.settings.WorkDir, prefix+suffix)
}

func (r *run) preliminaryFit() {
	details := r.req.Result.PreliminaryDetails()
	if len(details) == 0 {
		zap.L().Warn("postprocess: could not find preliminary calculation details")
		return
	}
	r.guard("Preliminary fit plot", func() error {
		return r.renderer.PreliminaryFit(r.ctx, details, r.path(r.settings.PreliminaryFitPrefix, ""))
	})
}

func (r *run) classify() {
	switch res := r.req.Result.(type) {
	case *inversion.CentroidResult:
		r.level = inversion.LevelCentroid
		r.traces = res.TraceIDs()
	case *inversion.TensorResult:
		r.level = inversion.LevelTensor
		r.traces = res.TraceIDs()
	case *inversion.PreliminaryResult:
		r.level = inversion.LevelPreliminary
		r.traces = res.PreliminaryTraceIDs()
	}
}

func (r *run) qualityParams() {
	hypo := seismo.NewPoint(r.req.Event.Latitude, r.req.Event.Longitude)
	used := r.req.Result.UsedTraces()
	if len(used) == 0 {
		used = r.traces
	}
	gap, _, err := r.geometry.AzimuthalGap(r.req.Metadata, used, hypo)
	if err != nil {
		r.warn("Quality parameters", err)
		return
	}
	qp := r.out.Child(KeyQualityParams)
	qp.Set("azimuthal_gap", gap)
	qp.Set("number_of_stations", r.geometry.CountStations(used))
	qp.Set("number_of_channels", r.geometry.CountChannels(used))
}

func (r *run) centroid(res *inversion.CentroidResult) error {
	ol2 := r.popOL2Tensor(res)

	rec, err := record.FromTensor(res.MomentTensor, res.Centroid, r.settings.Authority)
	if err != nil {
		return eris.Wrap(err, "postprocess: derive moment tensor")
	}
	r.out.Set(KeyMomentTensor, rec.Fields())

	cen := r.out.Child(KeyCentroid)
	cen.Set("depth", round(res.Centroid.Depth, 1))
	cen.Set("latitude", round(res.Centroid.Latitude, 3))
	cen.Set("longitude", round(res.Centroid.Longitude, 3))

	if r.plots {
		r.guard("OL2 beachball", func() error {
			if ol2 == nil {
				return eris.Wrap(ErrMissingPrecondition, "no OL2 moment tensor")
			}
			return r.renderer.Beachball(r.ctx, *ol2, r.path(r.settings.BeachballPrefix, "_OL2"))
		})
	}
	return nil
}

// popOL2Tensor removes the OL2-stage tensor from the container, falling back
// to the one carried on the result.
func (r *run) popOL2Tensor(res *inversion.CentroidResult) *tensor.MT {
	if ol2, ok := r.out.Get(KeyOL2); ok {
		if c, ok := ol2.(*output.Container); ok {
			if v, ok := c.Pop(KeyOL2Tensor); ok {
				m, err := tensorFromValue(v)
				if err == nil {
					return &m
				}
				zap.L().Warn("postprocess: unusable OL2 tensor in output", zap.Error(err))
			}
		}
	}
	return res.OL2MomentTensor
}

func (r *run) dropOL2Tensor() {
	if ol2, ok := r.out.Get(KeyOL2); ok {
		if c, ok := ol2.(*output.Container); ok {
			c.Pop(KeyOL2Tensor)
		}
	}
}

func (r *run) stationCoverage() {
	r.guard("Station distribution plot", func() error {
		if r.level < inversion.LevelTensor {
			return eris.Wrap(ErrMissingPrecondition, "no moment tensor inversion")
		}
		if len(r.traces) == 0 {
			return eris.Wrap(ErrMissingPrecondition, "no traces")
		}
		if r.req.Metadata == nil {
			return eris.Wrap(ErrMissingPrecondition, "no station metadata")
		}
		cov := Coverage{
			Epicenter: seismo.NewPoint(r.req.Event.Latitude, r.req.Event.Longitude),
			TraceIDs:  r.traces,
		}
		for _, id := range r.traces {
			pt, err := r.req.Metadata.Point(id)
			if err != nil {
				return err
			}
			cov.Stations = append(cov.Stations, pt)
		}
		return r.renderer.StationCoverage(r.ctx, cov, r.path(r.settings.StationDistributionPrefix, ""))
	})
}

func (r *run) beachball() {
	r.guard("Beachball plot", func() error {
		var m tensor.MT
		switch res := r.req.Result.(type) {
		case *inversion.CentroidResult:
			m = res.MomentTensor
		case *inversion.TensorResult:
			m = res.MomentTensor
		default:
			return eris.Wrap(ErrMissingPrecondition, "no moment tensor")
		}
		return r.renderer.Beachball(r.ctx, m, r.path(r.settings.BeachballPrefix, "_"+r.level.String()))
	})
}

func (r *run) waveforms() {
	var tr *inversion.TensorResult
	switch res := r.req.Result.(type) {
	case *inversion.CentroidResult:
		tr = &res.TensorResult
	case *inversion.TensorResult:
		tr = res
	}
	if tr == nil || len(r.traces) == 0 {
		r.out.AddWarning(fmt.Sprintf("Could not create wphase results plot. OL=%d, len(traces)=%d",
			int(r.level), len(r.traces)))
		return
	}
	r.guard("Wphase results plot", func() error {
		fit := WaveformFit{
			Observed:     tr.ObservedDisplacements,
			Synthetic:    tr.SyntheticDisplacements,
			TraceLengths: tr.TraceLengths,
		}
		return r.renderer.Waveforms(r.ctx, fit, r.path(r.settings.RawTracesPrefix, ""))
	})
}

func (r *run) gridSearch(res *inversion.CentroidResult) {
	r.guard("Grid search plot", func() error {
		locs, misfits := res.GridCandidates()
		field, err := gridsearch.Reduce(locs, misfits)
		if err != nil {
			return err
		}
		plot := GridPlot{
			Epicenter: inversion.Location{
				Latitude:  r.req.Event.Latitude,
				Longitude: r.req.Event.Longitude,
				Depth:     r.req.Event.Depth,
			},
			Centroid: res.Centroid,
			Field:    field,
			Sizes:    field.MarkerSizes(),
			Colors:   field.Scaled,
		}
		return r.renderer.GridSearch(r.ctx, plot, r.path(r.settings.GridSearchPrefix, ""))
	})
}

// guard runs one artifact request, turning an error or a panic into a warning.
func (r *run) guard(description string, fn func() error) {
	err := func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = eris.Errorf("panic: %v", rec)
			}
		}()
		return fn()
	}()
	if err != nil {
		r.warn(description, err)
	}
}

func (r *run) warn(description string, err error) {
	msg := fmt.Sprintf("%s (%s): %v", description, r.level, err)
	zap.L().Warn("postprocess: "+description+" failed",
		zap.Stringer("level", r.level),
		zap.Error(err),
	)
	r.out.AddWarning(msg)
}

func tensorFromValue(v any) (tensor.MT, error) {
	seq, ok := v.([]any)
	if !ok {
		return tensor.MT{}, eris.Errorf("postprocess: OL2 tensor is %T, not a sequence", v)
	}
	vals := make([]float64, len(seq))
	for i, e := range seq {
		switch n := e.(type) {
		case float64:
			vals[i] = n
		case float32:
			vals[i] = float64(n)
		case int:
			vals[i] = float64(n)
		case int64:
			vals[i] = float64(n)
		default:
			return tensor.MT{}, eris.Errorf("postprocess: OL2 tensor element %d is %T", i, e)
		}
	}
	return tensor.FromSlice(vals)
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
