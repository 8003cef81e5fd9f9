package postprocess

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/geoscience-au/wphase-post/internal/inversion"
	"github.com/geoscience-au/wphase-post/internal/output"
	"github.com/geoscience-au/wphase-post/internal/seismo"
	"github.com/geoscience-au/wphase-post/internal/tensor"
)

type fakeRenderer struct {
	calls  []string
	paths  map[string]string
	fail   map[string]error
	panics map[string]bool

	grid     *GridPlot
	coverage *Coverage
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{paths: map[string]string{}, fail: map[string]error{}, panics: map[string]bool{}}
}

func (f *fakeRenderer) record(name, path string) error {
	f.calls = append(f.calls, name)
	f.paths[name] = path
	if f.panics[name] {
		panic(name + " exploded")
	}
	return f.fail[name]
}

func (f *fakeRenderer) Beachball(_ context.Context, _ tensor.MT, path string) error {
	return f.record("beachball"+filepath.Base(path)[len("beachball"):], path)
}

func (f *fakeRenderer) StationCoverage(_ context.Context, cov Coverage, path string) error {
	f.coverage = &cov
	return f.record("coverage", path)
}

func (f *fakeRenderer) PreliminaryFit(_ context.Context, _ map[string]any, path string) error {
	return f.record("prelim", path)
}

func (f *fakeRenderer) Waveforms(_ context.Context, _ WaveformFit, path string) error {
	return f.record("waveforms", path)
}

func (f *fakeRenderer) GridSearch(_ context.Context, plot GridPlot, path string) error {
	f.grid = &plot
	return f.record("grid", path)
}

func testMetadata() seismo.Metadata {
	return seismo.Metadata{
		"IU.AAA": {Latitude: 10, Longitude: 0},
		"IU.BBB": {Latitude: 0, Longitude: 10},
		"IU.CCC": {Latitude: -10, Longitude: 0},
	}
}

func testEvent() inversion.Event {
	return inversion.Event{ID: "ga2024test", Latitude: 0, Longitude: 0, Depth: 20}
}

func tensorResult() *inversion.TensorResult {
	return &inversion.TensorResult{
		PreliminaryResult: inversion.PreliminaryResult{
			Details: map[string]any{"trids": []any{"IU.AAA.00.LHZ"}},
			Used:    []string{"IU.AAA.00.LHZ", "IU.BBB.00.LHZ", "IU.CCC.00.LHZ"},
		},
		MomentTensor:           tensor.FromPlane(tensor.NodalPlane{Strike: 30, Dip: 60, Rake: 45}, 1e20),
		ObservedDisplacements:  []float64{1, 2, 3, 4},
		SyntheticDisplacements: []float64{1, 2, 3, 3},
		TraceLengths: []inversion.TraceLength{
			{ID: "IU.AAA.00.LHZ", Length: 1},
			{ID: "IU.AAA.00.LHN", Length: 1},
			{ID: "IU.BBB.00.LHZ", Length: 1},
			{ID: "IU.CCC.00.LHZ", Length: 1},
		},
	}
}

func centroidResult() *inversion.CentroidResult {
	return &inversion.CentroidResult{
		TensorResult: *tensorResult(),
		Centroid:     inversion.Location{Latitude: -1.23456, Longitude: 2.34567, Depth: 21.26},
		GridSearch: []inversion.GridPoint{
			{Location: inversion.Location{Latitude: 0, Longitude: 0, Depth: 10}, Misfit: 1},
			{Location: inversion.Location{Latitude: 0, Longitude: 1, Depth: 10}, Misfit: 2},
			{Location: inversion.Location{Latitude: 0, Longitude: 0, Depth: 20}, Misfit: 4},
			{Location: inversion.Location{Latitude: 0, Longitude: 1, Depth: 20}, Misfit: 5},
		},
	}
}

func withOL2(t *testing.T) *output.Container {
	t.Helper()
	out := output.New()
	out.Child(KeyOL2).Set(KeyOL2Tensor, []float64{1, 2, 3, 4, 5, 6})
	out.Child(KeyOL2).Set("misfit", 0.3)
	return out
}

func TestProcess_CentroidWithFailingStationMap(t *testing.T) {
	fr := newFakeRenderer()
	fr.fail["coverage"] = errors.New("no coastline data")
	p := NewProcessor(fr, WithSettings(Settings{
		BeachballPrefix:           "beachball",
		StationDistributionPrefix: "station_distribution",
		PreliminaryFitPrefix:      "preliminary_fit",
		RawTracesPrefix:           "raw_traces",
		GridSearchPrefix:          "grid_search",
		Authority:                 "GA W-phase",
		WorkDir:                   "/work",
	}))

	out, err := p.Process(context.Background(), Request{
		Result:   centroidResult(),
		Output:   withOL2(t),
		Event:    testEvent(),
		Metadata: testMetadata(),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Station distribution plot (OL3): no coastline data"}, out.Warnings())

	mtv, ok := out.Get(KeyMomentTensor)
	require.True(t, ok)
	mt := mtv.(*output.Container)
	for _, k := range []string{
		"tmrr", "tmtt", "tmpp", "tmrt", "tmrp", "tmtp", "dc", "clvd", "scm", "drmag",
		"drmagt", "str1", "dip1", "rake1", "str2", "dip2", "rake2", "drlat", "drlon", "drdepth", "auth",
	} {
		assert.True(t, mt.Has(k), "MomentTensor.%s", k)
	}
	auth, _ := mt.Get("auth")
	assert.Equal(t, "GA W-phase", auth)
	lat, _ := mt.Get("drlat")
	assert.Equal(t, -1.23456, lat)

	cen := out.Child(KeyCentroid).Materialize()
	assert.Equal(t, map[string]any{"depth": 21.3, "latitude": -1.235, "longitude": 2.346}, cen)

	ol2 := out.Child(KeyOL2)
	assert.False(t, ol2.Has(KeyOL2Tensor))
	assert.True(t, ol2.Has("misfit"))

	qp := out.Child(KeyQualityParams).Materialize()
	assert.InDelta(t, 180.0, qp["azimuthal_gap"], 1e-6)
	assert.Equal(t, 3, qp["number_of_stations"])
	assert.Equal(t, 3, qp["number_of_channels"])

	assert.Equal(t, []string{"prelim", "beachball_OL2", "coverage", "beachball_OL3", "waveforms", "grid"}, fr.calls)
	assert.Equal(t, "/work/beachball_OL3", fr.paths["beachball_OL3"])
	assert.Equal(t, "/work/grid_search", fr.paths["grid"])

	require.NotNil(t, fr.grid)
	assert.InDeltaSlice(t, []float64{1, 1.4}, fr.grid.Colors, 1e-12)
	assert.InDeltaSlice(t, []float64{100, 100 / 1.96}, fr.grid.Sizes, 1e-9)
	assert.Equal(t, 20.0, fr.grid.Epicenter.Depth)
}

func TestProcess_TensorLevel(t *testing.T) {
	fr := newFakeRenderer()
	out, err := NewProcessor(fr).Process(context.Background(), Request{
		Result:   tensorResult(),
		Output:   withOL2(t),
		Event:    testEvent(),
		Metadata: testMetadata(),
	})
	require.NoError(t, err)

	assert.False(t, out.Has(KeyCentroid))
	assert.False(t, out.Has(KeyMomentTensor))
	assert.False(t, out.Child(KeyOL2).Has(KeyOL2Tensor))
	assert.Empty(t, out.Warnings())
	assert.Nil(t, fr.grid)
	assert.NotContains(t, fr.calls, "grid")
	assert.Contains(t, fr.calls, "beachball_OL2")

	require.NotNil(t, fr.coverage)
	assert.Len(t, fr.coverage.Stations, 4)
	assert.Equal(t, 0.0, fr.coverage.Epicenter.X())
}

func TestProcess_PreliminaryLevel(t *testing.T) {
	fr := newFakeRenderer()
	res := &inversion.PreliminaryResult{
		Details: map[string]any{"trids": []any{"IU.AAA.00.LHZ", "IU.BBB.00.LHZ"}},
	}
	out, err := NewProcessor(fr).Process(context.Background(), Request{
		Result:   res,
		Event:    testEvent(),
		Metadata: testMetadata(),
	})
	require.NoError(t, err)

	warnings := out.Warnings()
	require.Len(t, warnings, 3)
	assert.Contains(t, warnings[0], "Station distribution plot (OL1)")
	assert.Contains(t, warnings[1], "Beachball plot (OL1)")
	assert.Equal(t, "Could not create wphase results plot. OL=1, len(traces)=2", warnings[2])
	assert.False(t, out.Has(KeyQualityParams))
	assert.False(t, out.Has(KeyOL2))
	assert.Equal(t, []string{"prelim"}, fr.calls)
}

func TestProcess_NoPreliminaryDetailsIsSilent(t *testing.T) {
	fr := newFakeRenderer()
	out, err := NewProcessor(fr, WithMaps(false), WithPlots(false)).Process(context.Background(), Request{
		Result: &inversion.PreliminaryResult{},
	})
	require.NoError(t, err)
	assert.Empty(t, out.Warnings())
	assert.Empty(t, fr.calls)
}

func TestProcess_WarningsKeepOrder(t *testing.T) {
	fr := newFakeRenderer()
	fr.fail["prelim"] = errors.New("first")
	fr.panics["coverage"] = true
	fr.fail["waveforms"] = errors.New("third")

	res := centroidResult()
	res.GridSearch = res.GridSearch[:3]

	out, err := NewProcessor(fr).Process(context.Background(), Request{
		Result:   res,
		Event:    testEvent(),
		Metadata: testMetadata(),
	})
	require.NoError(t, err)

	warnings := out.Warnings()
	require.Len(t, warnings, 5)
	assert.Equal(t, "Preliminary fit plot (OL3): first", warnings[0])
	assert.Contains(t, warnings[1], "OL2 beachball (OL3)")
	assert.Contains(t, warnings[1], "missing precondition")
	assert.Equal(t, "Station distribution plot (OL3): panic: coverage exploded", warnings[2])
	assert.Equal(t, "Wphase results plot (OL3): third", warnings[3])
	assert.Contains(t, warnings[4], "Grid search plot (OL3)")
	assert.NotContains(t, fr.calls, "grid")

	// Artifact failures never touch derived fields.
	assert.True(t, out.Has(KeyMomentTensor))
	assert.True(t, out.Has(KeyCentroid))
}

func TestProcess_OL2TensorFromResult(t *testing.T) {
	fr := newFakeRenderer()
	res := centroidResult()
	ol2 := tensor.MT{1, 2, 3, 4, 5, 6}
	res.OL2MomentTensor = &ol2

	out, err := NewProcessor(fr).Process(context.Background(), Request{
		Result:   res,
		Event:    testEvent(),
		Metadata: testMetadata(),
	})
	require.NoError(t, err)
	assert.Empty(t, out.Warnings())
	assert.Contains(t, fr.calls, "beachball_OL2")
	assert.False(t, out.Has(KeyOL2))
}

func TestProcess_DerivationFailureIsFatal(t *testing.T) {
	fr := newFakeRenderer()
	res := centroidResult()
	res.MomentTensor = tensor.MT{}

	out, err := NewProcessor(fr).Process(context.Background(), Request{
		Result:   res,
		Event:    testEvent(),
		Metadata: testMetadata(),
	})
	require.Error(t, err)
	require.NotNil(t, out)
	assert.Contains(t, err.Error(), "derive moment tensor")
	assert.False(t, out.Has(KeyMomentTensor))
	assert.False(t, out.Has(KeyCentroid))
	// Steps before the derivation are kept.
	assert.True(t, out.Has(KeyQualityParams))
}

func TestProcess_QualityParamsFailureIsWarning(t *testing.T) {
	fr := newFakeRenderer()
	out, err := NewProcessor(fr, WithMaps(false), WithPlots(false)).Process(context.Background(), Request{
		Result: tensorResult(),
		Event:  testEvent(),
	})
	require.NoError(t, err)
	assert.False(t, out.Has(KeyQualityParams))
	require.Len(t, out.Warnings(), 1)
	assert.Contains(t, out.Warnings()[0], "Quality parameters (OL2)")
}

func TestProcess_MissingMetadataForMap(t *testing.T) {
	fr := newFakeRenderer()
	out, err := NewProcessor(fr, WithPlots(false)).Process(context.Background(), Request{
		Result: tensorResult(),
		Event:  testEvent(),
	})
	require.NoError(t, err)
	require.Len(t, out.Warnings(), 2)
	assert.Contains(t, out.Warnings()[1], "no station metadata")
}

func TestProcess_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewProcessor(newFakeRenderer()).Process(ctx, Request{Result: tensorResult()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestProcess_NilResult(t *testing.T) {
	out, err := NewProcessor(newFakeRenderer()).Process(context.Background(), Request{})
	require.Error(t, err)
	assert.NotNil(t, out)
}

func TestProcess_PreliminaryFitWarningNamesLevel(t *testing.T) {
	tests := []struct {
		name   string
		result inversion.Result
		want   string
	}{
		{"OL1", &inversion.PreliminaryResult{Details: map[string]any{"trids": []any{"IU.AAA.00.LHZ"}}}, "Preliminary fit plot (OL1): bad details"},
		{"OL2", tensorResult(), "Preliminary fit plot (OL2): bad details"},
		{"OL3", centroidResult(), "Preliminary fit plot (OL3): bad details"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fr := newFakeRenderer()
			fr.fail["prelim"] = errors.New("bad details")

			out, err := NewProcessor(fr, WithMaps(false), WithPlots(false)).Process(context.Background(), Request{
				Result:   tt.result,
				Event:    testEvent(),
				Metadata: testMetadata(),
			})
			require.NoError(t, err)
			require.NotEmpty(t, out.Warnings())
			assert.Equal(t, tt.want, out.Warnings()[0])
			assert.Equal(t, []string{"prelim"}, fr.calls)
		})
	}
}

func TestProcess_QualityCountsUseUsedTraces(t *testing.T) {
	tests := []struct {
		name         string
		used         []string
		wantStations int
		wantChannels int
	}{
		// Four trace lengths, three used channels.
		{"used traces", []string{"IU.AAA.00.LHZ", "IU.BBB.00.LHZ", "IU.CCC.00.LHZ"}, 3, 3},
		{"two used", []string{"IU.AAA.00.LHZ", "IU.BBB.00.LHZ"}, 2, 2},
		{"falls back to trace lengths", nil, 3, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tensorResult()
			res.Used = tt.used

			out, err := NewProcessor(newFakeRenderer(), WithMaps(false), WithPlots(false)).Process(context.Background(), Request{
				Result:   res,
				Event:    testEvent(),
				Metadata: testMetadata(),
			})
			require.NoError(t, err)

			qp := out.Child(KeyQualityParams).Materialize()
			assert.Equal(t, tt.wantStations, qp["number_of_stations"])
			assert.Equal(t, tt.wantChannels, qp["number_of_channels"])
		})
	}
}

func TestProcess_MissingPreliminaryDetailsLogsWarning(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	_, err := NewProcessor(newFakeRenderer(), WithMaps(false), WithPlots(false)).Process(context.Background(), Request{
		Result: &inversion.PreliminaryResult{},
	})
	require.NoError(t, err)

	entries := logs.FilterMessage("postprocess: could not find preliminary calculation details").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
}
