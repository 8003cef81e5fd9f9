package inversion

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/geoscience-au/wphase-post/internal/tensor"
)

// Raw is the inversion output as decoded from disk. Any field may be absent;
// Classify decides which level the present fields support.
type Raw struct {
	PreliminaryCalcDetails map[string]any `json:"preliminary_calc_details,omitempty" yaml:"preliminary_calc_details,omitempty"`
	UsedTraces             []string       `json:"used_traces,omitempty" yaml:"used_traces,omitempty"`

	MomentTensor           []float64     `json:"moment_tensor,omitempty" yaml:"moment_tensor,omitempty"`
	OL2MomentTensor        []float64     `json:"ol2_moment_tensor,omitempty" yaml:"ol2_moment_tensor,omitempty"`
	ObservedDisplacements  []float64     `json:"observed_displacements,omitempty" yaml:"observed_displacements,omitempty"`
	SyntheticDisplacements []float64     `json:"synthetic_displacements,omitempty" yaml:"synthetic_displacements,omitempty"`
	TraceLengths           []TraceLength `json:"trace_lengths,omitempty" yaml:"trace_lengths,omitempty"`

	Centroid             []float64   `json:"centroid,omitempty" yaml:"centroid,omitempty"`
	GridSearchCandidates [][]float64 `json:"grid_search_candidates,omitempty" yaml:"grid_search_candidates,omitempty"`
	GridSearchMisfits    []float64   `json:"grid_search_misfits,omitempty" yaml:"grid_search_misfits,omitempty"`
}

func (r *Raw) hasTensor() bool {
	return r.MomentTensor != nil && r.ObservedDisplacements != nil &&
		r.SyntheticDisplacements != nil && r.TraceLengths != nil
}

func (r *Raw) hasAnyTensorField() bool {
	return r.MomentTensor != nil || r.ObservedDisplacements != nil ||
		r.SyntheticDisplacements != nil || r.TraceLengths != nil
}

func (r *Raw) hasCentroid() bool {
	return r.Centroid != nil && r.GridSearchCandidates != nil && r.GridSearchMisfits != nil
}

func (r *Raw) hasAnyCentroidField() bool {
	return r.Centroid != nil || r.GridSearchCandidates != nil || r.GridSearchMisfits != nil
}

// Classify returns the most complete result variant the raw output supports.
// Attributes of a level that is only partly present are ignored; malformed
// attributes of a complete level are an error.
func Classify(raw *Raw) (Result, error) {
	if raw == nil {
		return nil, eris.New("inversion: nil raw result")
	}

	prelim := PreliminaryResult{Details: raw.PreliminaryCalcDetails, Used: raw.UsedTraces}
	if !raw.hasTensor() {
		if raw.hasAnyTensorField() {
			zap.L().Warn("inversion: ignoring incomplete OL2 attributes")
		}
		return &prelim, nil
	}

	m, err := tensor.FromSlice(raw.MomentTensor)
	if err != nil {
		return nil, eris.Wrap(err, "inversion: moment tensor")
	}
	tr := TensorResult{
		PreliminaryResult:      prelim,
		MomentTensor:           m,
		ObservedDisplacements:  raw.ObservedDisplacements,
		SyntheticDisplacements: raw.SyntheticDisplacements,
		TraceLengths:           raw.TraceLengths,
	}
	if raw.OL2MomentTensor != nil {
		ol2, err := tensor.FromSlice(raw.OL2MomentTensor)
		if err != nil {
			return nil, eris.Wrap(err, "inversion: OL2 moment tensor")
		}
		tr.OL2MomentTensor = &ol2
	}

	if !raw.hasCentroid() {
		if raw.hasAnyCentroidField() {
			zap.L().Warn("inversion: ignoring incomplete OL3 attributes")
		}
		return &tr, nil
	}

	if len(raw.Centroid) != 3 {
		return nil, eris.Errorf("inversion: centroid needs 3 values, got %d", len(raw.Centroid))
	}
	if len(raw.GridSearchCandidates) != len(raw.GridSearchMisfits) {
		return nil, eris.Errorf("inversion: %d grid candidates but %d misfits",
			len(raw.GridSearchCandidates), len(raw.GridSearchMisfits))
	}
	grid := make([]GridPoint, len(raw.GridSearchCandidates))
	for i, c := range raw.GridSearchCandidates {
		if len(c) != 3 {
			return nil, eris.Errorf("inversion: grid candidate %d needs 3 values, got %d", i, len(c))
		}
		grid[i] = GridPoint{
			Location: Location{Latitude: c[0], Longitude: c[1], Depth: c[2]},
			Misfit:   raw.GridSearchMisfits[i],
		}
	}

	return &CentroidResult{
		TensorResult: tr,
		Centroid: Location{
			Latitude:  raw.Centroid[0],
			Longitude: raw.Centroid[1],
			Depth:     raw.Centroid[2],
		},
		GridSearch: grid,
	}, nil
}
