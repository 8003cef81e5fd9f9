// Package inversion models the raw output of a W-phase inversion. The shape of
// that output depends on how far the inversion got; Classify turns it into one
// of three result variants so callers dispatch on a type, not on which fields
// happen to be filled in.
package inversion

import (
	"fmt"

	"github.com/geoscience-au/wphase-post/internal/tensor"
)

// Level is the completeness stage reached by the inversion.
type Level int

const (
	// LevelPreliminary means only a preliminary fit exists.
	LevelPreliminary Level = iota + 1
	// LevelTensor means a moment tensor and waveform fit exist.
	LevelTensor
	// LevelCentroid adds a centroid and a grid search.
	LevelCentroid
)

func (l Level) String() string {
	return fmt.Sprintf("OL%d", int(l))
}

// Location is a point in latitude/longitude degrees and depth in km.
type Location struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
	Depth     float64 `json:"depth" yaml:"depth"`
}

// Event describes the triggering earthquake as known before inversion.
type Event struct {
	ID        string  `json:"id" yaml:"id"`
	Latitude  float64 `json:"lat" yaml:"lat"`
	Longitude float64 `json:"lon" yaml:"lon"`
	Depth     float64 `json:"dep" yaml:"dep"`
	Time      string  `json:"time,omitempty" yaml:"time,omitempty"`
}

// TraceLength is the sample count of one trace in the concatenated
// observed/synthetic arrays.
type TraceLength struct {
	ID     string `json:"id" yaml:"id"`
	Length int    `json:"length" yaml:"length"`
}

// GridPoint is one grid-search candidate and its misfit.
type GridPoint struct {
	Location Location
	Misfit   float64
}

// Result is one of *PreliminaryResult, *TensorResult or *CentroidResult.
type Result interface {
	Level() Level
	// PreliminaryDetails returns the preliminary-fit details, if any.
	PreliminaryDetails() map[string]any
	// UsedTraces returns the IDs of the traces used by the inversion.
	UsedTraces() []string
	isResult()
}

// PreliminaryResult is an OL1 result.
type PreliminaryResult struct {
	Details map[string]any
	Used    []string
}

func (r *PreliminaryResult) Level() Level                       { return LevelPreliminary }
func (r *PreliminaryResult) PreliminaryDetails() map[string]any { return r.Details }
func (r *PreliminaryResult) UsedTraces() []string               { return r.Used }
func (r *PreliminaryResult) isResult()                          {}

// PreliminaryTraceIDs returns the trace IDs listed in the preliminary details
// under "trids", in order.
func (r *PreliminaryResult) PreliminaryTraceIDs() []string {
	raw, ok := r.Details["trids"]
	if !ok {
		return nil
	}
	var ids []string
	switch v := raw.(type) {
	case []string:
		ids = append(ids, v...)
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok {
				ids = append(ids, s)
			}
		}
	}
	return ids
}

// TensorResult is an OL2 result.
type TensorResult struct {
	PreliminaryResult
	MomentTensor tensor.MT
	// OL2MomentTensor is set on OL3 results when the inversion reports the
	// OL2-stage tensor on the result instead of in the output container.
	OL2MomentTensor        *tensor.MT
	ObservedDisplacements  []float64
	SyntheticDisplacements []float64
	TraceLengths           []TraceLength
}

func (r *TensorResult) Level() Level { return LevelTensor }

// TraceIDs returns the IDs of TraceLengths in order.
func (r *TensorResult) TraceIDs() []string {
	ids := make([]string, len(r.TraceLengths))
	for i, tl := range r.TraceLengths {
		ids[i] = tl.ID
	}
	return ids
}

// CentroidResult is an OL3 result.
type CentroidResult struct {
	TensorResult
	Centroid   Location
	GridSearch []GridPoint
}

func (r *CentroidResult) Level() Level { return LevelCentroid }

// GridCandidates splits GridSearch into locations and misfits.
func (r *CentroidResult) GridCandidates() ([]Location, []float64) {
	locs := make([]Location, len(r.GridSearch))
	misfits := make([]float64, len(r.GridSearch))
	for i, p := range r.GridSearch {
		locs[i] = p.Location
		misfits[i] = p.Misfit
	}
	return locs, misfits
}
