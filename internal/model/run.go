// Package model holds the run archive records shared by the store and the CLI.
package model

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/geoscience-au/wphase-post/internal/output"
)

// RunStatus represents the current state of an archived post-processing run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusRunning, RunStatusComplete, RunStatusFailed:
		return true
	}
	return false
}

// Run represents a single post-processing run for an event.
type Run struct {
	ID        string     `json:"id"`
	EventID   string     `json:"event_id"`
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Depth     float64    `json:"depth"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult holds the outcome of a completed run.
type RunResult struct {
	Level     int             `json:"level"`
	Magnitude *float64        `json:"magnitude,omitempty"`
	Warnings  []string        `json:"warnings"`
	Output    json.RawMessage `json:"output"`
}

// NewRunResult summarizes a finished output container. The magnitude is taken
// from the derived moment tensor record when one was produced.
func NewRunResult(level int, out *output.Container) (*RunResult, error) {
	if out == nil {
		return nil, eris.New("model: nil output")
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, eris.Wrap(err, "model: marshal output")
	}

	res := &RunResult{
		Level:    level,
		Warnings: out.Warnings(),
		Output:   data,
	}
	if v, ok := out.Get("MomentTensor"); ok {
		if mt, ok := v.(*output.Container); ok {
			if mag, ok := mt.Get("drmag"); ok {
				if f, ok := mag.(float64); ok {
					res.Magnitude = &f
				}
			}
		}
	}
	return res, nil
}
