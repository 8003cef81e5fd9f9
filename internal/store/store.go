// Package store archives post-processing runs and the station catalogue.
package store

import (
	"context"
	"maps"
	"slices"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/geoscience-au/wphase-post/internal/inversion"
	"github.com/geoscience-au/wphase-post/internal/model"
	"github.com/geoscience-au/wphase-post/internal/seismo"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	EventID      string          `json:"event_id,omitempty"`
	WithWarnings bool            `json:"with_warnings,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the run archive.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, ev inversion.Event) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, result *model.RunResult) error
	FailRun(ctx context.Context, runID string, reason string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	RunWarnings(ctx context.Context, runID string) ([]string, error)

	// Stations
	UpsertStations(ctx context.Context, meta seismo.Metadata) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

var (
	warningColumns = []string{"run_id", "position", "message"}
	stationColumns = []string{"code", "latitude", "longitude", "elevation", "location"}
)

// encodePoint returns the EWKB encoding (SRID 4326) of a position.
func encodePoint(lat, lon float64) ([]byte, error) {
	data, err := ewkb.Marshal(seismo.NewPoint(lat, lon), ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "store: encode point")
	}
	return data, nil
}

// decodePoint reads a position back from EWKB.
func decodePoint(data []byte) (lat, lon float64, err error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return 0, 0, eris.Wrap(err, "store: decode point")
	}
	p, ok := g.(*geom.Point)
	if !ok {
		return 0, 0, eris.Errorf("store: expected point, got %T", g)
	}
	return p.Y(), p.X(), nil
}

// warningRows lays out warnings for insertion, keeping their order.
func warningRows(runID string, warnings []string) [][]any {
	rows := make([][]any, len(warnings))
	for i, w := range warnings {
		rows[i] = []any{runID, i, w}
	}
	return rows
}

// stationRows lays out station metadata sorted by code.
func stationRows(meta seismo.Metadata) ([][]any, error) {
	rows := make([][]any, 0, len(meta))
	for _, code := range slices.Sorted(maps.Keys(meta)) {
		st := meta[code]
		loc, err := encodePoint(st.Latitude, st.Longitude)
		if err != nil {
			return nil, eris.Wrapf(err, "store: station %s", code)
		}
		rows = append(rows, []any{code, st.Latitude, st.Longitude, st.Elevation, loc})
	}
	return rows, nil
}

func newRun(id string, ev inversion.Event) *model.Run {
	return &model.Run{
		ID:        id,
		EventID:   ev.ID,
		Latitude:  ev.Latitude,
		Longitude: ev.Longitude,
		Depth:     ev.Depth,
		Status:    model.RunStatusRunning,
	}
}
