package main

import (
	"context"

	"github.com/geoscience-au/wphase-post/internal/config"
	"github.com/geoscience-au/wphase-post/internal/postprocess"
	"github.com/geoscience-au/wphase-post/internal/render"
	"github.com/geoscience-au/wphase-post/internal/store"
)

// postEnv holds everything the run and batch commands share between events.
type postEnv struct {
	Store       store.Store // nil when archiving is off
	Renderer    postprocess.Renderer
	Settings    postprocess.Settings
	MakeMaps    bool
	MakePlots   bool
	Profile     bool
	ProfileKey  string
	WarningsKey string
}

// Close releases resources held by the environment.
func (pe *postEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// newEnv builds the environment from c. The archive is opened only when
// requested. Callers should defer env.Close().
func newEnv(c *config.Config) *postEnv {
	return &postEnv{
		Renderer: &render.FileRenderer{Size: c.Output.ImageSize},
		Settings: postprocess.Settings{
			BeachballPrefix:           c.WPhase.BeachballPrefix,
			StationDistributionPrefix: c.WPhase.StationDistributionPrefix,
			PreliminaryFitPrefix:      c.WPhase.PreliminaryFitPrefix,
			RawTracesPrefix:           c.WPhase.RawTracesPrefix,
			GridSearchPrefix:          c.WPhase.GridSearchPrefix,
			Authority:                 c.WPhase.Authority,
			WorkDir:                   c.Output.Dir,
		},
		MakeMaps:    c.Output.MakeMaps,
		MakePlots:   c.Output.MakePlots,
		Profile:     c.Profile.Enabled,
		ProfileKey:  c.WPhase.ProfileKey,
		WarningsKey: c.WPhase.WarningsKey,
	}
}

// initEnv builds the environment from the loaded config and opens the
// archive when archive is set.
func initEnv(ctx context.Context, archive bool) (*postEnv, error) {
	env := newEnv(cfg)
	if archive {
		st, err := openStore(ctx)
		if err != nil {
			return nil, err
		}
		env.Store = st
	}
	return env, nil
}
