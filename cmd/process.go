package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/geoscience-au/wphase-post/internal/inversion"
	"github.com/geoscience-au/wphase-post/internal/model"
	"github.com/geoscience-au/wphase-post/internal/output"
	"github.com/geoscience-au/wphase-post/internal/postprocess"
	"github.com/geoscience-au/wphase-post/internal/profile"
	"github.com/geoscience-au/wphase-post/internal/resilience"
	"github.com/geoscience-au/wphase-post/internal/seismo"
)

// OutputFile is the name of the serialized output container in the work dir.
const OutputFile = "wphase_output.json"

// eventInputs names the files for one event. MetadataPath may be empty.
type eventInputs struct {
	ResultPath   string
	EventPath    string
	MetadataPath string
	WorkDir      string
}

// inputsFromDir locates result, event and optional metadata files in dir.
// Artifacts are written into dir.
func inputsFromDir(dir string) (eventInputs, error) {
	in := eventInputs{WorkDir: dir}
	var err error
	if in.ResultPath, err = inversion.FindInput(dir, "result"); err != nil {
		return in, err
	}
	if in.EventPath, err = inversion.FindInput(dir, "event"); err != nil {
		return in, err
	}
	if p, err := inversion.FindInput(dir, "metadata"); err == nil {
		in.MetadataPath = p
	}
	return in, nil
}

// processEvent post-processes one event and writes the output container to
// <workdir>/wphase_output.json. The container is returned even when
// processing fails, so long as the inputs could be read.
func processEvent(ctx context.Context, env *postEnv, in eventInputs) (*output.Container, error) {
	log := zap.L().With(zap.String("result", in.ResultPath))

	res, err := inversion.LoadResult(in.ResultPath)
	if err != nil {
		return nil, err
	}
	ev, err := inversion.LoadEvent(in.EventPath)
	if err != nil {
		return nil, err
	}
	var meta seismo.Metadata
	if in.MetadataPath != "" {
		if meta, err = seismo.LoadMetadata(in.MetadataPath); err != nil {
			return nil, err
		}
	}

	workDir := in.WorkDir
	if workDir == "" {
		workDir = env.Settings.WorkDir
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "create work dir %s", workDir)
	}

	var run *model.Run
	if env.Store != nil {
		run, err = resilience.DoVal(ctx, archiveRetry("create run"), func(ctx context.Context) (*model.Run, error) {
			return env.Store.CreateRun(ctx, ev)
		})
		if err != nil {
			return nil, eris.Wrap(err, "archive run")
		}
		if len(meta) > 0 {
			if _, err := env.Store.UpsertStations(ctx, meta); err != nil {
				log.Warn("station catalogue not updated", zap.Error(err))
			}
		}
	}

	settings := env.Settings
	settings.WorkDir = workDir
	proc := postprocess.NewProcessor(env.Renderer,
		postprocess.WithSettings(settings),
		postprocess.WithMaps(env.MakeMaps),
		postprocess.WithPlots(env.MakePlots),
	)
	out := output.New(output.WithWarningsKey(env.WarningsKey))

	profiler := profile.New(env.Profile, workDir, env.ProfileKey)
	procErr := profiler.Profile(ctx, out, func(ctx context.Context) error {
		_, err := proc.Process(ctx, postprocess.Request{
			Result:   res,
			Output:   out,
			Event:    ev,
			Metadata: meta,
		})
		return err
	})

	writeErr := writeOutput(filepath.Join(workDir, OutputFile), out)

	if run != nil {
		if err := archiveRun(ctx, env, run.ID, int(res.Level()), out, procErr); err != nil {
			log.Error("archive run failed", zap.String("run_id", run.ID), zap.Error(err))
		}
	}

	if procErr != nil {
		return out, procErr
	}
	if writeErr != nil {
		return out, writeErr
	}

	log.Info("event processed",
		zap.String("event_id", ev.ID),
		zap.String("level", res.Level().String()),
		zap.Int("warnings", len(out.Warnings())),
	)
	return out, nil
}

// archiveRun records the outcome of a run, retrying transient store errors.
func archiveRun(ctx context.Context, env *postEnv, runID string, level int, out *output.Container, procErr error) error {
	if procErr != nil {
		return resilience.Do(ctx, archiveRetry("fail run"), func(ctx context.Context) error {
			return env.Store.FailRun(ctx, runID, procErr.Error())
		})
	}
	result, err := model.NewRunResult(level, out)
	if err != nil {
		return err
	}
	return resilience.Do(ctx, archiveRetry("complete run"), func(ctx context.Context) error {
		return env.Store.CompleteRun(ctx, runID, result)
	})
}

func archiveRetry(operation string) resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger(operation)
	return cfg
}

func writeOutput(path string, out *output.Container) error {
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return eris.Wrap(err, "marshal output")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "write %s", path)
	}
	return nil
}
