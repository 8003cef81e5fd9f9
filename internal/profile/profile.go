// Package profile wraps a post-processing run in an optional CPU profile.
// Callers choose the implementation once; the wrapped code never checks
// whether profiling is on.
package profile

import (
	"context"
	"os"
	"path/filepath"
	"runtime/pprof"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/geoscience-au/wphase-post/internal/output"
)

// DefaultKey is the output key profiling results are stored under.
const DefaultKey = "WPInvProfile"

// ProfileFile is the CPU profile file name written into the work directory.
const ProfileFile = "cpu.pprof"

// Profiler runs fn, optionally recording a profile into out.
type Profiler interface {
	Profile(ctx context.Context, out *output.Container, fn func(context.Context) error) error
}

// Noop runs fn without profiling.
type Noop struct{}

// Profile runs fn.
func (Noop) Profile(ctx context.Context, _ *output.Container, fn func(context.Context) error) error {
	return fn(ctx)
}

// Pprof records a CPU profile of fn in WorkDir and stores the wall time and
// profile path under Key.
type Pprof struct {
	WorkDir string
	Key     string
}

// Profile runs fn under the CPU profiler. Only one CPU profile can run per
// process; when another is active fn still runs and only the wall time is
// recorded.
func (p *Pprof) Profile(ctx context.Context, out *output.Container, fn func(context.Context) error) (err error) {
	key := p.Key
	if key == "" {
		key = DefaultKey
	}
	path := filepath.Join(p.WorkDir, ProfileFile)

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "profile: create %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = eris.Wrapf(cerr, "profile: close %s", path)
		}
	}()

	profiling := true
	if serr := pprof.StartCPUProfile(f); serr != nil {
		zap.L().Warn("profile: CPU profile unavailable", zap.Error(serr))
		profiling = false
	}

	start := time.Now()
	runErr := fn(ctx)
	elapsed := time.Since(start)
	if profiling {
		pprof.StopCPUProfile()
	}

	rec := out.Child(key)
	rec.Set("wall_time_seconds", elapsed.Seconds())
	if profiling {
		rec.Set("cpu_profile", path)
	}
	zap.L().Info("profile: run profiled",
		zap.Duration("elapsed", elapsed),
		zap.Bool("cpu_profile", profiling),
	)
	return runErr
}

// New returns a Pprof profiler writing to workDir when enabled, otherwise Noop.
func New(enabled bool, workDir, key string) Profiler {
	if !enabled {
		return Noop{}
	}
	return &Pprof{WorkDir: workDir, Key: key}
}
