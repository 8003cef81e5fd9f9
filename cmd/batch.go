package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/geoscience-au/wphase-post/internal/inversion"
	"github.com/geoscience-au/wphase-post/internal/output"
)

var (
	batchNoMaps  bool
	batchNoPlots bool
	batchArchive bool
	batchLimit   int
)

var batchCmd = &cobra.Command{
	Use:   "batch <dir>...",
	Short: "Post-process several event directories concurrently",
	Long:  "Each directory holds result, event and optional metadata files (.json, .yaml or .yml). A directory without a result file is scanned one level deep for event directories.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		dirs, err := discoverEventDirs(args)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, batchArchive)
		if err != nil {
			return err
		}
		defer env.Close()

		if batchNoMaps {
			env.MakeMaps = false
		}
		if batchNoPlots {
			env.MakePlots = false
		}

		failed, err := processBatch(ctx, dirs, batchLimit, cfg.Batch.MaxConcurrent, func(ctx context.Context, in eventInputs) (*output.Container, error) {
			return processEvent(ctx, env, in)
		})
		if err != nil {
			return err
		}
		if failed > 0 {
			return eris.Errorf("batch: %d of %d events failed", failed, limitOrAll(batchLimit, len(dirs)))
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().BoolVar(&batchNoMaps, "no-maps", false, "skip station coverage and grid search maps")
	batchCmd.Flags().BoolVar(&batchNoPlots, "no-plots", false, "skip beachball and waveform plots")
	batchCmd.Flags().BoolVar(&batchArchive, "archive", false, "record each run in the configured store")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of events to process (0 = all)")
	rootCmd.AddCommand(batchCmd)
}

// discoverEventDirs expands paths into event directories. A path holding a
// result file is an event directory; otherwise its immediate subdirectories
// holding one are used. The result is sorted and deduplicated.
func discoverEventDirs(paths []string) ([]string, error) {
	var dirs []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, eris.Wrapf(err, "batch: stat %s", p)
		}
		if !info.IsDir() {
			return nil, eris.Errorf("batch: %s is not a directory", p)
		}
		if _, err := inversion.FindInput(p, "result"); err == nil {
			dirs = append(dirs, filepath.Clean(p))
			continue
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, eris.Wrapf(err, "batch: read %s", p)
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			sub := filepath.Join(p, e.Name())
			if _, err := inversion.FindInput(sub, "result"); err == nil {
				dirs = append(dirs, sub)
			}
		}
	}
	slices.Sort(dirs)
	return slices.Compact(dirs), nil
}

func limitOrAll(limit, n int) int {
	if limit > 0 && limit < n {
		return limit
	}
	return n
}

// processFunc is the callback signature for post-processing one event.
type processFunc func(ctx context.Context, in eventInputs) (*output.Container, error)

// processBatch applies limit, then processes event directories concurrently.
// Individual failures are logged and counted without aborting the batch.
func processBatch(ctx context.Context, dirs []string, limit, concurrency int, process processFunc) (int64, error) {
	if len(dirs) == 0 {
		zap.L().Info("no event directories found")
		return 0, nil
	}

	dirs = dirs[:limitOrAll(limit, len(dirs))]
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("events", len(dirs)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for _, dir := range dirs {
		g.Go(func() error {
			log := zap.L().With(zap.String("dir", dir))

			in, err := inputsFromDir(dir)
			if err != nil {
				failed.Add(1)
				log.Error("event inputs missing", zap.Error(err))
				return nil
			}

			out, err := process(gctx, in)
			if err != nil {
				failed.Add(1)
				log.Error("post-processing failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}

			succeeded.Add(1)
			log.Info("post-processing complete", zap.Int("warnings", len(out.Warnings())))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return failed.Load(), eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return failed.Load(), nil
}
