package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	runResult   string
	runEvent    string
	runMetadata string
	runWorkDir  string
	runNoMaps   bool
	runNoPlots  bool
	runArchive  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Post-process a single inversion result",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, runArchive)
		if err != nil {
			return err
		}
		defer env.Close()

		if runNoMaps {
			env.MakeMaps = false
		}
		if runNoPlots {
			env.MakePlots = false
		}

		out, err := processEvent(ctx, env, eventInputs{
			ResultPath:   runResult,
			EventPath:    runEvent,
			MetadataPath: runMetadata,
			WorkDir:      runWorkDir,
		})
		if err != nil {
			return eris.Wrap(err, "post-process")
		}

		// Print the output container to stdout
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	runCmd.Flags().StringVar(&runResult, "result", "", "inversion result file, JSON or YAML (required)")
	runCmd.Flags().StringVar(&runEvent, "event", "", "event description file (required)")
	runCmd.Flags().StringVar(&runMetadata, "metadata", "", "station metadata file")
	runCmd.Flags().StringVar(&runWorkDir, "workdir", "", "directory for artifacts and output (default output.dir)")
	runCmd.Flags().BoolVar(&runNoMaps, "no-maps", false, "skip station coverage and grid search maps")
	runCmd.Flags().BoolVar(&runNoPlots, "no-plots", false, "skip beachball and waveform plots")
	runCmd.Flags().BoolVar(&runArchive, "archive", false, "record the run in the configured store")
	_ = runCmd.MarkFlagRequired("result")
	_ = runCmd.MarkFlagRequired("event")
	rootCmd.AddCommand(runCmd)
}
