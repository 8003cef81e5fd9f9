package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/geoscience-au/wphase-post/internal/seismo"
)

var stationsCmd = &cobra.Command{
	Use:   "stations",
	Short: "Manage the archived station catalogue",
}

var stationsImportCmd = &cobra.Command{
	Use:   "import <metadata-file>",
	Short: "Upsert station positions from a metadata file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		meta, err := seismo.LoadMetadata(args[0])
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.UpsertStations(ctx, meta)
		if err != nil {
			return eris.Wrap(err, "stations import")
		}
		fmt.Fprintf(os.Stdout, "%d stations upserted\n", n)
		return nil
	},
}

func init() {
	stationsCmd.AddCommand(stationsImportCmd)
	rootCmd.AddCommand(stationsCmd)
}
