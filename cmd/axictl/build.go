package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"axiograph/core/pipeline"
)

var buildCmd = &cobra.Command{
	Use:   "build [pathdb-snapshot-id]",
	Short: "Materialize a pathdb snapshot and build its query-time index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pdb, _, err := pipeline.BuildIndexHandle(cmd.Context(), currentStore(), args[0], cfg.IndexConfig())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "entities: %d\nrelations: %d\nmodule_digest: %x\n",
			len(pdb.Entities()), len(pdb.Relations()), pdb.ModuleDigest)
		return nil
	},
}
