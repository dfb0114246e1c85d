package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"axiograph/core"
)

var promoteProfile string
var promoteMessage string

var promoteCmd = &cobra.Command{
	Use:   "promote [module.axi]",
	Short: "Parse, typecheck, and append an accepted-layer snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("axictl: read %s: %w", args[0], err)
		}
		profile := core.ProfileStrict
		if promoteProfile == "lint" {
			profile = core.ProfileLint
		}
		id, err := currentStore().Promote(src, promoteMessage, profile)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

func init() {
	promoteCmd.Flags().StringVar(&promoteMessage, "message", "", "commit message")
	promoteCmd.Flags().StringVar(&promoteProfile, "profile", "strict", "quality profile: strict|lint")
}
