package main

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"axiograph/core/snapshot"
)

var syncLayer string
var syncDirection string

func openPeerStore(root string) (*snapshot.Store, error) {
	return snapshot.Open(afero.NewOsFs(), root, "", log)
}

var syncCmd = &cobra.Command{
	Use:   "sync [peer-store-dir]",
	Short: "Replicate missing snapshot objects and log entries between stores",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var layer snapshot.Layer
		switch syncLayer {
		case "accepted":
			layer = snapshot.LayerAccepted
		case "pathdb":
			layer = snapshot.LayerPathdb
		default:
			return fmt.Errorf("axictl: --layer must be accepted|pathdb, got %q", syncLayer)
		}

		peer, err := openPeerStore(args[0])
		if err != nil {
			return fmt.Errorf("axictl: open peer store %s: %w", args[0], err)
		}

		switch syncDirection {
		case "pull":
			return snapshot.Sync(cmd.Context(), peer, currentStore(), layer)
		case "push":
			return snapshot.Sync(cmd.Context(), currentStore(), peer, layer)
		default:
			return fmt.Errorf("axictl: --direction must be pull|push, got %q", syncDirection)
		}
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncLayer, "layer", "accepted", "layer to sync: accepted|pathdb")
	syncCmd.Flags().StringVar(&syncDirection, "direction", "pull", "pull from peer into the local store, or push local into peer: pull|push")
}
