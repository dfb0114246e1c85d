// Command axictl is the operator CLI over a local axiograph snapshot
// store: promote, commit, build, query, and sync, each a thin wrapper
// over core/snapshot and core/pipeline (spec.md §4.3's store operations).
package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"axiograph/core/snapshot"
	"axiograph/pkg/config"
)

var (
	store   *snapshot.Store
	storeMu sync.RWMutex
	cfg     config.Config
	log     = logrus.StandardLogger()
)

// initMiddleware loads configuration, sets the logging level, and opens
// the local snapshot store. It runs once per process via
// PersistentPreRunE.
func initMiddleware(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	loaded, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("axictl: load config: %w", err)
	}
	cfg = *loaded

	if cfg.Logging.Level != "" {
		lvl, err := logrus.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return fmt.Errorf("axictl: invalid logging level %q: %w", cfg.Logging.Level, err)
		}
		log.SetLevel(lvl)
	}

	storeMu.RLock()
	ready := store != nil
	storeMu.RUnlock()
	if ready {
		return nil
	}

	root := cfg.Store.Root
	if root == "" {
		root = "data/axiograph"
	}
	lockDir := cfg.Store.LockDir
	if lockDir == "" {
		lockDir = root + "/locks"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("axictl: mkdir store root: %w", err)
	}
	s, err := snapshot.Open(afero.NewOsFs(), root, lockDir, log)
	if err != nil {
		return fmt.Errorf("axictl: open store: %w", err)
	}

	storeMu.Lock()
	store = s
	storeMu.Unlock()
	return nil
}

func currentStore() *snapshot.Store {
	storeMu.RLock()
	defer storeMu.RUnlock()
	return store
}

func main() {
	rootCmd := &cobra.Command{
		Use:               "axictl",
		Short:             "Operate a local axiograph snapshot store",
		PersistentPreRunE: initMiddleware,
	}
	rootCmd.AddCommand(promoteCmd, commitCmd, buildCmd, queryCmd, syncCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
