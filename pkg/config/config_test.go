package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"

	"axiograph/internal/testutil"
)

func TestLoadConfigDefault(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir(".."); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	if err := os.Chdir(".."); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Root != "data/axiograph" {
		t.Fatalf("Store.Root = %q", cfg.Store.Root)
	}
	if cfg.Index.PathIndexDepth != 4 || cfg.Index.PathLRUCapacity != 10000 {
		t.Fatalf("Index = %+v", cfg.Index)
	}
	if cfg.Query.DeadlineMS != 5000 {
		t.Fatalf("Query.DeadlineMS = %d, want 5000", cfg.Query.DeadlineMS)
	}
}

func TestLoadConfigOverride(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir(".."); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	if err := os.Chdir(".."); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	cfg, err := Load("dev")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Root != "data/axiograph-dev" {
		t.Fatalf("Store.Root = %q, want dev override", cfg.Store.Root)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("Logging.Level = %q, want debug override", cfg.Logging.Level)
	}
	// Fields the dev override leaves untouched still carry the default.
	if cfg.Index.PathIndexDepth != 4 {
		t.Fatalf("Index.PathIndexDepth = %d, want default 4 to survive the merge", cfg.Index.PathIndexDepth)
	}
}

func TestLoadConfigSandbox(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox failed: %v", err)
	}
	defer sb.Cleanup()

	data := []byte("store:\n  root: sandbox-data\nquery:\n  deadline_ms: 1500\n")
	if err := sb.WriteFile("config/default.yaml", data, 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir(sb.Root); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Root != "sandbox-data" {
		t.Fatalf("Store.Root = %q, want sandbox-data", cfg.Store.Root)
	}
	if cfg.Query.DeadlineMS != 1500 {
		t.Fatalf("Query.DeadlineMS = %d, want 1500", cfg.Query.DeadlineMS)
	}
}

func TestIndexConfigFillsDefaultsForUnsetFields(t *testing.T) {
	var cfg Config
	cfg.Index.PathIndexDepth = 7
	ic := cfg.IndexConfig()
	if ic.PathIndexDepth != 7 {
		t.Fatalf("PathIndexDepth = %d, want 7 (explicit value preserved)", ic.PathIndexDepth)
	}
	if ic.PathLRUCapacity != 10_000 {
		t.Fatalf("PathLRUCapacity = %d, want default 10000 for the unset field", ic.PathLRUCapacity)
	}
}

func TestQueryDeadlineZeroMeansNoDeadline(t *testing.T) {
	var cfg Config
	if d := cfg.QueryDeadline(); d != 0 {
		t.Fatalf("QueryDeadline = %v, want 0 for unset DeadlineMS", d)
	}
	cfg.Query.DeadlineMS = 2000
	if d := cfg.QueryDeadline(); d.Milliseconds() != 2000 {
		t.Fatalf("QueryDeadline = %v, want 2000ms", d)
	}
}
