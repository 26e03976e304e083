package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	opts, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if opts.GrowthIncrement != 1<<20 {
		t.Fatalf("GrowthIncrement = %d, want %d", opts.GrowthIncrement, 1<<20)
	}
	if opts.CacheBudget != 4096 {
		t.Fatalf("CacheBudget = %d, want 4096", opts.CacheBudget)
	}
	if opts.Logger == nil {
		t.Fatal("Logger should default to a non-nil logger")
	}
}

func TestExplicitOptionsOverrideDefaults(t *testing.T) {
	opts, err := Load("", WithGrowthIncrement(2<<20), WithCacheBudget(10), WithLockWait(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if opts.GrowthIncrement != 2<<20 {
		t.Fatalf("GrowthIncrement = %d, want %d", opts.GrowthIncrement, 2<<20)
	}
	if opts.CacheBudget != 10 {
		t.Fatalf("CacheBudget = %d, want 10", opts.CacheBudget)
	}
	if opts.LockWait != time.Second {
		t.Fatalf("LockWait = %v, want 1s", opts.LockWait)
	}
}

func TestEnvironmentOverridesDefaultsButNotExplicitOptions(t *testing.T) {
	t.Setenv("EONSTORE_CACHE_BUDGET", "777")

	opts, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if opts.CacheBudget != 777 {
		t.Fatalf("CacheBudget from env = %d, want 777", opts.CacheBudget)
	}

	// An explicit option still wins over the environment, since it is
	// applied last.
	opts2, err := Load("", WithCacheBudget(5))
	if err != nil {
		t.Fatal(err)
	}
	if opts2.CacheBudget != 5 {
		t.Fatalf("CacheBudget with explicit option over env = %d, want 5", opts2.CacheBudget)
	}
}

func TestConfigFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eonstore.yaml")
	contents := "cache_budget: 42\ngrowth_increment: 4096\n"
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}

	opts, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if opts.CacheBudget != 42 {
		t.Fatalf("CacheBudget from file = %d, want 42", opts.CacheBudget)
	}
	if opts.GrowthIncrement != 4096 {
		t.Fatalf("GrowthIncrement from file = %d, want 4096", opts.GrowthIncrement)
	}
}

func TestMissingConfigFileIsNotAnError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load() with a missing config file = %v, want nil", err)
	}
}
