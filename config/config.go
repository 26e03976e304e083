// Package config implements C11: store-wide tuning loaded through a
// defaults -> file -> environment -> explicit-option precedence chain,
// using github.com/spf13/viper the way the rest of the example pack's
// services configure themselves rather than hand-rolling flag parsing.
package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Options holds every tunable a Store reads at Open/Create time.
type Options struct {
	// GrowthIncrement is how many bytes the mapped file is extended by
	// each time an allocation would overrun it.
	GrowthIncrement int64

	// CleanupSweepInterval is loaded like the other options, but nothing
	// in the store reads it: sweeps run only when ReleaseSnapshot
	// releases an epoch, and no timer triggers them, so it does not bound
	// how long a reclaimable entry stays pending.
	CleanupSweepInterval time.Duration

	// CacheBudget is the maximum number of live rehydrated handles a
	// Manager keeps attached before evicting the coldest.
	CacheBudget int

	// LockWait is loaded like the other options, but Open/Create do not
	// read it: store.lockFile is non-blocking and is tried once, so a
	// file already locked by another process fails with store.ErrLocked
	// at once, whatever LockWait is set to. No wait or retry takes place.
	LockWait time.Duration

	// Logger receives structured events from the store: file lock
	// acquired, store created/opened/closing, arena growth, cache
	// eviction (the CLI also logs failed commits to it). Defaults to a
	// stderr text logger at warn level.
	Logger *slog.Logger
}

// Option mutates an in-progress Options during Load or a direct
// construction, applied after file/env values so callers always have
// the final say.
type Option func(*Options)

func WithGrowthIncrement(n int64) Option { return func(o *Options) { o.GrowthIncrement = n } }
func WithCacheBudget(n int) Option       { return func(o *Options) { o.CacheBudget = n } }
func WithLockWait(d time.Duration) Option {
	return func(o *Options) { o.LockWait = d }
}
func WithCleanupSweepInterval(d time.Duration) Option {
	return func(o *Options) { o.CleanupSweepInterval = d }
}

// WithLogger overrides the store's structured logger.
func WithLogger(l *slog.Logger) Option { return func(o *Options) { o.Logger = l } }

func defaults() Options {
	return Options{
		GrowthIncrement:      1 << 20, // 1 MiB
		CleanupSweepInterval: time.Second,
		CacheBudget:          4096,
		LockWait:             0,
		Logger:               slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	}
}

// Load builds Options from defaults, then configPath (if non-empty and
// present), then EONSTORE_-prefixed environment variables, then opts, in
// that order — each layer overriding the one before it.
func Load(configPath string, opts ...Option) (*Options, error) {
	v := viper.New()
	d := defaults()
	v.SetDefault("growth_increment", d.GrowthIncrement)
	v.SetDefault("cleanup_sweep_interval", d.CleanupSweepInterval)
	v.SetDefault("cache_budget", d.CacheBudget)
	v.SetDefault("lock_wait", d.LockWait)

	v.SetEnvPrefix("EONSTORE")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		}
	}

	result := &Options{
		GrowthIncrement:      v.GetInt64("growth_increment"),
		CleanupSweepInterval: v.GetDuration("cleanup_sweep_interval"),
		CacheBudget:          v.GetInt("cache_budget"),
		LockWait:             v.GetDuration("lock_wait"),
		Logger:               d.Logger,
	}
	for _, opt := range opts {
		opt(result)
	}
	return result, nil
}
