package propagation

import (
	"os"
	"runtime"
	"strconv"
	"time"
)

// Config holds the tunables of a channel build. It is passed explicitly to
// NewChannel; nothing here is read from process-wide state after
// construction.
type Config struct {
	// CacheDir enables the on-disk response cache when non-empty.
	CacheDir string

	// Workers is the number of concurrent solver calls during a build.
	// Default: runtime.NumCPU()
	Workers int

	// SolveTimeout bounds a single solver call. Default: 30 seconds.
	SolveTimeout time.Duration

	// BlockSamples is the block length used when propagating along a
	// moving range. Default: 4096.
	BlockSamples int

	// ImpulseDuration fixes the impulse response length. Zero derives it
	// from the slowest two-way travel time across the grid.
	ImpulseDuration time.Duration
}

const (
	defaultSolveTimeout = 30 * time.Second
	defaultBlockSamples = 4096
)

// DefaultConfig returns a Config with sensible defaults and no disk cache.
func DefaultConfig() Config {
	return Config{
		Workers:      runtime.NumCPU(),
		SolveTimeout: defaultSolveTimeout,
		BlockSamples: defaultBlockSamples,
	}
}

// ApplyDefaults fills zero or invalid fields with defaults.
func (c Config) ApplyDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.SolveTimeout <= 0 {
		c.SolveTimeout = defaultSolveTimeout
	}
	if c.BlockSamples <= 0 {
		c.BlockSamples = defaultBlockSamples
	}
	if c.ImpulseDuration < 0 {
		c.ImpulseDuration = 0
	}
	return c
}

// ConfigFromEnv builds a Config from SYNTH_CACHE_DIR, SYNTH_WORKERS,
// SYNTH_SOLVE_TIMEOUT and SYNTH_BLOCK_SAMPLES, ignoring unparsable values.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.CacheDir = os.Getenv("SYNTH_CACHE_DIR")
	if raw := os.Getenv("SYNTH_WORKERS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			cfg.Workers = n
		}
	}
	if raw := os.Getenv("SYNTH_SOLVE_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			cfg.SolveTimeout = d
		}
	}
	if raw := os.Getenv("SYNTH_BLOCK_SAMPLES"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			cfg.BlockSamples = n
		}
	}
	return cfg
}
