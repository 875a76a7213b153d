// Package parallel provides data-parallel loops over independent work items.
package parallel

import (
	"github.com/grailbio/base/traverse"
	"github.com/klauspost/cpuid/v2"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig uses one worker per logical core reported by the CPU.
func DefaultConfig() Config {
	n := max(cpuid.CPU.LogicalCores, 1)
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 8,
	}
}

// Sequential runs every loop on the calling goroutine.
var Sequential = Config{}

// For executes f(i) for i in [0, n) with optional parallelism.
// Falls back to sequential execution if parallelism is disabled or n is too small.
// f must only write state owned by item i.
func For(n int, f func(i int), cfg Config) {
	Chunks(n, func(start, end int) {
		for i := start; i < end; i++ {
			f(i)
		}
	}, cfg)
}

// Chunks splits [0, n) into contiguous ranges and runs f on each, in
// parallel when enabled. It returns after every range is done.
func Chunks(n int, f func(start, end int), cfg Config) {
	if n <= 0 {
		return
	}
	if !cfg.Enabled || cfg.NumWorkers <= 1 || n < 2*max(cfg.MinChunkSize, 1) {
		f(0, n)
		return
	}

	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize)
	chunks := (n + chunkSize - 1) / chunkSize
	_ = traverse.Each(chunks, func(c int) error {
		start := c * chunkSize
		f(start, min(start+chunkSize, n))
		return nil
	})
}
