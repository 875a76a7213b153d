// Package config holds the settings of a training run. Values come from
// built-in defaults, then an optional HCL file, then command-line flags that
// were set explicitly.
package config

import (
	"errors"
	"fmt"
	"strings"
)

// Config is the complete configuration of a training run.
type Config struct {
	// Corpus.
	TrainCorpus string
	EvalCorpus  string
	Vocab       string
	SeqLen      int

	// Model hyperparameters. They are recorded in artifact metadata.
	Layers  int
	Heads   int
	Dims    int
	Rate    int
	Dropout float64
	Seed    uint64

	// Optimization.
	BatchTrain  int
	BatchEval   int
	BaseLR      float64
	WeightDecay float64
	Iterations  int64
	EvalIters   int64
	SaveIters   int64

	// Persistence.
	Checkpoint string
	ModelOut   string
	InitFrom   string
	Resume     bool

	// Execution.
	Devices []int
	UseAMP  bool

	LogLevel  string
	LogFormat string
}

// Default returns the default configuration. Corpus and vocabulary paths
// have no default.
func Default() Config {
	return Config{
		SeqLen:      64,
		Layers:      12,
		Heads:       16,
		Dims:        1024,
		Rate:        4,
		Dropout:     0.1,
		Seed:        1,
		BatchTrain:  64,
		BatchEval:   64,
		BaseLR:      1e-4,
		WeightDecay: 1e-2,
		Iterations:  100000,
		EvalIters:   500,
		SaveIters:   1000,
		Checkpoint:  "ckpt.born",
		ModelOut:    "model.born",
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(c.TrainCorpus != "", "train corpus is required")
	check(c.EvalCorpus != "", "eval corpus is required")
	check(c.Vocab != "", "vocabulary is required")
	check(c.SeqLen >= 2, "seq_len must be at least 2, got %d", c.SeqLen)
	check(c.Layers > 0 && c.Heads > 0 && c.Dims > 0 && c.Rate > 0,
		"layers, heads, dims and rate must be positive")
	check(c.Heads > 0 && c.Dims%c.Heads == 0, "dims %d must be divisible by heads %d", c.Dims, c.Heads)
	check(c.Dropout >= 0 && c.Dropout < 1, "dropout must be in [0, 1), got %g", c.Dropout)
	check(c.BatchTrain > 0 && c.BatchEval > 0, "batch sizes must be positive")
	check(c.BaseLR > 0, "base_lr must be positive, got %g", c.BaseLR)
	check(c.WeightDecay >= 0, "weight decay must not be negative, got %g", c.WeightDecay)
	check(c.Iterations > 0, "iterations must be positive, got %d", c.Iterations)
	check(c.EvalIters > 0 && c.SaveIters > 0, "eval and save periods must be positive")
	check(c.Checkpoint != "", "checkpoint path is required")
	check(c.ModelOut != "", "model output path is required")
	check(!c.Resume || c.InitFrom == "", "resume and init_from are mutually exclusive")

	seen := make(map[int]bool, len(c.Devices))
	for _, d := range c.Devices {
		check(d >= 0 && !seen[d], "invalid or repeated device %d", d)
		seen[d] = true
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log level %q: must be 'debug', 'info', 'warn', or 'error'", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid log format %q: must be 'text' or 'json'", c.LogFormat))
	}
	return errors.Join(errs...)
}

// DeviceList returns the devices to train on: Devices, or device 0 alone.
func (c Config) DeviceList() []int {
	if len(c.Devices) == 0 {
		return []int{0}
	}
	return c.Devices
}

// Metadata returns the settings recorded in artifact headers.
func (c Config) Metadata() map[string]string {
	return map[string]string{
		"seq_len":      fmt.Sprint(c.SeqLen),
		"layers":       fmt.Sprint(c.Layers),
		"heads":        fmt.Sprint(c.Heads),
		"dims":         fmt.Sprint(c.Dims),
		"rate":         fmt.Sprint(c.Rate),
		"dropout":      fmt.Sprint(c.Dropout),
		"base_lr":      fmt.Sprint(c.BaseLR),
		"weight_decay": fmt.Sprint(c.WeightDecay),
		"iterations":   fmt.Sprint(c.Iterations),
		"vocab":        c.Vocab,
	}
}
