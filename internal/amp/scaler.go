// Package amp emulates mixed-precision training: gradients are computed on a
// scaled loss and rounded through IEEE half precision, then unscaled and
// checked before the optimizer sees them. A step whose gradients overflow is
// skipped and the loss scale backs off; a run of clean steps grows it again.
package amp

import (
	"fmt"

	"github.com/born-ml/pretrain/internal/tensor"
)

// Config controls the dynamic loss scale.
type Config struct {
	InitScale      float32 // Starting scale (default: 2^16)
	Backoff        float32 // Factor applied after an overflow (default: 0.5)
	Growth         float32 // Factor applied after GrowthInterval clean steps (default: 2)
	GrowthInterval int64   // Clean steps between growths (default: 2000)
	MinScale       float32 // Lower bound (default: 1)
	MaxScale       float32 // Upper bound (default: 2^24)
}

// DefaultConfig returns the default loss-scale schedule.
func DefaultConfig() Config {
	return Config{
		InitScale:      1 << 16,
		Backoff:        0.5,
		Growth:         2,
		GrowthInterval: 2000,
		MinScale:       1,
		MaxScale:       1 << 24,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.InitScale == 0 {
		c.InitScale = d.InitScale
	}
	if c.Backoff == 0 {
		c.Backoff = d.Backoff
	}
	if c.Growth == 0 {
		c.Growth = d.Growth
	}
	if c.GrowthInterval == 0 {
		c.GrowthInterval = d.GrowthInterval
	}
	if c.MinScale == 0 {
		c.MinScale = d.MinScale
	}
	if c.MaxScale == 0 {
		c.MaxScale = d.MaxScale
	}
	return c
}

// Scaler tracks the loss scale. Its state is checkpointed with the run.
type Scaler struct {
	cfg       Config
	scale     float32
	clean     int64 // Consecutive steps without overflow
	overflows int64 // Skipped steps, total
}

// NewScaler returns a scaler at cfg.InitScale. Zero fields take defaults.
func NewScaler(cfg Config) *Scaler {
	cfg = cfg.withDefaults()
	if cfg.Backoff <= 0 || cfg.Backoff >= 1 || cfg.Growth <= 1 || cfg.MinScale > cfg.MaxScale {
		panic(fmt.Sprintf("amp: invalid config %+v", cfg))
	}
	return &Scaler{cfg: cfg, scale: clamp(cfg.InitScale, cfg.MinScale, cfg.MaxScale)}
}

// Scale returns the current loss scale.
func (s *Scaler) Scale() float32 {
	return s.scale
}

// Overflows returns the number of skipped steps.
func (s *Scaler) Overflows() int64 {
	return s.overflows
}

func (s *Scaler) update(overflow bool) {
	if overflow {
		s.overflows++
		s.clean = 0
		s.scale = clamp(s.scale*s.cfg.Backoff, s.cfg.MinScale, s.cfg.MaxScale)
		return
	}
	s.clean++
	if s.clean >= s.cfg.GrowthInterval {
		s.clean = 0
		s.scale = clamp(s.scale*s.cfg.Growth, s.cfg.MinScale, s.cfg.MaxScale)
	}
}

func clamp(v, lo, hi float32) float32 {
	return min(max(v, lo), hi)
}

// StateDict returns the scale and its counters.
func (s *Scaler) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"scale":     tensor.ScalarFloat32(s.scale),
		"clean":     tensor.ScalarInt64(s.clean),
		"overflows": tensor.ScalarInt64(s.overflows),
	}
}

// LoadStateDict restores the scale and its counters.
func (s *Scaler) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	scale, err := scalar(stateDict, "scale", tensor.Float32)
	if err != nil {
		return err
	}
	clean, err := scalar(stateDict, "clean", tensor.Int64)
	if err != nil {
		return err
	}
	overflows, err := scalar(stateDict, "overflows", tensor.Int64)
	if err != nil {
		return err
	}
	if v := scale.AsFloat32()[0]; !(v > 0) {
		return fmt.Errorf("amp: invalid loss scale %v", v)
	}
	s.scale = scale.AsFloat32()[0]
	s.clean = clean.AsInt64()[0]
	s.overflows = overflows.AsInt64()[0]
	return nil
}

func scalar(stateDict map[string]*tensor.RawTensor, key string, dtype tensor.DataType) (*tensor.RawTensor, error) {
	raw, ok := stateDict[key]
	if !ok {
		return nil, fmt.Errorf("amp: missing %q", key)
	}
	if raw.DType() != dtype || raw.NumElements() != 1 {
		return nil, fmt.Errorf("amp: %q: got %s%v, want %s scalar", key, raw.DType(), raw.Shape(), dtype)
	}
	return raw, nil
}
