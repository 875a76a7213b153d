// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package train

import (
	"context"

	"github.com/born-ml/pretrain/internal/amp"
	"github.com/born-ml/pretrain/internal/distributed"
	"github.com/born-ml/pretrain/internal/train"
)

// Trainer executes training steps and persists its state.
type Trainer = train.Trainer

// Options configures a Trainer.
type Options = train.Options

// New creates a trainer in the Uninitialized state.
func New(opts Options) (*Trainer, error) {
	return train.New(opts)
}

// State is a trainer lifecycle state.
type State = train.State

// Trainer states.
const (
	Uninitialized = train.Uninitialized
	Ready         = train.Ready
	Training      = train.Training
	Evaluating    = train.Evaluating
	Checkpointing = train.Checkpointing
	Finished      = train.Finished
	Failed        = train.Failed
)

// Errors returned by Trainer methods.
var (
	ErrInvalidState    = train.ErrInvalidState
	ErrStepPending     = train.ErrStepPending
	ErrNoStep          = train.ErrNoStep
	ErrBudgetExhausted = train.ErrBudgetExhausted
	ErrBudgetRemaining = train.ErrBudgetRemaining
)

// Updater turns a computed loss into a parameter update.
type Updater = train.Updater

// Decorator extends a trainer before its first step.
type Decorator = train.Decorator

// Cadence decides when to evaluate and checkpoint.
type Cadence = train.Cadence

// RunConfig parameterizes Run.
type RunConfig = train.RunConfig

// Run trains until the iteration budget is spent.
func Run(ctx context.Context, t *Trainer, cfg RunConfig) error {
	return train.Run(ctx, t, cfg)
}

// Mixed precision

// ScalerConfig configures dynamic loss scaling.
type ScalerConfig = amp.Config

// DefaultScalerConfig returns the default loss scaling schedule.
func DefaultScalerConfig() ScalerConfig {
	return amp.DefaultConfig()
}

// MixedPrecision is a decorator that computes gradients at half precision
// with a dynamic loss scale.
type MixedPrecision = amp.Adapter

// NewMixedPrecision creates a mixed precision decorator.
func NewMixedPrecision(cfg ScalerConfig) *MixedPrecision {
	return amp.New(cfg)
}

// Data parallelism

// ProcessContext identifies one replica.
type ProcessContext = distributed.ProcessContext

// Worker is the body of one replica.
type Worker = distributed.Worker

// DeviceProvider binds device ids to devices.
type DeviceProvider = distributed.DeviceProvider

// NewCPUDevices returns a provider with one device per logical core.
func NewCPUDevices() DeviceProvider {
	return distributed.NewCPUDevices()
}

// Spawn runs worker once per device and waits for all of them.
func Spawn(ctx context.Context, devices []int, provider DeviceProvider, worker Worker) error {
	return distributed.Spawn(ctx, devices, provider, worker)
}

// Coordinator is a decorator that keeps replicas in lockstep.
type Coordinator = distributed.Coordinator

// NewCoordinator creates the coordinator for replica pc.
func NewCoordinator(pc ProcessContext) *Coordinator {
	return distributed.NewCoordinator(pc)
}
