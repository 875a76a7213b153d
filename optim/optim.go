// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package optim

import (
	"github.com/born-ml/pretrain/internal/nn"
	"github.com/born-ml/pretrain/internal/optim"
)

// Optimizer interface defines the common interface for all optimizers.
type Optimizer = optim.Optimizer

// Config represents the base configuration for optimizers.
type Config = optim.Config

// SGD represents the SGD optimizer with optional momentum.
type SGD = optim.SGD

// SGDConfig contains configuration for SGD optimizer.
type SGDConfig = optim.SGDConfig

// NewSGD creates a new SGD optimizer.
//
// Example:
//
//	optimizer := optim.NewSGD(model.Parameters(), optim.SGDConfig{
//	    LR:       0.01,
//	    Momentum: 0.9,
//	})
func NewSGD(params []*nn.Parameter, config SGDConfig) *SGD {
	return optim.NewSGD(params, config)
}

// AdamW represents the AdamW optimizer.
type AdamW = optim.AdamW

// AdamWConfig contains configuration for AdamW optimizer.
type AdamWConfig = optim.AdamWConfig

// NewAdamW creates a new AdamW optimizer.
func NewAdamW(params []*nn.Parameter, config AdamWConfig) *AdamW {
	return optim.NewAdamW(params, config)
}

// Scheduler adjusts an optimizer's learning rate once per update.
type Scheduler = optim.Scheduler

// LambdaLR sets the learning rate to base * f(step).
type LambdaLR = optim.LambdaLR

// NewLambdaLR creates a schedule over optimizer.
func NewLambdaLR(optimizer Optimizer, lambda func(step int64) float64) *LambdaLR {
	return optim.NewLambdaLR(optimizer, lambda)
}

// LinearDecay decays linearly from 1 to 0 over iterations steps.
func LinearDecay(iterations int64) func(step int64) float64 {
	return optim.LinearDecay(iterations)
}
