// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides the optimizers and learning rate schedules used in
// pretraining.
//
// # Overview
//
// This package contains:
//   - AdamW: Adam with decoupled weight decay and bias correction
//   - SGD: Stochastic Gradient Descent with momentum
//   - LambdaLR: a schedule that scales the base learning rate per step
//
// Every optimizer and schedule is [nn.Stateful], so its moments and step
// counters are saved in checkpoints alongside the model.
//
// # Basic Usage
//
//	optimizer := optim.NewAdamW(model.Parameters(), optim.AdamWConfig{
//	    LR:          1e-4,
//	    WeightDecay: 1e-2,
//	})
//	scheduler := optim.NewLambdaLR(optimizer, optim.LinearDecay(iterations))
//
//	for range iterations {
//	    // compute gradients
//	    optimizer.Step()
//	    scheduler.Step()
//	    optimizer.ZeroGrad()
//	}
package optim
