// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn exposes the model contracts used by the trainer.
//
// A model is a [Module]: a stable list of named [Parameter] values plus a
// state dict. An [Objective] owns the model and turns a batch into a loss and
// its gradients. Both are [Stateful], so the trainer can checkpoint them.
//
// # Basic Usage
//
//	model := nn.NewBigram(vocab.Len(), seed)
//	objective := nn.NewLanguageModelLoss(model, vocab.PadIndex(), parallel.DefaultConfig())
//
//	loss, err := objective.Loss(ctx, batch, nn.Train)
//	if err != nil {
//	    return err
//	}
//	err = objective.Backward(ctx, 1)
package nn
