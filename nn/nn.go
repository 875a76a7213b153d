// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/born-ml/pretrain/internal/nn"
	"github.com/born-ml/pretrain/internal/parallel"
	"github.com/born-ml/pretrain/internal/tensor"
)

// Stateful is a component whose state can be saved and restored.
type Stateful = nn.Stateful

// Module is a model: a named set of trainable parameters.
type Module = nn.Module

// Parameter is a named trainable tensor with an optional gradient.
type Parameter = nn.Parameter

// NewParameter creates a new parameter with the given name and tensor.
func NewParameter(name string, t *tensor.RawTensor) *Parameter {
	return nn.NewParameter(name, t)
}

// Objective computes a loss and its gradients.
type Objective = nn.Objective

// Mode selects training or evaluation.
type Mode = nn.Mode

// Objective modes.
const (
	Train = nn.Train
	Eval  = nn.Eval
)

// Bigram is the reference next-token model.
type Bigram = nn.Bigram

// NewBigram creates a bigram model over vocab tokens.
//
// Example:
//
//	model := nn.NewBigram(vocab.Len(), 1)
func NewBigram(vocab int, seed uint64) *Bigram {
	return nn.NewBigram(vocab, seed)
}

// LanguageModelLoss is next-token cross entropy over a Bigram.
type LanguageModelLoss = nn.LanguageModelLoss

// NewLanguageModelLoss creates the objective. Targets equal to pad are
// ignored.
func NewLanguageModelLoss(model *Bigram, pad int32, cfg parallel.Config) *LanguageModelLoss {
	return nn.NewLanguageModelLoss(model, pad, cfg)
}
