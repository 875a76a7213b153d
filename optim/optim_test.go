// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package optim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/born-ml/pretrain/nn"
	"github.com/born-ml/pretrain/optim"
)

func TestScheduledAdamW(t *testing.T) {
	model := nn.NewBigram(3, 1)
	var opt optim.Optimizer = optim.NewAdamW(model.Parameters(), optim.AdamWConfig{LR: 0.1})
	sched := optim.NewLambdaLR(opt, optim.LinearDecay(4))

	assert.InDelta(t, 0.1, opt.GetLR(), 1e-7)
	sched.Step()
	assert.InDelta(t, 0.075, opt.GetLR(), 1e-7)
	assert.Equal(t, opt.GetLR(), sched.LastLR())
}
