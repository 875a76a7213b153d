// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/pretrain/internal/tensor"
	"github.com/born-ml/pretrain/nn"
)

// TestBigramImplementsModule verifies the exported model satisfies Module.
func TestBigramImplementsModule(t *testing.T) {
	var module nn.Module = nn.NewBigram(5, 1)

	params := module.Parameters()
	require.Len(t, params, 1)
	assert.Equal(t, tensor.Shape{5, 5}, params[0].Tensor().Shape())

	state := module.StateDict()
	require.NoError(t, module.LoadStateDict(state))
}

func TestModes(t *testing.T) {
	assert.Equal(t, "train", nn.Train.String())
	assert.Equal(t, "eval", nn.Eval.String())
}
