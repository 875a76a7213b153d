// Package optim implements the optimizers and learning-rate schedulers used by
// the trainer.
//
// This package provides:
//   - Optimizer interface: in-place parameter updates from accumulated gradients
//   - AdamW: Adam with decoupled weight decay
//   - SGD: Stochastic Gradient Descent with momentum
//   - Scheduler interface and LambdaLR: learning rate as a function of step
//
// All optimizers and schedulers are nn.Stateful, so their internal variables
// can be checkpointed and restored bit for bit.
//
// Example usage:
//
//	optimizer := optim.NewAdamW(model.Parameters(), optim.AdamWConfig{
//	    LR:          1e-4,
//	    WeightDecay: 1e-2,
//	})
//	scheduler := optim.NewLambdaLR(optimizer, optim.LinearDecay(iterations))
//
//	for range iterations {
//	    loss, _ := objective.Loss(ctx, batch, nn.Train)
//	    _ = objective.Backward(ctx, 1)
//	    optimizer.Step()
//	    scheduler.Step()
//	    optimizer.ZeroGrad()
//	}
package optim

import (
	"fmt"

	"github.com/born-ml/pretrain/internal/nn"
	"github.com/born-ml/pretrain/internal/tensor"
)

// Optimizer is the base interface for all optimization algorithms.
type Optimizer interface {
	nn.Stateful

	// Step applies one update to every parameter that has a gradient.
	Step()

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float32

	// SetLR sets the learning rate used by the next Step.
	SetLR(lr float32)
}

// Config is the base configuration for all optimizers.
type Config struct {
	LR float32 // Learning rate
}

// zerosLike allocates one zeroed buffer per parameter.
func zerosLike(params []*nn.Parameter) []*tensor.RawTensor {
	buffers := make([]*tensor.RawTensor, len(params))
	for i, p := range params {
		buffers[i], _ = tensor.NewRaw(p.Tensor().Shape(), tensor.Float32) //nolint:errcheck // shape validated by the parameter
	}
	return buffers
}

// bufferState adds prefix.<param> entries for each per-parameter buffer.
func bufferState(state map[string]*tensor.RawTensor, prefix string, params []*nn.Parameter, buffers []*tensor.RawTensor) {
	for i, p := range params {
		state[prefix+"."+p.Name()] = buffers[i].Clone()
	}
}

// checkBuffers verifies that stateDict holds a prefix.<param> entry matching
// every parameter.
func checkBuffers(stateDict map[string]*tensor.RawTensor, prefix string, params []*nn.Parameter) error {
	for _, p := range params {
		key := prefix + "." + p.Name()
		raw, ok := stateDict[key]
		if !ok {
			return fmt.Errorf("missing optimizer state %q", key)
		}
		if raw.DType() != tensor.Float32 || !raw.Shape().Equal(p.Tensor().Shape()) {
			return fmt.Errorf("optimizer state %q: got %s%v, want float32%v",
				key, raw.DType(), raw.Shape(), p.Tensor().Shape())
		}
	}
	return nil
}

func loadBuffers(stateDict map[string]*tensor.RawTensor, prefix string, params []*nn.Parameter, buffers []*tensor.RawTensor) {
	for i, p := range params {
		copy(buffers[i].Data(), stateDict[prefix+"."+p.Name()].Data())
	}
}

func scalar(stateDict map[string]*tensor.RawTensor, key string, dtype tensor.DataType) (*tensor.RawTensor, error) {
	raw, ok := stateDict[key]
	if !ok {
		return nil, fmt.Errorf("missing optimizer state %q", key)
	}
	if raw.DType() != dtype || raw.NumElements() != 1 {
		return nil, fmt.Errorf("optimizer state %q: got %s%v, want %s scalar", key, raw.DType(), raw.Shape(), dtype)
	}
	return raw, nil
}
