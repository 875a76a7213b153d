// Package nn defines the contracts between the training orchestrator and the
// model side of training: parameters, modules, stateful components and the
// objective that turns a batch into a loss and gradients.
package nn

import (
	"context"
	"fmt"

	"github.com/born-ml/pretrain/internal/dataset"
	"github.com/born-ml/pretrain/internal/tensor"
)

// Stateful is implemented by every component whose internal variables are
// persisted in a checkpoint: models, optimizers, schedulers, loss scalers
// and dataset cursors.
type Stateful interface {
	// StateDict returns copies of the component's state tensors.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict replaces the component's state. Missing or mismatched
	// entries are an error and leave the component unchanged.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}

// Module is a model: a named set of trainable parameters.
type Module interface {
	Stateful

	// Parameters returns the trainable parameters in a stable order.
	Parameters() []*Parameter
}

// Mode selects how an objective evaluates a batch.
type Mode int

const (
	// Train computes the loss and keeps what Backward needs.
	Train Mode = iota
	// Eval computes the loss only. Parameters and gradients are untouched.
	Eval
)

// String returns the mode name.
func (m Mode) String() string {
	if m == Eval {
		return "eval"
	}
	return "train"
}

// Objective computes a scalar loss from a batch and the gradients of that
// loss with respect to the model's parameters. It owns the model reference.
type Objective interface {
	// Loss evaluates the model on batch. In Train mode the objective retains
	// the activations needed by the following Backward call.
	Loss(ctx context.Context, batch dataset.Batch, mode Mode) (float64, error)

	// Backward accumulates the gradients of scale*loss for the most recent
	// Train-mode Loss into the model parameters.
	Backward(ctx context.Context, scale float32) error
}

// ParametersStateDict returns copies of the parameter values keyed by name.
func ParametersStateDict(params []*Parameter) map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor, len(params))
	for _, p := range params {
		state[p.Name()] = p.Tensor().Clone()
	}
	return state
}

// LoadParameters copies values from stateDict into params. Every parameter
// must be present with a matching shape; nothing is written unless all match.
func LoadParameters(params []*Parameter, stateDict map[string]*tensor.RawTensor) error {
	for _, p := range params {
		raw, ok := stateDict[p.Name()]
		if !ok {
			return fmt.Errorf("missing parameter %q", p.Name())
		}
		if raw.DType() != tensor.Float32 || !raw.Shape().Equal(p.Tensor().Shape()) {
			return fmt.Errorf("parameter %q: got %s%v, want float32%v",
				p.Name(), raw.DType(), raw.Shape(), p.Tensor().Shape())
		}
	}
	if len(stateDict) != len(params) {
		return fmt.Errorf("state has %d tensors, model has %d parameters", len(stateDict), len(params))
	}
	for _, p := range params {
		copy(p.Tensor().Data(), stateDict[p.Name()].Data())
	}
	return nil
}
