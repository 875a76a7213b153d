package optim

import (
	"fmt"

	"github.com/born-ml/pretrain/internal/nn"
	"github.com/born-ml/pretrain/internal/tensor"
)

// SGD implements Stochastic Gradient Descent optimizer with optional momentum.
//
// Update rule without momentum:
//
//	param = param - lr * gradient
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
type SGD struct {
	params     []*nn.Parameter
	lr         float32
	momentum   float32
	velocities []*tensor.RawTensor
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR       float32 // Learning rate (default: 0.01)
	Momentum float32 // Momentum factor (default: 0.0, range: [0, 1))
}

// NewSGD creates a new SGD optimizer.
func NewSGD(params []*nn.Parameter, config SGDConfig) *SGD {
	if config.LR == 0 {
		config.LR = 0.01
	}
	if config.Momentum < 0 || config.Momentum >= 1 {
		panic(fmt.Sprintf("invalid momentum: %f (must be in [0, 1))", config.Momentum))
	}

	return &SGD{
		params:     params,
		lr:         config.LR,
		momentum:   config.Momentum,
		velocities: zerosLike(params),
	}
}

// Step performs a single optimization step.
func (s *SGD) Step() {
	for i, param := range s.params {
		grad := param.Grad()
		if grad == nil {
			continue
		}
		gradData := grad.AsFloat32()
		paramData := param.Tensor().AsFloat32()

		if s.momentum == 0 {
			for j := range paramData {
				paramData[j] -= s.lr * gradData[j]
			}
			continue
		}

		velData := s.velocities[i].AsFloat32()
		for j := range paramData {
			velData[j] = s.momentum*velData[j] + gradData[j]
			paramData[j] -= s.lr * velData[j]
		}
	}
}

// ZeroGrad clears gradients for all parameters.
func (s *SGD) ZeroGrad() {
	nn.ZeroGrads(s.params)
}

// GetLR returns the current learning rate.
func (s *SGD) GetLR() float32 {
	return s.lr
}

// SetLR sets the learning rate.
func (s *SGD) SetLR(lr float32) {
	s.lr = lr
}

// StateDict returns the learning rate and velocity buffers.
func (s *SGD) StateDict() map[string]*tensor.RawTensor {
	state := map[string]*tensor.RawTensor{"lr": tensor.ScalarFloat32(s.lr)}
	bufferState(state, "momentum", s.params, s.velocities)
	return state
}

// LoadStateDict restores the optimizer. Nothing is changed on error.
func (s *SGD) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	lr, err := scalar(stateDict, "lr", tensor.Float32)
	if err != nil {
		return err
	}
	if err := checkBuffers(stateDict, "momentum", s.params); err != nil {
		return err
	}
	s.lr = lr.AsFloat32()[0]
	loadBuffers(stateDict, "momentum", s.params, s.velocities)
	return nil
}
