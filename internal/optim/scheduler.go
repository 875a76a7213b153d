package optim

import (
	"github.com/born-ml/pretrain/internal/nn"
	"github.com/born-ml/pretrain/internal/tensor"
)

// Scheduler adjusts an optimizer's learning rate as training progresses.
type Scheduler interface {
	nn.Stateful

	// Step advances the schedule by one completed update.
	Step()

	// LastLR returns the learning rate most recently set on the optimizer.
	LastLR() float32
}

// LambdaLR sets lr = base * f(step) on its optimizer.
type LambdaLR struct {
	optimizer Optimizer
	base      float32
	lambda    func(step int64) float64
	step      int64
}

// NewLambdaLR captures the optimizer's current learning rate as the base and
// applies f(0) immediately.
func NewLambdaLR(optimizer Optimizer, lambda func(step int64) float64) *LambdaLR {
	s := &LambdaLR{
		optimizer: optimizer,
		base:      optimizer.GetLR(),
		lambda:    lambda,
	}
	s.apply()
	return s
}

// LinearDecay returns a lambda decaying linearly from 1 at step 0 to 0 at
// step iterations.
func LinearDecay(iterations int64) func(step int64) float64 {
	return func(step int64) float64 {
		if iterations <= 0 || step >= iterations {
			return 0
		}
		return 1 - float64(step)/float64(iterations)
	}
}

func (s *LambdaLR) apply() {
	s.optimizer.SetLR(float32(float64(s.base) * s.lambda(s.step)))
}

// Step advances the schedule.
func (s *LambdaLR) Step() {
	s.step++
	s.apply()
}

// LastLR returns the learning rate currently set on the optimizer.
func (s *LambdaLR) LastLR() float32 {
	return s.optimizer.GetLR()
}

// StateDict returns the step count and base learning rate.
func (s *LambdaLR) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"step":    tensor.ScalarInt64(s.step),
		"base_lr": tensor.ScalarFloat32(s.base),
	}
}

// LoadStateDict restores the schedule position. The optimizer's learning rate
// is restored by the optimizer's own state.
func (s *LambdaLR) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	step, err := scalar(stateDict, "step", tensor.Int64)
	if err != nil {
		return err
	}
	base, err := scalar(stateDict, "base_lr", tensor.Float32)
	if err != nil {
		return err
	}
	s.step = step.AsInt64()[0]
	s.base = base.AsFloat32()[0]
	return nil
}
