package optim

import (
	"math"

	"github.com/born-ml/pretrain/internal/nn"
	"github.com/born-ml/pretrain/internal/tensor"
)

// AdamW implements Adam with decoupled weight decay.
//
// Update rule:
//
//	param = param - lr * wd * param                     // Decoupled decay
//	m_t = beta1 * m_{t-1} + (1-beta1) * gradient       // First moment
//	v_t = beta2 * v_{t-1} + (1-beta2) * gradient²      // Second moment
//	m_hat = m_t / (1 - beta1^t)                        // Bias correction
//	v_hat = v_t / (1 - beta2^t)                        // Bias correction
//	param = param - lr * m_hat / (sqrt(v_hat) + eps)  // Parameter update
//
// With WeightDecay == 0 this is plain Adam.
//
// Reference: "Decoupled Weight Decay Regularization" (Loshchilov & Hutter, 2019)
type AdamW struct {
	params []*nn.Parameter
	lr     float32
	beta1  float32
	beta2  float32
	eps    float32
	wd     float32
	t      int64               // Timestep for bias correction
	m      []*tensor.RawTensor // First moment estimates
	v      []*tensor.RawTensor // Second moment estimates
}

// AdamWConfig holds configuration for the AdamW optimizer.
type AdamWConfig struct {
	LR          float32    // Learning rate (default: 0.001)
	Betas       [2]float32 // Coefficients for computing running averages (default: [0.9, 0.999])
	Eps         float32    // Term for numerical stability (default: 1e-8)
	WeightDecay float32    // Decoupled weight decay (default: 0)
}

// NewAdamW creates a new AdamW optimizer. Moment buffers are allocated up
// front so the state dict has the same keys before and after the first step.
//
// Default hyperparameters:
//   - LR: 0.001
//   - Beta1: 0.9
//   - Beta2: 0.999
//   - Eps: 1e-8
func NewAdamW(params []*nn.Parameter, config AdamWConfig) *AdamW {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}

	return &AdamW{
		params: params,
		lr:     config.LR,
		beta1:  config.Betas[0],
		beta2:  config.Betas[1],
		eps:    config.Eps,
		wd:     config.WeightDecay,
		m:      zerosLike(params),
		v:      zerosLike(params),
	}
}

// Step performs a single optimization step.
//
// Parameters with no gradient are skipped.
func (a *AdamW) Step() {
	a.t++

	biasCorrection1 := float32(1.0 - math.Pow(float64(a.beta1), float64(a.t)))
	biasCorrection2 := float32(1.0 - math.Pow(float64(a.beta2), float64(a.t)))

	for i, param := range a.params {
		grad := param.Grad()
		if grad == nil {
			continue
		}
		a.updateParameter(param, grad, a.m[i], a.v[i], biasCorrection1, biasCorrection2)
	}
}

func (a *AdamW) updateParameter(
	param *nn.Parameter,
	grad, m, v *tensor.RawTensor,
	biasCorrection1, biasCorrection2 float32,
) {
	gradData := grad.AsFloat32()
	mData := m.AsFloat32()
	vData := v.AsFloat32()
	paramData := param.Tensor().AsFloat32()
	decay := 1 - a.lr*a.wd

	for i := range paramData {
		g := gradData[i]

		paramData[i] *= decay

		mData[i] = a.beta1*mData[i] + (1.0-a.beta1)*g
		vData[i] = a.beta2*vData[i] + (1.0-a.beta2)*g*g

		mHat := mData[i] / biasCorrection1
		vHat := vData[i] / biasCorrection2

		paramData[i] -= a.lr * mHat / (float32(math.Sqrt(float64(vHat))) + a.eps)
	}
}

// ZeroGrad clears gradients for all parameters.
func (a *AdamW) ZeroGrad() {
	nn.ZeroGrads(a.params)
}

// GetLR returns the current learning rate.
func (a *AdamW) GetLR() float32 {
	return a.lr
}

// SetLR sets the learning rate.
func (a *AdamW) SetLR(lr float32) {
	a.lr = lr
}

// StateDict returns the timestep, learning rate and moment buffers.
func (a *AdamW) StateDict() map[string]*tensor.RawTensor {
	state := map[string]*tensor.RawTensor{
		"t":  tensor.ScalarInt64(a.t),
		"lr": tensor.ScalarFloat32(a.lr),
	}
	bufferState(state, "m", a.params, a.m)
	bufferState(state, "v", a.params, a.v)
	return state
}

// LoadStateDict restores the optimizer. Nothing is changed on error.
func (a *AdamW) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	t, err := scalar(stateDict, "t", tensor.Int64)
	if err != nil {
		return err
	}
	lr, err := scalar(stateDict, "lr", tensor.Float32)
	if err != nil {
		return err
	}
	if err := checkBuffers(stateDict, "m", a.params); err != nil {
		return err
	}
	if err := checkBuffers(stateDict, "v", a.params); err != nil {
		return err
	}

	a.t = t.AsInt64()[0]
	a.lr = lr.AsFloat32()[0]
	loadBuffers(stateDict, "m", a.params, a.m)
	loadBuffers(stateDict, "v", a.params, a.v)
	return nil
}
