package nn

import (
	"github.com/born-ml/pretrain/internal/tensor"
)

// Parameter represents a trainable parameter of a model.
//
// The gradient buffer has the same shape as the value and is allocated
// lazily by the first backward pass that touches the parameter.
//
// Example:
//
//	weight := nn.NewParameter("bigram.weight", raw)
//	w := weight.Tensor().AsFloat32()
//	g := weight.EnsureGrad().AsFloat32()
type Parameter struct {
	name   string            // Parameter name (e.g., "bigram.weight")
	tensor *tensor.RawTensor // Float32 parameter values
	grad   *tensor.RawTensor // Gradient, nil until the first backward pass
}

// NewParameter creates a new trainable parameter around a float32 tensor.
func NewParameter(name string, t *tensor.RawTensor) *Parameter {
	if t.DType() != tensor.Float32 {
		panic("nn: parameters must be float32")
	}
	return &Parameter{
		name:   name,
		tensor: t,
	}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter) Tensor() *tensor.RawTensor {
	return p.tensor
}

// Grad returns the gradient tensor, or nil if none has been computed.
func (p *Parameter) Grad() *tensor.RawTensor {
	return p.grad
}

// EnsureGrad returns the gradient tensor, allocating a zeroed one if needed.
func (p *Parameter) EnsureGrad() *tensor.RawTensor {
	if p.grad == nil {
		//nolint:errcheck // shape already validated by the parameter tensor
		p.grad, _ = tensor.NewRaw(p.tensor.Shape(), tensor.Float32)
	}
	return p.grad
}

// ZeroGrad clears the gradient without releasing its buffer.
func (p *Parameter) ZeroGrad() {
	if p.grad != nil {
		p.grad.Zero()
	}
}

// ZeroGrads clears the gradients of all params.
func ZeroGrads(params []*Parameter) {
	for _, p := range params {
		p.ZeroGrad()
	}
}
