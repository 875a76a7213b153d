package optim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/pretrain/internal/nn"
	"github.com/born-ml/pretrain/internal/optim"
	"github.com/born-ml/pretrain/internal/tensor"
)

func newParam(t *testing.T, name string, values ...float32) *nn.Parameter {
	t.Helper()
	raw, err := tensor.FromFloat32(tensor.Shape{len(values)}, values)
	require.NoError(t, err)
	return nn.NewParameter(name, raw)
}

func setGrad(p *nn.Parameter, values ...float32) {
	copy(p.EnsureGrad().AsFloat32(), values)
}

// TestSGD_SimpleUpdate tests SGD without momentum.
func TestSGD_SimpleUpdate(t *testing.T) {
	param := newParam(t, "x", 2.0)
	optimizer := optim.NewSGD([]*nn.Parameter{param}, optim.SGDConfig{LR: 0.1})

	setGrad(param, 1.0)
	optimizer.Step()

	// x_new = x_old - lr * grad = 2.0 - 0.1 * 1.0 = 1.9
	assert.InDelta(t, 1.9, param.Tensor().AsFloat32()[0], 1e-6)
}

// TestSGD_WithMomentum tests SGD with momentum.
func TestSGD_WithMomentum(t *testing.T) {
	param := newParam(t, "x", 1.0)
	optimizer := optim.NewSGD([]*nn.Parameter{param}, optim.SGDConfig{LR: 0.1, Momentum: 0.9})

	setGrad(param, 1.0)
	optimizer.Step()
	// v = 1.0, x = 1.0 - 0.1 = 0.9
	assert.InDelta(t, 0.9, param.Tensor().AsFloat32()[0], 1e-6)

	optimizer.Step()
	// v = 0.9 + 1.0 = 1.9, x = 0.9 - 0.19 = 0.71
	assert.InDelta(t, 0.71, param.Tensor().AsFloat32()[0], 1e-6)
}

func TestSGD_InvalidMomentum(t *testing.T) {
	assert.Panics(t, func() {
		optim.NewSGD(nil, optim.SGDConfig{Momentum: 1})
	})
}

// TestAdamW_FirstStep checks the bias-corrected first update, which moves
// every parameter by lr in the direction opposite to its gradient.
func TestAdamW_FirstStep(t *testing.T) {
	param := newParam(t, "x", 1.0, -1.0)
	optimizer := optim.NewAdamW([]*nn.Parameter{param}, optim.AdamWConfig{LR: 0.01})

	setGrad(param, 0.5, -2.0)
	optimizer.Step()

	data := param.Tensor().AsFloat32()
	assert.InDelta(t, 0.99, data[0], 1e-5)
	assert.InDelta(t, -0.99, data[1], 1e-5)
}

func TestAdamW_WeightDecay(t *testing.T) {
	param := newParam(t, "x", 2.0)
	optimizer := optim.NewAdamW([]*nn.Parameter{param}, optim.AdamWConfig{LR: 0.1, WeightDecay: 0.5})

	// Zero gradient: only the decoupled decay applies.
	setGrad(param, 0)
	optimizer.Step()
	assert.InDelta(t, 2.0*(1-0.1*0.5), param.Tensor().AsFloat32()[0], 1e-6)
}

func TestAdamW_SkipsParamsWithoutGrad(t *testing.T) {
	withGrad := newParam(t, "a", 1.0)
	without := newParam(t, "b", 1.0)
	optimizer := optim.NewAdamW([]*nn.Parameter{withGrad, without}, optim.AdamWConfig{})

	setGrad(withGrad, 1.0)
	optimizer.Step()
	assert.NotEqual(t, float32(1.0), withGrad.Tensor().AsFloat32()[0])
	assert.Equal(t, float32(1.0), without.Tensor().AsFloat32()[0])

	optimizer.ZeroGrad()
	assert.Equal(t, float32(0), withGrad.Grad().AsFloat32()[0])
	assert.Nil(t, without.Grad())
}

// TestAdamW_StateRoundTrip checks that a restored optimizer continues
// bit-identically to the original.
func TestAdamW_StateRoundTrip(t *testing.T) {
	a := newParam(t, "w", 0.3, -0.7)
	opt := optim.NewAdamW([]*nn.Parameter{a}, optim.AdamWConfig{LR: 0.05, WeightDecay: 0.01})
	for _, g := range []float32{0.1, -0.4, 0.9} {
		setGrad(a, g, -g)
		opt.Step()
	}
	state := opt.StateDict()
	assert.Contains(t, state, "m.w")
	assert.Contains(t, state, "v.w")
	assert.Equal(t, int64(3), state["t"].AsInt64()[0])

	b := newParam(t, "w", 0, 0)
	require.NoError(t, b.Tensor().CopyFrom(a.Tensor()))
	restored := optim.NewAdamW([]*nn.Parameter{b}, optim.AdamWConfig{LR: 0.05, WeightDecay: 0.01})
	require.NoError(t, restored.LoadStateDict(state))

	setGrad(a, 0.2, 0.2)
	setGrad(b, 0.2, 0.2)
	opt.Step()
	restored.Step()
	assert.True(t, a.Tensor().Equal(b.Tensor()))
}

func TestAdamW_LoadStateDictRejectsMismatch(t *testing.T) {
	a := newParam(t, "w", 1, 2)
	opt := optim.NewAdamW([]*nn.Parameter{a}, optim.AdamWConfig{})
	state := opt.StateDict()

	other := optim.NewAdamW([]*nn.Parameter{newParam(t, "w", 1, 2, 3)}, optim.AdamWConfig{})
	require.Error(t, other.LoadStateDict(state))

	delete(state, "t")
	require.Error(t, opt.LoadStateDict(state))
}

func TestSGD_StateRoundTrip(t *testing.T) {
	a := newParam(t, "w", 1.0)
	opt := optim.NewSGD([]*nn.Parameter{a}, optim.SGDConfig{LR: 0.1, Momentum: 0.5})
	setGrad(a, 1.0)
	opt.Step()

	b := newParam(t, "w", 1.0)
	restored := optim.NewSGD([]*nn.Parameter{b}, optim.SGDConfig{LR: 0.3, Momentum: 0.5})
	require.NoError(t, restored.LoadStateDict(opt.StateDict()))
	assert.Equal(t, float32(0.1), restored.GetLR())
	assert.Equal(t, []float32{1.0}, restored.StateDict()["momentum.w"].AsFloat32())
}

func TestLinearDecay(t *testing.T) {
	f := optim.LinearDecay(4)
	assert.Equal(t, 1.0, f(0))
	assert.Equal(t, 0.75, f(1))
	assert.Equal(t, 0.0, f(4))
	assert.Equal(t, 0.0, f(5))
}

func TestLambdaLR(t *testing.T) {
	param := newParam(t, "x", 1.0)
	opt := optim.NewSGD([]*nn.Parameter{param}, optim.SGDConfig{LR: 1})
	sched := optim.NewLambdaLR(opt, optim.LinearDecay(4))
	assert.Equal(t, float32(1), sched.LastLR())

	sched.Step()
	sched.Step()
	assert.Equal(t, float32(0.5), opt.GetLR())

	state := sched.StateDict()
	opt2 := optim.NewSGD([]*nn.Parameter{param}, optim.SGDConfig{LR: 1})
	sched2 := optim.NewLambdaLR(opt2, optim.LinearDecay(4))
	require.NoError(t, sched2.LoadStateDict(state))
	require.NoError(t, opt2.LoadStateDict(opt.StateDict()))

	sched.Step()
	sched2.Step()
	assert.Equal(t, opt.GetLR(), opt2.GetLR())
	assert.Equal(t, float32(0.25), opt2.GetLR())
}
