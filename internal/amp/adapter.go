package amp

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/x448/float16"

	"github.com/born-ml/pretrain/internal/ctxlog"
	"github.com/born-ml/pretrain/internal/nn"
	"github.com/born-ml/pretrain/internal/train"
)

// RecordName is the checkpoint record holding the scaler state.
const RecordName = "amp"

const recordVersion = 1

var errGradientOverflow = errors.New("amp: gradient overflow")

// Adapter is a train.Decorator that runs the trainer's update pipeline in
// emulated mixed precision.
type Adapter struct {
	scaler *Scaler
}

// New returns an adapter with a fresh scaler.
func New(cfg Config) *Adapter {
	return &Adapter{scaler: NewScaler(cfg)}
}

// Scaler returns the adapter's loss scaler.
func (a *Adapter) Scaler() *Scaler {
	return a.scaler
}

// Decorate registers the scaler state and wraps the trainer's updater.
func (a *Adapter) Decorate(_ context.Context, t *train.Trainer) error {
	if err := t.Register(RecordName, a.scaler, recordVersion); err != nil {
		return err
	}
	params := t.Parameters()
	t.WrapUpdater(func(inner train.Updater) train.Updater {
		return &updater{inner: inner, scaler: a.scaler, params: params}
	})
	return nil
}

type updater struct {
	inner  train.Updater
	scaler *Scaler
	params []*nn.Parameter
}

// Backward computes gradients of the scaled loss and stores them at half
// precision.
func (u *updater) Backward(ctx context.Context, objective nn.Objective, scale float32) error {
	if err := u.inner.Backward(ctx, objective, scale*u.scaler.scale); err != nil {
		return err
	}
	for _, p := range u.params {
		if g := p.Grad(); g != nil {
			roundHalf(g.AsFloat32())
		}
	}
	return nil
}

// Apply unscales the gradients and forwards them, or skips the update and
// backs off the scale if any gradient is not finite.
func (u *updater) Apply(ctx context.Context) (bool, error) {
	err := unscale(u.params, u.scaler.scale)
	if errors.Is(err, errGradientOverflow) {
		ctxlog.FromContext(ctx).Debug("Gradient overflow, skipping update.", "scale", u.scaler.scale, "err", err)
		nn.ZeroGrads(u.params)
		u.scaler.update(true)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	u.scaler.update(false)
	return u.inner.Apply(ctx)
}

func roundHalf(values []float32) {
	for i, v := range values {
		values[i] = float16.Fromfloat32(v).Float32()
	}
}

// unscale divides every gradient by scale and fails with
// errGradientOverflow on the first non-finite value.
func unscale(params []*nn.Parameter, scale float32) error {
	inv := 1 / scale
	for _, p := range params {
		g := p.Grad()
		if g == nil {
			continue
		}
		values := g.AsFloat32()
		for i, v := range values {
			if math.IsInf(float64(v), 0) || math.IsNaN(float64(v)) {
				return fmt.Errorf("%w in %s", errGradientOverflow, p.Name())
			}
			values[i] = v * inv
		}
	}
	return nil
}
