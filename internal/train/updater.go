package train

import (
	"context"

	"github.com/born-ml/pretrain/internal/nn"
	"github.com/born-ml/pretrain/internal/optim"
)

// Updater is the part of a train step between the loss and the parameter
// update. Decorators such as loss scaling and gradient all-reduce wrap it.
type Updater interface {
	// Backward leaves the gradients of scale*loss in the model parameters.
	Backward(ctx context.Context, objective nn.Objective, scale float32) error

	// Apply consumes the gradients. It reports whether parameters were
	// updated; a skipped update leaves parameters, optimizer and scheduler
	// unchanged.
	Apply(ctx context.Context) (applied bool, err error)
}

// UpdaterFunc adapts an Updater by wrapping it.
type UpdaterFunc func(inner Updater) Updater

// Decorator extends a Trainer before its first operation, typically by
// wrapping its Updater and registering extra checkpointed state.
type Decorator interface {
	Decorate(ctx context.Context, t *Trainer) error
}

// baseUpdater runs backward into fresh gradients, then steps the optimizer
// and the scheduler.
type baseUpdater struct {
	params    []*nn.Parameter
	optimizer optim.Optimizer
	scheduler optim.Scheduler
}

func (u *baseUpdater) Backward(ctx context.Context, objective nn.Objective, scale float32) error {
	nn.ZeroGrads(u.params)
	return objective.Backward(ctx, scale)
}

func (u *baseUpdater) Apply(context.Context) (bool, error) {
	u.optimizer.Step()
	u.scheduler.Step()
	u.optimizer.ZeroGrad()
	return true, nil
}
