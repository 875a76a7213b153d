// Package distributed runs data-parallel training across replicas. Each
// replica is bound to one device, trains on its own shard, and takes part in
// a collective group: parameters are broadcast from rank 0 at start and
// gradients are averaged after every backward pass, so replicas stay
// identical. Only rank 0 records metrics and writes artifacts.
package distributed

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/born-ml/pretrain/internal/ctxlog"
	"github.com/born-ml/pretrain/internal/nn"
	"github.com/born-ml/pretrain/internal/train"
)

// ProcessContext identifies one replica. It is created by Spawn and never
// changes.
type ProcessContext struct {
	Rank    int
	Devices []int // Device ids of every rank, indexed by rank
	Device  Device
	Group   Comm
}

// Size returns the number of replicas.
func (pc ProcessContext) Size() int {
	return len(pc.Devices)
}

// Primary reports whether this replica is rank 0.
func (pc ProcessContext) Primary() bool {
	return pc.Rank == 0
}

// Coordinator is a train.Decorator that keeps replicas in lockstep.
type Coordinator struct {
	pc ProcessContext
}

// NewCoordinator returns a coordinator for the replica pc.
func NewCoordinator(pc ProcessContext) *Coordinator {
	return &Coordinator{pc: pc}
}

// Decorate broadcasts rank 0's parameters and wraps the trainer's updater
// with a gradient all-reduce. Every rank must call it.
func (c *Coordinator) Decorate(ctx context.Context, t *train.Trainer) error {
	params := t.Parameters()
	buf := flatten(params, values)
	if err := c.pc.Group.Broadcast(ctx, buf, 0); err != nil {
		return err
	}
	unflatten(params, values, buf)

	t.WrapUpdater(func(inner train.Updater) train.Updater {
		return &allReduce{inner: inner, group: c.pc.Group, params: params}
	})
	t.SetPrimary(c.pc.Primary(), c.pc.Group.Barrier)
	return nil
}

type allReduce struct {
	inner  train.Updater
	group  Comm
	params []*nn.Parameter
	buf    []float32
}

// Backward averages the gradients of all replicas.
func (a *allReduce) Backward(ctx context.Context, objective nn.Objective, scale float32) error {
	if err := a.inner.Backward(ctx, objective, scale); err != nil {
		return err
	}
	a.buf = flattenInto(a.buf[:0], a.params, grads)
	if err := a.group.AllReduceMean(ctx, a.buf); err != nil {
		return err
	}
	unflatten(a.params, grads, a.buf)
	return nil
}

func (a *allReduce) Apply(ctx context.Context) (bool, error) {
	return a.inner.Apply(ctx)
}

func values(p *nn.Parameter) []float32 { return p.Tensor().AsFloat32() }

func grads(p *nn.Parameter) []float32 { return p.EnsureGrad().AsFloat32() }

func flatten(params []*nn.Parameter, get func(*nn.Parameter) []float32) []float32 {
	return flattenInto(nil, params, get)
}

func flattenInto(dst []float32, params []*nn.Parameter, get func(*nn.Parameter) []float32) []float32 {
	for _, p := range params {
		dst = append(dst, get(p)...)
	}
	return dst
}

func unflatten(params []*nn.Parameter, get func(*nn.Parameter) []float32, buf []float32) {
	for _, p := range params {
		n := copy(get(p), buf)
		buf = buf[n:]
	}
}

// Worker is the body of one replica.
type Worker func(ctx context.Context, pc ProcessContext) error

// Spawn binds every device in devices, then runs worker once per device on
// its own goroutine, rank i on devices[i]. If any worker fails the group is
// aborted, the remaining workers fail with a *SyncError, and Spawn returns
// the first failure that was not a synchronization error.
func Spawn(ctx context.Context, devices []int, provider DeviceProvider, worker Worker) error {
	if len(devices) == 0 {
		return fmt.Errorf("distributed: no devices")
	}
	bound := make([]Device, 0, len(devices))
	defer func() {
		for _, d := range bound {
			provider.Release(d.Index)
		}
	}()
	for _, id := range devices {
		d, err := provider.Bind(id)
		if err != nil {
			return err
		}
		bound = append(bound, d)
	}

	devices = slices.Clone(devices)
	group := NewLocalGroup(len(devices))
	errs := make([]error, len(devices))
	g, gctx := errgroup.WithContext(ctx)
	for rank, device := range bound {
		pc := ProcessContext{
			Rank:    rank,
			Devices: devices,
			Device:  device,
			Group:   group.Member(rank),
		}
		g.Go(func() error {
			wctx := ctxlog.With(gctx, "rank", rank, "device", device.String())
			err := worker(wctx, pc)
			if err != nil {
				errs[rank] = err
				pc.Group.Abort(err)
			}
			return err
		})
	}
	err := g.Wait()
	for _, e := range errs {
		if e != nil && !errors.Is(e, ErrSynchronization) {
			return e
		}
	}
	return err
}
