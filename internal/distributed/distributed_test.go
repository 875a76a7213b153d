package distributed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/pretrain/internal/amp"
	"github.com/born-ml/pretrain/internal/dataset"
	"github.com/born-ml/pretrain/internal/metrics"
	"github.com/born-ml/pretrain/internal/train"
	"github.com/born-ml/pretrain/internal/train/traintest"
)

// runRanks calls f concurrently for every member of a new group of size n.
func runRanks(n int, f func(c Comm) error) []error {
	group := NewLocalGroup(n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for rank := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[rank] = f(group.Member(rank))
		}()
	}
	wg.Wait()
	return errs
}

func TestAllReduceMean(t *testing.T) {
	out := make([][]float32, 3)
	errs := runRanks(3, func(c Comm) error {
		r := float32(c.Rank())
		buf := []float32{2*r + 1, 2*r + 2}
		err := c.AllReduceMean(context.Background(), buf)
		out[c.Rank()] = buf
		return err
	})
	for rank, err := range errs {
		require.NoError(t, err)
		assert.Equal(t, []float32{3, 4}, out[rank])
	}
}

func TestBroadcastAndBarrier(t *testing.T) {
	out := make([][]float32, 3)
	errs := runRanks(3, func(c Comm) error {
		ctx := context.Background()
		buf := []float32{float32(c.Rank()), 0}
		if err := c.Broadcast(ctx, buf, 1); err != nil {
			return err
		}
		out[c.Rank()] = buf
		return c.Barrier(ctx)
	})
	for rank, err := range errs {
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 0}, out[rank])
	}
}

func TestMismatchedCollectiveFailsGroup(t *testing.T) {
	errs := runRanks(2, func(c Comm) error {
		ctx := context.Background()
		var err error
		if c.Rank() == 0 {
			err = c.Barrier(ctx)
		} else {
			err = c.AllReduceMean(ctx, []float32{1})
		}
		// Failures are sticky.
		assert.ErrorIs(t, c.Barrier(ctx), ErrSynchronization)
		return err
	})
	for _, err := range errs {
		require.ErrorIs(t, err, ErrSynchronization)
	}
}

func TestCanceledWaitFailsGroup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	group := NewLocalGroup(2)

	err := group.Member(0).Barrier(ctx)
	require.ErrorIs(t, err, ErrSynchronization)
	require.ErrorIs(t, err, context.Canceled)
	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, 0, syncErr.Rank)

	require.ErrorIs(t, group.Member(1).Barrier(context.Background()), ErrSynchronization)
	require.Error(t, group.Err())
}

func TestCancelWhileWaitingFailsGroup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	group := NewLocalGroup(2)

	done := make(chan error, 1)
	go func() { done <- group.Member(0).Barrier(ctx) }()
	cancel()

	err := <-done
	require.ErrorIs(t, err, ErrSynchronization)
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, group.Member(1).Barrier(context.Background()), ErrSynchronization)
}

func TestRepeatedRounds(t *testing.T) {
	const rounds = 50
	errs := runRanks(3, func(c Comm) error {
		for i := range rounds {
			buf := []float32{float32(c.Rank() + i)}
			if err := c.AllReduceMean(context.Background(), buf); err != nil {
				return err
			}
			if buf[0] != float32(1+i) {
				return errors.New("wrong mean")
			}
			if err := c.Barrier(context.Background()); err != nil {
				return err
			}
		}
		return nil
	})
	for rank, err := range errs {
		require.NoError(t, err, "rank %d", rank)
	}
}

func TestAbortWakesWaiters(t *testing.T) {
	errBoom := errors.New("boom")
	errs := runRanks(3, func(c Comm) error {
		if c.Rank() == 2 {
			c.Abort(errBoom)
			return nil
		}
		return c.Barrier(context.Background())
	})
	require.ErrorIs(t, errs[0], errBoom)
	require.ErrorIs(t, errs[1], ErrSynchronization)
	require.NoError(t, errs[2])
}

func TestCPUDevices(t *testing.T) {
	devices := newCPUDevices(2)
	d, err := devices.Bind(1)
	require.NoError(t, err)
	assert.Equal(t, "cpu:1", d.String())

	_, err = devices.Bind(1)
	require.ErrorIs(t, err, ErrDeviceUnavailable)
	_, err = devices.Bind(2)
	require.ErrorIs(t, err, ErrDeviceUnavailable)
	var devErr *DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, 2, devErr.Device)

	devices.Release(1)
	_, err = devices.Bind(1)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, NewCPUDevices().Count(), 1)
}

func TestSpawnBindFailure(t *testing.T) {
	called := false
	err := Spawn(context.Background(), []int{0, 0}, newCPUDevices(2), func(context.Context, ProcessContext) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.False(t, called)

	// Devices bound by the failed attempt are released.
	provider := newCPUDevices(2)
	require.Error(t, Spawn(context.Background(), []int{1, 5}, provider, nil))
	_, err = provider.Bind(1)
	require.NoError(t, err)

	require.Error(t, Spawn(context.Background(), nil, provider, nil))
}

func TestSpawnReturnsRootCause(t *testing.T) {
	errBoom := errors.New("boom")
	var mu sync.Mutex
	seen := map[int]error{}
	err := Spawn(context.Background(), []int{0, 1, 2}, newCPUDevices(3), func(ctx context.Context, pc ProcessContext) error {
		var err error
		if pc.Rank == 1 {
			err = errBoom
		} else {
			err = pc.Group.Barrier(ctx)
		}
		mu.Lock()
		seen[pc.Rank] = err
		mu.Unlock()
		return err
	})
	require.ErrorIs(t, err, errBoom)
	require.ErrorIs(t, seen[0], ErrSynchronization)
	require.ErrorIs(t, seen[2], ErrSynchronization)
}

// trainReplicas runs n replicas of a rig for iterations steps. Each rank
// starts from different weights, reads its own shard, and records its
// weights after every step.
func trainReplicas(t *testing.T, n int, iterations int64, dir string, decorate func(pc ProcessContext) []train.Decorator) ([]*traintest.Rig, [][][]float32) {
	t.Helper()
	rigs := make([]*traintest.Rig, n)
	for rank := range n {
		rigs[rank] = traintest.New(t, traintest.Config{
			Iterations: iterations,
			Seed:       uint64(rank + 1),
			Shard:      dataset.Shard{Index: rank, Count: n},
		})
	}
	history := make([][][]float32, n)
	devices := make([]int, n)
	for i := range devices {
		devices[i] = i
	}

	err := Spawn(context.Background(), devices, newCPUDevices(n), func(ctx context.Context, pc ProcessContext) error {
		rig := rigs[pc.Rank]
		if err := rig.Trainer.Use(ctx, decorate(pc)...); err != nil {
			return err
		}
		history[pc.Rank] = append(history[pc.Rank], rig.Weights())
		for rig.Trainer.Step() < iterations {
			if _, err := rig.Trainer.TrainStep(ctx, 2); err != nil {
				return err
			}
			step, err := rig.Trainer.Advance()
			if err != nil {
				return err
			}
			history[pc.Rank] = append(history[pc.Rank], rig.Weights())
			if step%2 == 0 {
				if err := rig.Trainer.Checkpoint(ctx, filepath.Join(dir, "ckpt")); err != nil {
					return err
				}
			}
		}
		return rig.Trainer.SaveModel(ctx, filepath.Join(dir, "model"))
	})
	require.NoError(t, err)
	return rigs, history
}

func TestReplicasStayIdentical(t *testing.T) {
	dir := t.TempDir()
	rigs, history := trainReplicas(t, 3, 4, dir, func(pc ProcessContext) []train.Decorator {
		return []train.Decorator{NewCoordinator(pc)}
	})

	for rank := 1; rank < 3; rank++ {
		require.Len(t, history[rank], 5)
		for step := range history[rank] {
			require.Equal(t, history[0][step], history[rank][step], "rank %d diverged at step %d", rank, step)
		}
		traintest.RequireSameStates(t, rigs[0].States(), rigs[rank].States())
		assert.Empty(t, rigs[rank].Recorder.Snapshot().Names())
	}
	assert.NotEqual(t, history[0][0], history[0][4])
	assert.Len(t, rigs[0].Recorder.Series(metrics.TrainLoss), 4)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestReplicasWithMixedPrecision(t *testing.T) {
	for name, order := range map[string]bool{"amp-first": true, "coordinator-first": false} {
		t.Run(name, func(t *testing.T) {
			adapters := make([]*amp.Adapter, 3)
			rigs, history := trainReplicas(t, 3, 4, t.TempDir(), func(pc ProcessContext) []train.Decorator {
				// Scale high enough that the first step overflows.
				adapters[pc.Rank] = amp.New(amp.Config{InitScale: 1 << 24, Backoff: 1.0 / 1024})
				if order {
					return []train.Decorator{adapters[pc.Rank], NewCoordinator(pc)}
				}
				return []train.Decorator{NewCoordinator(pc), adapters[pc.Rank]}
			})

			for rank := range 3 {
				assert.Equal(t, int64(1), adapters[rank].Scaler().Overflows(), "rank %d", rank)
				assert.Equal(t, history[0], history[rank], "rank %d", rank)
				traintest.RequireSameStates(t, rigs[0].States(), rigs[rank].States())
			}
			assert.Equal(t, history[0][0], history[0][1], "overflowed step leaves weights unchanged")
			assert.NotEqual(t, history[0][1], history[0][4])
		})
	}
}
