package distributed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/grailbio/base/sync/ctxsync"
)

// Comm is one rank's view of a collective group. Every rank must issue the
// same sequence of collectives with buffers of equal length.
type Comm interface {
	Rank() int
	Size() int

	// AllReduceMean replaces buf on every rank with the element-wise mean
	// of all ranks' buffers.
	AllReduceMean(ctx context.Context, buf []float32) error

	// Broadcast replaces buf on every rank with root's buf.
	Broadcast(ctx context.Context, buf []float32, root int) error

	// Barrier returns once every rank has called it.
	Barrier(ctx context.Context) error

	// Abort fails the group. Pending and later collectives on every rank
	// return a *SyncError wrapping err.
	Abort(err error)
}

type opKind int

const (
	opAllReduce opKind = iota
	opBroadcast
	opBarrier
)

func (k opKind) String() string {
	switch k {
	case opAllReduce:
		return "all-reduce"
	case opBroadcast:
		return "broadcast"
	default:
		return "barrier"
	}
}

// LocalGroup is a collective group of in-process replicas. Reductions are
// computed once, in rank order, so every rank receives bit-identical
// results.
type LocalGroup struct {
	mu   sync.Mutex
	cond *ctxsync.Cond
	size int

	// Current round.
	gen     int64
	arrived int
	op      opKind
	root    int
	n       int
	bufs    [][]float32

	err error
}

// NewLocalGroup returns a group of size ranks.
func NewLocalGroup(size int) *LocalGroup {
	if size <= 0 {
		panic(fmt.Sprintf("distributed: invalid group size %d", size))
	}
	g := &LocalGroup{size: size, bufs: make([][]float32, size)}
	g.cond = ctxsync.NewCond(&g.mu)
	return g
}

// Member returns the Comm for rank.
func (g *LocalGroup) Member(rank int) Comm {
	if rank < 0 || rank >= g.size {
		panic(fmt.Sprintf("distributed: rank %d out of range [0, %d)", rank, g.size))
	}
	return &member{group: g, rank: rank}
}

// Abort fails the group with err.
func (g *LocalGroup) Abort(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail(&SyncError{Op: "abort", Rank: -1, Err: err})
}

// Err returns the error that failed the group, if any.
func (g *LocalGroup) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

// fail records the first failure and wakes every waiter. g.mu must be held.
func (g *LocalGroup) fail(err error) {
	if g.err == nil {
		g.err = err
	}
	g.cond.Broadcast()
}

func (g *LocalGroup) collective(ctx context.Context, rank int, op opKind, buf []float32, root int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	if root < 0 || root >= g.size {
		g.fail(&SyncError{Op: op.String(), Rank: rank, Err: fmt.Errorf("invalid root %d", root)})
		return g.err
	}

	if g.arrived == 0 {
		g.op, g.root, g.n = op, root, len(buf)
	} else if g.op != op || g.root != root || g.n != len(buf) {
		g.fail(&SyncError{Op: op.String(), Rank: rank, Err: fmt.Errorf(
			"mismatched collective: %s(len %d, root %d) while group is in %s(len %d, root %d)",
			op, len(buf), root, g.op, g.n, g.root)})
		return g.err
	}
	g.bufs[rank] = buf
	g.arrived++

	gen := g.gen
	if g.arrived == g.size {
		g.complete()
		return nil
	}
	var err error
	for g.gen == gen && g.err == nil && err == nil {
		err = g.cond.Wait(ctx)
	}
	if g.gen != gen {
		return nil
	}
	if err != nil {
		g.fail(&SyncError{Op: op.String(), Rank: rank, Err: err})
	}
	return g.err
}

// complete performs the round's data movement and starts the next round.
func (g *LocalGroup) complete() {
	switch g.op {
	case opAllReduce:
		mean := make([]float32, g.n)
		for _, b := range g.bufs {
			for i, v := range b {
				mean[i] += v
			}
		}
		inv := 1 / float32(g.size)
		for i := range mean {
			mean[i] *= inv
		}
		for _, b := range g.bufs {
			copy(b, mean)
		}
	case opBroadcast:
		src := g.bufs[g.root]
		for r, b := range g.bufs {
			if r != g.root {
				copy(b, src)
			}
		}
	case opBarrier:
	}
	clear(g.bufs)
	g.arrived = 0
	g.gen++
	g.cond.Broadcast()
}

type member struct {
	group *LocalGroup
	rank  int
}

func (m *member) Rank() int { return m.rank }
func (m *member) Size() int { return m.group.size }

func (m *member) AllReduceMean(ctx context.Context, buf []float32) error {
	return m.group.collective(ctx, m.rank, opAllReduce, buf, 0)
}

func (m *member) Broadcast(ctx context.Context, buf []float32, root int) error {
	return m.group.collective(ctx, m.rank, opBroadcast, buf, root)
}

func (m *member) Barrier(ctx context.Context) error {
	return m.group.collective(ctx, m.rank, opBarrier, nil, 0)
}

func (m *member) Abort(err error) {
	if err == nil {
		err = errors.New("aborted")
	}
	m.group.mu.Lock()
	defer m.group.mu.Unlock()
	m.group.fail(&SyncError{Op: "abort", Rank: m.rank, Err: err})
}
