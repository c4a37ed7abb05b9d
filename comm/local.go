package comm

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/stepmet/stepmet/errs"
)

// collKind tags which collective a rendezvous is serving, so a worker calling
// Barrier while its peers call AllreduceFloat64 fails the group instead of
// producing a garbage reduction.
type collKind uint8

const (
	collNone collKind = iota
	collBarrier
	collFloat64
	collUint64
)

// rendezvous is one generation of a collective call: the contributions of
// every member, and a channel closed when the last member arrives.
type rendezvous struct {
	kind    collKind
	op      Op
	fvals   []float64
	uvals   []uint64
	arrived int
	done    chan struct{}
	fres    float64
	ures    uint64
	err     error
}

type localGroup struct {
	mu   sync.Mutex
	size int
	cur  *rendezvous
	err  error // non-nil once aborted
}

// localComm is one member's view of a localGroup.
type localComm struct {
	group *localGroup
	rank  int
}

var _ Communicator = (*localComm)(nil)

// NewLocalGroup creates an in-process collective group of the given size and
// returns one Communicator per rank.
//
// Each returned communicator belongs to a single worker goroutine; the group
// itself is safe for the concurrent collective calls of its members.
//
// Parameters:
//   - size: Number of cooperating workers, must be > 0
//
// Returns:
//   - []Communicator: size communicators, index == rank
func NewLocalGroup(size int) []Communicator {
	if size <= 0 {
		panic(fmt.Sprintf("comm: invalid group size %d", size))
	}

	g := &localGroup{size: size, cur: newRendezvous(size)}

	members := make([]Communicator, size)
	for r := range members {
		members[r] = &localComm{group: g, rank: r}
	}

	return members
}

func newRendezvous(size int) *rendezvous {
	return &rendezvous{
		fvals: make([]float64, size),
		uvals: make([]uint64, size),
		done:  make(chan struct{}),
	}
}

func (c *localComm) Rank() int { return c.rank }
func (c *localComm) Size() int { return c.group.size }

func (c *localComm) Barrier(ctx context.Context) error {
	_, _, err := c.group.join(ctx, c.rank, collBarrier, 0, 0, 0)
	return err
}

func (c *localComm) AllreduceFloat64(ctx context.Context, v float64, op Op) (float64, error) {
	f, _, err := c.group.join(ctx, c.rank, collFloat64, op, v, 0)
	return f, err
}

func (c *localComm) AllreduceUint64(ctx context.Context, v uint64, op Op) (uint64, error) {
	_, u, err := c.group.join(ctx, c.rank, collUint64, op, 0, v)
	return u, err
}

func (c *localComm) Abort(cause error) {
	c.group.abort(fmt.Errorf("%w: rank %d: %v", errs.ErrGroupAborted, c.rank, cause))
}

// join enters the current rendezvous and blocks until it completes.
// The last arrival computes the reduction and opens the next generation.
func (g *localGroup) join(ctx context.Context, rank int, kind collKind, op Op, fv float64, uv uint64) (float64, uint64, error) {
	g.mu.Lock()
	if g.err != nil {
		g.mu.Unlock()
		return 0, 0, g.err
	}

	r := g.cur
	if r.kind == collNone {
		r.kind = kind
		r.op = op
	} else if r.kind != kind || r.op != op {
		// Mismatched participation is a structural bug; fail everyone.
		err := fmt.Errorf("%w: collective mismatch at rank %d", errs.ErrGroupAborted, rank)
		g.abortLocked(err)
		g.mu.Unlock()

		return 0, 0, err
	}

	r.fvals[rank] = fv
	r.uvals[rank] = uv
	r.arrived++

	if r.arrived == g.size {
		r.fres = reduceFloat64(r.fvals, r.op, r.kind)
		r.ures = reduceUint64(r.uvals, r.op, r.kind)
		g.cur = newRendezvous(g.size)
		close(r.done)
		g.mu.Unlock()

		return r.fres, r.ures, nil
	}
	g.mu.Unlock()

	select {
	case <-r.done:
		if r.err != nil {
			return 0, 0, r.err
		}
		return r.fres, r.ures, nil
	case <-ctx.Done():
		// Leave the group unusable: peers blocked in this rendezvous must
		// not wait forever for a contribution that will never complete.
		g.abort(fmt.Errorf("%w: rank %d: %v", errs.ErrGroupAborted, rank, ctx.Err()))
		return 0, 0, ctx.Err()
	}
}

func (g *localGroup) abort(err error) {
	g.mu.Lock()
	g.abortLocked(err)
	g.mu.Unlock()
}

func (g *localGroup) abortLocked(err error) {
	if g.err != nil {
		return
	}
	g.err = err

	r := g.cur
	r.err = err
	g.cur = newRendezvous(g.size)
	close(r.done)
}

func reduceFloat64(vals []float64, op Op, kind collKind) float64 {
	if kind != collFloat64 {
		return 0
	}
	switch op {
	case OpSum:
		var acc float64
		for _, v := range vals {
			acc += v
		}
		return acc
	case OpMin:
		acc := math.Inf(1)
		for _, v := range vals {
			acc = math.Min(acc, v)
		}
		return acc
	case OpMax:
		acc := math.Inf(-1)
		for _, v := range vals {
			acc = math.Max(acc, v)
		}
		return acc
	default:
		return 0
	}
}

func reduceUint64(vals []uint64, op Op, kind collKind) uint64 {
	if kind != collUint64 {
		return 0
	}
	switch op {
	case OpSum:
		var acc uint64
		for _, v := range vals {
			acc += v
		}
		return acc
	case OpMin:
		acc := vals[0]
		for _, v := range vals[1:] {
			if v < acc {
				acc = v
			}
		}
		return acc
	case OpMax:
		acc := vals[0]
		for _, v := range vals[1:] {
			if v > acc {
				acc = v
			}
		}
		return acc
	default:
		return 0
	}
}
