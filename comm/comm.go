// Package comm provides the collective communication substrate for SPMD
// worker groups: barrier synchronization and associative reductions (sum,
// min, max) across P cooperating workers.
//
// Collectives are blocking and synchronous. Every worker must reach the same
// collective call for a given point in the run; a worker that fails hard
// instead calls Abort, which wakes its peers with errs.ErrGroupAborted rather
// than leaving them deadlocked in the next collective.
//
// The in-process LocalGroup implementation backs single-machine runs where
// workers are goroutines. The Communicator interface keeps the metric
// reduction logic independent of the substrate.
package comm

import "context"

// Op identifies an associative reduction operator.
type Op uint8

const (
	OpSum Op = iota + 1 // OpSum combines contributions by addition.
	OpMin               // OpMin keeps the smallest contribution.
	OpMax               // OpMax keeps the largest contribution.
)

func (o Op) String() string {
	switch o {
	case OpSum:
		return "sum"
	case OpMin:
		return "min"
	case OpMax:
		return "max"
	default:
		return "unknown"
	}
}

// Communicator is one worker's handle on its collective group.
//
// All collective methods block until every group member has made the matching
// call, the context is canceled, or the group is aborted. Implementations
// must detect mismatched participation (peers inside different collectives)
// and fail the group rather than deadlock.
type Communicator interface {
	// Rank returns this worker's rank in [0, Size()).
	Rank() int

	// Size returns the number of workers in the group.
	Size() int

	// Barrier blocks until all group members reach it.
	Barrier(ctx context.Context) error

	// AllreduceFloat64 combines one float64 per worker with op and returns
	// the group-wide result to every member.
	AllreduceFloat64(ctx context.Context, v float64, op Op) (float64, error)

	// AllreduceUint64 combines one uint64 per worker with op and returns the
	// group-wide result to every member.
	AllreduceUint64(ctx context.Context, v uint64, op Op) (uint64, error)

	// Abort fails the group: current and future collective calls on every
	// member return errs.ErrGroupAborted wrapping cause.
	Abort(cause error)
}
