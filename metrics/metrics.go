// Package metrics computes distributed error/quality metrics between an
// original and a processed version of the same array.
//
// Each worker accumulates raw statistics over its local shard in one linear
// pass, the raw statistics are combined with collective reductions, and the
// derived metrics (RMSE, NRMSE, L∞, PSNR, compression ratio) are computed
// exactly once from the combined totals. Per-worker derived metrics are never
// averaged; that would bias results toward workers with smaller shards.
package metrics

import (
	"context"

	"github.com/stepmet/stepmet/comm"
	"github.com/stepmet/stepmet/element"
)

// Local is one worker's raw shard statistics for one (variable, step).
// Created fresh per pair, consumed exactly once by Reduce, then discarded.
type Local = element.PairStats

// Accumulate runs the local pass over a shard pair.
//
// Empty shards (zero-extent partitions) yield the reduction identity: zero
// contribution to every reduction, no error.
func Accumulate(orig, proc element.Buffer) (Local, error) {
	return element.AccumulatePair(orig, proc)
}

// Global holds the group-wide raw statistics after collective reduction.
type Global struct {
	SumSqErr  float64
	SumSqOrig float64
	MaxAbsErr float64
	Min       float64
	Max       float64
	Count     uint64
}

// Reduce combines every worker's local statistics into the global totals.
//
// The reduction operators follow the statistics' semantics: sums reduce by
// sum, extremes by min/max, the element count by sum. Reduce is collective
// and blocking: every worker in the group must call it for the same
// (variable, step) or the group deadlocks; on I/O failure workers abort the
// group instead of skipping the call.
//
// Returns:
//   - Global: Identical on every worker
//   - error: Context cancellation or group abort
func Reduce(ctx context.Context, c comm.Communicator, local Local) (Global, error) {
	var g Global
	var err error

	if g.SumSqErr, err = c.AllreduceFloat64(ctx, local.SumSqErr, comm.OpSum); err != nil {
		return Global{}, err
	}
	if g.SumSqOrig, err = c.AllreduceFloat64(ctx, local.SumSqOrig, comm.OpSum); err != nil {
		return Global{}, err
	}
	if g.MaxAbsErr, err = c.AllreduceFloat64(ctx, local.MaxAbsErr, comm.OpMax); err != nil {
		return Global{}, err
	}
	if g.Min, err = c.AllreduceFloat64(ctx, local.Min, comm.OpMin); err != nil {
		return Global{}, err
	}
	if g.Max, err = c.AllreduceFloat64(ctx, local.Max, comm.OpMax); err != nil {
		return Global{}, err
	}
	if g.Count, err = c.AllreduceUint64(ctx, local.Count, comm.OpSum); err != nil {
		return Global{}, err
	}

	return g, nil
}
