// Package grid computes worker decompositions of N-dimensional array shapes.
//
// A variable's shape is split along one chosen axis into disjoint per-worker
// subregions that jointly cover the axis. All functions are pure and perform
// no I/O; precondition violations are returned as errors so callers can skip
// the offending variable and continue.
package grid

import (
	"fmt"

	"github.com/stepmet/stepmet/errs"
)

// Subregion describes a hyperslab of an N-dimensional array: a start offset
// and an element count per dimension. Start and Count always have equal
// length (the rank).
type Subregion struct {
	Start []uint64
	Count []uint64
}

// Rank returns the number of dimensions.
func (r Subregion) Rank() int {
	return len(r.Count)
}

// Elements returns the number of elements covered by the subregion.
//
// A zero-extent dimension yields 0, which callers treat as an empty shard:
// all numeric work no-ops and the shard contributes nothing to reductions.
func (r Subregion) Elements() uint64 {
	n := uint64(1)
	for _, c := range r.Count {
		n *= c
	}

	return n
}

// Empty reports whether the subregion covers no elements.
func (r Subregion) Empty() bool {
	return r.Elements() == 0
}

// Clone returns a deep copy of the subregion.
func (r Subregion) Clone() Subregion {
	out := Subregion{
		Start: make([]uint64, len(r.Start)),
		Count: make([]uint64, len(r.Count)),
	}
	copy(out.Start, r.Start)
	copy(out.Count, r.Count)

	return out
}

// Full returns the subregion covering the entire shape.
func Full(shape []uint64) Subregion {
	r := Subregion{
		Start: make([]uint64, len(shape)),
		Count: make([]uint64, len(shape)),
	}
	copy(r.Count, shape)

	return r
}

// Elements returns the number of elements in a full shape.
func Elements(shape []uint64) uint64 {
	return Full(shape).Elements()
}

// Partition computes worker rank's shard of shape along the decomposition axis.
//
// The axis extent is divided evenly: base = shape[axis] / workers, each worker
// starting at rank*base. The last worker (rank == workers-1) absorbs the
// remainder, so the shards are pairwise disjoint and jointly cover
// [0, shape[axis]). When workers > shape[axis] some workers receive a
// zero-extent shard along the axis; that is not an error. All other
// dimensions are taken whole.
//
// Parameters:
//   - shape: Global dimension extents of the variable
//   - axis: Decomposition axis, must satisfy axis < len(shape)
//   - workers: Total worker count, must be > 0
//   - rank: This worker's rank in [0, workers)
//
// Returns:
//   - Subregion: This worker's shard
//   - error: errs.ErrAxisOutOfRange or errs.ErrInvalidRank on a violated
//     precondition; the caller skips the variable rather than crashing
func Partition(shape []uint64, axis int, workers, rank int) (Subregion, error) {
	if axis < 0 || axis >= len(shape) {
		return Subregion{}, fmt.Errorf("%w: axis %d, rank-%d shape", errs.ErrAxisOutOfRange, axis, len(shape))
	}
	if workers <= 0 || rank < 0 || rank >= workers {
		return Subregion{}, fmt.Errorf("%w: rank %d of %d", errs.ErrInvalidRank, rank, workers)
	}

	r := Full(shape)

	base := shape[axis] / uint64(workers)
	r.Start[axis] = uint64(rank) * base
	if rank == workers-1 {
		// Last worker absorbs the remainder.
		r.Count[axis] = shape[axis] - r.Start[axis]
	} else {
		r.Count[axis] = base
	}

	return r, nil
}

// Intersect returns the overlap of two subregions of the same rank.
//
// Returns:
//   - Subregion: The intersection (valid only when ok is true)
//   - bool: False when the regions are disjoint or of different rank
func Intersect(a, b Subregion) (Subregion, bool) {
	if a.Rank() != b.Rank() {
		return Subregion{}, false
	}

	out := Subregion{
		Start: make([]uint64, a.Rank()),
		Count: make([]uint64, a.Rank()),
	}
	for i := range a.Count {
		lo := max(a.Start[i], b.Start[i])
		hi := min(a.Start[i]+a.Count[i], b.Start[i]+b.Count[i])
		if hi <= lo {
			return Subregion{}, false
		}
		out.Start[i] = lo
		out.Count[i] = hi - lo
	}

	return out, true
}

// Contains reports whether inner lies entirely within outer.
func Contains(outer, inner Subregion) bool {
	if outer.Rank() != inner.Rank() {
		return false
	}
	for i := range inner.Count {
		if inner.Start[i] < outer.Start[i] {
			return false
		}
		if inner.Start[i]+inner.Count[i] > outer.Start[i]+outer.Count[i] {
			return false
		}
	}

	return true
}
