package element

import (
	"fmt"
	"math"

	"github.com/stepmet/stepmet/errs"
	"github.com/stepmet/stepmet/format"
)

// PairStats holds the raw statistics of one linear pass over a local shard
// pair. Only these additive/extremal values may cross worker boundaries;
// derived metrics are computed once from the globally reduced totals.
type PairStats struct {
	SumSqErr  float64 // sum of squared absolute errors
	SumSqOrig float64 // sum of squared original values
	MaxAbsErr float64 // largest absolute error
	Min       float64 // smallest original value, +Inf when Count == 0
	Max       float64 // largest original value, -Inf when Count == 0
	Count     uint64  // elements visited
}

// EmptyPairStats returns the identity element of pair-stats reduction.
func EmptyPairStats() PairStats {
	return PairStats{
		Min: math.Inf(1),
		Max: math.Inf(-1),
	}
}

// kernel bundles the statically-typed operations for one element type.
// One generic instantiation per type; the table below is the only place that
// enumerates the supported set besides format.DataTypes.
type kernel struct {
	alloc  func(n int) Buffer
	minmax func(b Buffer) (float64, float64)
	pair   func(orig, proc Buffer) PairStats
}

var kernels = map[format.DataType]kernel{
	format.TypeFloat32: newKernel[float32](),
	format.TypeFloat64: newKernel[float64](),
	format.TypeInt32:   newKernel[int32](),
	format.TypeUint32:  newKernel[uint32](),
	format.TypeInt64:   newKernel[int64](),
	format.TypeUint64:  newKernel[uint64](),
}

// lookup centralizes the unsupported-type error path.
func lookup(dtype format.DataType) (kernel, error) {
	k, ok := kernels[dtype]
	if !ok {
		return kernel{}, fmt.Errorf("%w: %s", errs.ErrUnsupportedType, dtype)
	}

	return k, nil
}

// Supported reports whether the dispatch table carries the given type.
func Supported(dtype format.DataType) bool {
	_, ok := kernels[dtype]
	return ok
}

func newKernel[T Number]() kernel {
	return kernel{
		alloc: func(n int) Buffer {
			return Of(make([]T, n))
		},
		minmax: func(b Buffer) (float64, float64) {
			d, _ := Slice[T](b)
			lo, hi := d[0], d[0]
			for _, v := range d[1:] {
				if v < lo {
					lo = v
				}
				if v > hi {
					hi = v
				}
			}

			return float64(lo), float64(hi)
		},
		pair: pairStats[T],
	}
}

// AccumulatePair runs one linear pass over a pair of shards, accumulating the
// raw error/value statistics defined in PairStats.
//
// An empty pair (both buffers of length zero) is valid and returns the
// reduction identity, so workers holding zero-extent shards contribute
// nothing without erroring.
//
// Parameters:
//   - orig: Original shard
//   - proc: Processed shard to compare against orig
//
// Returns:
//   - PairStats: Raw local statistics
//   - error: errs.ErrTypeMismatch or errs.ErrShapeMismatch when the shards
//     disagree; reported per variable, never a crash
func AccumulatePair(orig, proc Buffer) (PairStats, error) {
	if orig.dtype != proc.dtype {
		return PairStats{}, fmt.Errorf("%w: %s vs %s", errs.ErrTypeMismatch, orig.dtype, proc.dtype)
	}
	if orig.Len() != proc.Len() {
		return PairStats{}, fmt.Errorf("%w: %d vs %d elements", errs.ErrShapeMismatch, orig.Len(), proc.Len())
	}

	k, err := lookup(orig.dtype)
	if err != nil {
		return PairStats{}, err
	}

	return k.pair(orig, proc), nil
}

func pairStats[T Number](orig, proc Buffer) PairStats {
	o, _ := Slice[T](orig)
	p, _ := Slice[T](proc)

	s := EmptyPairStats()
	for i := range o {
		e := absDiff(o[i], p[i])
		ov := float64(o[i])

		s.SumSqErr += e * e
		s.SumSqOrig += ov * ov
		if e > s.MaxAbsErr {
			s.MaxAbsErr = e
		}
		if ov < s.Min {
			s.Min = ov
		}
		if ov > s.Max {
			s.Max = ov
		}
	}
	s.Count = uint64(len(o))

	return s
}

// absDiff computes |a - b| as float64.
//
// Equality is tested in the native type, so identical integers compare equal
// even at magnitudes float64 cannot represent exactly. Unequal integer values
// subtract in the native (or widened unsigned) type where the result is
// representable, falling back to float64 subtraction only across sign changes
// where the magnitudes dominate any rounding.
func absDiff[T Number](a, b T) float64 {
	if a == b {
		return 0
	}
	if a < b {
		a, b = b, a
	}

	// a > b from here on.
	switch av := any(a).(type) {
	case uint32:
		return float64(av - any(b).(uint32))
	case uint64:
		return float64(av - any(b).(uint64))
	case int32:
		return float64(int64(av) - int64(any(b).(int32)))
	case int64:
		bv := any(b).(int64)
		if (av >= 0) == (bv >= 0) {
			return float64(av - bv)
		}
		return float64(av) - float64(bv)
	default:
		return float64(a) - float64(b)
	}
}
