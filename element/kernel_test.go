package element

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepmet/stepmet/errs"
	"github.com/stepmet/stepmet/format"
)

// TestDispatchCompleteness verifies every declared type tag has a kernel and
// the invalid tag does not.
func TestDispatchCompleteness(t *testing.T) {
	for _, dtype := range format.DataTypes {
		require.True(t, Supported(dtype), "type %s", dtype)
	}
	require.False(t, Supported(format.TypeInvalid))
}

// TestAccumulatePair checks the raw statistics of the reference scenario:
// original [0,1,2,3] vs processed [0,1,2,4].
func TestAccumulatePair(t *testing.T) {
	orig := Of([]float64{0, 1, 2, 3})
	proc := Of([]float64{0, 1, 2, 4})

	s, err := AccumulatePair(orig, proc)
	require.NoError(t, err)

	assert.Equal(t, 1.0, s.SumSqErr)
	assert.Equal(t, 14.0, s.SumSqOrig)
	assert.Equal(t, 1.0, s.MaxAbsErr)
	assert.Equal(t, 0.0, s.Min)
	assert.Equal(t, 3.0, s.Max)
	assert.Equal(t, uint64(4), s.Count)
}

// TestAccumulatePairIdentity verifies identical shards produce zero error.
func TestAccumulatePairIdentity(t *testing.T) {
	data := []float32{-2.5, 0, 1.25, 7}
	s, err := AccumulatePair(Of(data), Of(data))
	require.NoError(t, err)

	assert.Zero(t, s.SumSqErr)
	assert.Zero(t, s.MaxAbsErr)
	assert.Equal(t, uint64(4), s.Count)
}

// TestAccumulatePairEmpty verifies a zero-extent shard pair returns the
// reduction identity without error.
func TestAccumulatePairEmpty(t *testing.T) {
	s, err := AccumulatePair(Of([]float64{}), Of([]float64{}))
	require.NoError(t, err)

	assert.Equal(t, EmptyPairStats(), s)
	assert.True(t, math.IsInf(s.Min, 1))
	assert.True(t, math.IsInf(s.Max, -1))
	assert.Zero(t, s.Count)
}

// TestAccumulatePairMismatch verifies type and length disagreements are
// reported errors.
func TestAccumulatePairMismatch(t *testing.T) {
	_, err := AccumulatePair(Of([]float64{1}), Of([]float32{1}))
	require.ErrorIs(t, err, errs.ErrTypeMismatch)

	_, err = AccumulatePair(Of([]float64{1, 2}), Of([]float64{1}))
	require.ErrorIs(t, err, errs.ErrShapeMismatch)
}

// TestAccumulatePairIntegerExactness verifies equal integers compare equal at
// magnitudes float64 cannot represent, and unequal ones subtract exactly.
func TestAccumulatePairIntegerExactness(t *testing.T) {
	// math.MaxUint64 has no exact float64 representation; native equality
	// must still see the first pair as equal.
	orig := Of([]uint64{math.MaxUint64, 1 << 63})
	proc := Of([]uint64{math.MaxUint64, 1<<63 + 2})

	s, err := AccumulatePair(orig, proc)
	require.NoError(t, err)

	// The equal pair contributes nothing; the unequal pair differs by 2.
	assert.Equal(t, 4.0, s.SumSqErr)
	assert.Equal(t, 2.0, s.MaxAbsErr)
}

// TestAccumulatePairSignedIntegers exercises the widened signed subtraction.
func TestAccumulatePairSignedIntegers(t *testing.T) {
	orig := Of([]int32{math.MinInt32, 5})
	proc := Of([]int32{math.MaxInt32, -5})

	s, err := AccumulatePair(orig, proc)
	require.NoError(t, err)

	span := float64(math.MaxInt32) - float64(math.MinInt32)
	assert.Equal(t, span, s.MaxAbsErr)
	assert.Equal(t, span*span+100, s.SumSqErr)
}

func TestAbsDiff(t *testing.T) {
	assert.Equal(t, 0.0, absDiff(int64(math.MaxInt64), int64(math.MaxInt64)))
	assert.Equal(t, 1.0, absDiff(int64(10), int64(11)))
	assert.Equal(t, 3.0, absDiff(uint32(7), uint32(4)))
	assert.Equal(t, 0.5, absDiff(float32(1.0), float32(1.5)))

	// Cross-sign int64 difference overflows the native type; the float64
	// fallback keeps the magnitude.
	got := absDiff(int64(math.MaxInt64), int64(math.MinInt64))
	assert.InEpsilon(t, math.Pow(2, 64), got, 1e-9)
}
