package element

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stepmet/stepmet/endian"
	"github.com/stepmet/stepmet/errs"
	"github.com/stepmet/stepmet/format"
)

// TestNewCoversSupportedTypes verifies every declared type tag allocates.
func TestNewCoversSupportedTypes(t *testing.T) {
	for _, dtype := range format.DataTypes {
		buf, err := New(dtype, 4)
		require.NoError(t, err, "type %s", dtype)
		require.Equal(t, dtype, buf.Type())
		require.Equal(t, 4, buf.Len())
		require.Equal(t, 4*dtype.Size(), buf.ByteSize())
	}
}

// TestNewUnsupportedType verifies an unknown tag is a reported error.
func TestNewUnsupportedType(t *testing.T) {
	_, err := New(format.TypeInvalid, 4)
	require.ErrorIs(t, err, errs.ErrUnsupportedType)

	// An unrecognized textual tag parses to the invalid type.
	require.Equal(t, format.TypeInvalid, format.ParseDataType("string"))
}

// TestOfAndSlice verifies the wrap/unwrap pair preserves the payload without
// copying.
func TestOfAndSlice(t *testing.T) {
	data := []float64{1, 2, 3}
	buf := Of(data)
	require.Equal(t, format.TypeFloat64, buf.Type())

	got, ok := Slice[float64](buf)
	require.True(t, ok)
	require.Equal(t, data, got)

	// Shared storage: the buffer is a view.
	got[0] = 42
	require.Equal(t, 42.0, data[0])

	_, ok = Slice[int32](buf)
	require.False(t, ok)
}

// TestEncodeDecodeRoundTrip verifies little-endian serialization for every
// supported type.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	e := endian.GetLittleEndianEngine()

	bufs := []Buffer{
		Of([]float32{-1.5, 0, 3.25}),
		Of([]float64{-1.5, 0, 3.25}),
		Of([]int32{-7, 0, 7}),
		Of([]uint32{0, 1, 4294967295}),
		Of([]int64{-9007199254740993, 0, 9007199254740993}),
		Of([]uint64{0, 1, 18446744073709551615}),
	}
	for _, buf := range bufs {
		raw := buf.Encode(e)
		require.Len(t, raw, buf.ByteSize())

		got, err := Decode(buf.Type(), e, raw)
		require.NoError(t, err)
		require.Equal(t, buf, got, "type %s", buf.Type())
	}
}

// TestDecodeRaggedPayload verifies a payload that is not a whole number of
// elements is rejected.
func TestDecodeRaggedPayload(t *testing.T) {
	e := endian.GetLittleEndianEngine()
	_, err := Decode(format.TypeFloat64, e, make([]byte, 12))
	require.Error(t, err)
}

func TestMinMax(t *testing.T) {
	lo, hi, ok := Of([]int32{3, -8, 5, 0}).MinMax()
	require.True(t, ok)
	require.Equal(t, -8.0, lo)
	require.Equal(t, 5.0, hi)

	_, _, ok = Of([]float64{}).MinMax()
	require.False(t, ok)
}
