package element

import (
	"fmt"
	"math"

	"github.com/stepmet/stepmet/endian"
	"github.com/stepmet/stepmet/errs"
	"github.com/stepmet/stepmet/format"
)

// Number constrains the element types a Buffer can hold.
type Number interface {
	~float32 | ~float64 | ~int32 | ~uint32 | ~int64 | ~uint64
}

// Buffer is a closed tagged variant holding one flat, row-major slice of a
// supported element type.
//
// Buffers are created through New, Of or Decode, so the payload is always one
// of the six slice types matching the tag. A Buffer is a view: copying the
// struct shares the underlying slice.
type Buffer struct {
	dtype format.DataType
	data  any
}

// New allocates a zeroed buffer of n elements of the given type.
//
// Returns:
//   - Buffer: Zeroed buffer of length n
//   - error: errs.ErrUnsupportedType for a tag outside the supported set
func New(dtype format.DataType, n int) (Buffer, error) {
	k, err := lookup(dtype)
	if err != nil {
		return Buffer{}, err
	}

	return k.alloc(n), nil
}

// Of wraps an existing slice in a Buffer. The slice is not copied.
func Of[T Number](data []T) Buffer {
	switch d := any(data).(type) {
	case []float32:
		return Buffer{format.TypeFloat32, d}
	case []float64:
		return Buffer{format.TypeFloat64, d}
	case []int32:
		return Buffer{format.TypeInt32, d}
	case []uint32:
		return Buffer{format.TypeUint32, d}
	case []int64:
		return Buffer{format.TypeInt64, d}
	case []uint64:
		return Buffer{format.TypeUint64, d}
	default:
		// Unreachable: Number is a closed constraint.
		panic(fmt.Sprintf("element: unsupported slice type %T", data))
	}
}

// Slice returns the typed payload of a buffer created with type T's tag.
func Slice[T Number](b Buffer) ([]T, bool) {
	s, ok := b.data.([]T)
	return s, ok
}

// Type returns the buffer's element type tag.
func (b Buffer) Type() format.DataType {
	return b.dtype
}

// Len returns the number of elements.
func (b Buffer) Len() int {
	switch d := b.data.(type) {
	case []float32:
		return len(d)
	case []float64:
		return len(d)
	case []int32:
		return len(d)
	case []uint32:
		return len(d)
	case []int64:
		return len(d)
	case []uint64:
		return len(d)
	default:
		return 0
	}
}

// ByteSize returns the raw payload size in bytes.
func (b Buffer) ByteSize() int {
	return b.Len() * b.dtype.Size()
}

// Encode serializes the buffer's elements as contiguous fixed-width values
// with the given byte order, with no header. The reader is expected to know
// the element type and shape out-of-band.
func (b Buffer) Encode(e endian.EndianEngine) []byte {
	out := make([]byte, 0, b.ByteSize())
	switch d := b.data.(type) {
	case []float32:
		for _, v := range d {
			out = e.AppendUint32(out, math.Float32bits(v))
		}
	case []float64:
		for _, v := range d {
			out = e.AppendUint64(out, math.Float64bits(v))
		}
	case []int32:
		for _, v := range d {
			out = e.AppendUint32(out, uint32(v))
		}
	case []uint32:
		for _, v := range d {
			out = e.AppendUint32(out, v)
		}
	case []int64:
		for _, v := range d {
			out = e.AppendUint64(out, uint64(v))
		}
	case []uint64:
		for _, v := range d {
			out = e.AppendUint64(out, v)
		}
	}

	return out
}

// Decode deserializes raw little-or-big-endian element bytes into a typed buffer.
//
// Parameters:
//   - dtype: Element type of the payload
//   - e: Byte order the payload was encoded with
//   - raw: Payload bytes; length must be a multiple of the element width
//
// Returns:
//   - Buffer: Decoded buffer
//   - error: errs.ErrUnsupportedType, or a size error when len(raw) is not a
//     whole number of elements
func Decode(dtype format.DataType, e endian.EndianEngine, raw []byte) (Buffer, error) {
	if !dtype.Valid() {
		return Buffer{}, fmt.Errorf("%w: %s", errs.ErrUnsupportedType, dtype)
	}
	width := dtype.Size()
	if len(raw)%width != 0 {
		return Buffer{}, fmt.Errorf("payload size %d is not a multiple of element width %d", len(raw), width)
	}
	n := len(raw) / width

	switch dtype {
	case format.TypeFloat32:
		d := make([]float32, n)
		for i := range d {
			d[i] = math.Float32frombits(e.Uint32(raw[i*4:]))
		}
		return Buffer{dtype, d}, nil
	case format.TypeFloat64:
		d := make([]float64, n)
		for i := range d {
			d[i] = math.Float64frombits(e.Uint64(raw[i*8:]))
		}
		return Buffer{dtype, d}, nil
	case format.TypeInt32:
		d := make([]int32, n)
		for i := range d {
			d[i] = int32(e.Uint32(raw[i*4:]))
		}
		return Buffer{dtype, d}, nil
	case format.TypeUint32:
		d := make([]uint32, n)
		for i := range d {
			d[i] = e.Uint32(raw[i*4:])
		}
		return Buffer{dtype, d}, nil
	case format.TypeInt64:
		d := make([]int64, n)
		for i := range d {
			d[i] = int64(e.Uint64(raw[i*8:]))
		}
		return Buffer{dtype, d}, nil
	default: // format.TypeUint64
		d := make([]uint64, n)
		for i := range d {
			d[i] = e.Uint64(raw[i*8:])
		}
		return Buffer{dtype, d}, nil
	}
}

// MinMax scans the buffer once and returns its minimum and maximum as float64.
//
// Returns:
//   - min, max: Extremes of the buffer's values
//   - ok: False when the buffer is empty (min/max are undefined)
func (b Buffer) MinMax() (float64, float64, bool) {
	k, err := lookup(b.dtype)
	if err != nil || b.Len() == 0 {
		return 0, 0, false
	}

	lo, hi := k.minmax(b)

	return lo, hi, true
}
