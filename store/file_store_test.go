package store

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepmet/stepmet/element"
	"github.com/stepmet/stepmet/errs"
	"github.com/stepmet/stepmet/format"
	"github.com/stepmet/stepmet/grid"
)

// writeSingle writes the given steps of one float64 variable through a single
// session and closes the sink.
func writeSingle(t *testing.T, path, name string, shape []uint64, op Operator, steps [][]float64) {
	t.Helper()

	sink, err := CreateFileSink(path)
	require.NoError(t, err)
	ss := sink.Session()

	def, err := ss.DefineVariable(name, format.TypeFloat64, shape, grid.Full(shape), op)
	require.NoError(t, err)

	for _, data := range steps {
		require.NoError(t, ss.BeginStep())
		require.NoError(t, ss.Put(def, element.Of(data)))
		require.NoError(t, ss.EndStep())
	}
	require.NoError(t, ss.Close())
}

// TestFileStoreRoundTrip verifies a write-then-read cycle over two steps.
func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "round.stm")
	shape := []uint64{2, 3}
	steps := [][]float64{
		{0, 1, 2, 3, 4, 5},
		{10, 11, 12, 13, 14, 15},
	}
	writeSingle(t, path, "temperature", shape, NoOperator, steps)

	src, err := OpenFileSource(path)
	require.NoError(t, err)

	for _, want := range steps {
		status, err := src.BeginStep()
		require.NoError(t, err)
		require.Equal(t, StepAvailable, status)

		catalog := src.AvailableVariables()
		require.Len(t, catalog, 1)
		info := catalog["temperature"]
		assert.Equal(t, format.TypeFloat64, info.Type)
		assert.Equal(t, shape, info.Shape)

		buf, err := src.SelectiveRead("temperature", grid.Full(shape))
		require.NoError(t, err)
		got, ok := element.Slice[float64](buf)
		require.True(t, ok)
		assert.Equal(t, want, got)

		comp, ok := src.CompressedBytes("temperature")
		require.True(t, ok)
		assert.Equal(t, uint64(len(want)*8), comp, "uncompressed operator stores raw bytes")

		require.NoError(t, src.EndStep())
	}

	status, err := src.BeginStep()
	require.NoError(t, err)
	require.Equal(t, StepEndOfStream, status)
	require.NoError(t, src.Close())
}

// TestFileStoreSelectiveRead verifies subregion assembly from a stored block.
func TestFileStoreSelectiveRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "select.stm")
	shape := []uint64{4, 4}
	data := make([]float64, 16)
	for i := range data {
		data[i] = float64(i)
	}
	writeSingle(t, path, "v", shape, NoOperator, [][]float64{data})

	src, err := OpenFileSource(path)
	require.NoError(t, err)
	_, err = src.BeginStep()
	require.NoError(t, err)

	// Rows 1-2, columns 1-3 of the row-major 4x4 grid.
	buf, err := src.SelectiveRead("v", grid.Subregion{Start: []uint64{1, 1}, Count: []uint64{2, 3}})
	require.NoError(t, err)
	got, _ := element.Slice[float64](buf)
	assert.Equal(t, []float64{5, 6, 7, 9, 10, 11}, got)

	// Zero-extent request yields an empty typed buffer.
	empty, err := src.SelectiveRead("v", grid.Subregion{Start: []uint64{0, 0}, Count: []uint64{0, 4}})
	require.NoError(t, err)
	assert.Zero(t, empty.Len())
	assert.Equal(t, format.TypeFloat64, empty.Type())

	// Out-of-bounds and unknown-variable requests are reported errors.
	_, err = src.SelectiveRead("v", grid.Subregion{Start: []uint64{2, 0}, Count: []uint64{3, 4}})
	require.ErrorIs(t, err, errs.ErrRegionOutOfBounds)
	_, err = src.SelectiveRead("missing", grid.Full(shape))
	require.ErrorIs(t, err, errs.ErrVariableNotFound)

	require.NoError(t, src.EndStep())
	require.NoError(t, src.Close())
}

// TestFileStoreMultiSession verifies two workers writing disjoint blocks of
// one variable produce a file a reader reassembles whole.
func TestFileStoreMultiSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "multi.stm")
	shape := []uint64{6}

	sink, err := CreateFileSink(path)
	require.NoError(t, err)
	sessions := []*SinkSession{sink.Session(), sink.Session()}
	halves := [][]float64{{0, 1, 2}, {3, 4, 5}}

	var wg sync.WaitGroup
	werrs := make([]error, 2)
	for r, ss := range sessions {
		r, ss := r, ss
		wg.Add(1)
		go func() {
			defer wg.Done()
			region, err := grid.Partition(shape, 0, 2, r)
			if err != nil {
				werrs[r] = err
				return
			}
			def, err := ss.DefineVariable("v", format.TypeFloat64, shape, region, NoOperator)
			if err != nil {
				werrs[r] = err
				return
			}
			if err := ss.BeginStep(); err != nil {
				werrs[r] = err
				return
			}
			if err := ss.Put(def, element.Of(halves[r])); err != nil {
				werrs[r] = err
				return
			}
			// Collective: blocks until the peer session ends the step too.
			if err := ss.EndStep(); err != nil {
				werrs[r] = err
				return
			}
			werrs[r] = ss.Close()
		}()
	}
	wg.Wait()
	for r, err := range werrs {
		require.NoError(t, err, "worker %d", r)
	}
	require.Equal(t, 1, sink.StepsWritten())

	src, err := OpenFileSource(path)
	require.NoError(t, err)
	_, err = src.BeginStep()
	require.NoError(t, err)

	buf, err := src.SelectiveRead("v", grid.Full(shape))
	require.NoError(t, err)
	got, _ := element.Slice[float64](buf)
	assert.Equal(t, []float64{0, 1, 2, 3, 4, 5}, got)

	require.NoError(t, src.EndStep())
	require.NoError(t, src.Close())
}

// TestFileStoreCompressedSizes verifies compressed payload bytes are measured
// from what was actually stored.
func TestFileStoreCompressedSizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "comp.stm")
	shape := []uint64{1024}
	data := make([]float64, 1024) // all zeros: maximally compressible
	writeSingle(t, path, "v", shape, Operator{Name: "zstd"}, [][]float64{data})

	src, err := OpenFileSource(path)
	require.NoError(t, err)
	_, err = src.BeginStep()
	require.NoError(t, err)

	comp, ok := src.CompressedBytes("v")
	require.True(t, ok)
	require.NotZero(t, comp)
	require.Less(t, comp, uint64(1024*8), "zstd must beat raw on constant data")

	// The payload still decompresses and checks out.
	buf, err := src.SelectiveRead("v", grid.Full(shape))
	require.NoError(t, err)
	assert.Equal(t, 1024, buf.Len())

	require.NoError(t, src.EndStep())
	require.NoError(t, src.Close())
}

// TestDefineVariableErrors verifies the define-once contract and definition
// validation.
func TestDefineVariableErrors(t *testing.T) {
	sink, err := CreateFileSink(filepath.Join(t.TempDir(), "def.stm"))
	require.NoError(t, err)
	ss := sink.Session()
	shape := []uint64{4}

	_, err = ss.DefineVariable("v", format.TypeFloat64, shape, grid.Full(shape), NoOperator)
	require.NoError(t, err)

	// Same session, same name.
	_, err = ss.DefineVariable("v", format.TypeFloat64, shape, grid.Full(shape), NoOperator)
	require.ErrorIs(t, err, errs.ErrVariableRedefined)

	// Other session, identical (name, region) pair.
	other := sink.Session()
	_, err = other.DefineVariable("v", format.TypeFloat64, shape, grid.Full(shape), NoOperator)
	require.ErrorIs(t, err, errs.ErrVariableRedefined)

	// Unknown operator and out-of-shape region are rejected up front.
	_, err = ss.DefineVariable("w", format.TypeFloat64, shape, grid.Full(shape), Operator{Name: "mgard"})
	require.ErrorIs(t, err, errs.ErrUnknownOperator)
	_, err = ss.DefineVariable("x", format.TypeFloat64, shape,
		grid.Subregion{Start: []uint64{2}, Count: []uint64{3}}, NoOperator)
	require.ErrorIs(t, err, errs.ErrRegionOutOfBounds)
	_, err = ss.DefineVariable("y", format.TypeInvalid, shape, grid.Full(shape), NoOperator)
	require.ErrorIs(t, err, errs.ErrUnsupportedType)

	// Several workers may hold the same zero-extent shard; empty blocks do
	// not contend for a (name, region) slot.
	empty := grid.Subregion{Start: []uint64{0}, Count: []uint64{0}}
	_, err = ss.DefineVariable("z", format.TypeFloat64, shape, empty, NoOperator)
	require.NoError(t, err)
	_, err = other.DefineVariable("z", format.TypeFloat64, shape, empty, NoOperator)
	require.NoError(t, err)
}

// TestStepProtocolErrors verifies the begin/end pairing is enforced on both
// ends.
func TestStepProtocolErrors(t *testing.T) {
	dir := t.TempDir()

	sink, err := CreateFileSink(filepath.Join(dir, "proto.stm"))
	require.NoError(t, err)
	ss := sink.Session()

	require.ErrorIs(t, ss.EndStep(), errs.ErrStepNotOpen)

	def, err := ss.DefineVariable("v", format.TypeFloat64, []uint64{1}, grid.Full([]uint64{1}), NoOperator)
	require.NoError(t, err)
	require.ErrorIs(t, ss.Put(def, element.Of([]float64{1})), errs.ErrStepNotOpen)

	require.NoError(t, ss.BeginStep())
	require.ErrorIs(t, ss.BeginStep(), errs.ErrStepAlreadyOpen)
	require.ErrorIs(t, ss.Close(), errs.ErrStepAlreadyOpen)
	require.NoError(t, ss.Put(def, element.Of([]float64{1})))

	// Wrong payloads are rejected before they reach the file.
	require.ErrorIs(t, ss.Put(def, element.Of([]float32{1})), errs.ErrTypeMismatch)
	require.ErrorIs(t, ss.Put(def, element.Of([]float64{1, 2})), errs.ErrShapeMismatch)

	require.NoError(t, ss.EndStep())
	require.NoError(t, ss.Close())

	src, err := OpenFileSource(filepath.Join(dir, "proto.stm"))
	require.NoError(t, err)
	require.ErrorIs(t, src.EndStep(), errs.ErrStepNotOpen)
	_, err = src.BeginStep()
	require.NoError(t, err)
	_, err = src.BeginStep()
	require.ErrorIs(t, err, errs.ErrStepAlreadyOpen)
	require.ErrorIs(t, src.Close(), errs.ErrStepAlreadyOpen)
	require.NoError(t, src.EndStep())
	require.NoError(t, src.Close())
}

// TestOpenFileSourceRejectsForeignFile verifies header validation.
func TestOpenFileSourceRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foreign.bin")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a container"), 0o644))

	_, err := OpenFileSource(path)
	require.ErrorIs(t, err, errs.ErrInvalidHeader)
}

// TestZeroExtentBlock verifies a worker holding an empty shard participates
// in the step without storing anything.
func TestZeroExtentBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.stm")
	shape := []uint64{3}

	sink, err := CreateFileSink(path)
	require.NoError(t, err)
	ss := sink.Session()

	// Rank 0 of 5 workers over extent 3: zero-extent shard.
	region, err := grid.Partition(shape, 0, 5, 0)
	require.NoError(t, err)
	require.True(t, region.Empty())

	def, err := ss.DefineVariable("v", format.TypeFloat64, shape, region, NoOperator)
	require.NoError(t, err)
	require.NoError(t, ss.BeginStep())

	buf, err := element.New(format.TypeFloat64, 0)
	require.NoError(t, err)
	require.NoError(t, ss.Put(def, buf))
	require.NoError(t, ss.EndStep())
	require.NoError(t, ss.Close())

	// The flushed step holds no blocks; a reader sees an empty catalog.
	src, err := OpenFileSource(path)
	require.NoError(t, err)
	status, err := src.BeginStep()
	require.NoError(t, err)
	require.Equal(t, StepAvailable, status)
	assert.Empty(t, src.AvailableVariables())
	require.NoError(t, src.EndStep())
	require.NoError(t, src.Close())
}
