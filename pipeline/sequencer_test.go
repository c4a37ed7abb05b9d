package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepmet/stepmet/element"
	"github.com/stepmet/stepmet/errs"
	"github.com/stepmet/stepmet/format"
	"github.com/stepmet/stepmet/grid"
	"github.com/stepmet/stepmet/store"
)

// fakeSource is a scripted in-memory source for protocol tests: it serves a
// fixed number of steps, each with the same single-variable catalog, and
// counts begin/end calls so tests can assert exact pairing.
type fakeSource struct {
	steps int
	data  []float64

	begun int
	ended int
	open  bool
}

var _ store.Source = (*fakeSource)(nil)

func (f *fakeSource) BeginStep() (store.StepStatus, error) {
	if f.open {
		return 0, errs.ErrStepAlreadyOpen
	}
	if f.begun == f.steps {
		return store.StepEndOfStream, nil
	}
	f.begun++
	f.open = true

	return store.StepAvailable, nil
}

func (f *fakeSource) AvailableVariables() map[string]store.VarInfo {
	if !f.open {
		return nil
	}

	return map[string]store.VarInfo{
		"v": {Name: "v", Type: format.TypeFloat64, Shape: []uint64{uint64(len(f.data))}},
	}
}

func (f *fakeSource) SelectiveRead(name string, region grid.Subregion) (element.Buffer, error) {
	if !f.open {
		return element.Buffer{}, errs.ErrStepNotOpen
	}
	if name != "v" {
		return element.Buffer{}, errs.ErrVariableNotFound
	}
	lo := region.Start[0]

	return element.Of(f.data[lo : lo+region.Count[0]]), nil
}

func (f *fakeSource) EndStep() error {
	if !f.open {
		return errs.ErrStepNotOpen
	}
	f.open = false
	f.ended++

	return nil
}

func (f *fakeSource) Close() error { return nil }

// TestSequencerVisitsAllSteps verifies steps are visited in order and each is
// ended exactly once.
func TestSequencerVisitsAllSteps(t *testing.T) {
	src := &fakeSource{steps: 3, data: []float64{1, 2}}

	var visited []int
	err := NewSequencer(src).ForEachStep(context.Background(), func(step *Step) error {
		visited = append(visited, step.Index())
		require.Len(t, step.Catalog(), 1)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2}, visited)
	assert.Equal(t, 3, src.begun)
	assert.Equal(t, 3, src.ended)
}

// TestSequencerEndsStepOnError verifies an erroring callback still closes its
// step.
func TestSequencerEndsStepOnError(t *testing.T) {
	src := &fakeSource{steps: 3, data: []float64{1}}
	boom := errors.New("boom")

	err := NewSequencer(src).ForEachStep(context.Background(), func(step *Step) error {
		if step.Index() == 1 {
			return boom
		}
		return nil
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, 2, src.begun)
	assert.Equal(t, 2, src.ended, "the erroring step must still be ended")
}

// TestSequencerContextCancellation verifies cancellation stops iteration
// between steps with no step left open.
func TestSequencerContextCancellation(t *testing.T) {
	src := &fakeSource{steps: 10, data: []float64{1}}
	ctx, cancel := context.WithCancel(context.Background())

	err := NewSequencer(src).ForEachStep(ctx, func(step *Step) error {
		if step.Index() == 1 {
			cancel()
		}
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, src.begun, src.ended)
	assert.False(t, src.open)
}

// TestPairedCursorBothExhausted verifies equal-length sources terminate with
// BothExhausted after processing every step.
func TestPairedCursorBothExhausted(t *testing.T) {
	orig := &fakeSource{steps: 2, data: []float64{1}}
	proc := &fakeSource{steps: 2, data: []float64{1}}

	var steps int
	status, err := NewPairedCursor(orig, proc).ForEachStep(context.Background(), func(step *PairStep) error {
		require.Equal(t, steps, step.Index())
		steps++
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, BothExhausted, status)
	assert.Equal(t, 2, steps)
	assert.Equal(t, orig.begun, orig.ended)
	assert.Equal(t, proc.begun, proc.ended)
}

// TestPairedCursorOneExhausted verifies the pair stops at the shorter stream
// and closes the longer stream's dangling step.
func TestPairedCursorOneExhausted(t *testing.T) {
	orig := &fakeSource{steps: 2, data: []float64{1}}
	proc := &fakeSource{steps: 5, data: []float64{1}}

	var steps int
	status, err := NewPairedCursor(orig, proc).ForEachStep(context.Background(), func(step *PairStep) error {
		steps++
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, OneExhausted, status)
	assert.Equal(t, 2, steps)
	assert.False(t, proc.open, "the dangling step on the longer source must be closed")
	assert.Equal(t, proc.begun, proc.ended)
}

// TestPairedCursorEndsStepsOnError verifies both steps close when the
// callback fails.
func TestPairedCursorEndsStepsOnError(t *testing.T) {
	orig := &fakeSource{steps: 3, data: []float64{1}}
	proc := &fakeSource{steps: 3, data: []float64{1}}
	boom := errors.New("boom")

	_, err := NewPairedCursor(orig, proc).ForEachStep(context.Background(), func(step *PairStep) error {
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.False(t, orig.open)
	assert.False(t, proc.open)
	assert.Equal(t, orig.begun, orig.ended)
	assert.Equal(t, proc.begun, proc.ended)
}
