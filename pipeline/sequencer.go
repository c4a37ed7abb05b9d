// Package pipeline drives the step-wise partitioning and metric pipelines:
// it sequences steps over one or two stepped sources, partitions variables
// across the worker group, and feeds shards to the sink writer or the metric
// reducer.
package pipeline

import (
	"context"
	"errors"

	"github.com/stepmet/stepmet/element"
	"github.com/stepmet/stepmet/grid"
	"github.com/stepmet/stepmet/store"
)

// errStopIteration ends a ForEachStep loop early without reporting an error.
// The current step is still ended before the loop returns.
var errStopIteration = errors.New("stop iteration")

// Step is one open step of a source. Valid only inside the ForEachStep
// callback that produced it; catalogs must not be cached across steps.
type Step struct {
	src   store.Source
	index int
}

// Index returns the zero-based step number.
func (s *Step) Index() int { return s.index }

// Catalog returns the step's variable catalog.
func (s *Step) Catalog() map[string]store.VarInfo {
	return s.src.AvailableVariables()
}

// Read reads a subregion of a variable from the step.
func (s *Step) Read(name string, region grid.Subregion) (element.Buffer, error) {
	return s.src.SelectiveRead(name, region)
}

// CompressedBytes reports the measured stored bytes of a variable when the
// underlying source can measure them.
func (s *Step) CompressedBytes(name string) (uint64, bool) {
	if sr, ok := s.src.(store.SizeReporter); ok {
		return sr.CompressedBytes(name)
	}

	return 0, false
}

// Sequencer drives the begin/end-step protocol over a single source.
//
// The sequencer owns the protocol invariant that every opened step is ended
// exactly once, on every exit path of the caller's per-step work, including
// panics.
type Sequencer struct {
	src store.Source
}

// NewSequencer wraps a source in a sequencer.
func NewSequencer(src store.Source) *Sequencer {
	return &Sequencer{src: src}
}

// ForEachStep opens each remaining step in order and invokes fn inside it.
//
// Iteration terminates normally at end-of-stream, early when fn returns an
// error (which is propagated), or when ctx is canceled between steps. The
// step is ended before ForEachStep returns, whatever path fn takes out.
func (q *Sequencer) ForEachStep(ctx context.Context, fn func(step *Step) error) error {
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		status, err := q.src.BeginStep()
		if err != nil {
			return err
		}
		if status == store.StepEndOfStream {
			return nil
		}

		if err := q.runStep(&Step{src: q.src, index: i}, fn); err != nil {
			return err
		}
	}
}

// runStep scopes one step so EndStep runs on every exit path.
func (q *Sequencer) runStep(step *Step, fn func(step *Step) error) (err error) {
	defer func() {
		endErr := q.src.EndStep()
		if err == nil {
			err = endErr
		}
	}()

	return fn(step)
}
