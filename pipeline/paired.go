package pipeline

import (
	"context"

	"github.com/stepmet/stepmet/store"
)

// PairStatus is the joint stepping state of two sources advanced in lockstep.
type PairStatus uint8

const (
	// BothOpen means step k is open on both sources and work may proceed.
	BothOpen PairStatus = iota + 1
	// OneExhausted means exactly one source reached end-of-stream; the pair
	// stops without processing the other source's remaining steps.
	OneExhausted
	// BothExhausted means both sources ended at the same step count.
	BothExhausted
)

func (s PairStatus) String() string {
	switch s {
	case BothOpen:
		return "both-open"
	case OneExhausted:
		return "one-exhausted"
	case BothExhausted:
		return "both-exhausted"
	default:
		return "unknown"
	}
}

// PairStep is one step open on both sources of a pair.
type PairStep struct {
	Orig *Step
	Proc *Step
}

// Index returns the zero-based step number, identical on both cursors.
func (p *PairStep) Index() int { return p.Orig.Index() }

// PairedCursor advances two stepped sources together: both must open step k
// before any work for step k proceeds, and a step opened on one source while
// the other is exhausted is closed, not processed.
type PairedCursor struct {
	orig store.Source
	proc store.Source
}

// NewPairedCursor pairs an original and a processed source.
func NewPairedCursor(orig, proc store.Source) *PairedCursor {
	return &PairedCursor{orig: orig, proc: proc}
}

// ForEachStep advances both sources in lockstep, invoking fn once per jointly
// open step. Both steps are ended on every exit path of fn.
//
// Returns:
//   - PairStatus: Terminal status, OneExhausted or BothExhausted on normal
//     termination (undefined when err is non-nil)
//   - error: fn's error, a source error, or ctx cancellation
func (c *PairedCursor) ForEachStep(ctx context.Context, fn func(step *PairStep) error) (PairStatus, error) {
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		origStatus, err := c.orig.BeginStep()
		if err != nil {
			return 0, err
		}

		procStatus, err := c.proc.BeginStep()
		if err != nil {
			if origStatus == store.StepAvailable {
				c.orig.EndStep()
			}
			return 0, err
		}

		switch {
		case origStatus == store.StepEndOfStream && procStatus == store.StepEndOfStream:
			return BothExhausted, nil
		case origStatus == store.StepEndOfStream:
			// Processed stream runs longer: close its dangling step and stop.
			if err := c.proc.EndStep(); err != nil {
				return 0, err
			}
			return OneExhausted, nil
		case procStatus == store.StepEndOfStream:
			if err := c.orig.EndStep(); err != nil {
				return 0, err
			}
			return OneExhausted, nil
		}

		step := &PairStep{
			Orig: &Step{src: c.orig, index: i},
			Proc: &Step{src: c.proc, index: i},
		}
		if err := c.runStep(step, fn); err != nil {
			return 0, err
		}
	}
}

// runStep scopes one paired step so both EndStep calls run on every exit path.
func (c *PairedCursor) runStep(step *PairStep, fn func(step *PairStep) error) (err error) {
	defer func() {
		origErr := c.orig.EndStep()
		procErr := c.proc.EndStep()
		if err == nil {
			err = origErr
		}
		if err == nil {
			err = procErr
		}
	}()

	return fn(step)
}
