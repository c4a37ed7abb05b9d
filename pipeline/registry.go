package pipeline

import (
	"fmt"
	"slices"

	"github.com/stepmet/stepmet/errs"
	"github.com/stepmet/stepmet/format"
	"github.com/stepmet/stepmet/grid"
	"github.com/stepmet/stepmet/store"
)

// Registry tracks which sink variables this worker has defined during the
// run, implementing the define-once, write-many contract explicitly: the
// first Obtain for a name defines the variable, later Obtains return the
// existing handle.
//
// The registry is per run and per worker; there is no process-wide state.
type Registry struct {
	sink store.Sink
	defs map[string]*store.BlockDef
}

// NewRegistry creates an empty registry writing through the given sink.
func NewRegistry(sink store.Sink) *Registry {
	return &Registry{sink: sink, defs: make(map[string]*store.BlockDef)}
}

// Obtain returns the variable's write handle, defining it on first use.
//
// A variable that reappears in a later step with a different shape, type or
// subregion cannot reuse its definition; that is reported as
// errs.ErrShapeMismatch (or errs.ErrTypeMismatch) and the caller skips the
// variable for that step.
func (r *Registry) Obtain(name string, dtype format.DataType, shape []uint64, region grid.Subregion, op store.Operator) (*store.BlockDef, error) {
	if def, ok := r.defs[name]; ok {
		if def.Type() != dtype {
			return nil, fmt.Errorf("%w: %s defined as %s, step has %s", errs.ErrTypeMismatch, name, def.Type(), dtype)
		}
		if !slices.Equal(def.Shape(), shape) {
			return nil, fmt.Errorf("%w: %s defined with shape %v, step has %v", errs.ErrShapeMismatch, name, def.Shape(), shape)
		}
		if !slices.Equal(def.Region().Start, region.Start) || !slices.Equal(def.Region().Count, region.Count) {
			return nil, fmt.Errorf("%w: %s defined with block %v/%v, step has %v/%v",
				errs.ErrShapeMismatch, name, def.Region().Start, def.Region().Count, region.Start, region.Count)
		}

		return def, nil
	}

	def, err := r.sink.DefineVariable(name, dtype, shape, region, op)
	if err != nil {
		return nil, err
	}
	r.defs[name] = def

	return def, nil
}
