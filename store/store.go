// Package store provides the stepped array source and sink: containers that
// emit and accept named N-dimensional variables in discrete, ordered steps.
//
// The file-backed implementation frames each step as a self-contained binary
// section: a block index with xxHash64 name IDs, a name table, and CRC32
// checked payloads compressed per block by an opaque named operator. Workers
// write disjoint subregion blocks of a globally-shaped variable; readers
// assemble any requested subregion from the stored blocks.
package store

import (
	"github.com/stepmet/stepmet/element"
	"github.com/stepmet/stepmet/format"
	"github.com/stepmet/stepmet/grid"
)

// StepStatus is the result of attempting to open the next step.
type StepStatus uint8

const (
	// StepAvailable means a step is open and its catalog may be queried.
	StepAvailable StepStatus = iota + 1
	// StepEndOfStream means the source has no further steps; the run
	// terminates normally.
	StepEndOfStream
)

func (s StepStatus) String() string {
	switch s {
	case StepAvailable:
		return "available"
	case StepEndOfStream:
		return "end-of-stream"
	default:
		return "unknown"
	}
}

// VarInfo describes one variable in a step's catalog. Catalogs are valid only
// while their step is open and may differ step to step; callers must not
// cache them across steps.
type VarInfo struct {
	Name  string
	Type  format.DataType
	Shape []uint64 // global dimension extents
}

// Operator is an opaque compression operator descriptor: a codec name plus a
// parameter map passed through unexamined (e.g. an error bound and a mode).
// Only the name selects a codec; parameters ride along for the codec's use.
type Operator struct {
	Name   string
	Params map[string]string
}

// NoOperator is the absent operator: blocks are stored uncompressed.
var NoOperator = Operator{Name: "none"}

// Source supplies steps of named variables.
//
// Protocol: BeginStep, then (while StepAvailable) AvailableVariables and
// SelectiveRead, then exactly one EndStep, repeated until StepEndOfStream;
// finally Close.
type Source interface {
	// BeginStep opens the next step.
	BeginStep() (StepStatus, error)

	// AvailableVariables returns the open step's catalog, keyed by name.
	AvailableVariables() map[string]VarInfo

	// SelectiveRead reads the given subregion of a variable in the open step.
	// A zero-extent region yields an empty buffer of the variable's type.
	SelectiveRead(name string, region grid.Subregion) (element.Buffer, error)

	// EndStep closes the open step. Must be called exactly once per opened
	// step, including on early-exit paths.
	EndStep() error

	// Close releases the source. The source must not be mid-step.
	Close() error
}

// SizeReporter is implemented by sources that can report the measured
// post-compression byte count of a variable in the open step. Compression
// ratios use these measured sizes, never estimates.
type SizeReporter interface {
	// CompressedBytes returns the stored (compressed) payload bytes of the
	// named variable in the open step, summed over its blocks.
	CompressedBytes(name string) (uint64, bool)
}

// Sink accepts per-step variable blocks.
//
// Protocol: DefineVariable once per (variable, subregion) for the whole run,
// then per step BeginStep, Put for each defined block, EndStep. Redefining an
// existing definition is an error; subsequent steps reuse the handle.
type Sink interface {
	// DefineVariable registers a variable block: global shape plus this
	// writer's subregion, with an optional compression operator. Returns a
	// handle used by Put for the rest of the run.
	DefineVariable(name string, dtype format.DataType, shape []uint64, region grid.Subregion, op Operator) (*BlockDef, error)

	// InquireVariable returns the handle defined under name by this writer,
	// or nil when absent.
	InquireVariable(name string) *BlockDef

	// BeginStep opens the next output step.
	BeginStep() error

	// Put writes the block's buffer for the open step. A zero-extent
	// definition accepts an empty buffer and stores nothing.
	Put(def *BlockDef, buf element.Buffer) error

	// EndStep closes the open output step, flushing its blocks.
	EndStep() error

	// Close releases the sink. The sink must not be mid-step.
	Close() error
}

// BlockDef is a sink variable handle: the registered identity of one writer's
// block of a variable. Immutable after DefineVariable.
type BlockDef struct {
	name   string
	dtype  format.DataType
	shape  []uint64
	region grid.Subregion
	op     Operator
	codec  format.CompressionType
}

// Name returns the variable name.
func (d *BlockDef) Name() string { return d.name }

// Type returns the element type.
func (d *BlockDef) Type() format.DataType { return d.dtype }

// Shape returns the global shape registered at definition time.
func (d *BlockDef) Shape() []uint64 { return d.shape }

// Region returns the writer's subregion.
func (d *BlockDef) Region() grid.Subregion { return d.region }

// Operator returns the compression operator descriptor.
func (d *BlockDef) Operator() Operator { return d.op }
