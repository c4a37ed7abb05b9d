// Package errs defines the sentinel errors shared across stepmet packages.
//
// Recoverable, per-variable conditions (unknown type tag, missing variable,
// axis out of range) are reported against these sentinels so callers can test
// them with errors.Is and continue with the next variable. Structural
// failures (corrupt container, collective mismatch) wrap these sentinels and
// propagate to the top level.
package errs

import "errors"

var (
	// ErrUnsupportedType indicates a variable's element type tag is outside
	// the supported set.
	ErrUnsupportedType = errors.New("unsupported element type")

	// ErrAxisOutOfRange indicates the decomposition axis is >= the variable's rank.
	ErrAxisOutOfRange = errors.New("decomposition axis out of range")

	// ErrInvalidRank indicates a worker rank outside [0, workerCount).
	ErrInvalidRank = errors.New("invalid worker rank")

	// ErrVariableNotFound indicates a named variable is absent from a step's catalog.
	ErrVariableNotFound = errors.New("variable not found")

	// ErrVariableRedefined indicates DefineVariable was called twice for the
	// same name within one run.
	ErrVariableRedefined = errors.New("variable already defined")

	// ErrShapeMismatch indicates two shards being compared disagree on shape
	// or element count.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrTypeMismatch indicates two buffers being combined carry different
	// element types.
	ErrTypeMismatch = errors.New("element type mismatch")

	// ErrStepNotOpen indicates an operation that requires an open step was
	// called outside a BeginStep/EndStep pair.
	ErrStepNotOpen = errors.New("no step open")

	// ErrStepAlreadyOpen indicates BeginStep was called while a step is open.
	ErrStepAlreadyOpen = errors.New("step already open")

	// ErrInvalidHeader indicates a step container header failed validation.
	ErrInvalidHeader = errors.New("invalid container header")

	// ErrChecksumMismatch indicates a block payload failed its CRC32 check.
	ErrChecksumMismatch = errors.New("block checksum mismatch")

	// ErrRegionOutOfBounds indicates a selection exceeds the variable's shape.
	ErrRegionOutOfBounds = errors.New("selection out of bounds")

	// ErrUnknownOperator indicates a compression operator name with no
	// registered codec.
	ErrUnknownOperator = errors.New("unknown compression operator")

	// ErrZeroCompressedSize indicates a compression ratio was requested with a
	// measured compressed size of zero.
	ErrZeroCompressedSize = errors.New("compressed byte count is zero")

	// ErrGroupAborted indicates the collective group was aborted while a
	// member was blocked in a barrier or reduction.
	ErrGroupAborted = errors.New("collective group aborted")

	// ErrClosed indicates an operation on a closed source, sink or group.
	ErrClosed = errors.New("already closed")
)
