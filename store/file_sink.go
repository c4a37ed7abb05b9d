package store

import (
	"fmt"
	"hash/crc32"
	"os"
	"sync"

	"github.com/stepmet/stepmet/compress"
	"github.com/stepmet/stepmet/element"
	"github.com/stepmet/stepmet/errs"
	"github.com/stepmet/stepmet/format"
	"github.com/stepmet/stepmet/grid"
	"github.com/stepmet/stepmet/internal/hash"
	"github.com/stepmet/stepmet/internal/pool"
)

// FileSink is the shared writing end of a step container file.
//
// Each worker obtains its own SinkSession; the host serializes access and
// flushes a step frame once every session has ended the step. Definitions,
// steps and blocks from all sessions land in one file.
type FileSink struct {
	mu       sync.Mutex
	flushed  *sync.Cond // signaled when a step frame is flushed or the sink fails
	f        *os.File
	path     string
	defs     map[string]*BlockDef // keyed by name + region signature
	sessions int
	inStep   int // sessions currently between BeginStep and EndStep
	began    int // sessions that have begun the current step
	pending  []pendingBlock
	lastComp map[string]uint64 // measured compressed bytes per variable, last flushed step
	steps    int
	closed   int
	err      error
}

type pendingBlock struct {
	def     *BlockDef
	payload []byte // compressed
	rawSize uint64
	crc     uint32
}

// SinkSession is one worker's handle on a FileSink. It implements Sink.
// A session is owned by a single worker goroutine.
type SinkSession struct {
	host   *FileSink
	defs   map[string]*BlockDef
	inStep bool
	closed bool
}

var _ Sink = (*SinkSession)(nil)

// CreateFileSink creates (or truncates) a step container file.
//
// Parameters:
//   - path: Output file path
//
// Returns:
//   - *FileSink: Open sink host; obtain per-worker sessions via Session
//   - error: File creation or header write failure (fatal for the run)
func CreateFileSink(path string) (*FileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create sink %s: %w", path, err)
	}

	hdr := make([]byte, 0, fileHeaderSize)
	hdr = engine.AppendUint32(hdr, fileMagic)
	hdr = append(hdr, fileVersion, 1) // endian flag: little
	hdr = engine.AppendUint16(hdr, 0)
	if _, err := f.Write(hdr); err != nil {
		f.Close()
		return nil, fmt.Errorf("write sink header %s: %w", path, err)
	}

	sink := &FileSink{
		f:    f,
		path: path,
		defs: make(map[string]*BlockDef),
	}
	sink.flushed = sync.NewCond(&sink.mu)

	return sink, nil
}

// Session returns a new per-worker session. All sessions must be created
// before the first step begins so the host knows the flush quorum.
func (s *FileSink) Session() *SinkSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions++

	return &SinkSession{host: s, defs: make(map[string]*BlockDef)}
}

// StepsWritten returns the number of flushed steps.
func (s *FileSink) StepsWritten() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.steps
}

// Fail poisons the sink: step operations on every session return err from now
// on, and sessions blocked in EndStep are released. A worker that fails hard
// mid-step calls Fail so its peers do not wait on a flush that cannot happen.
func (s *FileSink) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
	s.flushed.Broadcast()
}

// Fail poisons the session's host sink. See FileSink.Fail.
func (ss *SinkSession) Fail(err error) {
	ss.host.Fail(err)
}

// LastStepCompressedBytes returns the measured compressed payload bytes of a
// variable in the most recently flushed step, summed over worker blocks.
func (s *FileSink) LastStepCompressedBytes(name string) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.lastComp[name]

	return n, ok
}

func regionKey(name string, region grid.Subregion) string {
	return fmt.Sprintf("%s%v%v", name, region.Start, region.Count)
}

// DefineVariable registers this session's block of a variable. Define-once:
// redefining a name within the session, or the identical (name, subregion)
// pair across sessions, returns errs.ErrVariableRedefined.
func (ss *SinkSession) DefineVariable(name string, dtype format.DataType, shape []uint64, region grid.Subregion, op Operator) (*BlockDef, error) {
	if ss.closed {
		return nil, errs.ErrClosed
	}
	if _, ok := ss.defs[name]; ok {
		return nil, fmt.Errorf("%w: %s", errs.ErrVariableRedefined, name)
	}
	if !element.Supported(dtype) {
		return nil, fmt.Errorf("%w: %s for variable %s", errs.ErrUnsupportedType, dtype, name)
	}
	if region.Rank() != len(shape) || !grid.Contains(grid.Full(shape), region) {
		return nil, fmt.Errorf("%w: variable %s block %v/%v in shape %v",
			errs.ErrRegionOutOfBounds, name, region.Start, region.Count, shape)
	}

	codec, err := compress.ResolveOperator(op.Name)
	if err != nil {
		return nil, err
	}

	def := &BlockDef{
		name:   name,
		dtype:  dtype,
		shape:  append([]uint64(nil), shape...),
		region: region.Clone(),
		op:     op,
		codec:  codec,
	}

	host := ss.host
	host.mu.Lock()
	defer host.mu.Unlock()
	// Zero-extent blocks store nothing and several workers may legitimately
	// hold the same empty region, so only real blocks contend for a slot.
	if !region.Empty() {
		key := regionKey(name, region)
		if _, ok := host.defs[key]; ok {
			return nil, fmt.Errorf("%w: %s block %v", errs.ErrVariableRedefined, name, region.Start)
		}
		host.defs[key] = def
	}
	ss.defs[name] = def

	return def, nil
}

// InquireVariable returns this session's handle for name, or nil.
func (ss *SinkSession) InquireVariable(name string) *BlockDef {
	return ss.defs[name]
}

// BeginStep opens the next output step for this session.
func (ss *SinkSession) BeginStep() error {
	if ss.closed {
		return errs.ErrClosed
	}
	if ss.inStep {
		return errs.ErrStepAlreadyOpen
	}

	host := ss.host
	host.mu.Lock()
	defer host.mu.Unlock()
	if host.err != nil {
		return host.err
	}
	host.began++
	host.inStep++
	ss.inStep = true

	return nil
}

// Put stores the block's payload for the open step, applying the definition's
// compression operator. Empty (zero-extent) blocks store nothing.
func (ss *SinkSession) Put(def *BlockDef, buf element.Buffer) error {
	if ss.closed {
		return errs.ErrClosed
	}
	if !ss.inStep {
		return errs.ErrStepNotOpen
	}
	if def == nil {
		return fmt.Errorf("%w: nil block handle", errs.ErrVariableNotFound)
	}
	if buf.Type() != def.dtype {
		return fmt.Errorf("%w: put %s into %s variable %s", errs.ErrTypeMismatch, buf.Type(), def.dtype, def.name)
	}
	if uint64(buf.Len()) != def.region.Elements() {
		return fmt.Errorf("%w: %d elements for %v-element block of %s",
			errs.ErrShapeMismatch, buf.Len(), def.region.Elements(), def.name)
	}
	if def.region.Empty() {
		return nil
	}

	raw := buf.Encode(engine)
	crc := crc32.ChecksumIEEE(raw)

	codec, err := compress.GetCodec(def.codec)
	if err != nil {
		return err
	}
	payload, err := codec.Compress(raw)
	if err != nil {
		return fmt.Errorf("compress block %s: %w", def.name, err)
	}

	host := ss.host
	host.mu.Lock()
	defer host.mu.Unlock()
	host.pending = append(host.pending, pendingBlock{
		def:     def,
		payload: payload,
		rawSize: uint64(len(raw)),
		crc:     crc,
	})

	return nil
}

// EndStep closes this session's step. EndStep is collective: it blocks until
// every session has ended the step, and the last arrival flushes the
// assembled frame to the file.
func (ss *SinkSession) EndStep() error {
	if ss.closed {
		return errs.ErrClosed
	}
	if !ss.inStep {
		return errs.ErrStepNotOpen
	}
	ss.inStep = false

	host := ss.host
	host.mu.Lock()
	defer host.mu.Unlock()
	host.inStep--

	if host.began == host.sessions && host.inStep == 0 {
		// Last arrival: flush this step and release the waiters.
		host.began = 0
		err := host.flushLocked()
		host.flushed.Broadcast()

		return err
	}

	epoch := host.steps
	for host.steps == epoch && host.err == nil {
		host.flushed.Wait()
	}

	return host.err
}

// flushLocked frames and writes the pending blocks as one step.
func (s *FileSink) flushLocked() error {
	if s.err != nil {
		return s.err
	}

	frame, cleanup := pool.GetByteBuffer()
	defer func() { cleanup(frame) }()

	names := make(map[uint64]string)
	var nameOrder []uint64

	// Index entries first, accumulating payload offsets.
	var index []byte
	var payOffset uint64
	for _, b := range s.pending {
		id := hash.ID(b.def.name)
		if _, ok := names[id]; !ok {
			names[id] = b.def.name
			nameOrder = append(nameOrder, id)
		}
		index = appendEntry(index, blockEntry{
			nameID:    id,
			dtype:     b.def.dtype,
			codec:     b.def.codec,
			crc:       b.crc,
			shape:     b.def.shape,
			region:    b.def.region,
			rawSize:   b.rawSize,
			compSize:  uint64(len(b.payload)),
			payOffset: payOffset,
		})
		payOffset += uint64(len(b.payload))
	}

	nameTable := appendNameTable(nil, names, nameOrder)

	frame = engine.AppendUint32(frame, stepMagic)
	frame = engine.AppendUint32(frame, uint32(len(s.pending)))
	frame = engine.AppendUint64(frame, uint64(len(index)))
	frame = engine.AppendUint64(frame, uint64(len(nameTable)))
	frame = engine.AppendUint64(frame, payOffset)
	frame = append(frame, index...)
	frame = append(frame, nameTable...)
	for _, b := range s.pending {
		frame = append(frame, b.payload...)
	}

	if _, err := s.f.Write(frame); err != nil {
		s.err = fmt.Errorf("write step frame to %s: %w", s.path, err)
		return s.err
	}

	s.lastComp = make(map[string]uint64)
	for _, b := range s.pending {
		s.lastComp[b.def.name] += uint64(len(b.payload))
	}
	s.pending = s.pending[:0]
	s.steps++

	return nil
}

// Close releases this session. The last session to close syncs and closes
// the underlying file.
func (ss *SinkSession) Close() error {
	if ss.closed {
		return errs.ErrClosed
	}
	if ss.inStep {
		return fmt.Errorf("%w: close with step open", errs.ErrStepAlreadyOpen)
	}
	ss.closed = true

	host := ss.host
	host.mu.Lock()
	defer host.mu.Unlock()
	host.closed++
	if host.closed < host.sessions {
		return nil
	}
	if host.err != nil {
		host.f.Close()
		return host.err
	}
	if err := host.f.Sync(); err != nil {
		host.f.Close()
		return fmt.Errorf("sync sink %s: %w", host.path, err)
	}

	return host.f.Close()
}
