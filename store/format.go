package store

import (
	"fmt"

	"github.com/stepmet/stepmet/endian"
	"github.com/stepmet/stepmet/errs"
	"github.com/stepmet/stepmet/format"
	"github.com/stepmet/stepmet/grid"
)

// Container framing constants. All multi-byte fields are little-endian.
const (
	fileMagic   uint32 = 0x314D5453 // "STM1"
	stepMagic   uint32 = 0x50455453 // "STEP"
	fileVersion uint8  = 1

	fileHeaderSize = 8  // magic u32, version u8, endian u8, reserved u16
	stepHeaderSize = 32 // magic u32, blockCount u32, indexSize u64, nameSize u64, payloadSize u64
)

var engine = endian.GetLittleEndianEngine()

// blockEntry is one decoded block index entry: a worker's subregion of one
// variable within a step, plus the payload framing needed to restore it.
type blockEntry struct {
	nameID    uint64
	dtype     format.DataType
	codec     format.CompressionType
	crc       uint32
	shape     []uint64
	region    grid.Subregion
	rawSize   uint64
	compSize  uint64
	payOffset uint64
}

// entrySize returns the encoded size of an entry of the given rank.
func entrySize(rank int) int {
	// fixed head 16 bytes + 3*rank u64 + rawSize/compSize/payOffset
	return 16 + 3*rank*8 + 24
}

func appendEntry(buf []byte, e blockEntry) []byte {
	buf = engine.AppendUint64(buf, e.nameID)
	buf = append(buf, byte(e.dtype), byte(e.codec), byte(len(e.shape)), 0)
	buf = engine.AppendUint32(buf, e.crc)
	for _, s := range e.shape {
		buf = engine.AppendUint64(buf, s)
	}
	for _, s := range e.region.Start {
		buf = engine.AppendUint64(buf, s)
	}
	for _, c := range e.region.Count {
		buf = engine.AppendUint64(buf, c)
	}
	buf = engine.AppendUint64(buf, e.rawSize)
	buf = engine.AppendUint64(buf, e.compSize)
	buf = engine.AppendUint64(buf, e.payOffset)

	return buf
}

// parseEntry decodes one entry from buf, returning the entry and the number
// of bytes consumed.
func parseEntry(buf []byte) (blockEntry, int, error) {
	if len(buf) < 16 {
		return blockEntry{}, 0, fmt.Errorf("%w: truncated block entry", errs.ErrInvalidHeader)
	}

	var e blockEntry
	e.nameID = engine.Uint64(buf[0:8])
	e.dtype = format.DataType(buf[8])
	e.codec = format.CompressionType(buf[9])
	rank := int(buf[10])
	e.crc = engine.Uint32(buf[12:16])

	need := entrySize(rank)
	if len(buf) < need {
		return blockEntry{}, 0, fmt.Errorf("%w: truncated block entry", errs.ErrInvalidHeader)
	}
	if !e.dtype.Valid() {
		return blockEntry{}, 0, fmt.Errorf("%w: tag 0x%02x", errs.ErrUnsupportedType, uint8(e.dtype))
	}
	if !e.codec.Valid() {
		return blockEntry{}, 0, fmt.Errorf("%w: block codec 0x%02x", errs.ErrInvalidHeader, uint8(e.codec))
	}

	off := 16
	readDims := func() []uint64 {
		dims := make([]uint64, rank)
		for i := range dims {
			dims[i] = engine.Uint64(buf[off:])
			off += 8
		}
		return dims
	}
	e.shape = readDims()
	e.region.Start = readDims()
	e.region.Count = readDims()

	e.rawSize = engine.Uint64(buf[off:])
	e.compSize = engine.Uint64(buf[off+8:])
	e.payOffset = engine.Uint64(buf[off+16:])

	return e, need, nil
}

func appendNameTable(buf []byte, names map[uint64]string, order []uint64) []byte {
	buf = engine.AppendUint32(buf, uint32(len(order)))
	for _, id := range order {
		name := names[id]
		buf = engine.AppendUint64(buf, id)
		buf = engine.AppendUint16(buf, uint16(len(name)))
		buf = append(buf, name...)
	}

	return buf
}

func parseNameTable(buf []byte) (map[uint64]string, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("%w: truncated name table", errs.ErrInvalidHeader)
	}
	count := int(engine.Uint32(buf[0:4]))
	names := make(map[uint64]string, count)

	off := 4
	for i := 0; i < count; i++ {
		if len(buf) < off+10 {
			return nil, fmt.Errorf("%w: truncated name table", errs.ErrInvalidHeader)
		}
		id := engine.Uint64(buf[off:])
		n := int(engine.Uint16(buf[off+8:]))
		off += 10
		if len(buf) < off+n {
			return nil, fmt.Errorf("%w: truncated name table", errs.ErrInvalidHeader)
		}
		names[id] = string(buf[off : off+n])
		off += n
	}

	return names, nil
}
