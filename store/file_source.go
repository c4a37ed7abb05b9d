package store

import (
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"slices"

	"github.com/stepmet/stepmet/compress"
	"github.com/stepmet/stepmet/element"
	"github.com/stepmet/stepmet/errs"
	"github.com/stepmet/stepmet/grid"
)

// FileSource reads a step container file sequentially, one step at a time.
//
// Each worker opens its own FileSource; a source is owned by a single
// goroutine and holds at most one step in memory.
type FileSource struct {
	f       *os.File
	path    string
	open    bool
	catalog map[string]VarInfo
	blocks  map[string][]*sourceBlock
	closed  bool
}

type sourceBlock struct {
	entry   blockEntry
	payload []byte
	raw     []byte // decompressed and checksum-verified, filled lazily
}

var (
	_ Source       = (*FileSource)(nil)
	_ SizeReporter = (*FileSource)(nil)
)

// OpenFileSource opens a step container file for reading.
//
// Returns:
//   - *FileSource: Source positioned before the first step
//   - error: Open failure or errs.ErrInvalidHeader for a foreign file
func OpenFileSource(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source %s: %w", path, err)
	}

	hdr := make([]byte, fileHeaderSize)
	if _, err := io.ReadFull(f, hdr); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: short file header", errs.ErrInvalidHeader, path)
	}
	if engine.Uint32(hdr[0:4]) != fileMagic {
		f.Close()
		return nil, fmt.Errorf("%w: %s: bad magic", errs.ErrInvalidHeader, path)
	}
	if hdr[4] != fileVersion {
		f.Close()
		return nil, fmt.Errorf("%w: %s: unsupported version %d", errs.ErrInvalidHeader, path, hdr[4])
	}

	return &FileSource{f: f, path: path}, nil
}

// BeginStep reads the next step frame into memory and builds its catalog.
func (s *FileSource) BeginStep() (StepStatus, error) {
	if s.closed {
		return 0, errs.ErrClosed
	}
	if s.open {
		return 0, errs.ErrStepAlreadyOpen
	}

	hdr := make([]byte, stepHeaderSize)
	if _, err := io.ReadFull(s.f, hdr); err != nil {
		if errors.Is(err, io.EOF) {
			return StepEndOfStream, nil
		}
		return 0, fmt.Errorf("%w: %s: truncated step header", errs.ErrInvalidHeader, s.path)
	}
	if engine.Uint32(hdr[0:4]) != stepMagic {
		return 0, fmt.Errorf("%w: %s: bad step magic", errs.ErrInvalidHeader, s.path)
	}

	blockCount := int(engine.Uint32(hdr[4:8]))
	indexSize := engine.Uint64(hdr[8:16])
	nameSize := engine.Uint64(hdr[16:24])
	paySize := engine.Uint64(hdr[24:32])

	frame := make([]byte, indexSize+nameSize+paySize)
	if _, err := io.ReadFull(s.f, frame); err != nil {
		return 0, fmt.Errorf("%w: %s: truncated step frame", errs.ErrInvalidHeader, s.path)
	}

	index := frame[:indexSize]
	names, err := parseNameTable(frame[indexSize : indexSize+nameSize])
	if err != nil {
		return 0, fmt.Errorf("%s: %w", s.path, err)
	}
	payload := frame[indexSize+nameSize:]

	catalog := make(map[string]VarInfo)
	blocks := make(map[string][]*sourceBlock)
	for i := 0; i < blockCount; i++ {
		entry, n, err := parseEntry(index)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", s.path, err)
		}
		index = index[n:]

		name, ok := names[entry.nameID]
		if !ok {
			return 0, fmt.Errorf("%w: %s: block with unresolved name id %#x", errs.ErrInvalidHeader, s.path, entry.nameID)
		}
		if entry.payOffset+entry.compSize > uint64(len(payload)) {
			return 0, fmt.Errorf("%w: %s: block payload out of range", errs.ErrInvalidHeader, s.path)
		}

		if info, ok := catalog[name]; ok {
			if info.Type != entry.dtype || !slices.Equal(info.Shape, entry.shape) {
				return 0, fmt.Errorf("%w: %s: blocks of %s disagree on shape or type", errs.ErrInvalidHeader, s.path, name)
			}
		} else {
			catalog[name] = VarInfo{
				Name:  name,
				Type:  entry.dtype,
				Shape: append([]uint64(nil), entry.shape...),
			}
		}

		blocks[name] = append(blocks[name], &sourceBlock{
			entry:   entry,
			payload: payload[entry.payOffset : entry.payOffset+entry.compSize],
		})
	}

	s.catalog = catalog
	s.blocks = blocks
	s.open = true

	return StepAvailable, nil
}

// AvailableVariables returns the open step's catalog. The returned map is
// valid only until EndStep.
func (s *FileSource) AvailableVariables() map[string]VarInfo {
	if !s.open {
		return nil
	}

	return s.catalog
}

// CompressedBytes returns the measured stored payload bytes of a variable in
// the open step, summed over its blocks.
func (s *FileSource) CompressedBytes(name string) (uint64, bool) {
	if !s.open {
		return 0, false
	}
	bs, ok := s.blocks[name]
	if !ok {
		return 0, false
	}

	var n uint64
	for _, b := range bs {
		n += b.entry.compSize
	}

	return n, true
}

// SelectiveRead assembles the requested subregion of a variable from the
// stored blocks of the open step.
//
// Parameters:
//   - name: Variable name in the step catalog
//   - region: Requested subregion; must lie within the global shape
//
// Returns:
//   - element.Buffer: The subregion's elements in row-major order
//   - error: errs.ErrVariableNotFound, errs.ErrRegionOutOfBounds (also when
//     the stored blocks do not cover the region), errs.ErrChecksumMismatch,
//     or a decompression failure
func (s *FileSource) SelectiveRead(name string, region grid.Subregion) (element.Buffer, error) {
	if !s.open {
		return element.Buffer{}, errs.ErrStepNotOpen
	}
	info, ok := s.catalog[name]
	if !ok {
		return element.Buffer{}, fmt.Errorf("%w: %s", errs.ErrVariableNotFound, name)
	}
	if region.Rank() != len(info.Shape) || !grid.Contains(grid.Full(info.Shape), region) {
		return element.Buffer{}, fmt.Errorf("%w: %s %v/%v in shape %v",
			errs.ErrRegionOutOfBounds, name, region.Start, region.Count, info.Shape)
	}

	width := info.Type.Size()
	if region.Empty() {
		return element.New(info.Type, 0)
	}

	dst := make([]byte, region.Elements()*uint64(width))
	var covered uint64
	for _, b := range s.blocks[name] {
		sect, ok := grid.Intersect(region, b.entry.region)
		if !ok {
			continue
		}

		raw, err := s.blockRaw(name, b)
		if err != nil {
			return element.Buffer{}, err
		}

		copySlab(dst, region, raw, b.entry.region, sect, width)
		covered += sect.Elements()
	}
	if covered < region.Elements() {
		return element.Buffer{}, fmt.Errorf("%w: %s: stored blocks cover %d of %d requested elements",
			errs.ErrRegionOutOfBounds, name, covered, region.Elements())
	}

	return element.Decode(info.Type, engine, dst)
}

// blockRaw decompresses and checksum-verifies a block, caching the result
// for the lifetime of the step.
func (s *FileSource) blockRaw(name string, b *sourceBlock) ([]byte, error) {
	if b.raw != nil {
		return b.raw, nil
	}

	codec, err := compress.GetCodec(b.entry.codec)
	if err != nil {
		return nil, err
	}
	raw, err := codec.Decompress(b.payload)
	if err != nil {
		return nil, fmt.Errorf("decompress block %s: %w", name, err)
	}
	if uint64(len(raw)) != b.entry.rawSize {
		return nil, fmt.Errorf("%w: %s: block inflates to %d bytes, expected %d",
			errs.ErrInvalidHeader, name, len(raw), b.entry.rawSize)
	}
	if crc32.ChecksumIEEE(raw) != b.entry.crc {
		return nil, fmt.Errorf("%w: %s", errs.ErrChecksumMismatch, name)
	}
	b.raw = raw

	return raw, nil
}

// EndStep releases the open step.
func (s *FileSource) EndStep() error {
	if s.closed {
		return errs.ErrClosed
	}
	if !s.open {
		return errs.ErrStepNotOpen
	}
	s.open = false
	s.catalog = nil
	s.blocks = nil

	return nil
}

// Close releases the source. The current step must be ended first.
func (s *FileSource) Close() error {
	if s.closed {
		return errs.ErrClosed
	}
	if s.open {
		return fmt.Errorf("%w: close with step open", errs.ErrStepAlreadyOpen)
	}
	s.closed = true

	return s.f.Close()
}
