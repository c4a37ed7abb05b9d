package compress

// ZstdCompressor provides Zstandard compression for block payloads.
//
// Zstd favors compression ratio over speed, which suits archived simulation
// output where blocks are written once and analyzed many times.
//
// Two implementations exist behind build tags: the default pure-Go
// klauspost/compress encoder, and a cgo gozstd variant enabled with the
// "gozstd" build tag for hosts where the C library is available.
type ZstdCompressor struct{}

var _ Codec = (*ZstdCompressor)(nil)

// NewZstdCompressor creates a new Zstd compressor with default settings.
func NewZstdCompressor() ZstdCompressor {
	return ZstdCompressor{}
}
