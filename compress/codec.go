package compress

import (
	"fmt"
	"strings"

	"github.com/stepmet/stepmet/errs"
	"github.com/stepmet/stepmet/format"
)

// Compressor compresses one block payload.
//
// Block payloads are the raw little-endian element bytes of one worker's
// shard for one step, typically a few KB to a few hundred MB.
type Compressor interface {
	// Compress compresses the input data and returns the compressed result.
	//
	// Memory management:
	//   - Returned slice is newly allocated and owned by the caller
	//   - Input slice is not modified
	//   - Internal buffers may be reused for efficiency
	Compress(data []byte) ([]byte, error)
}

// Decompressor restores a block payload previously produced by the matching
// Compressor.
//
// Implementations validate the input framing and return an error for
// corrupted data or data produced by a different algorithm.
type Decompressor interface {
	// Decompress decompresses the input data and returns the original result.
	//
	// Memory management:
	//   - Returned slice is newly allocated and owned by the caller
	//   - Input slice is not modified
	//   - Internal buffers may be reused for efficiency
	Decompress(data []byte) ([]byte, error)
}

// Codec combines both compression and decompression capabilities.
type Codec interface {
	Compressor
	Decompressor
}

// CreateCodec is a factory function that creates a Codec for the specified
// compression type.
//
// Parameters:
//   - compressionType: Type of compression (None, Zstd, S2, or LZ4)
//   - target: Description of target usage (for error messages)
//
// Returns:
//   - Codec: Codec instance for the specified type
//   - error: Invalid compression type error
func CreateCodec(compressionType format.CompressionType, target string) (Codec, error) {
	switch compressionType {
	case format.CompressionNone:
		return NewNoOpCompressor(), nil
	case format.CompressionZstd:
		return NewZstdCompressor(), nil
	case format.CompressionS2:
		return NewS2Compressor(), nil
	case format.CompressionLZ4:
		return NewLZ4Compressor(), nil
	default:
		return nil, fmt.Errorf("invalid %s compression: %s", target, compressionType)
	}
}

var builtinCodecs = map[format.CompressionType]Codec{
	format.CompressionNone: NewNoOpCompressor(),
	format.CompressionZstd: NewZstdCompressor(),
	format.CompressionS2:   NewS2Compressor(),
	format.CompressionLZ4:  NewLZ4Compressor(),
}

// GetCodec retrieves a built-in Codec for the specified compression type.
func GetCodec(compressionType format.CompressionType) (Codec, error) {
	if codec, ok := builtinCodecs[compressionType]; ok {
		return codec, nil
	}

	return nil, fmt.Errorf("unsupported compression type: %s", compressionType)
}

// operatorNames maps compression operator names, as supplied on the command
// line or in an operator descriptor, to compression types. Matching is
// case-insensitive.
var operatorNames = map[string]format.CompressionType{
	"none": format.CompressionNone,
	"zstd": format.CompressionZstd,
	"s2":   format.CompressionS2,
	"lz4":  format.CompressionLZ4,
}

// ResolveOperator maps a compression operator name to its compression type.
//
// Operator parameters are opaque to this package; the sink stores them
// alongside the block but only the name selects a codec.
//
// Returns:
//   - format.CompressionType: Compression type for the named operator
//   - error: errs.ErrUnknownOperator if the name is not registered
func ResolveOperator(name string) (format.CompressionType, error) {
	if t, ok := operatorNames[strings.ToLower(name)]; ok {
		return t, nil
	}

	return format.CompressionType(0), fmt.Errorf("%w: %q", errs.ErrUnknownOperator, name)
}

// OperatorNames returns the registered operator names, for usage text.
func OperatorNames() []string {
	return []string{"none", "zstd", "s2", "lz4"}
}
