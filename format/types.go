package format

type (
	// DataType identifies the element type of an array variable.
	DataType uint8

	// CompressionType identifies a block compression algorithm.
	CompressionType uint8
)

const (
	TypeInvalid DataType = 0x0 // TypeInvalid represents an unknown element type.
	TypeFloat32 DataType = 0x1 // TypeFloat32 represents 32-bit IEEE 754 floats.
	TypeFloat64 DataType = 0x2 // TypeFloat64 represents 64-bit IEEE 754 floats.
	TypeInt32   DataType = 0x3 // TypeInt32 represents 32-bit signed integers.
	TypeUint32  DataType = 0x4 // TypeUint32 represents 32-bit unsigned integers.
	TypeInt64   DataType = 0x5 // TypeInt64 represents 64-bit signed integers.
	TypeUint64  DataType = 0x6 // TypeUint64 represents 64-bit unsigned integers.

	CompressionNone CompressionType = 0x1 // CompressionNone represents no compression.
	CompressionZstd CompressionType = 0x2 // CompressionZstd represents Zstandard compression.
	CompressionS2   CompressionType = 0x3 // CompressionS2 represents S2 compression.
	CompressionLZ4  CompressionType = 0x4 // CompressionLZ4 represents LZ4 compression.
)

// DataTypes lists every supported element type in tag order.
//
// Dispatch tables and tests iterate this slice instead of hard-coding the
// supported set; adding a type means extending this list and the kernel table.
var DataTypes = []DataType{
	TypeFloat32,
	TypeFloat64,
	TypeInt32,
	TypeUint32,
	TypeInt64,
	TypeUint64,
}

func (t DataType) String() string {
	switch t {
	case TypeFloat32:
		return "float32"
	case TypeFloat64:
		return "float64"
	case TypeInt32:
		return "int32"
	case TypeUint32:
		return "uint32"
	case TypeInt64:
		return "int64"
	case TypeUint64:
		return "uint64"
	default:
		return "invalid"
	}
}

// Size returns the width of one element in bytes, or 0 for an invalid type.
func (t DataType) Size() int {
	switch t {
	case TypeFloat32, TypeInt32, TypeUint32:
		return 4
	case TypeFloat64, TypeInt64, TypeUint64:
		return 8
	default:
		return 0
	}
}

// Valid reports whether t is a member of the supported element type set.
func (t DataType) Valid() bool {
	return t >= TypeFloat32 && t <= TypeUint64
}

// ParseDataType resolves a type tag string to a DataType.
//
// Besides the canonical Go names it accepts the C-style aliases emitted by
// stepped array catalogs ("double", "int32_t", "unsigned long long", ...).
// Unknown tags resolve to TypeInvalid; callers report those per variable and
// continue.
func ParseDataType(tag string) DataType {
	switch tag {
	case "float32", "float":
		return TypeFloat32
	case "float64", "double":
		return TypeFloat64
	case "int32", "int32_t", "int":
		return TypeInt32
	case "uint32", "uint32_t", "unsigned int":
		return TypeUint32
	case "int64", "int64_t", "long long":
		return TypeInt64
	case "uint64", "uint64_t", "unsigned long long":
		return TypeUint64
	default:
		return TypeInvalid
	}
}

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionZstd:
		return "Zstd"
	case CompressionS2:
		return "S2"
	case CompressionLZ4:
		return "LZ4"
	default:
		return "Unknown"
	}
}

// Valid reports whether c is a known compression type.
func (c CompressionType) Valid() bool {
	return c >= CompressionNone && c <= CompressionLZ4
}
