// Package element provides typed buffers over the supported element types and
// the dispatch table that routes runtime type tags to statically-typed code.
//
// The numeric operations (allocation, binary encode/decode, min/max scans,
// paired error accumulation) are written once generically and instantiated per
// concrete element type. Adding a type means adding one format.DataType
// variant and one kernel table entry; there are no scattered type-tag if
// chains. Integer comparisons run in the native type, so equality stays exact
// at magnitudes where float64 would round.
package element
