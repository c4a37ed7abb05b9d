package hash

import "github.com/cespare/xxhash/v2"

// ID computes the xxHash64 of a variable name.
//
// Block index entries store this fixed-size ID instead of the name; the
// name table resolves IDs back to names when a step is opened.
func ID(name string) uint64 {
	return xxhash.Sum64String(name)
}
