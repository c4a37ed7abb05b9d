package grid

// PadRank left-pads a shape with extent-1 dimensions up to the target rank.
//
// This is a labeling convention for external tooling that expects a fixed
// rank: the underlying row-major element sequence is unchanged, only the
// number of reported leading size-1 axes grows. Shapes of rank >= target are
// returned as a copy, unchanged.
//
// Example: PadRank([720, 240, 240], 5) == [1, 1, 720, 240, 240].
func PadRank(shape []uint64, target int) []uint64 {
	if len(shape) >= target {
		out := make([]uint64, len(shape))
		copy(out, shape)

		return out
	}

	out := make([]uint64, target)
	pad := target - len(shape)
	for i := 0; i < pad; i++ {
		out[i] = 1
	}
	copy(out[pad:], shape)

	return out
}
