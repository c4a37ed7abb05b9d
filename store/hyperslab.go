package store

import "github.com/stepmet/stepmet/grid"

// copySlab copies the elements of region sect from a source block into a
// destination block, where src holds srcRegion and dst holds dstRegion in
// row-major order. sect must lie within both regions.
//
// The copy walks every row of sect (all dimensions but the innermost) and
// moves one contiguous run of sect.Count[rank-1] elements per row. A rank-0
// sect copies the single scalar element.
func copySlab(dst []byte, dstRegion grid.Subregion, src []byte, srcRegion grid.Subregion, sect grid.Subregion, width int) {
	rank := sect.Rank()
	if rank == 0 {
		copy(dst[:width], src[:width])
		return
	}
	if sect.Empty() {
		return
	}

	rowLen := sect.Count[rank-1]
	rowBytes := int(rowLen) * width

	// Row-major strides of the two local blocks.
	srcStride := strides(srcRegion.Count)
	dstStride := strides(dstRegion.Count)

	// idx iterates sect's outer dimensions (all but the last).
	idx := make([]uint64, rank-1)
	for {
		var srcOff, dstOff uint64
		for d := 0; d < rank-1; d++ {
			srcOff += (sect.Start[d] + idx[d] - srcRegion.Start[d]) * srcStride[d]
			dstOff += (sect.Start[d] + idx[d] - dstRegion.Start[d]) * dstStride[d]
		}
		srcOff += (sect.Start[rank-1] - srcRegion.Start[rank-1]) * srcStride[rank-1]
		dstOff += (sect.Start[rank-1] - dstRegion.Start[rank-1]) * dstStride[rank-1]

		copy(dst[int(dstOff)*width:int(dstOff)*width+rowBytes], src[int(srcOff)*width:int(srcOff)*width+rowBytes])

		// Advance the odometer over the outer dimensions.
		d := rank - 2
		for ; d >= 0; d-- {
			idx[d]++
			if idx[d] < sect.Count[d] {
				break
			}
			idx[d] = 0
		}
		if d < 0 {
			return
		}
	}
}

// strides returns the row-major element strides of a block with the given
// per-dimension extents.
func strides(count []uint64) []uint64 {
	s := make([]uint64, len(count))
	acc := uint64(1)
	for d := len(count) - 1; d >= 0; d-- {
		s[d] = acc
		acc *= count[d]
	}

	return s
}
