package pool

import "sync"

// byteBufferPool pools the scratch buffers used while framing a step: block
// payloads are encoded and compressed into a pooled buffer before being
// written out, so steady-state step writes allocate nothing.
var byteBufferPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, 4096)
		return &b
	},
}

// GetByteBuffer retrieves an empty byte buffer from the pool.
//
// The returned cleanup function must be called (typically with defer) to
// return the buffer to the pool. The buffer must not be used after cleanup.
//
// Returns:
//   - []byte: Zero-length buffer with pooled capacity
//   - func([]byte): Cleanup function; pass the final buffer so grown
//     capacity is retained by the pool
func GetByteBuffer() ([]byte, func([]byte)) {
	ptr, _ := byteBufferPool.Get().(*[]byte)

	return (*ptr)[:0], func(final []byte) {
		*ptr = final[:0]
		byteBufferPool.Put(ptr)
	}
}
