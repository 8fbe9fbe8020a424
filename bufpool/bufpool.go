// Package bufpool provides the reusable fixed-size scratch buffers Stream
// and Datagram read and write into: a sync.Pool-backed manager with NUMA
// sharding dropped, since Hermes has exactly one buffer size and no
// locality requirement.
package bufpool

import "sync"

// BufferSize is Hermes's fixed framing unit: every Send/Receive moves at
// most this many bytes in one operation.
const BufferSize = 2048

var pool = sync.Pool{
	New: func() any {
		b := make([]byte, BufferSize)
		return &b
	},
}

// Get returns a zeroed BufferSize-length []byte ready for use as a
// send/receive scratch buffer.
func Get() []byte {
	b := *(pool.Get().(*[]byte))
	for i := range b {
		b[i] = 0
	}
	return b
}

// Put returns buf to the pool. buf must have been obtained from Get and
// must not be used again by the caller afterward.
func Put(buf []byte) {
	if len(buf) != BufferSize {
		return
	}
	pool.Put(&buf)
}
