package logging

import (
	"os"
	"sync"
)

// RingBuffer keeps the most recent log bytes in a fixed-size circular
// buffer. It implements io.Writer; once the capacity is reached the
// oldest bytes are overwritten. A dump of its contents accompanies
// crash reports so the tail of the log survives even when file logging
// is disabled.
type RingBuffer struct {
	mu    sync.Mutex
	data  []byte
	start int // index of the oldest byte
	count int // bytes currently stored
}

// NewRingBuffer creates a ring buffer holding up to size bytes.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 10 * 1024 * 1024
	}
	return &RingBuffer{data: make([]byte, size)}
}

// Write implements io.Writer and never fails. Writes larger than the
// capacity keep only their tail.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := len(p)
	capacity := len(rb.data)
	src := p
	if len(src) > capacity {
		src = src[len(src)-capacity:]
	}

	writeAt := (rb.start + rb.count) % capacity
	for len(src) > 0 {
		copied := copy(rb.data[writeAt:], src)
		src = src[copied:]
		writeAt = (writeAt + copied) % capacity
		rb.count += copied
	}
	if rb.count > capacity {
		rb.start = (rb.start + rb.count - capacity) % capacity
		rb.count = capacity
	}

	return n, nil
}

// Bytes returns a copy of the buffered bytes in write order.
func (rb *RingBuffer) Bytes() []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	out := make([]byte, rb.count)
	first := copy(out, rb.data[rb.start:min(rb.start+rb.count, len(rb.data))])
	if first < rb.count {
		copy(out[first:], rb.data[:rb.count-first])
	}
	return out
}

// DumpToFile writes the buffered bytes to path, oldest first.
func (rb *RingBuffer) DumpToFile(path string) error {
	return os.WriteFile(path, rb.Bytes(), 0o644)
}
