package sandbox

import "sync"

// BoundedBuffer accumulates process output up to a fixed number of bytes.
// Bytes beyond the limit are dropped, never buffered, and never reported as
// a write error, so the producing process is not disturbed.
type BoundedBuffer struct {
	mu        sync.Mutex
	buf       []byte
	limit     int
	truncated bool
}

// NewBoundedBuffer returns a buffer that retains at most limit bytes.
func NewBoundedBuffer(limit int) *BoundedBuffer {
	if limit < 0 {
		limit = 0
	}
	return &BoundedBuffer{limit: limit}
}

// Append stores as much of p as fits and reports whether anything was dropped.
func (b *BoundedBuffer) Append(p []byte) (truncated bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	room := b.limit - len(b.buf)
	if room <= 0 {
		if len(p) > 0 {
			b.truncated = true
		}
		return len(p) > 0
	}
	if len(p) > room {
		b.buf = append(b.buf, p[:room]...)
		b.truncated = true
		return true
	}
	b.buf = append(b.buf, p...)
	return false
}

// Write implements io.Writer. It always reports len(p) consumed.
func (b *BoundedBuffer) Write(p []byte) (int, error) {
	b.Append(p)
	return len(p), nil
}

// Bytes returns a copy of the retained bytes.
func (b *BoundedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf...)
}

func (b *BoundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

// Len returns the number of retained bytes.
func (b *BoundedBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// Truncated reports whether any byte has been dropped.
func (b *BoundedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}
