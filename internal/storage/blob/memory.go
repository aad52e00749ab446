package blob

import (
	"fmt"
	"sync"
)

// MemoryStore is a Store over a growable byte slice.
type MemoryStore struct {
	mu       sync.Mutex
	buf      []byte // len(buf) is the store size
	trash    int64
	retr     SizeRetriever
	prefetch int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(retr SizeRetriever, opts Options) *MemoryStore {
	opts = opts.withDefaults()
	return &MemoryStore{retr: retr, prefetch: opts.PrefetchSize}
}

// ReadBlob returns a copy of the blob starting at offset.
func (m *MemoryStore) ReadBlob(offset int64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return readWindow(offset, int64(len(m.buf)), m.prefetch, m.retr, func(dst []byte, off int64) error {
		copy(dst, m.buf[off:])
		return nil
	})
}

// WriteBlob appends data and returns its offset.
func (m *MemoryStore) WriteBlob(data []byte) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	offset := int64(len(m.buf))
	m.grow(len(data))
	copy(m.buf[offset:], data)
	return offset, nil
}

// WriteBlobAt overwrites len(data) bytes at offset.
func (m *MemoryStore) WriteBlobAt(offset int64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkRange(offset, int64(len(data)), int64(len(m.buf))); err != nil {
		return err
	}
	copy(m.buf[offset:], data)
	return nil
}

// Insert opens a gap of n zero bytes at offset, shifting the tail right.
func (m *MemoryStore) Insert(offset, n int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	size := int64(len(m.buf))
	if offset < 0 || offset > size || n < 0 {
		return fmt.Errorf("%w: insert %d bytes at %d, size %d", ErrOutOfBounds, n, offset, size)
	}
	if n == 0 {
		return nil
	}
	m.grow(int(n))
	copy(m.buf[offset+n:], m.buf[offset:size])
	clear(m.buf[offset : offset+n])
	return nil
}

// grow extends the slice by n bytes, doubling capacity when it runs out.
func (m *MemoryStore) grow(n int) {
	need := len(m.buf) + n
	if need > cap(m.buf) {
		newCap := 2 * cap(m.buf)
		if newCap < 64 {
			newCap = 64
		}
		for newCap < need {
			newCap *= 2
		}
		buf := make([]byte, len(m.buf), newCap)
		copy(buf, m.buf)
		m.buf = buf
	}
	m.buf = m.buf[:need]
}

// Size returns the number of bytes stored.
func (m *MemoryStore) Size() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.buf))
}

// Trash returns the abandoned byte count.
func (m *MemoryStore) Trash() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trash
}

// AddTrash records n abandoned bytes.
func (m *MemoryStore) AddTrash(n int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trash += n
	return nil
}

// Close releases the buffer.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buf = nil
	return nil
}
