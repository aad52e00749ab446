// Package blob stores variable-length, self-describing byte records in one
// linear byte space. Records are addressed by offset and may grow in place:
// Insert opens a gap at an offset by shifting everything after it forward.
//
// The store does not know who holds offsets into it. After Insert(off, n)
// the caller must add n to every offset it keeps that is greater than off.
package blob

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

const (
	// DefaultPrefetchSize is how many bytes ReadBlob reads before it knows
	// the blob's length.
	DefaultPrefetchSize = 4096

	// DefaultChunkSize bounds the buffer Insert uses to shift data.
	DefaultChunkSize = 64 * 1024
)

var (
	// ErrOutOfBounds is returned for offsets or lengths outside the store.
	ErrOutOfBounds = errors.New("blob: out of bounds")

	// ErrBadLength is returned when a SizeRetriever reports an impossible
	// length.
	ErrBadLength = errors.New("blob: bad declared length")
)

// SizeRetriever returns the total length in bytes of the blob whose first
// bytes are prefix. prefix holds at most the prefetch window and may be
// shorter near the end of the store.
type SizeRetriever func(prefix []byte) (int, error)

// Uint32Size reads the blob length from a leading little-endian uint32 that
// counts the whole blob, itself included.
func Uint32Size(prefix []byte) (int, error) {
	if len(prefix) < 4 {
		return 0, fmt.Errorf("%w: need 4 bytes, got %d", ErrBadLength, len(prefix))
	}
	return int(binary.LittleEndian.Uint32(prefix)), nil
}

// Store is implemented by MemoryStore and FileStore.
type Store interface {
	// ReadBlob returns a copy of the blob starting at offset.
	ReadBlob(offset int64) ([]byte, error)
	// WriteBlob appends data and returns its offset.
	WriteBlob(data []byte) (int64, error)
	// WriteBlobAt overwrites len(data) bytes at offset.
	WriteBlobAt(offset int64, data []byte) error
	// Insert opens a gap of n zero bytes at offset.
	Insert(offset, n int64) error
	// Size returns the number of data bytes in the store.
	Size() int64
	// Trash returns the number of abandoned bytes recorded so far.
	Trash() int64
	// AddTrash records n more abandoned bytes.
	AddTrash(n int64) error
	Close() error
}

// Options configures a store. The zero value is usable.
type Options struct {
	PrefetchSize int             // default DefaultPrefetchSize
	ChunkSize    int             // default DefaultChunkSize
	CacheBytes   int64           // FileStore read cache budget, 0 disables
	Logger       *zerolog.Logger // nil disables logging
}

func (o Options) withDefaults() Options {
	if o.PrefetchSize <= 0 {
		o.PrefetchSize = DefaultPrefetchSize
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	return o
}

// readWindow implements the prefetch-then-exact read shared by both
// backends. readAt must return exactly the requested bytes.
func readWindow(offset, size int64, prefetch int, retr SizeRetriever, readAt func(buf []byte, off int64) error) ([]byte, error) {
	if offset < 0 || offset >= size {
		return nil, fmt.Errorf("%w: read at %d, size %d", ErrOutOfBounds, offset, size)
	}
	window := int64(prefetch)
	if rest := size - offset; rest < window {
		window = rest
	}
	buf := make([]byte, window)
	if err := readAt(buf, offset); err != nil {
		return nil, err
	}
	n, err := retr(buf)
	if err != nil {
		return nil, err
	}
	if n <= 0 || offset+int64(n) > size {
		return nil, fmt.Errorf("%w: %d bytes at %d, size %d", ErrBadLength, n, offset, size)
	}
	if n <= len(buf) {
		return buf[:n:n], nil
	}
	full := make([]byte, n)
	if err := readAt(full, offset); err != nil {
		return nil, err
	}
	return full, nil
}

func checkRange(offset, n, size int64) error {
	if offset < 0 || n < 0 || offset+n > size {
		return fmt.Errorf("%w: [%d, %d) of %d", ErrOutOfBounds, offset, offset+n, size)
	}
	return nil
}
