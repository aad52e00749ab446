package blob

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/rs/zerolog"

	"github.com/freeeve/chessdb/internal/logx"
	"github.com/freeeve/chessdb/internal/storage"
)

// File header (40 bytes, little-endian). The legacy layout stores every
// field twice; readers trust the first copy and warn when they differ.
//
//	0  HeaderSize (4)   data starts at this offset
//	4  Size (8)         data bytes in use
//	12 Trash (8)        abandoned bytes not reclaimed
//	20 HeaderSize (4)   duplicate
//	24 Size (8)         duplicate
//	32 Trash (8)        duplicate
const (
	FileHeaderSize = 40
	dupOffset      = 20
)

type fileHeader struct {
	HeaderSize int32
	Size       int64
	Trash      int64
}

func encodeFileHeader(h fileHeader) []byte {
	buf := make([]byte, FileHeaderSize)
	for _, base := range []int{0, dupOffset} {
		binary.LittleEndian.PutUint32(buf[base:base+4], uint32(h.HeaderSize))
		binary.LittleEndian.PutUint64(buf[base+4:base+12], uint64(h.Size))
		binary.LittleEndian.PutUint64(buf[base+12:base+20], uint64(h.Trash))
	}
	return buf
}

func decodeFileHeader(buf []byte) (primary, dup fileHeader) {
	read := func(base int) fileHeader {
		return fileHeader{
			HeaderSize: int32(binary.LittleEndian.Uint32(buf[base : base+4])),
			Size:       int64(binary.LittleEndian.Uint64(buf[base+4 : base+12])),
			Trash:      int64(binary.LittleEndian.Uint64(buf[base+12 : base+20])),
		}
	}
	return read(0), read(dupOffset)
}

// FileStore is a Store backed by a single file. All methods take one
// instance-wide lock; the header is rewritten after every change.
type FileStore struct {
	mu     sync.Mutex
	file   *storage.File
	header fileHeader
	retr   SizeRetriever
	opts   Options
	cache  *ristretto.Cache[int64, []byte]
	log    zerolog.Logger
	closed bool
}

// OpenFileStore opens or creates a blob file.
func OpenFileStore(path string, retr SizeRetriever, opts Options) (*FileStore, error) {
	opts = opts.withDefaults()
	f, created, err := storage.OpenFile(path)
	if err != nil {
		return nil, err
	}
	s := &FileStore{
		file: f,
		retr: retr,
		opts: opts,
		log:  logx.OrNop(opts.Logger).With().Str("blob", path).Logger(),
	}
	if created {
		s.header = fileHeader{HeaderSize: FileHeaderSize}
		if err := s.writeHeader(); err != nil {
			f.Close()
			return nil, err
		}
		s.log.Info().Msg("created blob store")
	} else if err := s.loadHeader(); err != nil {
		f.Close()
		return nil, err
	}
	if opts.CacheBytes > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config[int64, []byte]{
			NumCounters: 10 * (opts.CacheBytes/int64(opts.PrefetchSize) + 1),
			MaxCost:     opts.CacheBytes,
			BufferItems: 64,
		})
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("blob cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

func (s *FileStore) loadHeader() error {
	buf := make([]byte, FileHeaderSize)
	if err := s.file.ReadAt(buf, 0); err != nil {
		return storage.InvalidFormat(s.file.Path(), "blob header: %v", err)
	}
	h, dup := decodeFileHeader(buf)
	if h != dup {
		s.log.Warn().
			Int32("header_size", h.HeaderSize).Int32("dup_header_size", dup.HeaderSize).
			Int64("size", h.Size).Int64("dup_size", dup.Size).
			Int64("trash", h.Trash).Int64("dup_trash", dup.Trash).
			Msg("blob header copies disagree, using primary")
	}
	if h.HeaderSize < FileHeaderSize || h.Size < 0 || h.Trash < 0 {
		return storage.InvalidFormat(s.file.Path(), "header size %d, size %d, trash %d", h.HeaderSize, h.Size, h.Trash)
	}
	actual, err := s.file.Size()
	if err != nil {
		return err
	}
	if want := int64(h.HeaderSize) + h.Size; actual != want {
		s.log.Warn().Int64("declared", want).Int64("actual", actual).Msg("blob file size does not match header")
	}
	s.header = h
	s.log.Debug().Int64("size", h.Size).Int64("trash", h.Trash).Msg("opened blob store")
	return nil
}

func (s *FileStore) writeHeader() error {
	return s.file.WriteAt(encodeFileHeader(s.header), 0)
}

func (s *FileStore) dataOffset(off int64) int64 {
	return int64(s.header.HeaderSize) + off
}

func (s *FileStore) readAt(buf []byte, off int64) error {
	return s.file.ReadAt(buf, s.dataOffset(off))
}

// ReadBlob returns a copy of the blob starting at offset.
func (s *FileStore) ReadBlob(offset int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache != nil {
		if data, ok := s.cache.Get(offset); ok {
			return append([]byte(nil), data...), nil
		}
	}
	data, err := readWindow(offset, s.header.Size, s.opts.PrefetchSize, s.retr, s.readAt)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(offset, append([]byte(nil), data...), int64(len(data)))
	}
	return data, nil
}

// WriteBlob appends data and returns its offset.
func (s *FileStore) WriteBlob(data []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	offset := s.header.Size
	if err := s.file.WriteAt(data, s.dataOffset(offset)); err != nil {
		return 0, err
	}
	s.header.Size += int64(len(data))
	if err := s.writeHeader(); err != nil {
		return 0, err
	}
	return offset, nil
}

// WriteBlobAt overwrites len(data) bytes at offset.
func (s *FileStore) WriteBlobAt(offset int64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := checkRange(offset, int64(len(data)), s.header.Size); err != nil {
		return err
	}
	s.invalidate()
	return s.file.WriteAt(data, s.dataOffset(offset))
}

// Insert opens a gap of n zero bytes at offset. The tail is moved from the
// end backwards one chunk at a time, so memory use is bounded by ChunkSize
// regardless of how much data follows offset.
func (s *FileStore) Insert(offset, n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	size := s.header.Size
	if offset < 0 || offset > size || n < 0 {
		return fmt.Errorf("%w: insert %d bytes at %d, size %d", ErrOutOfBounds, n, offset, size)
	}
	if n == 0 {
		return nil
	}
	s.invalidate()

	chunk := int64(s.opts.ChunkSize)
	buf := make([]byte, min(chunk, max(size-offset, n)))
	for end := size; end > offset; {
		start := max(offset, end-chunk)
		part := buf[:end-start]
		if err := s.readAt(part, start); err != nil {
			return err
		}
		if err := s.file.WriteAt(part, s.dataOffset(start+n)); err != nil {
			return err
		}
		end = start
	}

	clear(buf)
	for done := int64(0); done < n; {
		k := min(int64(len(buf)), n-done)
		if err := s.file.WriteAt(buf[:k], s.dataOffset(offset+done)); err != nil {
			return err
		}
		done += k
	}

	s.header.Size += n
	s.log.Debug().Int64("offset", offset).Int64("bytes", n).Int64("size", s.header.Size).Msg("spliced blob store")
	return s.writeHeader()
}

func (s *FileStore) invalidate() {
	if s.cache != nil {
		s.cache.Clear()
	}
}

// Size returns the number of data bytes in use.
func (s *FileStore) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.header.Size
}

// Trash returns the abandoned byte count.
func (s *FileStore) Trash() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.header.Trash
}

// AddTrash records n abandoned bytes and persists the counter.
func (s *FileStore) AddTrash(n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.header.Trash += n
	return s.writeHeader()
}

// Close writes the header, syncs and closes the file.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.cache != nil {
		s.cache.Close()
	}
	err := s.writeHeader()
	if serr := s.file.Sync(); err == nil {
		err = serr
	}
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}
