package entity

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/freeeve/chessdb/internal/logx"
	"github.com/freeeve/chessdb/internal/storage"
)

// Index file layout (little-endian):
//
//	0  Capacity (4)
//	4  Root (4)              -1 when empty
//	8  Magic (4)
//	12 SerializedEntitySize (4)
//	16 FirstDeleted (4)
//	20 NumEntities (4)
//	24 ExtraHeaderBytes (4)  reserved bytes that follow, normally 0
//
// Slot i starts at HeaderSize + i*(9 + SerializedEntitySize):
// left (4), right (4), heightDiff (1), payload.
const (
	FileMagic       uint32 = 0x43424958 // "XIBC"
	fixedHeaderSize        = 28
)

// FileStorage keeps slots in a flat file. One mutex guards the file and the
// metadata; every metadata change is written through immediately.
type FileStorage[T any] struct {
	mu       sync.Mutex
	file     *storage.File
	ser      Serializer[T]
	cmp      Compare[T]
	meta     Metadata
	slotSize int64
	log      zerolog.Logger
	closed   bool
}

// OpenFileStorage opens or creates an index file. A new file records
// ser.Size() as its record width; an existing file keeps the width it was
// created with whatever ser is used to open it.
func OpenFileStorage[T any](path string, ser Serializer[T], cmp Compare[T], opts Options) (*FileStorage[T], error) {
	f, created, err := storage.OpenFile(path)
	if err != nil {
		return nil, err
	}
	s := &FileStorage[T]{
		file: f,
		ser:  ser,
		cmp:  cmp,
		log:  logx.OrNop(opts.Logger).With().Str("index", path).Logger(),
	}
	if created {
		s.meta = Metadata{
			Root:                 NoNode,
			FirstDeleted:         NoNode,
			SerializedEntitySize: int32(ser.Size()),
			HeaderSize:           fixedHeaderSize,
		}
		err = s.writeHeader()
		if err == nil {
			s.log.Info().Int("width", ser.Size()).Msg("created index")
		}
	} else {
		err = s.loadHeader()
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	s.slotSize = int64(controlSize) + int64(s.meta.SerializedEntitySize)
	if w := ser.Size(); w != int(s.meta.SerializedEntitySize) {
		s.log.Debug().Int("stored_width", int(s.meta.SerializedEntitySize)).Int("codec_width", w).
			Msg("codec width differs from stored records")
	}
	return s, nil
}

func (s *FileStorage[T]) loadHeader() error {
	path := s.file.Path()
	buf := make([]byte, fixedHeaderSize)
	if err := s.file.ReadAt(buf, 0); err != nil {
		return storage.InvalidFormat(path, "index header: %v", err)
	}
	if magic := binary.LittleEndian.Uint32(buf[8:12]); magic != FileMagic {
		return storage.InvalidFormat(path, "bad magic %#x", magic)
	}
	m := Metadata{
		Capacity:             int32(binary.LittleEndian.Uint32(buf[0:4])),
		Root:                 int32(binary.LittleEndian.Uint32(buf[4:8])),
		SerializedEntitySize: int32(binary.LittleEndian.Uint32(buf[12:16])),
		FirstDeleted:         int32(binary.LittleEndian.Uint32(buf[16:20])),
		NumEntities:          int32(binary.LittleEndian.Uint32(buf[20:24])),
	}
	extra := int32(binary.LittleEndian.Uint32(buf[24:28]))
	if extra < 0 {
		return storage.InvalidFormat(path, "negative extra header size %d", extra)
	}
	m.HeaderSize = fixedHeaderSize + extra
	if extra > 0 {
		reserved := make([]byte, extra)
		if err := s.file.ReadAt(reserved, fixedHeaderSize); err != nil {
			return storage.InvalidFormat(path, "reserved header: %v", err)
		}
		for _, b := range reserved {
			if b != 0 {
				s.log.Warn().Int32("bytes", extra).Msg("reserved header bytes are not zero")
				break
			}
		}
	}
	if err := validateMetadata(m); err != nil {
		return storage.InvalidFormat(path, "%v", err)
	}

	actual, err := s.file.Size()
	if err != nil {
		return err
	}
	want := int64(m.HeaderSize) + int64(m.Capacity)*(int64(controlSize)+int64(m.SerializedEntitySize))
	switch {
	case actual < want:
		return storage.InvalidFormat(path, "file is %d bytes, capacity %d needs %d", actual, m.Capacity, want)
	case actual > want:
		s.log.Warn().Int64("declared", want).Int64("actual", actual).Msg("index file is larger than its capacity")
	}
	s.meta = m
	s.log.Debug().Int32("capacity", m.Capacity).Int32("entities", m.NumEntities).Msg("opened index")
	return nil
}

func validateMetadata(m Metadata) error {
	switch {
	case m.SerializedEntitySize <= 0:
		return fmt.Errorf("record width %d", m.SerializedEntitySize)
	case m.Capacity < 0:
		return fmt.Errorf("capacity %d", m.Capacity)
	case m.NumEntities < 0 || m.NumEntities > m.Capacity:
		return fmt.Errorf("%d entities with capacity %d", m.NumEntities, m.Capacity)
	case m.Root != NoNode && (m.Root < 0 || m.Root >= m.Capacity):
		return fmt.Errorf("root %d with capacity %d", m.Root, m.Capacity)
	case (m.Root == NoNode) != (m.NumEntities == 0):
		return fmt.Errorf("root %d with %d entities", m.Root, m.NumEntities)
	case m.FirstDeleted != NoNode && (m.FirstDeleted < 0 || m.FirstDeleted >= m.Capacity):
		return fmt.Errorf("first deleted %d with capacity %d", m.FirstDeleted, m.Capacity)
	}
	return nil
}

func (s *FileStorage[T]) writeHeader() error {
	buf := make([]byte, fixedHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(s.meta.Capacity))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(s.meta.Root))
	binary.LittleEndian.PutUint32(buf[8:12], FileMagic)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(s.meta.SerializedEntitySize))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(s.meta.FirstDeleted))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(s.meta.NumEntities))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(s.meta.HeaderSize-fixedHeaderSize))
	return s.file.WriteAt(buf, 0)
}

func (s *FileStorage[T]) offset(id int32) int64 {
	return int64(s.meta.HeaderSize) + int64(id)*s.slotSize
}

func (s *FileStorage[T]) Metadata() Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

// SetMetadata writes the header. The record width and header size are
// fixed for the life of the file and are not taken from m.
func (s *FileStorage[T]) SetMetadata(m Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.SerializedEntitySize = s.meta.SerializedEntitySize
	m.HeaderSize = s.meta.HeaderSize
	grow := m.Capacity > s.meta.Capacity
	s.meta = m
	if grow {
		if err := s.file.Truncate(s.offset(m.Capacity)); err != nil {
			return err
		}
	}
	return s.writeHeader()
}

func (s *FileStorage[T]) Compare(a, b T) int { return s.cmp(a, b) }

func (s *FileStorage[T]) checkRange(start, end int32) error {
	if start < 0 || start > end || end > s.meta.Capacity {
		return fmt.Errorf("%w: [%d, %d) of %d", ErrOutOfRange, start, end, s.meta.Capacity)
	}
	return nil
}

func (s *FileStorage[T]) Get(id int32) (*Node[T], error) {
	nodes, err := s.GetRange(id, id+1)
	if err != nil {
		return nil, err
	}
	return nodes[0], nil
}

// GetRange reads the whole span with a single read.
func (s *FileStorage[T]) GetRange(start, end int32) ([]*Node[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkRange(start, end); err != nil {
		return nil, err
	}
	buf := make([]byte, int64(end-start)*s.slotSize)
	if err := s.file.ReadAt(buf, s.offset(start)); err != nil {
		return nil, err
	}
	nodes := make([]*Node[T], end-start)
	for i := range nodes {
		slot := buf[int64(i)*s.slotSize : int64(i+1)*s.slotSize]
		left, right, hd := decodeControl(slot)
		nodes[i] = &Node[T]{
			ID:         start + int32(i),
			Left:       left,
			Right:      right,
			HeightDiff: hd,
			raw:        slot[controlSize:],
			ser:        s.ser,
		}
	}
	return nodes, nil
}

// Put writes the 9-byte link header, followed by the payload if it changed.
// At most min(codec width, stored width) payload bytes are written, so
// trailing bytes of a wider stored record are never touched.
func (s *FileStorage[T]) Put(n *Node[T]) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkRange(n.ID, n.ID+1); err != nil {
		return err
	}
	if !n.dirty {
		buf := make([]byte, controlSize)
		encodeControl(buf, n.Left, n.Right, n.HeightDiff)
		return s.file.WriteAt(buf, s.offset(n.ID))
	}

	payload := make([]byte, s.ser.Size())
	s.ser.Serialize(n.entity, payload)
	width := min(len(payload), int(s.meta.SerializedEntitySize))
	buf := make([]byte, controlSize+width)
	encodeControl(buf, n.Left, n.Right, n.HeightDiff)
	copy(buf[controlSize:], payload[:width])
	if err := s.file.WriteAt(buf, s.offset(n.ID)); err != nil {
		return err
	}
	n.dirty = false
	return nil
}

func (s *FileStorage[T]) Create(id int32, e T) *Node[T] {
	n := newNode(id, e)
	n.ser = s.ser
	return n
}

func (s *FileStorage[T]) LowerBound(key T) (*TreePath[T], error) {
	return bound[T](s, s.Metadata().Root, key, false)
}

func (s *FileStorage[T]) UpperBound(key T) (*TreePath[T], error) {
	return bound[T](s, s.Metadata().Root, key, true)
}

// Close flushes the header and closes the file.
func (s *FileStorage[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.writeHeader()
	if serr := s.file.Sync(); err == nil {
		err = serr
	}
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}
