package entity

import "encoding/binary"

// controlSize is the per-slot link header: left (4), right (4), balance (1).
const controlSize = 9

// Node is one slot: tree links plus the entity payload.
//
// HeightDiff is height(right) - height(left) of the subtree rooted here.
// For file-backed nodes the payload bytes are read with the links but only
// decoded on the first call to Entity.
type Node[T any] struct {
	ID         int32
	Left       int32
	Right      int32
	HeightDiff int8

	raw     []byte
	ser     Serializer[T]
	entity  T
	decoded bool
	dirty   bool
}

func newNode[T any](id int32, e T) *Node[T] {
	return &Node[T]{
		ID:      id,
		Left:    NoNode,
		Right:   NoNode,
		entity:  e,
		decoded: true,
		dirty:   true,
	}
}

// Entity returns the decoded payload.
func (n *Node[T]) Entity() T {
	if !n.decoded {
		n.entity = decodePayload(n.ser, n.raw)
		n.decoded = true
		n.raw = nil
	}
	return n.entity
}

// SetEntity replaces the payload; the next Put writes it.
func (n *Node[T]) SetEntity(e T) {
	n.entity = e
	n.decoded = true
	n.dirty = true
}

// Deleted reports whether the slot is on the free list.
func (n *Node[T]) Deleted() bool {
	return n.Left == DeletedNode
}

// decodePayload decodes a stored record of any width. Stored bytes beyond
// the codec's width are ignored; missing bytes read as zero.
func decodePayload[T any](ser Serializer[T], raw []byte) T {
	w := ser.Size()
	if len(raw) >= w {
		return ser.Deserialize(raw[:w])
	}
	buf := make([]byte, w)
	copy(buf, raw)
	return ser.Deserialize(buf)
}

func encodeControl(dst []byte, left, right int32, hd int8) {
	binary.LittleEndian.PutUint32(dst[0:4], uint32(left))
	binary.LittleEndian.PutUint32(dst[4:8], uint32(right))
	dst[8] = byte(hd)
}

func decodeControl(src []byte) (left, right int32, hd int8) {
	return int32(binary.LittleEndian.Uint32(src[0:4])),
		int32(binary.LittleEndian.Uint32(src[4:8])),
		int8(src[8])
}
