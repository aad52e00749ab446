package entity

import (
	"fmt"
	"sync"

	"github.com/google/btree"
)

type memSlot[T any] struct {
	id         int32
	left       int32
	right      int32
	heightDiff int8
	entity     T
}

// MemoryStorage keeps slots in an ordered id->slot B-tree.
type MemoryStorage[T any] struct {
	mu    sync.Mutex
	slots *btree.BTreeG[memSlot[T]]
	meta  Metadata
	cmp   Compare[T]
}

// NewMemoryStorage creates an empty in-memory slot array.
func NewMemoryStorage[T any](cmp Compare[T]) *MemoryStorage[T] {
	return &MemoryStorage[T]{
		slots: btree.NewG(16, func(a, b memSlot[T]) bool { return a.id < b.id }),
		meta: Metadata{
			Root:         NoNode,
			FirstDeleted: NoNode,
		},
		cmp: cmp,
	}
}

func (m *MemoryStorage[T]) Metadata() Metadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meta
}

func (m *MemoryStorage[T]) SetMetadata(meta Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta = meta
	return nil
}

func (m *MemoryStorage[T]) Compare(a, b T) int { return m.cmp(a, b) }

func (m *MemoryStorage[T]) Get(id int32) (*Node[T], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.slots.Get(memSlot[T]{id: id})
	if !ok || id >= m.meta.Capacity {
		return nil, fmt.Errorf("%w: %d of %d", ErrOutOfRange, id, m.meta.Capacity)
	}
	return slot.node(), nil
}

func (m *MemoryStorage[T]) GetRange(start, end int32) ([]*Node[T], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if start < 0 || start > end || end > m.meta.Capacity {
		return nil, fmt.Errorf("%w: [%d, %d) of %d", ErrOutOfRange, start, end, m.meta.Capacity)
	}
	nodes := make([]*Node[T], 0, end-start)
	m.slots.AscendRange(memSlot[T]{id: start}, memSlot[T]{id: end}, func(s memSlot[T]) bool {
		nodes = append(nodes, s.node())
		return true
	})
	if len(nodes) != int(end-start) {
		return nil, fmt.Errorf("%w: missing slots in [%d, %d)", ErrCorrupt, start, end)
	}
	return nodes, nil
}

func (m *MemoryStorage[T]) Put(n *Node[T]) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.ID < 0 || n.ID >= m.meta.Capacity {
		return fmt.Errorf("%w: %d of %d", ErrOutOfRange, n.ID, m.meta.Capacity)
	}
	m.slots.ReplaceOrInsert(memSlot[T]{
		id:         n.ID,
		left:       n.Left,
		right:      n.Right,
		heightDiff: n.HeightDiff,
		entity:     n.Entity(),
	})
	n.dirty = false
	return nil
}

func (m *MemoryStorage[T]) Create(id int32, e T) *Node[T] {
	return newNode(id, e)
}

func (m *MemoryStorage[T]) LowerBound(key T) (*TreePath[T], error) {
	return bound[T](m, m.Metadata().Root, key, false)
}

func (m *MemoryStorage[T]) UpperBound(key T) (*TreePath[T], error) {
	return bound[T](m, m.Metadata().Root, key, true)
}

func (m *MemoryStorage[T]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots.Clear(false)
	return nil
}

func (s memSlot[T]) node() *Node[T] {
	return &Node[T]{
		ID:         s.id,
		Left:       s.left,
		Right:      s.right,
		HeightDiff: s.heightDiff,
		entity:     s.entity,
		decoded:    true,
	}
}
