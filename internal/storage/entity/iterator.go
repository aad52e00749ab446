package entity

import "fmt"

// Iterator walks an index lazily. It is invalidated by any structural
// change to the index made after it was created; Next then returns false
// and Err returns ErrConcurrentModification.
//
//	it := idx.StreamOrderedAscending()
//	for it.Next() {
//		use(it.ID(), it.Entity())
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator[T any] struct {
	x       *Index[T]
	version uint64
	err     error
	id      int32
	entity  T

	// ordered
	ordered    bool
	descending bool
	next       *TreePath[T]

	// unordered
	nextID int32
	buf    []*Node[T]
}

// StreamOrderedAscending iterates all entities from smallest to largest.
func (x *Index[T]) StreamOrderedAscending() *Iterator[T] {
	x.mu.Lock()
	defer x.mu.Unlock()
	it := x.newOrdered(false)
	it.next, it.err = First(x.s)
	return it
}

// StreamOrderedAscendingFrom iterates entities not less than from, in
// ascending order.
func (x *Index[T]) StreamOrderedAscendingFrom(from T) *Iterator[T] {
	x.mu.Lock()
	defer x.mu.Unlock()
	it := x.newOrdered(false)
	it.next, it.err = x.s.LowerBound(from)
	return it
}

// StreamOrderedDescending iterates all entities from largest to smallest.
func (x *Index[T]) StreamOrderedDescending() *Iterator[T] {
	x.mu.Lock()
	defer x.mu.Unlock()
	it := x.newOrdered(true)
	it.next, it.err = Last(x.s)
	return it
}

// StreamOrderedDescendingFrom iterates entities not greater than from, in
// descending order.
func (x *Index[T]) StreamOrderedDescendingFrom(from T) *Iterator[T] {
	x.mu.Lock()
	defer x.mu.Unlock()
	it := x.newOrdered(true)
	after, err := x.s.UpperBound(from)
	switch {
	case err != nil:
		it.err = err
	case after == nil:
		it.next, it.err = Last(x.s)
	default:
		it.next, it.err = after.Predecessor()
	}
	return it
}

// Stream iterates all live entities in id order, reading slots in batches.
func (x *Index[T]) Stream() *Iterator[T] {
	x.mu.Lock()
	defer x.mu.Unlock()
	return &Iterator[T]{x: x, version: x.meta.Version}
}

func (x *Index[T]) newOrdered(descending bool) *Iterator[T] {
	return &Iterator[T]{
		x:          x,
		version:    x.meta.Version,
		ordered:    true,
		descending: descending,
	}
}

// Next advances to the next entity.
func (it *Iterator[T]) Next() bool {
	if it.err != nil {
		return false
	}
	it.x.mu.Lock()
	defer it.x.mu.Unlock()
	if it.x.meta.Version != it.version {
		it.err = fmt.Errorf("%w: index version %d, iterator version %d",
			ErrConcurrentModification, it.x.meta.Version, it.version)
		return false
	}
	if it.ordered {
		return it.nextOrdered()
	}
	return it.nextUnordered()
}

func (it *Iterator[T]) nextOrdered() bool {
	if it.next == nil {
		return false
	}
	n, err := it.next.Node()
	if err != nil {
		it.err = err
		return false
	}
	it.id, it.entity = n.ID, n.Entity()
	if it.descending {
		it.next, it.err = it.next.Predecessor()
	} else {
		it.next, it.err = it.next.Successor()
	}
	return it.err == nil
}

func (it *Iterator[T]) nextUnordered() bool {
	for {
		for len(it.buf) > 0 {
			n := it.buf[0]
			it.buf = it.buf[1:]
			if !n.Deleted() {
				it.id, it.entity = n.ID, n.Entity()
				return true
			}
		}
		capacity := it.x.meta.Capacity
		if it.nextID >= capacity {
			return false
		}
		end := min(it.nextID+it.x.batch, capacity)
		nodes, err := it.x.s.GetRange(it.nextID, end)
		if err != nil {
			it.err = err
			return false
		}
		it.buf, it.nextID = nodes, end
	}
}

// ID returns the id of the current entity.
func (it *Iterator[T]) ID() int32 { return it.id }

// Entity returns the current entity.
func (it *Iterator[T]) Entity() T { return it.entity }

// Err returns the error that stopped iteration, if any.
func (it *Iterator[T]) Err() error { return it.err }

// Collect drains the iterator.
func (it *Iterator[T]) Collect() ([]T, error) {
	var out []T
	for it.Next() {
		out = append(out, it.entity)
	}
	return out, it.err
}
