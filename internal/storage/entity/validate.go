package entity

import "fmt"

// ValidateStructure walks the whole tree and the free list and checks the
// AVL balance, the stored balance factors, the in-order sort, the entity
// count and that every slot is either reachable or free. It reads every
// slot and is meant for tests and integrity checks.
func (x *Index[T]) ValidateStructure() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	nodes, err := x.s.GetRange(0, x.meta.Capacity)
	if err != nil {
		return err
	}
	v := &validator[T]{x: x, nodes: nodes, seen: make([]bool, len(nodes))}
	if _, err := v.walk(x.meta.Root, 0); err != nil {
		return err
	}
	if v.count != int(x.meta.NumEntities) {
		return fmt.Errorf("%w: %d reachable nodes, metadata says %d", ErrCorrupt, v.count, x.meta.NumEntities)
	}

	free := 0
	for id := x.meta.FirstDeleted; id != NoNode; id = nodes[id].Right {
		if id < 0 || int(id) >= len(nodes) {
			return fmt.Errorf("%w: free list points at %d", ErrCorrupt, id)
		}
		if v.seen[id] || !nodes[id].Deleted() {
			return fmt.Errorf("%w: free list slot %d is live or repeated", ErrCorrupt, id)
		}
		v.seen[id] = true
		free++
	}
	if v.count+free != len(nodes) {
		return fmt.Errorf("%w: %d live + %d free slots, capacity %d", ErrCorrupt, v.count, free, len(nodes))
	}
	return nil
}

type validator[T any] struct {
	x       *Index[T]
	nodes   []*Node[T]
	seen    []bool
	count   int
	prev    T
	hasPrev bool
}

// walk returns the height of the subtree at id, checking nodes in order.
func (v *validator[T]) walk(id int32, depth int) (int, error) {
	if id == NoNode {
		return 0, nil
	}
	if id < 0 || int(id) >= len(v.nodes) {
		return 0, fmt.Errorf("%w: link to %d, capacity %d", ErrCorrupt, id, len(v.nodes))
	}
	if v.seen[id] || depth > maxDepth {
		return 0, fmt.Errorf("%w: node %d reached twice", ErrCorrupt, id)
	}
	v.seen[id] = true
	n := v.nodes[id]
	if n.Deleted() {
		return 0, fmt.Errorf("%w: deleted slot %d is linked", ErrCorrupt, id)
	}

	hl, err := v.walk(n.Left, depth+1)
	if err != nil {
		return 0, err
	}
	e := n.Entity()
	if v.hasPrev && v.x.cmp(v.prev, e) > 0 {
		return 0, fmt.Errorf("%w: node %d is out of order", ErrCorrupt, id)
	}
	v.prev, v.hasPrev = e, true
	v.count++
	hr, err := v.walk(n.Right, depth+1)
	if err != nil {
		return 0, err
	}

	diff := hr - hl
	if diff < -1 || diff > 1 {
		return 0, fmt.Errorf("%w: node %d unbalanced (left %d, right %d)", ErrCorrupt, id, hl, hr)
	}
	if diff != int(n.HeightDiff) {
		return 0, fmt.Errorf("%w: node %d stores balance %d, actual %d", ErrCorrupt, id, n.HeightDiff, diff)
	}
	return 1 + max(hl, hr), nil
}
