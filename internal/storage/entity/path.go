package entity

import "fmt"

// TreePath is an immutable trail from a node up to the root. Nodes have no
// parent links, so walks that need to go up carry one of these instead.
// A nil *TreePath is the "end" position.
//
// A path only stores ids. Node, Entity and the child tests read storage
// every time, since rotations earlier in the same operation may have
// rewritten the links since the path was built.
type TreePath[T any] struct {
	storage NodeStorage[T]
	id      int32
	parent  *TreePath[T]
}

// Push returns a path one level deeper ending at id. p may be nil.
func (p *TreePath[T]) Push(s NodeStorage[T], id int32) *TreePath[T] {
	return &TreePath[T]{storage: s, id: id, parent: p}
}

// ID returns the id of the node the path ends at.
func (p *TreePath[T]) ID() int32 { return p.id }

// Parent returns the path to the parent, nil at the root.
func (p *TreePath[T]) Parent() *TreePath[T] { return p.parent }

// Node reads the node the path ends at.
func (p *TreePath[T]) Node() (*Node[T], error) {
	return p.storage.Get(p.id)
}

// Entity reads the entity the path ends at.
func (p *TreePath[T]) Entity() (T, error) {
	n, err := p.Node()
	if err != nil {
		var zero T
		return zero, err
	}
	return n.Entity(), nil
}

// IsLeftChild reports whether the node is its parent's left child.
func (p *TreePath[T]) IsLeftChild() (bool, error) {
	if p.parent == nil {
		return false, nil
	}
	parent, err := p.parent.Node()
	if err != nil {
		return false, err
	}
	return parent.Left == p.id, nil
}

// IsRightChild reports whether the node is its parent's right child.
func (p *TreePath[T]) IsRightChild() (bool, error) {
	if p.parent == nil {
		return false, nil
	}
	parent, err := p.parent.Node()
	if err != nil {
		return false, err
	}
	return parent.Right == p.id, nil
}

// Depth is the number of nodes on the path.
func (p *TreePath[T]) Depth() int {
	d := 0
	for ; p != nil; p = p.parent {
		d++
	}
	return d
}

// IDs returns the ids from the root down to the end of the path.
func (p *TreePath[T]) IDs() []int32 {
	ids := make([]int32, p.Depth())
	for i := len(ids) - 1; p != nil; i, p = i-1, p.parent {
		ids[i] = p.id
	}
	return ids
}

// Trim returns the part of the path above id. If id is not on the path the
// path is returned unchanged.
func (p *TreePath[T]) Trim(id int32) *TreePath[T] {
	for cur := p; cur != nil; cur = cur.parent {
		if cur.id == id {
			return cur.parent
		}
	}
	return p
}

// Successor returns the path to the next node in order, or nil.
func (p *TreePath[T]) Successor() (*TreePath[T], error) {
	if p == nil {
		return nil, nil
	}
	n, err := p.Node()
	if err != nil {
		return nil, err
	}
	if n.Right != NoNode {
		return descend(p.Push(p.storage, n.Right), false)
	}
	cur := p
	for {
		right, err := cur.IsRightChild()
		if err != nil {
			return nil, err
		}
		if !right {
			return cur.parent, nil
		}
		cur = cur.parent
	}
}

// Predecessor returns the path to the previous node in order, or nil.
func (p *TreePath[T]) Predecessor() (*TreePath[T], error) {
	if p == nil {
		return nil, nil
	}
	n, err := p.Node()
	if err != nil {
		return nil, err
	}
	if n.Left != NoNode {
		return descend(p.Push(p.storage, n.Left), true)
	}
	cur := p
	for {
		left, err := cur.IsLeftChild()
		if err != nil {
			return nil, err
		}
		if !left {
			return cur.parent, nil
		}
		cur = cur.parent
	}
}

// First returns the path to the smallest node, or nil for an empty tree.
func First[T any](s NodeStorage[T]) (*TreePath[T], error) {
	root := s.Metadata().Root
	if root == NoNode {
		return nil, nil
	}
	var p *TreePath[T]
	return descend(p.Push(s, root), false)
}

// Last returns the path to the largest node, or nil for an empty tree.
func Last[T any](s NodeStorage[T]) (*TreePath[T], error) {
	root := s.Metadata().Root
	if root == NoNode {
		return nil, nil
	}
	var p *TreePath[T]
	return descend(p.Push(s, root), true)
}

// descend follows right links if rightmost, else left links, to the end.
func descend[T any](p *TreePath[T], rightmost bool) (*TreePath[T], error) {
	for depth := 0; ; depth++ {
		if depth > maxDepth {
			return nil, fmt.Errorf("%w: descent from %d exceeds depth %d", ErrCorrupt, p.id, maxDepth)
		}
		n, err := p.Node()
		if err != nil {
			return nil, err
		}
		next := n.Left
		if rightmost {
			next = n.Right
		}
		if next == NoNode {
			return p, nil
		}
		p = p.Push(p.storage, next)
	}
}

// maxDepth bounds walks over a tree of at most 2^31 nodes; an AVL tree of
// that size is less than 45 levels deep.
const maxDepth = 64
