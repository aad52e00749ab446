package entity

import "fmt"

// allocate takes a slot from the free list, or grows capacity by one.
func (x *Index[T]) allocate() (int32, error) {
	if id := x.meta.FirstDeleted; id != NoNode {
		n, err := x.s.Get(id)
		if err != nil {
			return 0, err
		}
		if !n.Deleted() {
			return 0, fmt.Errorf("%w: free list head %d is live", ErrCorrupt, id)
		}
		x.meta.FirstDeleted = n.Right
		return id, nil
	}
	id := x.meta.Capacity
	x.meta.Capacity++
	return id, x.saveMeta()
}

// free marks a slot deleted and pushes it on the free list. The payload
// bytes are left in place.
func (x *Index[T]) free(id int32) error {
	n, err := x.s.Get(id)
	if err != nil {
		return err
	}
	n.Left, n.Right, n.HeightDiff = DeletedNode, x.meta.FirstDeleted, 0
	if err := x.s.Put(n); err != nil {
		return err
	}
	x.meta.FirstDeleted = id
	return nil
}

func (x *Index[T]) deleteByID(id int32) error {
	if _, err := x.live(id); err != nil {
		return err
	}
	if err := x.unlink(id); err != nil {
		return err
	}
	if err := x.free(id); err != nil {
		return err
	}
	x.meta.NumEntities--
	x.meta.Version++
	return x.saveMeta()
}

func (x *Index[T]) putByID(id int32, e T) error {
	n, err := x.live(id)
	if err != nil {
		return err
	}
	path, err := x.pathTo(n)
	if err != nil {
		return err
	}
	fits, err := x.fitsAt(path, e)
	if err != nil {
		return err
	}
	if fits {
		n.SetEntity(e)
		return x.s.Put(n)
	}
	if err := x.unlink(id); err != nil {
		return err
	}
	if err := x.link(x.s.Create(id, e)); err != nil {
		return err
	}
	x.meta.Version++
	return x.saveMeta()
}

// fitsAt reports whether e can replace the node at path without breaking
// the in-order sequence.
func (x *Index[T]) fitsAt(path *TreePath[T], e T) (bool, error) {
	pred, err := path.Predecessor()
	if err != nil {
		return false, err
	}
	if pred != nil {
		pe, err := pred.Entity()
		if err != nil {
			return false, err
		}
		if x.cmp(pe, e) > 0 {
			return false, nil
		}
	}
	succ, err := path.Successor()
	if err != nil {
		return false, err
	}
	if succ != nil {
		se, err := succ.Entity()
		if err != nil {
			return false, err
		}
		if x.cmp(e, se) > 0 {
			return false, nil
		}
	}
	return true, nil
}

// pathTo finds the root path of a live node. Equal keys may sit on either
// side of each other after rotations, so both subtrees are searched while
// the key compares equal.
func (x *Index[T]) pathTo(n *Node[T]) (*TreePath[T], error) {
	path, err := x.find(nil, x.meta.Root, n.Entity(), n.ID)
	if err != nil {
		return nil, err
	}
	if path == nil {
		return nil, fmt.Errorf("%w: node %d is not reachable from the root", ErrCorrupt, n.ID)
	}
	return path, nil
}

func (x *Index[T]) find(parent *TreePath[T], id int32, key T, target int32) (*TreePath[T], error) {
	if id == NoNode {
		return nil, nil
	}
	path := parent.Push(x.s, id)
	if id == target {
		return path, nil
	}
	n, err := x.s.Get(id)
	if err != nil {
		return nil, err
	}
	c := x.cmp(key, n.Entity())
	if c < 0 {
		return x.find(path, n.Left, key, target)
	}
	if c > 0 {
		return x.find(path, n.Right, key, target)
	}
	found, err := x.find(path, n.Left, key, target)
	if found != nil || err != nil {
		return found, err
	}
	return x.find(path, n.Right, key, target)
}

// link inserts an unlinked node into the tree and rebalances. Keys equal
// to an existing node go to its right.
func (x *Index[T]) link(n *Node[T]) error {
	n.Left, n.Right, n.HeightDiff = NoNode, NoNode, 0
	if err := x.s.Put(n); err != nil {
		return err
	}
	if x.meta.Root == NoNode {
		return x.replaceChild(nil, NoNode, n.ID)
	}

	key := n.Entity()
	var path *TreePath[T]
	for id := x.meta.Root; ; {
		path = path.Push(x.s, id)
		cur, err := x.s.Get(id)
		if err != nil {
			return err
		}
		next := &cur.Right
		if x.cmp(key, cur.Entity()) < 0 {
			next = &cur.Left
		}
		if *next == NoNode {
			*next = n.ID
			if err := x.s.Put(cur); err != nil {
				return err
			}
			break
		}
		id = *next
	}
	return x.retraceInsert(path.Push(x.s, n.ID))
}

// retraceInsert walks up from a freshly linked leaf updating balance
// factors until a subtree's height stops growing.
func (x *Index[T]) retraceInsert(child *TreePath[T]) error {
	for p := child.Parent(); p != nil; child, p = p, p.Parent() {
		n, err := p.Node()
		if err != nil {
			return err
		}
		if n.Left == child.ID() {
			n.HeightDiff--
		} else {
			n.HeightDiff++
		}
		switch n.HeightDiff {
		case 0:
			return x.s.Put(n)
		case -1, 1:
			if err := x.s.Put(n); err != nil {
				return err
			}
		default:
			// A rotation after an insert restores the subtree's old height.
			top, _, err := x.rebalance(n)
			if err != nil {
				return err
			}
			return x.replaceChild(p.Parent(), n.ID, top)
		}
	}
	return nil
}

// unlink removes a node from the tree without freeing its slot.
func (x *Index[T]) unlink(id int32) error {
	d, err := x.s.Get(id)
	if err != nil {
		return err
	}
	path, err := x.pathTo(d)
	if err != nil {
		return err
	}
	above := path.Parent()

	if d.Left == NoNode || d.Right == NoNode {
		child := d.Left
		if child == NoNode {
			child = d.Right
		}
		wasLeft, err := path.IsLeftChild()
		if err != nil {
			return err
		}
		if err := x.replaceChild(above, id, child); err != nil {
			return err
		}
		return x.retraceDelete(above, wasLeft)
	}

	// Two children: the in-order successor takes d's place in the tree.
	succPath, err := descend(path.Push(x.s, d.Right), false)
	if err != nil {
		return err
	}
	s, err := succPath.Node()
	if err != nil {
		return err
	}

	if s.ID == d.Right {
		s.Left, s.HeightDiff = d.Left, d.HeightDiff
		if err := x.s.Put(s); err != nil {
			return err
		}
		if err := x.replaceChild(above, id, s.ID); err != nil {
			return err
		}
		// s kept its own right subtree, which is one shorter than the
		// subtree s used to root.
		return x.retraceDelete(above.Push(x.s, s.ID), false)
	}

	// Ids strictly between d and s, top down.
	var between []int32
	for p := succPath.Parent(); p.ID() != id; p = p.Parent() {
		between = append([]int32{p.ID()}, between...)
	}
	sp, err := x.s.Get(between[len(between)-1])
	if err != nil {
		return err
	}
	sp.Left = s.Right
	if err := x.s.Put(sp); err != nil {
		return err
	}
	s.Left, s.Right, s.HeightDiff = d.Left, d.Right, d.HeightDiff
	if err := x.s.Put(s); err != nil {
		return err
	}
	if err := x.replaceChild(above, id, s.ID); err != nil {
		return err
	}
	rebuilt := succPath.Trim(id).Push(x.s, s.ID)
	for _, b := range between {
		rebuilt = rebuilt.Push(x.s, b)
	}
	return x.retraceDelete(rebuilt, true)
}

// retraceDelete walks up from p, whose left (or right) subtree just lost
// one level, until a subtree's height stops shrinking.
func (x *Index[T]) retraceDelete(p *TreePath[T], leftShrank bool) error {
	for p != nil {
		n, err := p.Node()
		if err != nil {
			return err
		}
		if leftShrank {
			n.HeightDiff++
		} else {
			n.HeightDiff--
		}
		parentLeft, err := p.IsLeftChild()
		if err != nil {
			return err
		}
		switch n.HeightDiff {
		case -1, 1:
			return x.s.Put(n)
		case 0:
			if err := x.s.Put(n); err != nil {
				return err
			}
		default:
			top, shrank, err := x.rebalance(n)
			if err != nil {
				return err
			}
			if err := x.replaceChild(p.Parent(), n.ID, top); err != nil {
				return err
			}
			if !shrank {
				return nil
			}
		}
		p, leftShrank = p.Parent(), parentLeft
	}
	return nil
}

// rebalance rotates the subtree rooted at n, whose balance is +-2, and
// returns the new subtree root and whether the subtree got shorter.
func (x *Index[T]) rebalance(n *Node[T]) (top int32, shrank bool, err error) {
	if n.HeightDiff > 0 {
		z, err := x.s.Get(n.Right)
		if err != nil {
			return 0, false, err
		}
		if z.HeightDiff < 0 {
			y, err := x.s.Get(z.Left)
			if err != nil {
				return 0, false, err
			}
			if err := x.rotateRight(z, y); err != nil {
				return 0, false, err
			}
			n.Right = y.ID
			return y.ID, true, x.rotateLeft(n, y)
		}
		shrank = z.HeightDiff != 0
		return z.ID, shrank, x.rotateLeft(n, z)
	}

	z, err := x.s.Get(n.Left)
	if err != nil {
		return 0, false, err
	}
	if z.HeightDiff > 0 {
		y, err := x.s.Get(z.Right)
		if err != nil {
			return 0, false, err
		}
		if err := x.rotateLeft(z, y); err != nil {
			return 0, false, err
		}
		n.Left = y.ID
		return y.ID, true, x.rotateRight(n, y)
	}
	shrank = z.HeightDiff != 0
	return z.ID, shrank, x.rotateRight(n, z)
}

// rotateLeft lifts z, the right child of n, above n. Only the two link
// headers are rewritten.
func (x *Index[T]) rotateLeft(n, z *Node[T]) error {
	n.Right = z.Left
	z.Left = n.ID
	n.HeightDiff = n.HeightDiff - 1 - max(z.HeightDiff, 0)
	z.HeightDiff = z.HeightDiff - 1 + min(n.HeightDiff, 0)
	if err := x.s.Put(n); err != nil {
		return err
	}
	return x.s.Put(z)
}

// rotateRight lifts z, the left child of n, above n.
func (x *Index[T]) rotateRight(n, z *Node[T]) error {
	n.Left = z.Right
	z.Right = n.ID
	n.HeightDiff = n.HeightDiff + 1 - min(z.HeightDiff, 0)
	z.HeightDiff = z.HeightDiff + 1 + max(n.HeightDiff, 0)
	if err := x.s.Put(n); err != nil {
		return err
	}
	return x.s.Put(z)
}

// replaceChild points parent's link to old at repl instead. A nil parent
// means old is the root.
func (x *Index[T]) replaceChild(parent *TreePath[T], old, repl int32) error {
	if parent == nil {
		x.meta.Root = repl
		return x.saveMeta()
	}
	p, err := parent.Node()
	if err != nil {
		return err
	}
	switch old {
	case p.Left:
		p.Left = repl
	case p.Right:
		p.Right = repl
	default:
		return fmt.Errorf("%w: %d is not a child of %d", ErrCorrupt, old, p.ID)
	}
	return x.s.Put(p)
}
