package entity

// Metadata describes the shape of one index. It is the only mutable state
// besides the slots themselves and is persisted on every structural change.
type Metadata struct {
	Capacity             int32 // allocated slots
	Root                 int32 // NoNode for an empty tree
	NumEntities          int32 // live slots
	FirstDeleted         int32 // head of the free list, NoNode if empty
	SerializedEntitySize int32 // stored record width, fixed at creation
	HeaderSize           int32 // bytes before slot 0 (file storage)

	// Version counts structural changes since open. It is not persisted;
	// iterators compare it to detect modification.
	Version uint64
}

// NodeStorage is a flat array of node slots addressed by id.
type NodeStorage[T any] interface {
	// Metadata returns a copy of the current metadata.
	Metadata() Metadata
	// SetMetadata replaces the metadata. File storage persists it before
	// returning and extends the file when Capacity grows.
	SetMetadata(m Metadata) error
	// Compare is the ordering used by LowerBound and UpperBound.
	Compare(a, b T) int

	// Get reads one slot.
	Get(id int32) (*Node[T], error)
	// GetRange reads slots [start, end) in id order.
	GetRange(start, end int32) ([]*Node[T], error)
	// Put writes a node's links, and its payload if it was set since the
	// node was read.
	Put(n *Node[T]) error
	// Create returns an unlinked node for slot id holding e. Nothing is
	// written until Put.
	Create(id int32, e T) *Node[T]

	// LowerBound returns the path to the first node not less than key, or
	// nil if there is none.
	LowerBound(key T) (*TreePath[T], error)
	// UpperBound returns the path to the first node greater than key, or
	// nil if there is none.
	UpperBound(key T) (*TreePath[T], error)

	Close() error
}

// bound descends from the root once, remembering the last node that
// satisfied the bound. Cost is proportional to the tree height.
func bound[T any](s NodeStorage[T], root int32, key T, strict bool) (*TreePath[T], error) {
	var best, path *TreePath[T]
	for id := root; id != NoNode; {
		path = path.Push(s, id)
		n, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		c := s.Compare(n.Entity(), key)
		if c > 0 || (c == 0 && !strict) {
			best = path
			id = n.Left
		} else {
			id = n.Right
		}
	}
	return best, nil
}
