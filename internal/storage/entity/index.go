package entity

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/freeeve/chessdb/internal/logx"
)

// Index is an AVL tree of entities over a NodeStorage. All methods are
// serialised by one mutex. Iterators re-take it on every step.
type Index[T any] struct {
	mu    sync.Mutex
	s     NodeStorage[T]
	meta  Metadata
	cmp   Compare[T]
	batch int32
	log   zerolog.Logger
}

// NewIndex wraps storage, which may be empty or hold a previously built tree.
func NewIndex[T any](s NodeStorage[T], opts Options) *Index[T] {
	opts = opts.withDefaults()
	return &Index[T]{
		s:     s,
		meta:  s.Metadata(),
		cmp:   s.Compare,
		batch: int32(opts.StreamBatchSize),
		log:   logx.OrNop(opts.Logger),
	}
}

// NewMemoryIndex returns an empty index held in memory.
func NewMemoryIndex[T any](cmp Compare[T], opts Options) *Index[T] {
	return NewIndex[T](NewMemoryStorage(cmp), opts)
}

// OpenFileIndex opens or creates a file-backed index.
func OpenFileIndex[T any](path string, ser Serializer[T], cmp Compare[T], opts Options) (*Index[T], error) {
	s, err := OpenFileStorage(path, ser, cmp, opts)
	if err != nil {
		return nil, err
	}
	return NewIndex[T](s, opts), nil
}

// Storage returns the underlying slot storage.
func (x *Index[T]) Storage() NodeStorage[T] { return x.s }

// Count returns the number of live entities.
func (x *Index[T]) Count() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return int(x.meta.NumEntities)
}

// Capacity returns the number of allocated slots, live or free.
func (x *Index[T]) Capacity() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return int(x.meta.Capacity)
}

// Metadata returns a copy of the index metadata.
func (x *Index[T]) Metadata() Metadata {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.meta
}

// Close closes the storage.
func (x *Index[T]) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.s.Close()
}

// Insert adds e and returns its id. Entities equal to e under the
// comparator may already exist.
func (x *Index[T]) Insert(e T) (int32, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	snap := x.meta
	id, err := x.allocate()
	if err == nil {
		err = x.link(x.s.Create(id, e))
	}
	if err != nil {
		// allocate may have popped the free list; put the slot back.
		x.meta = snap
		if serr := x.saveMeta(); serr != nil {
			x.log.Error().Err(serr).Msg("restore metadata after failed insert")
		}
		return 0, err
	}
	x.meta.NumEntities++
	x.meta.Version++
	return id, x.saveMeta()
}

// Get returns the entity stored under id.
func (x *Index[T]) Get(id int32) (T, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	n, err := x.live(id)
	if err != nil {
		var zero T
		return zero, err
	}
	return n.Entity(), nil
}

// GetEntity returns the single entity equal to key. found is false if none
// match; ErrDuplicateKey is returned if more than one does.
func (x *Index[T]) GetEntity(key T) (e T, found bool, err error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	ids, err := x.findIDs(key, 2)
	if err != nil || len(ids) == 0 {
		return e, false, err
	}
	if len(ids) > 1 {
		return e, false, fmt.Errorf("%w: get", ErrDuplicateKey)
	}
	n, err := x.s.Get(ids[0])
	if err != nil {
		return e, false, err
	}
	return n.Entity(), true, nil
}

// GetAnyEntity returns one entity equal to key, if any.
func (x *Index[T]) GetAnyEntity(key T) (e T, found bool, err error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	path, err := x.s.LowerBound(key)
	if err != nil || path == nil {
		return e, false, err
	}
	got, err := path.Entity()
	if err != nil || x.cmp(got, key) != 0 {
		return e, false, err
	}
	return got, true, nil
}

// GetEntities returns every entity equal to key.
func (x *Index[T]) GetEntities(key T) ([]T, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	var out []T
	err := x.scanEqual(key, 0, func(id int32, e T) {
		out = append(out, e)
	})
	return out, err
}

// FindIDs returns the ids of every entity equal to key, in tree order.
func (x *Index[T]) FindIDs(key T) ([]int32, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.findIDs(key, 0)
}

// DeleteByID removes the entity stored under id and frees the slot.
func (x *Index[T]) DeleteByID(id int32) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.deleteByID(id)
}

// DeleteByKey removes the single entity equal to key. It returns false if
// nothing matches and ErrDuplicateKey if more than one entity does.
func (x *Index[T]) DeleteByKey(key T) (bool, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	ids, err := x.findIDs(key, 2)
	if err != nil || len(ids) == 0 {
		return false, err
	}
	if len(ids) > 1 {
		return false, fmt.Errorf("%w: delete", ErrDuplicateKey)
	}
	return true, x.deleteByID(ids[0])
}

// PutEntityByKey replaces the single entity equal to e and returns its id.
func (x *Index[T]) PutEntityByKey(e T) (int32, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	ids, err := x.findIDs(e, 2)
	if err != nil {
		return 0, err
	}
	switch len(ids) {
	case 0:
		return 0, fmt.Errorf("%w: put by key", ErrNotFound)
	case 1:
		return ids[0], x.putByID(ids[0], e)
	default:
		return 0, fmt.Errorf("%w: put by key", ErrDuplicateKey)
	}
}

// PutEntityByID replaces the entity stored under id. If the new value no
// longer fits between its neighbours the node is relinked elsewhere in
// the tree; the id stays the same.
func (x *Index[T]) PutEntityByID(id int32, e T) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.putByID(id, e)
}

func (x *Index[T]) live(id int32) (*Node[T], error) {
	n, err := x.s.Get(id)
	if err != nil {
		return nil, err
	}
	if n.Deleted() {
		return nil, fmt.Errorf("%w: %d", ErrDeleted, id)
	}
	return n, nil
}

// scanEqual visits entities equal to key in order, stopping after limit
// matches when limit > 0.
func (x *Index[T]) scanEqual(key T, limit int, fn func(id int32, e T)) error {
	path, err := x.s.LowerBound(key)
	for n := 0; err == nil && path != nil && (limit <= 0 || n < limit); n++ {
		var e T
		if e, err = path.Entity(); err != nil {
			break
		}
		if x.cmp(e, key) != 0 {
			break
		}
		fn(path.ID(), e)
		path, err = path.Successor()
	}
	return err
}

func (x *Index[T]) findIDs(key T, limit int) ([]int32, error) {
	var ids []int32
	err := x.scanEqual(key, limit, func(id int32, _ T) {
		ids = append(ids, id)
	})
	return ids, err
}

func (x *Index[T]) saveMeta() error {
	return x.s.SetMetadata(x.meta)
}
