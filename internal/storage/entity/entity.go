// Package entity implements an AVL-balanced index over fixed-width records.
//
// Nodes live in numbered slots and refer to each other by slot id, so the
// same tree can sit in memory or in a flat file where a node's position is
// computed from its id. Ids never change once assigned: rotations rewrite
// the child links and balance factors of at most three nodes and never move
// a payload. Deleted slots are chained into a free list and reused by later
// inserts.
//
// Records written by one codec can be read by a codec of a different width.
// A narrower codec sees a prefix of the stored record and never touches the
// remainder; a wider codec sees zeros past the stored width and its extra
// fields are dropped on write.
package entity

import (
	"errors"

	"github.com/rs/zerolog"
)

const (
	// NoNode marks an absent child and an empty tree.
	NoNode int32 = -1
	// DeletedNode in a slot's left link marks the slot as free. The right
	// link then holds the next free slot.
	DeletedNode int32 = -2
)

var (
	// ErrDuplicateKey is returned by keyed operations that need a unique
	// match and found more than one.
	ErrDuplicateKey = errors.New("entity: duplicate key")
	// ErrNotFound is returned by keyed replacement when nothing matches.
	ErrNotFound = errors.New("entity: not found")
	// ErrConcurrentModification is returned by an iterator whose index
	// changed shape after the iterator was created.
	ErrConcurrentModification = errors.New("entity: index modified during iteration")
	// ErrDeleted is returned when an id refers to a free slot.
	ErrDeleted = errors.New("entity: slot is deleted")
	// ErrOutOfRange is returned for ids outside the allocated slots.
	ErrOutOfRange = errors.New("entity: id out of range")
	// ErrCorrupt is returned when the tree links are inconsistent.
	ErrCorrupt = errors.New("entity: corrupt tree")
)

// Serializer encodes one entity type to a fixed number of bytes.
type Serializer[T any] interface {
	// Size is the encoded width in bytes.
	Size() int
	// Serialize writes e into dst, which is exactly Size() bytes.
	Serialize(e T, dst []byte)
	// Deserialize decodes src, which is exactly Size() bytes.
	Deserialize(src []byte) T
}

// Compare orders entities: negative if a < b, zero if equal, positive if
// a > b. Entities that compare equal are duplicates of the same key.
type Compare[T any] func(a, b T) int

// Options configures an index. The zero value is usable.
type Options struct {
	StreamBatchSize int             // slots read per batch by Stream, default 1024
	Logger          *zerolog.Logger // nil disables logging
}

const defaultStreamBatchSize = 1024

func (o Options) withDefaults() Options {
	if o.StreamBatchSize <= 0 {
		o.StreamBatchSize = defaultStreamBatchSize
	}
	return o
}
