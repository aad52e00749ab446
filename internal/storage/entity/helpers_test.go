package entity

import (
	"encoding/binary"
	"path/filepath"
	"strings"
	"testing"
)

const keyWidth = 16

// rec is the narrow test record: 16-byte key, 4-byte value.
type rec struct {
	Key   string
	Value int32
}

type recSerializer struct{}

func (recSerializer) Size() int { return keyWidth + 4 }

func (recSerializer) Serialize(r rec, dst []byte) {
	putString(dst[:keyWidth], r.Key)
	binary.LittleEndian.PutUint32(dst[keyWidth:], uint32(r.Value))
}

func (recSerializer) Deserialize(src []byte) rec {
	return rec{
		Key:   getString(src[:keyWidth]),
		Value: int32(binary.LittleEndian.Uint32(src[keyWidth:])),
	}
}

// wideRec is a later version of rec with one more field.
type wideRec struct {
	Key   string
	Value int32
	Extra int32
}

type wideSerializer struct{}

func (wideSerializer) Size() int { return keyWidth + 8 }

func (wideSerializer) Serialize(r wideRec, dst []byte) {
	putString(dst[:keyWidth], r.Key)
	binary.LittleEndian.PutUint32(dst[keyWidth:], uint32(r.Value))
	binary.LittleEndian.PutUint32(dst[keyWidth+4:], uint32(r.Extra))
}

func (wideSerializer) Deserialize(src []byte) wideRec {
	return wideRec{
		Key:   getString(src[:keyWidth]),
		Value: int32(binary.LittleEndian.Uint32(src[keyWidth:])),
		Extra: int32(binary.LittleEndian.Uint32(src[keyWidth+4:])),
	}
}

func putString(dst []byte, s string) {
	clear(dst)
	copy(dst, s)
}

func getString(src []byte) string {
	if i := strings.IndexByte(string(src), 0); i >= 0 {
		return string(src[:i])
	}
	return string(src)
}

func compareRec(a, b rec) int { return strings.Compare(a.Key, b.Key) }

func compareWide(a, b wideRec) int { return strings.Compare(a.Key, b.Key) }

type backend struct {
	name string
	open func(t *testing.T, opts Options) *Index[rec]
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T, opts Options) *Index[rec] {
			return NewMemoryIndex(compareRec, opts)
		}},
		{"file", func(t *testing.T, opts Options) *Index[rec] {
			x, err := OpenFileIndex[rec](filepath.Join(t.TempDir(), "test.idx"), recSerializer{}, compareRec, opts)
			if err != nil {
				t.Fatalf("OpenFileIndex: %v", err)
			}
			return x
		}},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, x *Index[rec])) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			x := b.open(t, Options{})
			defer x.Close()
			fn(t, x)
		})
	}
}

func mustInsert(t *testing.T, x *Index[rec], key string, value int32) int32 {
	t.Helper()
	id, err := x.Insert(rec{key, value})
	if err != nil {
		t.Fatalf("Insert(%q): %v", key, err)
	}
	return id
}

func insertKeys(t *testing.T, x *Index[rec], keys ...string) []int32 {
	t.Helper()
	ids := make([]int32, len(keys))
	for i, k := range keys {
		ids[i] = mustInsert(t, x, k, int32(i))
	}
	return ids
}

func mustValidate(t *testing.T, x *Index[rec]) {
	t.Helper()
	if err := x.ValidateStructure(); err != nil {
		t.Fatalf("ValidateStructure: %v", err)
	}
}

func keysOf(t *testing.T, it *Iterator[rec]) []string {
	t.Helper()
	var keys []string
	for it.Next() {
		keys = append(keys, it.Entity().Key)
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iterator: %v", err)
	}
	return keys
}

// height computes the tree height by walking from the root.
func height(t *testing.T, x *Index[rec], id int32) int {
	t.Helper()
	if id == NoNode {
		return 0
	}
	n, err := x.Storage().Get(id)
	if err != nil {
		t.Fatalf("Get(%d): %v", id, err)
	}
	return 1 + max(height(t, x, n.Left), height(t, x, n.Right))
}
