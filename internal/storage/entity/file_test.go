package entity

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/freeeve/chessdb/internal/logx"
	"github.com/freeeve/chessdb/internal/storage"
)

func openRec(t *testing.T, path string, opts Options) *Index[rec] {
	t.Helper()
	x, err := OpenFileIndex[rec](path, recSerializer{}, compareRec, opts)
	if err != nil {
		t.Fatalf("OpenFileIndex: %v", err)
	}
	return x
}

func openWide(t *testing.T, path string) *Index[wideRec] {
	t.Helper()
	x, err := OpenFileIndex[wideRec](path, wideSerializer{}, compareWide, Options{})
	if err != nil {
		t.Fatalf("OpenFileIndex: %v", err)
	}
	return x
}

func TestFileIndexReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "players.idx")
	x := openRec(t, path, Options{})
	insertKeys(t, x, "d", "t", "b", "e", "q", "w", "a", "l", "c", "v")
	if err := x.DeleteByID(4); err != nil {
		t.Fatal(err)
	}
	before := x.Metadata()
	if err := x.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	x = openRec(t, path, Options{})
	defer x.Close()
	after := x.Metadata()
	before.Version, after.Version = 0, 0
	if after != before {
		t.Errorf("metadata after reopen = %+v, want %+v", after, before)
	}
	mustValidate(t, x)
	if got, want := keysOf(t, x.StreamOrderedAscending()), strings.Split("a,b,c,d,e,l,t,v,w", ","); !slices.Equal(got, want) {
		t.Errorf("keys = %v, want %v", got, want)
	}
	if id := mustInsert(t, x, "z", 0); id != 4 {
		t.Errorf("insert after reopen got id %d, want the freed id 4", id)
	}
}

func TestFileIndexLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layout.idx")
	x := openRec(t, path, Options{})
	insertKeys(t, x, "a", "b", "c")
	if err := x.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	slot := controlSize + recSerializer{}.Size()
	if len(data) != fixedHeaderSize+3*slot {
		t.Fatalf("file is %d bytes, want %d", len(data), fixedHeaderSize+3*slot)
	}
	u32 := func(off int) int32 { return int32(binary.LittleEndian.Uint32(data[off:])) }
	if u32(0) != 3 || u32(4) != 1 || uint32(u32(8)) != FileMagic || u32(12) != 20 ||
		u32(16) != NoNode || u32(20) != 3 || u32(24) != 0 {
		t.Errorf("header = % x", data[:fixedHeaderSize])
	}

	// b (id 1) is the root after the rotation, with a and c as children.
	b := data[fixedHeaderSize+slot:]
	if left, right, hd := decodeControl(b); left != 0 || right != 2 || hd != 0 {
		t.Errorf("root links = (%d, %d, %d), want (0, 2, 0)", left, right, hd)
	}
	if !bytes.HasPrefix(b[controlSize:], []byte("b\x00")) {
		t.Errorf("root payload = % x", b[controlSize:slot])
	}
}

func TestCrossWidthNarrowReadsWide(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wide.idx")
	w := openWide(t, path)
	for i, k := range []string{"m", "f", "s", "b"} {
		if _, err := w.Insert(wideRec{k, int32(i), 1000 + int32(i)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	n := openRec(t, path, Options{})
	if got := n.Metadata().SerializedEntitySize; got != 24 {
		t.Errorf("stored width = %d, want 24", got)
	}
	if got, want := keysOf(t, n.StreamOrderedAscending()), []string{"b", "f", "m", "s"}; !slices.Equal(got, want) {
		t.Errorf("keys = %v, want %v", got, want)
	}
	// Writes through the narrow codec: a new record, an in-place update and
	// a rotation-causing insert.
	if err := n.PutEntityByID(1, rec{"f", 77}); err != nil {
		t.Fatal(err)
	}
	mustInsert(t, n, "a", 5)
	mustInsert(t, n, "c", 6)
	mustValidate(t, n)
	if err := n.Close(); err != nil {
		t.Fatal(err)
	}

	w = openWide(t, path)
	defer w.Close()
	if err := w.ValidateStructure(); err != nil {
		t.Fatal(err)
	}
	for id, want := range map[int32]wideRec{
		0: {"m", 0, 1000},
		1: {"f", 77, 1001}, // trailing field untouched by the narrow write
		2: {"s", 2, 1002},
		3: {"b", 3, 1003},
		4: {"a", 5, 0},
	} {
		got, err := w.Get(id)
		if err != nil {
			t.Fatalf("Get(%d): %v", id, err)
		}
		if got != want {
			t.Errorf("Get(%d) = %+v, want %+v", id, got, want)
		}
	}
}

func TestCrossWidthWideReadsNarrow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "narrow.idx")
	n := openRec(t, path, Options{})
	insertKeys(t, n, "k", "j", "l")
	if err := n.Close(); err != nil {
		t.Fatal(err)
	}

	w := openWide(t, path)
	defer w.Close()
	got, err := w.Get(0)
	if err != nil {
		t.Fatal(err)
	}
	if got != (wideRec{"k", 0, 0}) {
		t.Errorf("Get(0) = %+v, want zero Extra", got)
	}
	// The extra field does not fit the stored record and is dropped.
	if err := w.PutEntityByID(0, wideRec{"k", 9, 123}); err != nil {
		t.Fatal(err)
	}
	id, err := w.Insert(wideRec{"z", 1, 456})
	if err != nil {
		t.Fatal(err)
	}
	for id, want := range map[int32]wideRec{0: {"k", 9, 0}, id: {"z", 1, 0}} {
		got, err := w.Get(id)
		if err != nil || got != want {
			t.Errorf("Get(%d) = %+v, %v; want %+v", id, got, err, want)
		}
	}
	if w.Metadata().SerializedEntitySize != 20 {
		t.Errorf("stored width changed to %d", w.Metadata().SerializedEntitySize)
	}
	if err := w.ValidateStructure(); err != nil {
		t.Fatal(err)
	}
}

func writeHeader(t *testing.T, path string, fields [7]int32, extra []byte) {
	t.Helper()
	buf := make([]byte, fixedHeaderSize)
	for i, v := range fields {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
	if err := os.WriteFile(path, append(buf, extra...), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestOpenFileIndexRejectsBadHeaders(t *testing.T) {
	magic := int32(FileMagic)
	tests := []struct {
		name   string
		fields [7]int32
		extra  []byte
	}{
		{"bad magic", [7]int32{0, NoNode, 0x1234, 20, NoNode, 0, 0}, nil},
		{"zero width", [7]int32{0, NoNode, magic, 0, NoNode, 0, 0}, nil},
		{"root out of range", [7]int32{0, 3, magic, 20, NoNode, 1, 0}, nil},
		{"missing slots", [7]int32{4, 0, magic, 20, NoNode, 1, 0}, nil},
		{"missing reserved bytes", [7]int32{0, NoNode, magic, 20, NoNode, 0, 8}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.idx")
			writeHeader(t, path, tt.fields, tt.extra)
			_, err := OpenFileIndex[rec](path, recSerializer{}, compareRec, Options{})
			if !errors.Is(err, storage.ErrInvalidFormat) {
				t.Errorf("OpenFileIndex = %v, want ErrInvalidFormat", err)
			}
		})
	}

	t.Run("truncated header", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "short.idx")
		if err := os.WriteFile(path, []byte{1, 2, 3}, 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := OpenFileIndex[rec](path, recSerializer{}, compareRec, Options{}); !errors.Is(err, storage.ErrInvalidFormat) {
			t.Errorf("OpenFileIndex = %v, want ErrInvalidFormat", err)
		}
	})
}

func TestReservedHeaderBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reserved.idx")
	// One node "r" in slot 0 behind 8 reserved header bytes.
	slot := make([]byte, controlSize+20)
	encodeControl(slot, NoNode, NoNode, 0)
	recSerializer{}.Serialize(rec{"r", 3}, slot[controlSize:])
	extra := append([]byte{0, 0, 7, 0, 0, 0, 0, 0}, slot...)
	writeHeader(t, path, [7]int32{1, 0, int32(FileMagic), 20, NoNode, 1, 8}, extra)

	var logs bytes.Buffer
	log := logx.NewLoggerTo(&logs, logx.ParseLevel("debug"))
	x := openRec(t, path, Options{Logger: &log})
	defer x.Close()

	if !strings.Contains(logs.String(), "reserved header bytes are not zero") {
		t.Errorf("expected a reserved-bytes warning, got %q", logs.String())
	}
	got, err := x.Get(0)
	if err != nil || got != (rec{"r", 3}) {
		t.Errorf("Get(0) = %+v, %v", got, err)
	}
	mustInsert(t, x, "s", 4)
	mustValidate(t, x)
	if x.Metadata().HeaderSize != fixedHeaderSize+8 {
		t.Errorf("HeaderSize = %d", x.Metadata().HeaderSize)
	}
}

func TestOversizedFileIsWarned(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.idx")
	x := openRec(t, path, Options{})
	insertKeys(t, x, "a")
	x.Close()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	f.Write(make([]byte, 13))
	f.Close()

	var logs bytes.Buffer
	log := logx.NewLoggerTo(&logs, logx.ParseLevel("debug"))
	x = openRec(t, path, Options{Logger: &log})
	defer x.Close()
	if !strings.Contains(logs.String(), "larger than its capacity") {
		t.Errorf("expected a size warning, got %q", logs.String())
	}
	mustValidate(t, x)
}
