package blob

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"testing"
)

// makeBlob builds a blob with a 4-byte total-length prefix.
func makeBlob(payload []byte) []byte {
	buf := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(buf, uint32(len(buf)))
	copy(buf[4:], payload)
	return buf
}

func filledBlob(n int, seed byte) []byte {
	payload := make([]byte, n)
	for i := range payload {
		payload[i] = seed + byte(i*7)
	}
	return makeBlob(payload)
}

type storeFactory struct {
	name string
	open func(t *testing.T, opts Options) Store
}

func factories() []storeFactory {
	return []storeFactory{
		{"memory", func(t *testing.T, opts Options) Store {
			return NewMemoryStore(Uint32Size, opts)
		}},
		{"file", func(t *testing.T, opts Options) Store {
			s, err := OpenFileStore(filepath.Join(t.TempDir(), "blobs.bin"), Uint32Size, opts)
			if err != nil {
				t.Fatalf("OpenFileStore: %v", err)
			}
			return s
		}},
		{"file-cached", func(t *testing.T, opts Options) Store {
			opts.CacheBytes = 1 << 20
			s, err := OpenFileStore(filepath.Join(t.TempDir(), "blobs.bin"), Uint32Size, opts)
			if err != nil {
				t.Fatalf("OpenFileStore: %v", err)
			}
			return s
		}},
	}
}

func mustRead(t *testing.T, s Store, off int64) []byte {
	t.Helper()
	got, err := s.ReadBlob(off)
	if err != nil {
		t.Fatalf("ReadBlob(%d): %v", off, err)
	}
	return got
}

func mustWrite(t *testing.T, s Store, data []byte) int64 {
	t.Helper()
	off, err := s.WriteBlob(data)
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	return off
}

func TestSpliceRoundTrip(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			s := f.open(t, Options{ChunkSize: 5})
			defer s.Close()

			a, b, c := makeBlob([]byte("alpha")), makeBlob([]byte("bravo!")), makeBlob([]byte("charlie"))
			offA, offB, offC := mustWrite(t, s, a), mustWrite(t, s, b), mustWrite(t, s, c)
			if offA != 0 || offB != int64(len(a)) || offC != offB+int64(len(b)) {
				t.Fatalf("offsets = %d,%d,%d", offA, offB, offC)
			}

			if err := s.Insert(offB, 8); err != nil {
				t.Fatalf("Insert: %v", err)
			}
			if got := s.Size(); got != int64(len(a)+len(b)+len(c)+8) {
				t.Errorf("Size = %d, want %d", got, len(a)+len(b)+len(c)+8)
			}
			if got := mustRead(t, s, offA); !bytes.Equal(got, a) {
				t.Errorf("A = %q, want %q", got, a)
			}
			if got := mustRead(t, s, offB+8); !bytes.Equal(got, b) {
				t.Errorf("B = %q, want %q", got, b)
			}
			if got := mustRead(t, s, offC+8); !bytes.Equal(got, c) {
				t.Errorf("C = %q, want %q", got, c)
			}
		})
	}
}

func TestGrowBlobInPlace(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			s := f.open(t, Options{ChunkSize: 3})
			defer s.Close()

			first := mustWrite(t, s, makeBlob([]byte("one")))
			second := mustWrite(t, s, makeBlob([]byte("two")))

			grown := makeBlob([]byte("one, now longer"))
			delta := int64(len(grown) - 7)
			if err := s.Insert(first, delta); err != nil {
				t.Fatalf("Insert: %v", err)
			}
			if err := s.WriteBlobAt(first, grown); err != nil {
				t.Fatalf("WriteBlobAt: %v", err)
			}
			if got := mustRead(t, s, first); !bytes.Equal(got, grown) {
				t.Errorf("first = %q, want %q", got, grown)
			}
			if got := mustRead(t, s, second+delta); !bytes.Equal(got, makeBlob([]byte("two"))) {
				t.Errorf("second = %q", got)
			}
		})
	}
}

func TestLargeBlobsAcrossChunks(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			s := f.open(t, Options{ChunkSize: 1000, PrefetchSize: 64})
			defer s.Close()

			blobs := [][]byte{filledBlob(5000, 1), filledBlob(12345, 2), filledBlob(3000, 3)}
			offs := make([]int64, len(blobs))
			for i, b := range blobs {
				offs[i] = mustWrite(t, s, b)
			}
			if err := s.Insert(offs[1], 2500); err != nil {
				t.Fatalf("Insert: %v", err)
			}
			offs[1] += 2500
			offs[2] += 2500
			for i, b := range blobs {
				if got := mustRead(t, s, offs[i]); !bytes.Equal(got, b) {
					t.Errorf("blob %d differs after splice (len %d, want %d)", i, len(got), len(b))
				}
			}

			// The gap reads back as zeros.
			gap := make([]byte, 4)
			if ms, ok := s.(*MemoryStore); ok {
				copy(gap, ms.buf[offs[1]-2500:])
			}
			if fs, ok := s.(*FileStore); ok {
				if err := fs.readAt(gap, offs[1]-2500); err != nil {
					t.Fatalf("readAt: %v", err)
				}
			}
			if !bytes.Equal(gap, []byte{0, 0, 0, 0}) {
				t.Errorf("gap = %x, want zeros", gap)
			}
		})
	}
}

func TestRandomInsertsWithBookkeeping(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			s := f.open(t, Options{ChunkSize: 97, PrefetchSize: 16})
			defer s.Close()
			rng := rand.New(rand.NewPCG(7, 11))

			type entry struct {
				off  int64
				data []byte
			}
			var entries []entry
			for i := 0; i < 20; i++ {
				data := filledBlob(rng.IntN(200), byte(i))
				entries = append(entries, entry{mustWrite(t, s, data), data})
			}

			for op := 0; op < 150; op++ {
				if rng.IntN(4) == 0 {
					data := filledBlob(rng.IntN(300), byte(op))
					entries = append(entries, entry{mustWrite(t, s, data), data})
					continue
				}
				i := rng.IntN(len(entries))
				grown := filledBlob(len(entries[i].data)-4+1+rng.IntN(400), byte(op))
				delta := int64(len(grown) - len(entries[i].data))
				at := entries[i].off
				if err := s.Insert(at, delta); err != nil {
					t.Fatalf("op %d: Insert: %v", op, err)
				}
				if err := s.WriteBlobAt(at, grown); err != nil {
					t.Fatalf("op %d: WriteBlobAt: %v", op, err)
				}
				entries[i].data = grown
				for j := range entries {
					if j != i && entries[j].off > at {
						entries[j].off += delta
					}
				}
			}

			var total int64
			for i, e := range entries {
				total += int64(len(e.data))
				if got := mustRead(t, s, e.off); !bytes.Equal(got, e.data) {
					t.Fatalf("entry %d at %d: got %d bytes, want %d", i, e.off, len(got), len(e.data))
				}
			}
			if s.Size() != total {
				t.Errorf("Size = %d, want %d", s.Size(), total)
			}
		})
	}
}

func TestReadBlobErrors(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			s := f.open(t, Options{})
			defer s.Close()

			mustWrite(t, s, makeBlob([]byte("x")))
			if _, err := s.ReadBlob(100); !errors.Is(err, ErrOutOfBounds) {
				t.Errorf("ReadBlob(100) = %v, want ErrOutOfBounds", err)
			}
			// A length prefix pointing past the end.
			bad := []byte{200, 0, 0, 0, 1}
			off := mustWrite(t, s, bad)
			if _, err := s.ReadBlob(off); !errors.Is(err, ErrBadLength) {
				t.Errorf("ReadBlob(bad) = %v, want ErrBadLength", err)
			}
			if err := s.WriteBlobAt(s.Size()-1, []byte{1, 2}); !errors.Is(err, ErrOutOfBounds) {
				t.Errorf("WriteBlobAt past end = %v, want ErrOutOfBounds", err)
			}
			if err := s.Insert(s.Size()+1, 1); !errors.Is(err, ErrOutOfBounds) {
				t.Errorf("Insert past end = %v, want ErrOutOfBounds", err)
			}
		})
	}
}

func TestInsertAtEnd(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			s := f.open(t, Options{})
			defer s.Close()

			a := makeBlob([]byte("tail"))
			mustWrite(t, s, a)
			if err := s.Insert(s.Size(), 6); err != nil {
				t.Fatalf("Insert: %v", err)
			}
			if got := mustRead(t, s, 0); !bytes.Equal(got, a) {
				t.Errorf("blob = %q, want %q", got, a)
			}
			if s.Size() != int64(len(a)+6) {
				t.Errorf("Size = %d", s.Size())
			}
		})
	}
}
