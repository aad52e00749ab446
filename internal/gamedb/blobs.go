package gamedb

import (
	"encoding/binary"
	"fmt"

	"github.com/freeeve/chessdb/internal/graph"
)

// Moves blob: total length (4, LE, includes itself), then one
// little-endian uint16 per move as produced by graph.Move.Pack16.
func encodeMoves(moves []graph.Move) []byte {
	buf := make([]byte, 4+2*len(moves))
	binary.LittleEndian.PutUint32(buf, uint32(len(buf)))
	for i, m := range moves {
		binary.LittleEndian.PutUint16(buf[4+2*i:], m.Pack16())
	}
	return buf
}

func decodeMoves(data []byte) ([]graph.Move, error) {
	if len(data) < 4 || len(data)%2 != 0 {
		return nil, fmt.Errorf("%w: moves blob of %d bytes", ErrBadBlob, len(data))
	}
	moves := make([]graph.Move, 0, (len(data)-4)/2)
	for off := 4; off < len(data); off += 2 {
		m, err := graph.Unpack16(binary.LittleEndian.Uint16(data[off:]))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadBlob, err)
		}
		moves = append(moves, m)
	}
	return moves, nil
}

// Annotation blob: total length (4, LE), then the zstd-compressed text.
func (db *DB) encodeAnnotation(text string) []byte {
	buf := db.enc.EncodeAll([]byte(text), make([]byte, 4, 4+len(text)/2))
	binary.LittleEndian.PutUint32(buf, uint32(len(buf)))
	return buf
}

func (db *DB) decodeAnnotation(data []byte) (string, error) {
	if len(data) < 4 {
		return "", fmt.Errorf("%w: annotation blob of %d bytes", ErrBadBlob, len(data))
	}
	text, err := db.dec.DecodeAll(data[4:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadBlob, err)
	}
	return string(text), nil
}
