// Package graph holds the compact move encoding shared by ingest and the
// move blobs.
package graph

import (
	"fmt"

	"github.com/freeeve/pgn/v3"
)

// Move encodes from-square, to-square and promotion in a uint32:
//
//	bits 0-5:   from square (0-63)
//	bits 6-11:  to square (0-63)
//	bits 12-14: promotion piece (0=none, 1=Q, 2=R, 3=B, 4=N)
//	bits 15-31: reserved, always zero in stored moves
type Move uint32

const (
	moveFromMask   = 0x3F   // bits 0-5
	moveToMask     = 0xFC0  // bits 6-11
	movePromoMask  = 0x7000 // bits 12-14
	movePromoShift = 12
	moveToShift    = 6

	// packedMask covers every bit a stored move may use.
	packedMask = moveFromMask | moveToMask | movePromoMask
)

// Promotion piece types
const (
	PromoNone   = 0
	PromoQueen  = 1
	PromoRook   = 2
	PromoBishop = 3
	PromoKnight = 4
)

// EncodeMove creates a Move from square indices and optional promotion.
// from, to: square indices 0-63 (A1=0, B1=1, ..., H8=63)
func EncodeMove(from, to int, promo byte) Move {
	if from < 0 || from > 63 || to < 0 || to > 63 || promo > PromoKnight {
		return 0
	}
	m := uint32(from) | (uint32(to) << moveToShift) | (uint32(promo) << movePromoShift)
	return Move(m)
}

// DecodeMove extracts from square, to square, and promotion from a Move.
func DecodeMove(m Move) (from, to int, promo byte) {
	return m.FromSquare(), m.ToSquare(), m.Promotion()
}

// FromPGN converts a move produced by the PGN parser.
func FromPGN(mv pgn.Mv) Move {
	var promo byte
	switch mv.Promo {
	case pgn.PromoQueen:
		promo = PromoQueen
	case pgn.PromoRook:
		promo = PromoRook
	case pgn.PromoBishop:
		promo = PromoBishop
	case pgn.PromoKnight:
		promo = PromoKnight
	}
	return EncodeMove(int(mv.From), int(mv.To), promo)
}

// FromSquare returns the source square index (0-63).
func (m Move) FromSquare() int {
	return int(m & moveFromMask)
}

// ToSquare returns the destination square index (0-63).
func (m Move) ToSquare() int {
	return int((m & moveToMask) >> moveToShift)
}

// Promotion returns the promotion piece (0=none, 1=Q, 2=R, 3=B, 4=N).
func (m Move) Promotion() byte {
	return byte((m & movePromoMask) >> movePromoShift)
}

// Pack16 returns the two-byte form written to move blobs. Reserved bits
// are dropped.
func (m Move) Pack16() uint16 {
	return uint16(m & packedMask)
}

// Unpack16 is the inverse of Pack16. It rejects values with the top bit set
// or an unknown promotion piece.
func Unpack16(v uint16) (Move, error) {
	m := Move(v)
	if v&^packedMask != 0 || m.Promotion() > PromoKnight {
		return 0, fmt.Errorf("invalid packed move %#04x", v)
	}
	return m, nil
}

// ToUCI converts a Move to UCI notation (e.g., "e2e4", "e7e8q").
func (m Move) ToUCI() string {
	from := m.FromSquare()
	to := m.ToSquare()

	uci := string([]byte{
		byte('a' + from%8), byte('1' + from/8),
		byte('a' + to%8), byte('1' + to/8),
	})
	if promo := m.Promotion(); promo > 0 && promo <= PromoKnight {
		uci += string("qrbn"[promo-1])
	}
	return uci
}

// MoveFromUCI parses a UCI move string into a Move.
// Examples: "e2e4", "e7e8q", "a1h8"
func MoveFromUCI(uci string) (Move, error) {
	if len(uci) < 4 {
		return 0, fmt.Errorf("UCI move too short: %s", uci)
	}

	fromFile := int(uci[0]) - 'a'
	fromRank := int(uci[1]) - '1'
	toFile := int(uci[2]) - 'a'
	toRank := int(uci[3]) - '1'

	if fromFile < 0 || fromFile > 7 || fromRank < 0 || fromRank > 7 {
		return 0, fmt.Errorf("invalid from square in UCI: %s", uci)
	}
	if toFile < 0 || toFile > 7 || toRank < 0 || toRank > 7 {
		return 0, fmt.Errorf("invalid to square in UCI: %s", uci)
	}

	var promo byte = PromoNone
	if len(uci) >= 5 {
		switch uci[4] {
		case 'q', 'Q':
			promo = PromoQueen
		case 'r', 'R':
			promo = PromoRook
		case 'b', 'B':
			promo = PromoBishop
		case 'n', 'N':
			promo = PromoKnight
		default:
			return 0, fmt.Errorf("invalid promotion piece: %c", uci[4])
		}
	}

	return EncodeMove(fromRank*8+fromFile, toRank*8+toFile, promo), nil
}
