package entities

import (
	"fmt"
	"strings"
)

// Result of a game.
type Result uint8

const (
	ResultUnknown Result = iota
	ResultWhiteWins
	ResultDraw
	ResultBlackWins
)

// ParseResult maps a PGN result tag onto a Result.
func ParseResult(tag string) Result {
	switch tag {
	case "1-0":
		return ResultWhiteWins
	case "1/2-1/2":
		return ResultDraw
	case "0-1":
		return ResultBlackWins
	}
	return ResultUnknown
}

func (r Result) String() string {
	switch r {
	case ResultWhiteWins:
		return "1-0"
	case ResultDraw:
		return "1/2-1/2"
	case ResultBlackWins:
		return "0-1"
	}
	return "*"
}

// Date is a calendar date packed as yyyymmdd. Unknown parts are zero.
type Date int32

// ParseDate reads a PGN date tag ("2024.03.17", "2024.??.??").
func ParseDate(tag string) Date {
	var y, m, d int
	fmt.Sscanf(tag, "%d.%d.%d", &y, &m, &d)
	if y < 0 || y > 9999 || m < 0 || m > 12 || d < 0 || d > 31 {
		return 0
	}
	return Date(y*10000 + m*100 + d)
}

func (d Date) Year() int { return int(d) / 10000 }

// String formats d as a PGN date tag with "??" for unknown parts.
func (d Date) String() string {
	part := func(v, width int) string {
		if v == 0 {
			return strings.Repeat("?", width)
		}
		return fmt.Sprintf("%0*d", width, v)
	}
	return part(int(d)/10000, 4) + "." + part(int(d)/100%100, 2) + "." + part(int(d)%100, 2)
}

// ECO is an opening code such as "C50" packed as (letter-'A'+1)*100 + number.
// Zero means unclassified.
type ECO uint16

const NoECO ECO = 0

// ParseECO parses codes A00 through E99.
func ParseECO(s string) (ECO, error) {
	if len(s) != 3 || s[0] < 'A' || s[0] > 'E' || s[1] < '0' || s[1] > '9' || s[2] < '0' || s[2] > '9' {
		return NoECO, fmt.Errorf("bad ECO code %q", s)
	}
	return ECO(int(s[0]-'A'+1)*100 + int(s[1]-'0')*10 + int(s[2]-'0')), nil
}

func (e ECO) String() string {
	if e == NoECO {
		return ""
	}
	return fmt.Sprintf("%c%02d", 'A'+rune(e/100-1), int(e%100))
}

// GameHeaderV1Size is the width of headers written before the ECO field
// existed. Such files are read with ECO unset.
const (
	GameHeaderV1Size = 5*4 + 4 + 1 + 1 + 2 + 2 + 8 + 4 + 8 + 4
	GameHeaderSize   = GameHeaderV1Size + 2
)

// GameHeader is one row of games.idx. The game's id is its slot id. Moves
// and annotation live in blob stores at the recorded offsets; a zero
// length means the blob is absent.
type GameHeader struct {
	WhiteID      int32
	BlackID      int32
	TournamentID int32 // NoID if none
	SourceID     int32 // NoID if none
	Round        int32
	Date         Date
	Result       Result
	Flags        uint8
	WhiteElo     uint16
	BlackElo     uint16

	MovesOffset      int64
	MovesLength      int32
	AnnotationOffset int64
	AnnotationLength int32

	ECO ECO
}

// CompareGames orders games by date, then tournament and round. Many
// games share a key.
func CompareGames(a, b GameHeader) int {
	if c := cmpInt(a.Date, b.Date); c != 0 {
		return c
	}
	if c := cmpInt(a.TournamentID, b.TournamentID); c != 0 {
		return c
	}
	return cmpInt(a.Round, b.Round)
}

// GameHeaderSerializer layout:
//
//	0   WhiteID, BlackID, TournamentID, SourceID, Round (4 each)
//	20  Date (4)
//	24  Result (1)
//	25  Flags (1)
//	26  WhiteElo, BlackElo (2 each)
//	30  MovesOffset (8), MovesLength (4)
//	42  AnnotationOffset (8), AnnotationLength (4)
//	54  ECO (2)
type GameHeaderSerializer struct{}

func (GameHeaderSerializer) Size() int { return GameHeaderSize }

func (GameHeaderSerializer) Serialize(g GameHeader, dst []byte) {
	w := fieldWriter{buf: dst}
	w.i32(g.WhiteID)
	w.i32(g.BlackID)
	w.i32(g.TournamentID)
	w.i32(g.SourceID)
	w.i32(g.Round)
	w.i32(int32(g.Date))
	w.u8(uint8(g.Result))
	w.u8(g.Flags)
	w.u16(g.WhiteElo)
	w.u16(g.BlackElo)
	w.i64(g.MovesOffset)
	w.i32(g.MovesLength)
	w.i64(g.AnnotationOffset)
	w.i32(g.AnnotationLength)
	w.u16(uint16(g.ECO))
}

func (GameHeaderSerializer) Deserialize(src []byte) GameHeader {
	r := fieldReader{buf: src}
	return GameHeader{
		WhiteID:          r.i32(),
		BlackID:          r.i32(),
		TournamentID:     r.i32(),
		SourceID:         r.i32(),
		Round:            r.i32(),
		Date:             Date(r.i32()),
		Result:           Result(r.u8()),
		Flags:            r.u8(),
		WhiteElo:         r.u16(),
		BlackElo:         r.u16(),
		MovesOffset:      r.i64(),
		MovesLength:      r.i32(),
		AnnotationOffset: r.i64(),
		AnnotationLength: r.i32(),
		ECO:              ECO(r.u16()),
	}
}
