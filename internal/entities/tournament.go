package entities

const (
	TitleWidth     = 40
	PlaceWidth     = 30
	PublisherWidth = 30

	TournamentSize = TitleWidth + PlaceWidth + 2 + 1 + 4
	SourceSize     = TitleWidth + PublisherWidth + 2
)

// Tournament is one row of tournaments.idx, keyed by year, title and place.
type Tournament struct {
	Title  string
	Place  string
	Year   int16 // 0 if unknown
	Rounds uint8
	Count  uint32 // games played
}

// Normalize returns t with its strings as TournamentSerializer stores them.
func (t Tournament) Normalize() Tournament {
	t.Title = fieldString(t.Title, TitleWidth)
	t.Place = fieldString(t.Place, PlaceWidth)
	return t
}

func CompareTournaments(a, b Tournament) int {
	if c := cmpInt(a.Year, b.Year); c != 0 {
		return c
	}
	if c := compareFold(a.Title, b.Title); c != 0 {
		return c
	}
	return compareFold(a.Place, b.Place)
}

// TournamentSerializer layout:
//
//	0   Title (40)
//	40  Place (30)
//	70  Year (2)
//	72  Rounds (1)
//	73  Count (4)
type TournamentSerializer struct{}

func (TournamentSerializer) Size() int { return TournamentSize }

func (TournamentSerializer) Serialize(t Tournament, dst []byte) {
	w := fieldWriter{buf: dst}
	w.str(t.Title, TitleWidth)
	w.str(t.Place, PlaceWidth)
	w.u16(uint16(t.Year))
	w.u8(t.Rounds)
	w.u32(t.Count)
}

func (TournamentSerializer) Deserialize(src []byte) Tournament {
	r := fieldReader{buf: src}
	return Tournament{
		Title:  r.str(TitleWidth),
		Place:  r.str(PlaceWidth),
		Year:   int16(r.u16()),
		Rounds: r.u8(),
		Count:  r.u32(),
	}
}

// Source is one row of sources.idx: the publication a game came from.
type Source struct {
	Title     string
	Publisher string
	Year      int16
}

// Normalize returns s with its strings as SourceSerializer stores them.
func (s Source) Normalize() Source {
	s.Title = fieldString(s.Title, TitleWidth)
	s.Publisher = fieldString(s.Publisher, PublisherWidth)
	return s
}

func CompareSources(a, b Source) int {
	if c := compareFold(a.Title, b.Title); c != 0 {
		return c
	}
	if c := compareFold(a.Publisher, b.Publisher); c != 0 {
		return c
	}
	return cmpInt(a.Year, b.Year)
}

// SourceSerializer layout:
//
//	0   Title (40)
//	40  Publisher (30)
//	70  Year (2)
type SourceSerializer struct{}

func (SourceSerializer) Size() int { return SourceSize }

func (SourceSerializer) Serialize(s Source, dst []byte) {
	w := fieldWriter{buf: dst}
	w.str(s.Title, TitleWidth)
	w.str(s.Publisher, PublisherWidth)
	w.u16(uint16(s.Year))
}

func (SourceSerializer) Deserialize(src []byte) Source {
	r := fieldReader{buf: src}
	return Source{
		Title:     r.str(TitleWidth),
		Publisher: r.str(PublisherWidth),
		Year:      int16(r.u16()),
	}
}
