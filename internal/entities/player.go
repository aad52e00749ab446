package entities

// Player field widths.
const (
	LastNameWidth  = 30
	FirstNameWidth = 20

	PlayerV1Size = LastNameWidth + FirstNameWidth + 4
	PlayerSize   = PlayerV1Size + 4
)

// Player is one row of players.idx, keyed by name. Different people may
// share a name, so the key is not unique.
type Player struct {
	LastName    string
	FirstName   string
	Count       uint32 // games played
	FirstGameID int32  // id of the first game added, NoID if none
}

// Name renders "Last, First", or just the last name.
func (p Player) Name() string {
	if p.FirstName == "" {
		return p.LastName
	}
	return p.LastName + ", " + p.FirstName
}

// Normalize returns p with its names as PlayerSerializer stores them. Keys
// must be normalized before lookups so long names match their stored form.
func (p Player) Normalize() Player {
	p.LastName = fieldString(p.LastName, LastNameWidth)
	p.FirstName = fieldString(p.FirstName, FirstNameWidth)
	return p
}

// ComparePlayers orders players by last name, then first name.
func ComparePlayers(a, b Player) int {
	if c := compareFold(a.LastName, b.LastName); c != 0 {
		return c
	}
	return compareFold(a.FirstName, b.FirstName)
}

// PlayerSerializer encodes the current player layout:
//
//	0   LastName (30)
//	30  FirstName (20)
//	50  Count (4)
//	54  FirstGameID (4)
type PlayerSerializer struct{}

func (PlayerSerializer) Size() int { return PlayerSize }

func (PlayerSerializer) Serialize(p Player, dst []byte) {
	w := fieldWriter{buf: dst}
	w.str(p.LastName, LastNameWidth)
	w.str(p.FirstName, FirstNameWidth)
	w.u32(p.Count)
	w.i32(p.FirstGameID)
}

func (PlayerSerializer) Deserialize(src []byte) Player {
	r := fieldReader{buf: src}
	return Player{
		LastName:    r.str(LastNameWidth),
		FirstName:   r.str(FirstNameWidth),
		Count:       r.u32(),
		FirstGameID: r.i32(),
	}
}

// PlayerV1 is the original player layout, without FirstGameID. Files
// written with it stay readable by PlayerSerializer and the reverse: the
// missing field decodes as zero, and the extra one is left alone on disk.
type PlayerV1 struct {
	LastName  string
	FirstName string
	Count     uint32
}

func ComparePlayersV1(a, b PlayerV1) int {
	return ComparePlayers(Player{LastName: a.LastName, FirstName: a.FirstName},
		Player{LastName: b.LastName, FirstName: b.FirstName})
}

type PlayerV1Serializer struct{}

func (PlayerV1Serializer) Size() int { return PlayerV1Size }

func (PlayerV1Serializer) Serialize(p PlayerV1, dst []byte) {
	w := fieldWriter{buf: dst}
	w.str(p.LastName, LastNameWidth)
	w.str(p.FirstName, FirstNameWidth)
	w.u32(p.Count)
}

func (PlayerV1Serializer) Deserialize(src []byte) PlayerV1 {
	r := fieldReader{buf: src}
	return PlayerV1{
		LastName:  r.str(LastNameWidth),
		FirstName: r.str(FirstNameWidth),
		Count:     r.u32(),
	}
}
