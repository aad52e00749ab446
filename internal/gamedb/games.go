package gamedb

import (
	"fmt"

	"github.com/freeeve/chessdb/internal/entities"
	"github.com/freeeve/chessdb/internal/graph"
	"github.com/freeeve/chessdb/internal/storage/blob"
)

// Game is a complete game as added to or read from the database. Only the
// key fields of White, Black, Tournament and Source are used by AddGame;
// an empty tournament or source title means none.
type Game struct {
	ID         int32
	White      entities.Player
	Black      entities.Player
	Tournament entities.Tournament
	Source     entities.Source
	Round      int32
	Date       entities.Date
	Result     entities.Result
	WhiteElo   uint16
	BlackElo   uint16
	ECO        entities.ECO
	Moves      []graph.Move
	Annotation string
}

// AddGame stores g and returns its id. Players and the tournament are
// matched by key and created when missing; their game counts are bumped.
func (db *DB) AddGame(g Game) (int32, error) {
	if err := checkMoves(g.Moves); err != nil {
		return 0, err
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	h := entities.GameHeader{
		TournamentID: entities.NoID,
		SourceID:     entities.NoID,
		Round:        g.Round,
		Date:         g.Date,
		Result:       g.Result,
		WhiteElo:     g.WhiteElo,
		BlackElo:     g.BlackElo,
		ECO:          g.ECO,
	}
	var newPlayers []int32
	for _, side := range []struct {
		p  entities.Player
		id *int32
	}{{g.White, &h.WhiteID}, {g.Black, &h.BlackID}} {
		id, created, err := db.resolvePlayer(side.p)
		if err != nil {
			return 0, fmt.Errorf("player %q: %w", side.p.Name(), err)
		}
		*side.id = id
		if created {
			newPlayers = append(newPlayers, id)
		}
	}
	if g.Tournament.Title != "" {
		id, err := db.resolveTournament(g.Tournament)
		if err != nil {
			return 0, fmt.Errorf("tournament %q: %w", g.Tournament.Title, err)
		}
		h.TournamentID = id
	}
	if g.Source.Title != "" {
		id, err := db.resolveSource(g.Source)
		if err != nil {
			return 0, fmt.Errorf("source %q: %w", g.Source.Title, err)
		}
		h.SourceID = id
	}

	data := encodeMoves(g.Moves)
	off, err := db.moves.WriteBlob(data)
	if err != nil {
		return 0, err
	}
	h.MovesOffset, h.MovesLength = off, int32(len(data))
	if g.Annotation != "" {
		data := db.encodeAnnotation(g.Annotation)
		off, err := db.annotations.WriteBlob(data)
		if err != nil {
			return 0, err
		}
		h.AnnotationOffset, h.AnnotationLength = off, int32(len(data))
	}

	id, err := db.games.Insert(h)
	if err != nil {
		return 0, err
	}
	for _, pid := range newPlayers {
		p, err := db.players.Get(pid)
		if err != nil {
			return 0, err
		}
		if p.FirstGameID == entities.NoID {
			p.FirstGameID = id
			if err := db.players.PutEntityByID(pid, p); err != nil {
				return 0, err
			}
		}
	}
	return id, nil
}

// resolvePlayer returns the id of the first player with p's key, counting
// one more game for it, or inserts p.
func (db *DB) resolvePlayer(p entities.Player) (id int32, created bool, err error) {
	p = p.Normalize()
	ids, err := db.players.FindIDs(p)
	if err != nil {
		return 0, false, err
	}
	if len(ids) > 0 {
		cur, err := db.players.Get(ids[0])
		if err != nil {
			return 0, false, err
		}
		cur.Count++
		return ids[0], false, db.players.PutEntityByID(ids[0], cur)
	}
	p.Count, p.FirstGameID = 1, entities.NoID
	id, err = db.players.Insert(p)
	return id, true, err
}

func (db *DB) resolveTournament(t entities.Tournament) (int32, error) {
	t = t.Normalize()
	ids, err := db.tournaments.FindIDs(t)
	if err != nil {
		return 0, err
	}
	if len(ids) > 0 {
		cur, err := db.tournaments.Get(ids[0])
		if err != nil {
			return 0, err
		}
		cur.Count++
		cur.Rounds = max(cur.Rounds, t.Rounds)
		return ids[0], db.tournaments.PutEntityByID(ids[0], cur)
	}
	t.Count = 1
	return db.tournaments.Insert(t)
}

func (db *DB) resolveSource(s entities.Source) (int32, error) {
	s = s.Normalize()
	ids, err := db.sources.FindIDs(s)
	if err != nil {
		return 0, err
	}
	if len(ids) > 0 {
		return ids[0], nil
	}
	return db.sources.Insert(s)
}

// Header returns the stored header of game id.
func (db *DB) Header(id int32) (entities.GameHeader, error) {
	return db.games.Get(id)
}

// Game reads game id with its players, tournament, source, moves and
// annotation.
func (db *DB) Game(id int32) (Game, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	h, err := db.games.Get(id)
	if err != nil {
		return Game{}, err
	}
	g := Game{
		ID:       id,
		Round:    h.Round,
		Date:     h.Date,
		Result:   h.Result,
		WhiteElo: h.WhiteElo,
		BlackElo: h.BlackElo,
		ECO:      h.ECO,
	}
	if g.White, err = db.players.Get(h.WhiteID); err != nil {
		return Game{}, fmt.Errorf("game %d white: %w", id, err)
	}
	if g.Black, err = db.players.Get(h.BlackID); err != nil {
		return Game{}, fmt.Errorf("game %d black: %w", id, err)
	}
	if h.TournamentID != entities.NoID {
		if g.Tournament, err = db.tournaments.Get(h.TournamentID); err != nil {
			return Game{}, fmt.Errorf("game %d tournament: %w", id, err)
		}
	}
	if h.SourceID != entities.NoID {
		if g.Source, err = db.sources.Get(h.SourceID); err != nil {
			return Game{}, fmt.Errorf("game %d source: %w", id, err)
		}
	}
	if g.Moves, err = db.readMoves(h); err != nil {
		return Game{}, fmt.Errorf("game %d: %w", id, err)
	}
	if g.Annotation, err = db.readAnnotation(h); err != nil {
		return Game{}, fmt.Errorf("game %d: %w", id, err)
	}
	return g, nil
}

// Moves returns the moves of game id.
func (db *DB) Moves(id int32) ([]graph.Move, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	h, err := db.games.Get(id)
	if err != nil {
		return nil, err
	}
	return db.readMoves(h)
}

// Annotation returns the annotation text of game id, empty if it has none.
func (db *DB) Annotation(id int32) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	h, err := db.games.Get(id)
	if err != nil {
		return "", err
	}
	return db.readAnnotation(h)
}

func (db *DB) readMoves(h entities.GameHeader) ([]graph.Move, error) {
	data, err := db.moves.ReadBlob(h.MovesOffset)
	if err != nil {
		return nil, err
	}
	if len(data) != int(h.MovesLength) {
		return nil, fmt.Errorf("%w: moves blob is %d bytes, header says %d", ErrBadBlob, len(data), h.MovesLength)
	}
	return decodeMoves(data)
}

func (db *DB) readAnnotation(h entities.GameHeader) (string, error) {
	if h.AnnotationLength == 0 {
		return "", nil
	}
	data, err := db.annotations.ReadBlob(h.AnnotationOffset)
	if err != nil {
		return "", err
	}
	return db.decodeAnnotation(data)
}

// ReplaceMoves rewrites the moves of game id. A blob that grows is widened
// in place and every later blob is shifted; one that shrinks leaves its
// unused tail as trash.
func (db *DB) ReplaceMoves(id int32, moves []graph.Move) error {
	if err := checkMoves(moves); err != nil {
		return err
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	h, err := db.games.Get(id)
	if err != nil {
		return err
	}
	n, err := db.replaceBlob(db.moves, h.MovesOffset, h.MovesLength, encodeMoves(moves), db.shiftMoves)
	if err != nil {
		return err
	}
	if n == h.MovesLength {
		return nil
	}
	h.MovesLength = n
	return db.games.PutEntityByID(id, h)
}

// SetAnnotation replaces the annotation of game id. An empty text removes
// it.
func (db *DB) SetAnnotation(id int32, text string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	h, err := db.games.Get(id)
	if err != nil {
		return err
	}
	switch {
	case text == "" && h.AnnotationLength == 0:
		return nil
	case text == "":
		if err := db.annotations.AddTrash(int64(h.AnnotationLength)); err != nil {
			return err
		}
		h.AnnotationOffset, h.AnnotationLength = 0, 0
	case h.AnnotationLength == 0:
		data := db.encodeAnnotation(text)
		off, err := db.annotations.WriteBlob(data)
		if err != nil {
			return err
		}
		h.AnnotationOffset, h.AnnotationLength = off, int32(len(data))
	default:
		n, err := db.replaceBlob(db.annotations, h.AnnotationOffset, h.AnnotationLength,
			db.encodeAnnotation(text), db.shiftAnnotations)
		if err != nil {
			return err
		}
		h.AnnotationLength = n
	}
	return db.games.PutEntityByID(id, h)
}

// DeleteGame removes game id. Its blobs become trash and its players and
// tournament lose one game each; records that reach zero games are kept.
func (db *DB) DeleteGame(id int32) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	h, err := db.games.Get(id)
	if err != nil {
		return err
	}
	if err := db.games.DeleteByID(id); err != nil {
		return err
	}
	if err := db.moves.AddTrash(int64(h.MovesLength)); err != nil {
		return err
	}
	if h.AnnotationLength > 0 {
		if err := db.annotations.AddTrash(int64(h.AnnotationLength)); err != nil {
			return err
		}
	}
	for _, pid := range []int32{h.WhiteID, h.BlackID} {
		p, err := db.players.Get(pid)
		if err != nil {
			return err
		}
		if p.Count > 0 {
			p.Count--
		}
		if err := db.players.PutEntityByID(pid, p); err != nil {
			return err
		}
	}
	if h.TournamentID != entities.NoID {
		t, err := db.tournaments.Get(h.TournamentID)
		if err != nil {
			return err
		}
		if t.Count > 0 {
			t.Count--
		}
		return db.tournaments.PutEntityByID(h.TournamentID, t)
	}
	return nil
}

// replaceBlob overwrites the blob of length old at off with data and
// returns the new length. When data is longer the store is widened at the
// end of the old blob and shift is told about it.
func (db *DB) replaceBlob(s blob.Store, off int64, old int32, data []byte, shift func(after, delta int64) error) (int32, error) {
	n := int32(len(data))
	if n > old {
		grow := int64(n - old)
		if err := s.Insert(off+int64(old), grow); err != nil {
			return 0, err
		}
		if err := shift(off, grow); err != nil {
			return 0, err
		}
	}
	if err := s.WriteBlobAt(off, data); err != nil {
		return 0, err
	}
	if n < old {
		if err := s.AddTrash(int64(old - n)); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// shiftMoves adds delta to every moves offset greater than after.
func (db *DB) shiftMoves(after, delta int64) error {
	return db.shiftOffsets(func(h *entities.GameHeader) bool {
		if h.MovesOffset <= after {
			return false
		}
		h.MovesOffset += delta
		return true
	})
}

// shiftAnnotations adds delta to every annotation offset greater than
// after.
func (db *DB) shiftAnnotations(after, delta int64) error {
	return db.shiftOffsets(func(h *entities.GameHeader) bool {
		if h.AnnotationLength == 0 || h.AnnotationOffset <= after {
			return false
		}
		h.AnnotationOffset += delta
		return true
	})
}

// shiftOffsets applies fix to every game header and writes back the ones
// it changed. Offsets are not part of the key, so every write is in place.
func (db *DB) shiftOffsets(fix func(h *entities.GameHeader) bool) error {
	type update struct {
		id int32
		h  entities.GameHeader
	}
	var updates []update
	it := db.games.Stream()
	for it.Next() {
		h := it.Entity()
		if fix(&h) {
			updates = append(updates, update{it.ID(), h})
		}
	}
	if err := it.Err(); err != nil {
		return err
	}
	for _, u := range updates {
		if err := db.games.PutEntityByID(u.id, u.h); err != nil {
			return err
		}
	}
	if len(updates) > 0 {
		db.log.Debug().Int("headers", len(updates)).Msg("shifted blob offsets")
	}
	return nil
}
