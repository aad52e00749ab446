// Package gamedb is a chess game database built from four entity indexes
// (players, tournaments, sources, games) and two blob stores (moves and
// annotations).
//
// A game's id is its slot id in games.idx. The game header records where
// its blobs live; when a blob grows in place every header pointing past it
// is shifted by the same amount.
package gamedb

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"github.com/freeeve/chessdb/internal/entities"
	"github.com/freeeve/chessdb/internal/graph"
	"github.com/freeeve/chessdb/internal/logx"
	"github.com/freeeve/chessdb/internal/storage/blob"
	"github.com/freeeve/chessdb/internal/storage/entity"
)

// File names inside Config.Dir.
const (
	PlayersFile     = "players.idx"
	TournamentsFile = "tournaments.idx"
	SourcesFile     = "sources.idx"
	GamesFile       = "games.idx"
	MovesFile       = "moves.bin"
	AnnotationsFile = "annotations.bin"
)

// ErrBadBlob is returned when a stored moves or annotation blob cannot be
// decoded.
var ErrBadBlob = errors.New("gamedb: malformed blob")

// Config configures a DB.
type Config struct {
	Dir         string          // empty keeps everything in memory
	CacheBytes  int64           // read cache per blob file, default 0 (disabled)
	Compression string          // "fast" or "best" for annotations (default "fast")
	Logger      *zerolog.Logger // nil disables logging
}

// DB is safe for concurrent use; writes are serialised.
type DB struct {
	mu sync.Mutex

	players     *entity.Index[entities.Player]
	tournaments *entity.Index[entities.Tournament]
	sources     *entity.Index[entities.Source]
	games       *entity.Index[entities.GameHeader]

	moves       blob.Store
	annotations blob.Store

	enc *zstd.Encoder
	dec *zstd.Decoder

	log zerolog.Logger
}

// Open opens or creates the database in cfg.Dir.
func Open(cfg Config) (*DB, error) {
	if cfg.Compression == "" {
		cfg.Compression = "fast"
	}
	level := zstd.SpeedFastest
	switch cfg.Compression {
	case "fast":
	case "best":
		level = zstd.SpeedBestCompression
	default:
		return nil, fmt.Errorf("unknown compression %q", cfg.Compression)
	}

	db := &DB{log: logx.OrNop(cfg.Logger)}
	if err := db.open(cfg); err != nil {
		db.Close()
		return nil, err
	}

	var err error
	if db.enc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(level)); err != nil {
		db.Close()
		return nil, err
	}
	if db.dec, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1)); err != nil {
		db.Close()
		return nil, err
	}

	db.log.Info().
		Str("dir", cfg.Dir).
		Int("players", db.players.Count()).
		Int("games", db.games.Count()).
		Int64("moves_bytes", db.moves.Size()).
		Msg("database opened")
	return db, nil
}

func (db *DB) open(cfg Config) error {
	eopts := entity.Options{Logger: cfg.Logger}
	bopts := blob.Options{CacheBytes: cfg.CacheBytes, Logger: cfg.Logger}

	if cfg.Dir == "" {
		db.players = entity.NewMemoryIndex(entities.ComparePlayers, eopts)
		db.tournaments = entity.NewMemoryIndex(entities.CompareTournaments, eopts)
		db.sources = entity.NewMemoryIndex(entities.CompareSources, eopts)
		db.games = entity.NewMemoryIndex(entities.CompareGames, eopts)
		db.moves = blob.NewMemoryStore(blob.Uint32Size, bopts)
		db.annotations = blob.NewMemoryStore(blob.Uint32Size, bopts)
		return nil
	}

	path := func(name string) string { return filepath.Join(cfg.Dir, name) }
	var err error
	if db.players, err = entity.OpenFileIndex[entities.Player](path(PlayersFile),
		entities.PlayerSerializer{}, entities.ComparePlayers, eopts); err != nil {
		return err
	}
	if db.tournaments, err = entity.OpenFileIndex[entities.Tournament](path(TournamentsFile),
		entities.TournamentSerializer{}, entities.CompareTournaments, eopts); err != nil {
		return err
	}
	if db.sources, err = entity.OpenFileIndex[entities.Source](path(SourcesFile),
		entities.SourceSerializer{}, entities.CompareSources, eopts); err != nil {
		return err
	}
	if db.games, err = entity.OpenFileIndex[entities.GameHeader](path(GamesFile),
		entities.GameHeaderSerializer{}, entities.CompareGames, eopts); err != nil {
		return err
	}
	if db.moves, err = openBlobs(path(MovesFile), bopts); err != nil {
		return err
	}
	if db.annotations, err = openBlobs(path(AnnotationsFile), bopts); err != nil {
		return err
	}
	return nil
}

// openBlobs keeps a failed open from leaving a typed nil in the interface.
func openBlobs(path string, opts blob.Options) (blob.Store, error) {
	s, err := blob.OpenFileStore(path, blob.Uint32Size, opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes every file and returns the first error.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	if db.players != nil {
		keep(db.players.Close())
	}
	if db.tournaments != nil {
		keep(db.tournaments.Close())
	}
	if db.sources != nil {
		keep(db.sources.Close())
	}
	if db.games != nil {
		keep(db.games.Close())
	}
	if db.moves != nil {
		keep(db.moves.Close())
	}
	if db.annotations != nil {
		keep(db.annotations.Close())
	}
	if db.enc != nil {
		keep(db.enc.Close())
	}
	if db.dec != nil {
		db.dec.Close()
	}
	return first
}

// Stats summarises the database.
type Stats struct {
	Players, Tournaments, Sources, Games int

	MovesBytes, MovesTrash           int64
	AnnotationBytes, AnnotationTrash int64
}

func (db *DB) Stats() Stats {
	db.mu.Lock()
	defer db.mu.Unlock()
	return Stats{
		Players:         db.players.Count(),
		Tournaments:     db.tournaments.Count(),
		Sources:         db.sources.Count(),
		Games:           db.games.Count(),
		MovesBytes:      db.moves.Size(),
		MovesTrash:      db.moves.Trash(),
		AnnotationBytes: db.annotations.Size(),
		AnnotationTrash: db.annotations.Trash(),
	}
}

// Players iterates players in name order.
func (db *DB) Players() *entity.Iterator[entities.Player] {
	return db.players.StreamOrderedAscending()
}

// PlayersFrom iterates players whose name sorts at or after last.
func (db *DB) PlayersFrom(last string) *entity.Iterator[entities.Player] {
	return db.players.StreamOrderedAscendingFrom(entities.Player{LastName: last}.Normalize())
}

// FindPlayer returns a player with the given name. If several players share
// the name any one of them is returned.
func (db *DB) FindPlayer(last, first string) (entities.Player, bool, error) {
	return db.players.GetAnyEntity(entities.Player{LastName: last, FirstName: first}.Normalize())
}

// Player returns the player stored under id.
func (db *DB) Player(id int32) (entities.Player, error) {
	return db.players.Get(id)
}

// Tournaments iterates tournaments by year, most recent first.
func (db *DB) Tournaments() *entity.Iterator[entities.Tournament] {
	return db.tournaments.StreamOrderedDescending()
}

// Games iterates game headers in id order.
func (db *DB) Games() *entity.Iterator[entities.GameHeader] {
	return db.games.Stream()
}

// Validate checks every index and that every game's blobs lie inside their
// stores.
func (db *DB) Validate() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for name, v := range map[string]func() error{
		PlayersFile:     db.players.ValidateStructure,
		TournamentsFile: db.tournaments.ValidateStructure,
		SourcesFile:     db.sources.ValidateStructure,
		GamesFile:       db.games.ValidateStructure,
	} {
		if err := v(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	movesSize, annSize := db.moves.Size(), db.annotations.Size()
	it := db.games.Stream()
	for it.Next() {
		h := it.Entity()
		if h.MovesOffset < 0 || h.MovesOffset+int64(h.MovesLength) > movesSize {
			return fmt.Errorf("game %d: moves [%d, +%d) outside %d bytes", it.ID(), h.MovesOffset, h.MovesLength, movesSize)
		}
		if h.AnnotationLength > 0 && (h.AnnotationOffset < 0 || h.AnnotationOffset+int64(h.AnnotationLength) > annSize) {
			return fmt.Errorf("game %d: annotation [%d, +%d) outside %d bytes", it.ID(), h.AnnotationOffset, h.AnnotationLength, annSize)
		}
	}
	return it.Err()
}

func checkMoves(moves []graph.Move) error {
	for i, m := range moves {
		if _, err := graph.Unpack16(m.Pack16()); err != nil || graph.Move(m.Pack16()) != m {
			return fmt.Errorf("move %d: %#x is not a storable move", i, uint32(m))
		}
	}
	return nil
}
