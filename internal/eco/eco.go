// Package eco classifies games by opening using ECO (Encyclopedia of Chess
// Openings) tables.
package eco

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/freeeve/pgn/v3"
)

// Opening represents an ECO opening classification.
type Opening struct {
	ECO  string `json:"eco"`
	Name string `json:"name"`
}

// Database holds ECO opening data indexed by position.
type Database struct {
	byPosition map[pgn.PackedPosition]Opening
	maxPly     int
}

// NewDatabase creates an empty ECO database.
func NewDatabase() *Database {
	return &Database{
		byPosition: make(map[pgn.PackedPosition]Opening),
	}
}

// moveNumberRegex matches move numbers like "1." or "12..."
var moveNumberRegex = regexp.MustCompile(`\d+\.+\s*`)

// LoadDir loads all .tsv files from a directory.
func (db *Database) LoadDir(dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.tsv"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no .tsv files found in %s", dir)
	}

	for _, file := range files {
		if err := db.LoadFile(file); err != nil {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// LoadFile loads a single TSV file.
func (db *Database) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return db.LoadReader(f)
}

// LoadReader reads "eco<TAB>name<TAB>moves" lines. An optional header line
// and lines whose moves do not parse are skipped.
func (db *Database) LoadReader(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if lineNum == 1 && strings.HasPrefix(line, "eco\t") {
			continue
		}

		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}
		_ = db.AddLine(parts[0], parts[1], parts[2])
	}
	return scanner.Err()
}

// AddLine records the opening reached by playing moves like
// "1. e4 e5 2. Nf3 Nc6" from the start.
func (db *Database) AddLine(code, name, moves string) error {
	pos := pgn.NewStartingPosition()
	ply := 0
	for _, san := range strings.Fields(moveNumberRegex.ReplaceAllString(moves, "")) {
		// Skip annotations
		if san[0] == '$' || san[0] == '{' {
			continue
		}
		san = strings.TrimRight(san, "+#")

		mv, err := pgn.ParseSAN(pos, san)
		if err != nil {
			return fmt.Errorf("parse %q: %w", san, err)
		}
		if err := pgn.ApplyMove(pos, mv); err != nil {
			return fmt.Errorf("apply %q: %w", san, err)
		}
		ply++
	}
	db.byPosition[pos.Pack()] = Opening{ECO: code, Name: name}
	db.maxPly = max(db.maxPly, ply)
	return nil
}

// Position is anything that packs to a position key, such as the game state
// pgn.NewStartingPosition returns.
type Position interface {
	Pack() pgn.PackedPosition
}

// Lookup returns the ECO opening for a position, or nil if not found.
func (db *Database) Lookup(pos pgn.PackedPosition) *Opening {
	if o, ok := db.byPosition[pos]; ok {
		return &o
	}
	return nil
}

// LookupGameState returns the ECO opening for a game state.
func (db *Database) LookupGameState(gs Position) *Opening {
	return db.Lookup(gs.Pack())
}

// Classifier tracks the deepest known opening while a game is replayed.
// Feed it every position after a move; it stops looking once the game is
// longer than any line in the database.
type Classifier struct {
	db   *Database
	ply  int
	best *Opening
}

// NewClassifier starts classifying a game from the initial position. A nil
// database classifies nothing.
func (db *Database) NewClassifier() *Classifier {
	return &Classifier{db: db}
}

// Observe records the position reached after the next move.
func (c *Classifier) Observe(gs Position) {
	if c.db == nil {
		return
	}
	c.ply++
	if c.ply > c.db.maxPly {
		return
	}
	if o := c.db.LookupGameState(gs); o != nil {
		c.best = o
	}
}

// Opening returns the deepest opening seen, or nil.
func (c *Classifier) Opening() *Opening { return c.best }

// Count returns the number of openings loaded.
func (db *Database) Count() int {
	return len(db.byPosition)
}
