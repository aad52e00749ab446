package eco_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/freeeve/pgn/v3"

	"github.com/freeeve/chessdb/internal/eco"
)

const openings = "eco\tname\tpgn\n" +
	"B00\tKing's Pawn Game\t1. e4\n" +
	"C20\tKing's Pawn Game\t1. e4 e5\n" +
	"C44\tKing's Knight Opening: Normal Variation\t1. e4 e5 2. Nf3 Nc6\n" +
	"C50\tItalian Game\t1. e4 e5 2. Nf3 Nc6 3. Bc4\n" +
	"not a line\n" +
	"A00\tIllegal\t1. e5\n"

func play(t *testing.T, sans ...string) pgn.PackedPosition {
	t.Helper()
	pos := pgn.NewStartingPosition()
	for _, san := range sans {
		mv, err := pgn.ParseSAN(pos, san)
		if err != nil {
			t.Fatalf("ParseSAN %s: %v", san, err)
		}
		if err := pgn.ApplyMove(pos, mv); err != nil {
			t.Fatalf("ApplyMove %s: %v", san, err)
		}
	}
	return pos.Pack()
}

func TestLoadAndLookup(t *testing.T) {
	db := eco.NewDatabase()
	if err := db.LoadReader(strings.NewReader(openings)); err != nil {
		t.Fatalf("LoadReader: %v", err)
	}
	if db.Count() != 4 {
		t.Errorf("Count = %d, want 4", db.Count())
	}

	if o := db.Lookup(pgn.NewStartingPosition().Pack()); o != nil {
		t.Errorf("starting position classified as %s", o.ECO)
	}
	if o := db.Lookup(play(t, "e4")); o == nil || o.ECO != "B00" {
		t.Errorf("1. e4 = %+v, want B00", o)
	}
	if o := db.Lookup(play(t, "e4", "e5", "Nf3", "Nc6", "Bc4")); o == nil || o.ECO != "C50" {
		t.Errorf("Italian Game = %+v, want C50", o)
	}
	if o := db.Lookup(play(t, "d4")); o != nil {
		t.Errorf("1. d4 = %+v, want nil", o)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.tsv"), []byte(openings), 0o644); err != nil {
		t.Fatal(err)
	}
	db := eco.NewDatabase()
	if err := db.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if db.Count() != 4 {
		t.Errorf("Count = %d, want 4", db.Count())
	}
	if err := eco.NewDatabase().LoadDir(t.TempDir()); err == nil {
		t.Error("LoadDir on an empty directory succeeded")
	}
}

func TestClassifierKeepsDeepestMatch(t *testing.T) {
	db := eco.NewDatabase()
	if err := db.LoadReader(strings.NewReader(openings)); err != nil {
		t.Fatal(err)
	}

	c := db.NewClassifier()
	pos := pgn.NewStartingPosition()
	for _, san := range []string{"e4", "e5", "Nf3", "Nc6", "Bb5", "a6", "Ba4"} {
		mv, err := pgn.ParseSAN(pos, san)
		if err != nil {
			t.Fatal(err)
		}
		if err := pgn.ApplyMove(pos, mv); err != nil {
			t.Fatal(err)
		}
		c.Observe(pos)
	}
	if o := c.Opening(); o == nil || o.ECO != "C44" {
		t.Errorf("Opening = %+v, want C44", o)
	}

	var none *eco.Database
	nc := none.NewClassifier()
	nc.Observe(pgn.NewStartingPosition())
	if nc.Opening() != nil {
		t.Error("nil database classified a game")
	}
}
