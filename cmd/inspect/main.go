package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/freeeve/chessdb/internal/gamedb"
	"github.com/freeeve/chessdb/internal/logx"
)

func main() {
	defaultDir := "./data/chessdb"
	if envDir := os.Getenv("CHESSDB_DIR"); envDir != "" {
		defaultDir = envDir
	}
	var (
		dbDir    = flag.String("db", defaultDir, "Database directory")
		players  = flag.Int("players", 0, "List the first N players in name order")
		from     = flag.String("from", "", "Start the player list at this last name")
		game     = flag.Int("game", -1, "Print one game's moves in UCI")
		logLevel = flag.String("log-level", "info", "Log level")
	)
	flag.Parse()

	logger := logx.NewLoggerTo(os.Stderr, logx.ParseLevel(*logLevel))

	if _, err := os.Stat(*dbDir); err != nil {
		logger.Fatal().Err(err).Str("db", *dbDir).Msg("database directory")
	}
	db, err := gamedb.Open(gamedb.Config{Dir: *dbDir, Logger: &logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	if err := db.Validate(); err != nil {
		logger.Error().Err(err).Msg("validation failed")
	} else {
		logger.Info().Msg("all indexes valid")
	}

	st := db.Stats()
	logger.Info().
		Int("players", st.Players).
		Int("tournaments", st.Tournaments).
		Int("sources", st.Sources).
		Int("games", st.Games).
		Int64("moves_bytes", st.MovesBytes).
		Int64("moves_trash", st.MovesTrash).
		Int64("annotation_bytes", st.AnnotationBytes).
		Int64("annotation_trash", st.AnnotationTrash).
		Msg("database stats")

	if *players > 0 {
		it := db.PlayersFrom(*from)
		for n := 0; n < *players && it.Next(); n++ {
			p := it.Entity()
			fmt.Printf("%6d  %-40s %6d games\n", it.ID(), p.Name(), p.Count)
		}
		if err := it.Err(); err != nil {
			logger.Error().Err(err).Msg("list players")
		}
	}

	if *game >= 0 {
		g, err := db.Game(int32(*game))
		if err != nil {
			logger.Fatal().Err(err).Int("game", *game).Msg("read game")
		}
		fmt.Printf("%s - %s  %s  %s  %s %s\n", g.White.Name(), g.Black.Name(), g.Result, g.Tournament.Title, g.Date, g.ECO)
		for i, m := range g.Moves {
			if i%2 == 0 {
				fmt.Printf("%d. ", i/2+1)
			}
			fmt.Printf("%s ", m.ToUCI())
		}
		fmt.Println()
		if g.Annotation != "" {
			fmt.Println(g.Annotation)
		}
	}
}
