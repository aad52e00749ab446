package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/freeeve/chessdb/internal/eco"
	"github.com/freeeve/chessdb/internal/gamedb"
	"github.com/freeeve/chessdb/internal/ingest"
	"github.com/freeeve/chessdb/internal/logx"
)

func main() {
	defaultRatingMin := 0
	if envRating := os.Getenv("CHESSDB_RATING_MIN"); envRating != "" {
		if rating, err := strconv.Atoi(envRating); err == nil {
			defaultRatingMin = rating
		}
	}
	defaultDir := "./data/chessdb"
	if envDir := os.Getenv("CHESSDB_DIR"); envDir != "" {
		defaultDir = envDir
	}

	var (
		dbDir       = flag.String("db", defaultDir, "Database directory")
		inputPath   = flag.String("pgn", "", "Path to PGN file (supports .zst)")
		watchDir    = flag.String("watch", "", "Directory to poll for PGN files instead of -pgn")
		ratingMin   = flag.Int("rating-min", defaultRatingMin, "Rating floor for both players")
		maxGames    = flag.Int64("max-games", 0, "Maximum games to store (0 = unlimited)")
		cacheBytes  = flag.Int64("cache-bytes", 16<<20, "Blob read cache per file")
		compression = flag.String("compression", "fast", "Annotation compression: fast or best")
		ecoDir      = flag.String("eco-dir", "", "Directory of ECO .tsv files for classifying untagged games")
		logLevel    = flag.String("log-level", "info", "Log level")
	)
	flag.Parse()

	if *inputPath == "" && *watchDir == "" {
		fmt.Fprintln(os.Stderr, "Usage: ingest --pgn <file.pgn[.zst]> | --watch <dir> [options]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	logger := logx.NewLoggerTo(os.Stdout, logx.ParseLevel(*logLevel))
	logger.Info().
		Str("pgn", *inputPath).
		Str("watch", *watchDir).
		Str("db", *dbDir).
		Int("rating_min", *ratingMin).
		Msg("starting ingest")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := gamedb.Open(gamedb.Config{
		Dir:         *dbDir,
		CacheBytes:  *cacheBytes,
		Compression: *compression,
		Logger:      &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error().Err(err).Msg("close database")
		}
	}()

	var openings *eco.Database
	if *ecoDir != "" {
		openings = eco.NewDatabase()
		if err := openings.LoadDir(*ecoDir); err != nil {
			logger.Fatal().Err(err).Str("dir", *ecoDir).Msg("load ECO database")
		}
		logger.Info().Int("openings", openings.Count()).Msg("ECO database loaded")
	}

	w, err := ingest.NewWorker(ingest.Config{
		WatchDir:  *watchDir,
		RatingMin: *ratingMin,
		MaxGames:  *maxGames,
		Openings:  openings,
		Logger:    logger,
	}, db)
	if err != nil {
		logger.Fatal().Err(err).Msg("create ingest worker")
	}

	if *watchDir != "" {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("ingest worker stopped")
		}
		return
	}

	startTime := time.Now()
	st, err := w.IngestFile(ctx, *inputPath)
	switch {
	case errors.Is(err, context.Canceled):
		logger.Info().Msg("interrupted")
	case err != nil && st.Games == 0:
		logger.Error().Err(err).Msg("ingest failed")
	case err != nil:
		logger.Info().Err(err).Msg("stopped early")
	}

	elapsed := time.Since(startTime)
	stats := db.Stats()
	logger.Info().
		Int64("games_stored", st.Games).
		Int64("games_skipped", st.Skipped).
		Int64("games_failed", st.Failed).
		Int("players", stats.Players).
		Int("games_total", stats.Games).
		Dur("elapsed", elapsed).
		Float64("games_per_sec", float64(st.Games)/elapsed.Seconds()).
		Msg("ingest complete")
}
