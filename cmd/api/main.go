package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/freeeve/chessdb/internal/eco"
	"github.com/freeeve/chessdb/internal/gamedb"
	"github.com/freeeve/chessdb/internal/httpapi"
	"github.com/freeeve/chessdb/internal/ingest"
	"github.com/freeeve/chessdb/internal/logx"
)

// parseSize parses a size string like "512m", "4g", "1024" into bytes
func parseSize(s string) int64 {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0
	}

	multiplier := int64(1)
	switch s[len(s)-1] {
	case 'k':
		multiplier = 1 << 10
	case 'm':
		multiplier = 1 << 20
	case 'g':
		multiplier = 1 << 30
	}
	if multiplier > 1 {
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n * multiplier
}

func main() {
	defaultDir := "./data/chessdb"
	if envDir := os.Getenv("CHESSDB_DIR"); envDir != "" {
		defaultDir = envDir
	}

	var (
		dbDir = flag.String("db", defaultDir, "Database directory")
		addr  = flag.String("addr", ":8007", "listen address")

		// Ingest settings
		ingestDir    = flag.String("ingest-dir", "", "Directory to watch for PGN files (empty = disabled)")
		ingestRating = flag.Int("ingest-rating", 2000, "Minimum rating for ingested games")

		// ECO settings
		ecoDir = flag.String("eco-dir", "./data/eco", "Directory containing ECO .tsv files")

		cacheSize = flag.String("cache", "64m", "Blob read cache per file (e.g., 512m, 1g)")
		logLevel  = flag.String("log-level", "info", "Log level")
	)
	flag.Parse()

	logger := logx.NewLoggerTo(os.Stdout, logx.ParseLevel(*logLevel))

	db, err := gamedb.Open(gamedb.Config{
		Dir:        *dbDir,
		CacheBytes: parseSize(*cacheSize),
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Str("dir", *dbDir).Msg("open database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error().Err(err).Msg("close database")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:         *addr,
		Handler:      httpapi.NewRouter(logger, db),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("api server")
		}
	}()

	// Start ingest worker if configured
	done := make(chan struct{})
	if *ingestDir != "" {
		var ecoDB *eco.Database
		if *ecoDir != "" {
			ecoDB = eco.NewDatabase()
			if err := ecoDB.LoadDir(*ecoDir); err != nil {
				logger.Warn().Err(err).Str("dir", *ecoDir).Msg("failed to load ECO database")
				ecoDB = nil
			} else {
				logger.Info().Int("openings", ecoDB.Count()).Msg("ECO database loaded")
			}
		}

		worker, err := ingest.NewWorker(ingest.Config{
			WatchDir:  *ingestDir,
			RatingMin: *ingestRating,
			Openings:  ecoDB,
			Logger:    logger.With().Str("component", "ingest").Logger(),
		}, db)
		if err != nil {
			logger.Fatal().Err(err).Msg("create ingest worker")
		}
		go func() {
			defer close(done)
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("ingest worker stopped")
			}
		}()
		logger.Info().Str("watch_dir", *ingestDir).Msg("started ingest worker")
	} else {
		close(done)
	}

	<-ctx.Done()
	logger.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http server shutdown error")
	}

	// The worker finishes its current game before the database is closed.
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn().Msg("ingest worker did not stop in time")
	}

	stats := db.Stats()
	logger.Info().
		Int("games", stats.Games).
		Int("players", stats.Players).
		Msg("shutdown complete")
}
