package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/freeeve/pgn/v3"
	"github.com/rs/zerolog"

	"github.com/freeeve/chessdb/internal/eco"
	"github.com/freeeve/chessdb/internal/entities"
	"github.com/freeeve/chessdb/internal/gamedb"
	"github.com/freeeve/chessdb/internal/graph"
)

// GameStore receives parsed games.
type GameStore interface {
	AddGame(g gamedb.Game) (int32, error)
}

// errLimit stops a file once MaxGames games have been stored.
var errLimit = errors.New("ingest: game limit reached")

// Config configures the ingest worker.
type Config struct {
	WatchDir     string         // Directory to watch for PGN files
	ProcessedDir string         // Directory to move processed files to
	RatingMin    int            // Minimum rating of both players, 0 keeps everything
	MaxGames     int64          // Stop after this many stored games, 0 = no limit
	NumWorkers   int            // Files parsed in parallel, default 2
	PollInterval time.Duration  // How often to check for new files
	Openings     *eco.Database  // Classifies games without an ECO tag, optional
	Logger       zerolog.Logger // Logger
}

// Stats counts what happened to the games of one or more files.
type Stats struct {
	Games   int64 // stored
	Skipped int64 // below the rating floor
	Failed  int64 // illegal moves or store errors
}

func (s *Stats) add(o Stats) {
	s.Games += o.Games
	s.Skipped += o.Skipped
	s.Failed += o.Failed
}

// Worker reads PGN files into a GameStore.
type Worker struct {
	cfg    Config
	db     GameStore
	log    zerolog.Logger
	stored atomic.Int64
}

// NewWorker creates a new ingest worker. WatchDir is only needed by Run.
func NewWorker(cfg Config, db GameStore) (*Worker, error) {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 2
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.WatchDir != "" {
		if cfg.ProcessedDir == "" {
			cfg.ProcessedDir = filepath.Join(cfg.WatchDir, "processed")
		}
		for _, dir := range []string{cfg.WatchDir, cfg.ProcessedDir} {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, err
			}
		}
	}
	return &Worker{cfg: cfg, db: db, log: cfg.Logger}, nil
}

// Run polls the watch directory until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	if w.cfg.WatchDir == "" {
		return errors.New("ingest: no watch directory configured")
	}
	w.log.Info().
		Str("watch_dir", w.cfg.WatchDir).
		Str("processed_dir", w.cfg.ProcessedDir).
		Int("rating_min", w.cfg.RatingMin).
		Msg("ingest worker started")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.ProcessDir(ctx); err != nil && ctx.Err() == nil {
			w.log.Warn().Err(err).Msg("process files failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProcessDir ingests every PGN file in the watch directory, several at a
// time, and moves each file that completed to the processed directory.
func (w *Worker) ProcessDir(ctx context.Context) (Stats, error) {
	var total Stats
	if err := ctx.Err(); err != nil {
		return total, err
	}

	entries, err := os.ReadDir(w.cfg.WatchDir)
	if err != nil {
		return total, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && isPGNFile(e.Name()) {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return total, nil
	}
	sort.Strings(files)
	w.log.Info().Int("files", len(files)).Int("workers", w.cfg.NumWorkers).Msg("found PGN files")

	type fileResult struct {
		name  string
		stats Stats
		err   error
	}
	fileChan := make(chan string, len(files))
	resultChan := make(chan fileResult, len(files))

	var wg sync.WaitGroup
	for i := 0; i < w.cfg.NumWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range fileChan {
				if err := ctx.Err(); err != nil {
					resultChan <- fileResult{name: name, err: err}
					continue
				}
				st, err := w.IngestFile(ctx, filepath.Join(w.cfg.WatchDir, name))
				resultChan <- fileResult{name: name, stats: st, err: err}
			}
		}()
	}
	for _, name := range files {
		fileChan <- name
	}
	close(fileChan)
	go func() {
		wg.Wait()
		close(resultChan)
	}()

	var processed, failed int
	for result := range resultChan {
		total.add(result.stats)
		if result.err != nil && !errors.Is(result.err, errLimit) {
			w.log.Error().Err(result.err).Str("file", result.name).Msg("ingest failed")
			failed++
			continue
		}
		src := filepath.Join(w.cfg.WatchDir, result.name)
		dst := filepath.Join(w.cfg.ProcessedDir, result.name)
		if err := os.Rename(src, dst); err != nil {
			w.log.Warn().Err(err).Str("file", result.name).Msg("move to processed failed")
		} else {
			w.log.Info().Str("file", result.name).Msg("moved to processed")
		}
		processed++
	}
	w.log.Info().Int("processed", processed).Int("failed", failed).Int64("games", total.Games).Msg("batch complete")
	return total, nil
}

// IngestFile stores every game in one PGN file that passes the rating
// floor. It stops early when ctx is done or MaxGames is reached.
func (w *Worker) IngestFile(ctx context.Context, path string) (Stats, error) {
	w.log.Info().Str("path", path).Msg("starting file ingest")

	var st Stats
	startTime := time.Now()
	lastLog := startTime
	parser := pgn.Games(path)

	var stopErr error
gameLoop:
	for game := range parser.Games {
		select {
		case <-ctx.Done():
			stopErr = ctx.Err()
			parser.Stop()
			break gameLoop
		default:
		}

		if parseRating(game.Tags["WhiteElo"]) < w.cfg.RatingMin || parseRating(game.Tags["BlackElo"]) < w.cfg.RatingMin {
			st.Skipped++
			continue
		}
		g, err := w.convertGame(game)
		if err != nil {
			w.log.Debug().Err(err).Str("white", game.Tags["White"]).Str("black", game.Tags["Black"]).Msg("bad game")
			st.Failed++
			continue
		}
		if w.cfg.MaxGames > 0 && w.stored.Add(1) > w.cfg.MaxGames {
			stopErr = errLimit
			parser.Stop()
			break gameLoop
		}
		if _, err := w.db.AddGame(g); err != nil {
			w.log.Warn().Err(err).Msg("store game failed")
			st.Failed++
			continue
		}
		st.Games++

		if time.Since(lastLog) > 10*time.Second {
			w.log.Info().
				Str("file", filepath.Base(path)).
				Int64("games", st.Games).
				Int64("skipped", st.Skipped).
				Float64("games_per_sec", float64(st.Games)/time.Since(startTime).Seconds()).
				Msg("ingest progress")
			lastLog = time.Now()
		}
	}
	if stopErr != nil {
		return st, stopErr
	}
	if err := parser.Err(); err != nil {
		return st, err
	}

	elapsed := time.Since(startTime)
	w.log.Info().
		Str("file", filepath.Base(path)).
		Int64("games", st.Games).
		Int64("skipped", st.Skipped).
		Int64("failed", st.Failed).
		Dur("elapsed", elapsed).
		Msg("file ingest complete")
	return st, nil
}

// convertGame replays the game to validate its moves and maps its tags. An
// ECO tag wins over the opening found by replaying.
func (w *Worker) convertGame(game *pgn.Game) (gamedb.Game, error) {
	tags := game.Tags
	g := gamedb.Game{
		White:    splitName(tags["White"]),
		Black:    splitName(tags["Black"]),
		Round:    parseRound(tags["Round"]),
		Date:     entities.ParseDate(tags["Date"]),
		Result:   entities.ParseResult(tags["Result"]),
		WhiteElo: uint16(parseRating(tags["WhiteElo"])),
		BlackElo: uint16(parseRating(tags["BlackElo"])),
		Moves:    make([]graph.Move, 0, len(game.Moves)),
	}
	if event := tags["Event"]; event != "" && event != "?" {
		g.Tournament = entities.Tournament{
			Title: event,
			Place: strings.TrimSpace(strings.Trim(tags["Site"], "?")),
			Year:  int16(g.Date.Year()),
		}
	}

	cls := w.cfg.Openings.NewClassifier()
	pos := pgn.NewStartingPosition()
	for _, mv := range game.Moves {
		if err := pgn.ApplyMove(pos, mv); err != nil {
			return gamedb.Game{}, err
		}
		g.Moves = append(g.Moves, graph.FromPGN(mv))
		cls.Observe(pos)
	}

	if code, err := entities.ParseECO(tags["ECO"]); err == nil {
		g.ECO = code
	} else if o := cls.Opening(); o != nil {
		g.ECO, _ = entities.ParseECO(o.ECO)
	}
	return g, nil
}

// splitName turns "Carlsen, Magnus" into its two name fields.
func splitName(s string) entities.Player {
	last, first, _ := strings.Cut(s, ",")
	return entities.Player{
		LastName:  strings.TrimSpace(last),
		FirstName: strings.TrimSpace(first),
	}
}

func isPGNFile(name string) bool {
	ext := filepath.Ext(name)
	if ext == ".pgn" {
		return true
	}
	if ext == ".zst" {
		// Check for .pgn.zst
		base := name[:len(name)-4]
		return filepath.Ext(base) == ".pgn"
	}
	return false
}

func parseRating(s string) int {
	if s == "" || s == "?" || s == "-" {
		return 0
	}
	r, _ := strconv.Atoi(s)
	if r < 0 || r > 65535 {
		return 0
	}
	return r
}

// parseRound reads the leading number of a round tag like "3" or "3.1".
func parseRound(s string) int32 {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	r, _ := strconv.Atoi(s)
	return int32(r)
}
