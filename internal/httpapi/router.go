package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/pprof"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/freeeve/chessdb/internal/gamedb"
	"github.com/freeeve/chessdb/internal/storage/entity"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
)

// Handler serves read-only queries against a game database.
type Handler struct {
	db  *gamedb.DB
	log zerolog.Logger
}

// NewRouter creates the HTTP router for db.
func NewRouter(log zerolog.Logger, db *gamedb.DB) http.Handler {
	h := &Handler{db: db, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.health)
	mux.HandleFunc("GET /readyz", h.health)
	mux.HandleFunc("GET /v1/stats", h.stats)
	mux.HandleFunc("GET /v1/players", h.players)
	mux.HandleFunc("GET /v1/players/{id}", h.player)
	mux.HandleFunc("GET /v1/tournaments", h.tournaments)
	mux.HandleFunc("GET /v1/games/{id}", h.game)

	// pprof endpoints
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return CORS(RequestID(AccessLog(log, mux)))
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, toStatsResponse(h.db.Stats()))
}

// players lists players in name order, starting at ?from= if given.
func (h *Handler) players(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	it := h.db.Players()
	if from := r.URL.Query().Get("from"); from != "" {
		it = h.db.PlayersFrom(from)
	}
	out := make([]PlayerResponse, 0, min(limit, defaultLimit))
	for len(out) < limit && it.Next() {
		out = append(out, toPlayerResponse(it.ID(), it.Entity()))
	}
	if err := it.Err(); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, out)
}

func (h *Handler) player(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	p, err := h.db.Player(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, toPlayerResponse(id, p))
}

// tournaments lists tournaments, most recent first.
func (h *Handler) tournaments(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	it := h.db.Tournaments()
	out := make([]TournamentResponse, 0, min(limit, defaultLimit))
	for len(out) < limit && it.Next() {
		out = append(out, toTournamentResponse(it.ID(), it.Entity()))
	}
	if err := it.Err(); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, out)
}

func (h *Handler) game(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	g, err := h.db.Game(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, ToGameResponse(g))
}

// fail maps missing ids to 404 and logs everything else.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, entity.ErrOutOfRange) || errors.Is(err, entity.ErrDeleted) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	// A listing raced a writer; the client can simply ask again.
	if errors.Is(err, entity.ErrConcurrentModification) {
		w.Header().Set("Retry-After", "1")
		http.Error(w, "database busy, retry", http.StatusServiceUnavailable)
		return
	}
	h.log.Error().Err(err).Str("rid", GetRequestID(r.Context())).Str("path", r.URL.Path).Msg("request failed")
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func parseID(w http.ResponseWriter, r *http.Request) (int32, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 32)
	if err != nil || id < 0 {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return int32(id), true
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return defaultLimit, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		http.Error(w, "invalid limit", http.StatusBadRequest)
		return 0, false
	}
	return min(n, maxLimit), true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
