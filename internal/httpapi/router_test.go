package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/freeeve/chessdb/internal/entities"
	"github.com/freeeve/chessdb/internal/gamedb"
	"github.com/freeeve/chessdb/internal/graph"
	"github.com/freeeve/chessdb/internal/storage/entity"
)

func uciMoves(t *testing.T, ucis ...string) []graph.Move {
	t.Helper()
	out := make([]graph.Move, len(ucis))
	for i, s := range ucis {
		m, err := graph.MoveFromUCI(s)
		if err != nil {
			t.Fatal(err)
		}
		out[i] = m
	}
	return out
}

func newTestRouter(t *testing.T, logs *bytes.Buffer) (http.Handler, *gamedb.DB) {
	t.Helper()
	db, err := gamedb.Open(gamedb.Config{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	games := []gamedb.Game{
		{
			White:      entities.Player{LastName: "Carlsen", FirstName: "Magnus"},
			Black:      entities.Player{LastName: "Caruana", FirstName: "Fabiano"},
			Tournament: entities.Tournament{Title: "World Championship", Place: "London", Year: 2018},
			Round:      12,
			Date:       20181126,
			Result:     entities.ResultDraw,
			WhiteElo:   2835,
			BlackElo:   2832,
			ECO:        230,
			Moves:      uciMoves(t, "e2e4", "c7c5", "g1f3", "b8c6"),
			Annotation: "Offered a draw in a better position.",
		},
		{
			White:      entities.Player{LastName: "Anand", FirstName: "Viswanathan"},
			Black:      entities.Player{LastName: "Carlsen", FirstName: "Magnus"},
			Tournament: entities.Tournament{Title: "World Championship", Place: "Chennai", Year: 2013},
			Date:       20131122,
			Result:     entities.ResultDraw,
			Moves:      uciMoves(t, "d2d4", "g8f6"),
		},
	}
	for _, g := range games {
		if _, err := db.AddGame(g); err != nil {
			t.Fatal(err)
		}
	}
	log := zerolog.New(logs)
	return NewRouter(log, db), db
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	return v
}

func TestGame(t *testing.T) {
	h, _ := newTestRouter(t, &bytes.Buffer{})
	g := decode[GameResponse](t, get(t, h, "/v1/games/0"))

	if g.White != "Carlsen, Magnus" || g.Black != "Caruana, Fabiano" {
		t.Errorf("players = %q vs %q", g.White, g.Black)
	}
	if g.Event != "World Championship" || g.Site != "London" || g.Round != 12 {
		t.Errorf("event = %+v", g)
	}
	if g.Date != "2018.11.26" || g.Result != "1/2-1/2" || g.ECO != "B30" {
		t.Errorf("date %q, result %q, eco %q", g.Date, g.Result, g.ECO)
	}
	if strings.Join(g.Moves, " ") != "e2e4 c7c5 g1f3 b8c6" {
		t.Errorf("moves = %v", g.Moves)
	}
	if g.Annotation == "" {
		t.Error("annotation missing")
	}
}

func TestGameErrors(t *testing.T) {
	h, _ := newTestRouter(t, &bytes.Buffer{})
	tests := []struct {
		path string
		want int
	}{
		{"/v1/games/7", http.StatusNotFound},
		{"/v1/games/-1", http.StatusBadRequest},
		{"/v1/games/abc", http.StatusBadRequest},
		{"/v1/players/99", http.StatusNotFound},
		{"/v1/players?limit=0", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if rec := get(t, h, tt.path); rec.Code != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.want)
		}
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/games/0", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST = %d, want 405", rec.Code)
	}
}

func TestDeletedGameIsNotFound(t *testing.T) {
	h, db := newTestRouter(t, &bytes.Buffer{})
	if err := db.DeleteGame(1); err != nil {
		t.Fatal(err)
	}
	if rec := get(t, h, "/v1/games/1"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestPlayers(t *testing.T) {
	h, _ := newTestRouter(t, &bytes.Buffer{})

	all := decode[[]PlayerResponse](t, get(t, h, "/v1/players"))
	var names []string
	for _, p := range all {
		names = append(names, p.LastName)
	}
	if strings.Join(names, ",") != "Anand,Carlsen,Caruana" {
		t.Errorf("players = %v", names)
	}
	if all[1].Games != 2 || all[1].FirstGame == nil || *all[1].FirstGame != 0 {
		t.Errorf("Carlsen = %+v", all[1])
	}

	page := decode[[]PlayerResponse](t, get(t, h, "/v1/players?from=Carr&limit=1"))
	if len(page) != 1 || page[0].LastName != "Caruana" {
		t.Errorf("from=Carr = %+v", page)
	}

	p := decode[PlayerResponse](t, get(t, h, "/v1/players/0"))
	if p.LastName != "Carlsen" || p.FirstName != "Magnus" {
		t.Errorf("player 0 = %+v", p)
	}
}

func TestTournamentsAndStats(t *testing.T) {
	h, _ := newTestRouter(t, &bytes.Buffer{})

	ts := decode[[]TournamentResponse](t, get(t, h, "/v1/tournaments"))
	if len(ts) != 2 || ts[0].Year != 2018 || ts[1].Place != "Chennai" {
		t.Errorf("tournaments = %+v", ts)
	}

	s := decode[StatsResponse](t, get(t, h, "/v1/stats"))
	if s.Players != 3 || s.Games != 2 || s.Tournaments != 2 || s.MovesBytes == 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestMiddleware(t *testing.T) {
	var logs bytes.Buffer
	h, _ := newTestRouter(t, &logs)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "trace-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("X-Request-ID"); got != "trace-42" {
		t.Errorf("X-Request-ID = %q, want the caller's id", got)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
	if !strings.Contains(logs.String(), `"rid":"trace-42"`) || !strings.Contains(logs.String(), `"status":200`) {
		t.Errorf("access log = %s", logs.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "bad id!")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); len(got) != requestIDLen || got == "bad id!" {
		t.Errorf("X-Request-ID = %q, want a fresh id", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/v1/stats", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("OPTIONS = %d, want 204", rec.Code)
	}
}

func TestFailStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"out-of-range", fmt.Errorf("game 9: %w", entity.ErrOutOfRange), http.StatusNotFound},
		{"deleted", entity.ErrDeleted, http.StatusNotFound},
		{"concurrent-write", fmt.Errorf("players: %w", entity.ErrConcurrentModification), http.StatusServiceUnavailable},
		{"other", entity.ErrCorrupt, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			h := &Handler{log: zerolog.New(&logs)}
			rec := httptest.NewRecorder()
			h.fail(rec, httptest.NewRequest(http.MethodGet, "/v1/players", nil), tt.err)
			if rec.Code != tt.want {
				t.Errorf("Got = %v, want %v", rec.Code, tt.want)
			}
			if tt.want == http.StatusServiceUnavailable && rec.Header().Get("Retry-After") == "" {
				t.Error("503 without Retry-After")
			}
			if logged := logs.Len() > 0; logged != (tt.want == http.StatusInternalServerError) {
				t.Errorf("logged = %v for status %d", logged, tt.want)
			}
		})
	}
}
