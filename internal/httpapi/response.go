package httpapi

import (
	"github.com/freeeve/chessdb/internal/entities"
	"github.com/freeeve/chessdb/internal/gamedb"
)

// PlayerResponse is the JSON form of a player.
type PlayerResponse struct {
	ID        int32  `json:"id"`
	LastName  string `json:"last_name"`
	FirstName string `json:"first_name,omitempty"`
	Games     uint32 `json:"games"`
	FirstGame *int32 `json:"first_game,omitempty"`
}

type TournamentResponse struct {
	ID     int32  `json:"id"`
	Title  string `json:"title"`
	Place  string `json:"place,omitempty"`
	Year   int16  `json:"year,omitempty"`
	Rounds uint8  `json:"rounds,omitempty"`
	Games  uint32 `json:"games"`
}

// GameResponse is a full game with moves in UCI notation.
type GameResponse struct {
	ID         int32    `json:"id"`
	White      string   `json:"white"`
	Black      string   `json:"black"`
	WhiteElo   uint16   `json:"white_elo,omitempty"`
	BlackElo   uint16   `json:"black_elo,omitempty"`
	Event      string   `json:"event,omitempty"`
	Site       string   `json:"site,omitempty"`
	Source     string   `json:"source,omitempty"`
	Date       string   `json:"date"`
	Round      int32    `json:"round,omitempty"`
	Result     string   `json:"result"`
	ECO        string   `json:"eco,omitempty"`
	Moves      []string `json:"moves"`
	Annotation string   `json:"annotation,omitempty"`
}

type StatsResponse struct {
	Players         int   `json:"players"`
	Tournaments     int   `json:"tournaments"`
	Sources         int   `json:"sources"`
	Games           int   `json:"games"`
	MovesBytes      int64 `json:"moves_bytes"`
	MovesTrash      int64 `json:"moves_trash"`
	AnnotationBytes int64 `json:"annotation_bytes"`
	AnnotationTrash int64 `json:"annotation_trash"`
}

func toPlayerResponse(id int32, p entities.Player) PlayerResponse {
	r := PlayerResponse{
		ID:        id,
		LastName:  p.LastName,
		FirstName: p.FirstName,
		Games:     p.Count,
	}
	if p.FirstGameID != entities.NoID {
		first := p.FirstGameID
		r.FirstGame = &first
	}
	return r
}

func toTournamentResponse(id int32, t entities.Tournament) TournamentResponse {
	return TournamentResponse{
		ID:     id,
		Title:  t.Title,
		Place:  t.Place,
		Year:   t.Year,
		Rounds: t.Rounds,
		Games:  t.Count,
	}
}

// ToGameResponse converts a stored game to its JSON form.
func ToGameResponse(g gamedb.Game) *GameResponse {
	resp := &GameResponse{
		ID:         g.ID,
		White:      g.White.Name(),
		Black:      g.Black.Name(),
		WhiteElo:   g.WhiteElo,
		BlackElo:   g.BlackElo,
		Event:      g.Tournament.Title,
		Site:       g.Tournament.Place,
		Source:     g.Source.Title,
		Date:       g.Date.String(),
		Round:      g.Round,
		Result:     g.Result.String(),
		ECO:        g.ECO.String(),
		Moves:      make([]string, 0, len(g.Moves)),
		Annotation: g.Annotation,
	}
	for _, m := range g.Moves {
		resp.Moves = append(resp.Moves, m.ToUCI())
	}
	return resp
}

func toStatsResponse(s gamedb.Stats) StatsResponse {
	return StatsResponse{
		Players:         s.Players,
		Tournaments:     s.Tournaments,
		Sources:         s.Sources,
		Games:           s.Games,
		MovesBytes:      s.MovesBytes,
		MovesTrash:      s.MovesTrash,
		AnnotationBytes: s.AnnotationBytes,
		AnnotationTrash: s.AnnotationTrash,
	}
}
