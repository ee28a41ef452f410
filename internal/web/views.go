package web

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/louisbranch/raceline/internal/errors"
	"github.com/louisbranch/raceline/internal/race/domain"
	"github.com/louisbranch/raceline/internal/race/service"
)

// The session view is the persisted state layout external readers poll.
// Field names are load-bearing: indexers and monitors are built against
// them.

type playerView struct {
	Identity        string `json:"identity"`
	Position        int    `json:"position"`
	BoostsRemaining int    `json:"boostsRemaining"`
	Finished        bool   `json:"finished"`
}

type sessionView struct {
	SessionID   string       `json:"sessionId"`
	Authority   string       `json:"authority"`
	Phase       string       `json:"phase"`
	EntryFee    int64        `json:"entryFee"`
	TrackLength int          `json:"trackLength"`
	Players     []playerView `json:"players"`
	PrizePool   int64        `json:"prizePool"`
	Winner      string       `json:"winner,omitempty"`
}

type sessionSummaryView struct {
	SessionID   string `json:"sessionId"`
	Phase       string `json:"phase"`
	EntryFee    int64  `json:"entryFee"`
	TrackLength int    `json:"trackLength"`
	Players     int    `json:"players"`
	PrizePool   int64  `json:"prizePool"`
}

type listSessionsResponse struct {
	Sessions []sessionSummaryView `json:"sessions"`
}

type moveResponse struct {
	Session  sessionView `json:"session"`
	Roll     int         `json:"roll"`
	Position int         `json:"position"`
	Finished bool        `json:"finished"`
	Won      bool        `json:"won"`
}

type claimResponse struct {
	Session sessionView `json:"session"`
	Amount  int64       `json:"amount"`
}

type accountResponse struct {
	Identity string `json:"identity"`
	Balance  int64  `json:"balance"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func sessionToView(session domain.Session) sessionView {
	players := make([]playerView, 0, len(session.Players))
	for _, player := range session.Players {
		players = append(players, playerView{
			Identity:        player.Identity,
			Position:        player.Position,
			BoostsRemaining: player.BoostsRemaining,
			Finished:        player.Finished,
		})
	}
	return sessionView{
		SessionID:   session.ID,
		Authority:   session.Authority,
		Phase:       session.Phase.String(),
		EntryFee:    session.EntryFee,
		TrackLength: session.TrackLength,
		Players:     players,
		PrizePool:   session.PrizePool,
		Winner:      session.Winner,
	}
}

func sessionToSummaryView(session domain.Session) sessionSummaryView {
	return sessionSummaryView{
		SessionID:   session.ID,
		Phase:       session.Phase.String(),
		EntryFee:    session.EntryFee,
		TrackLength: session.TrackLength,
		Players:     len(session.Players),
		PrizePool:   session.PrizePool,
	}
}

func moveToView(outcome service.MoveOutcome) moveResponse {
	return moveResponse{
		Session:  sessionToView(outcome.Session),
		Roll:     outcome.Result.Roll,
		Position: outcome.Result.Position,
		Finished: outcome.Result.Finished,
		Won:      outcome.Result.Won,
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error().Err(err).Msg("encode response")
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.GetCode(err)
	message := err.Error()
	if code == apperrors.CodeUnknown {
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("internal error")
		message = "an unexpected error occurred"
	}
	h.respondJSON(w, code.HTTPStatus(), errorResponse{Error: errorBody{
		Code:    string(code),
		Message: message,
	}})
}
