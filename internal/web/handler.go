// Package web exposes the race API over HTTP. The JSON session shape is the
// canonical poll surface for external readers; the handlers never invent
// state beyond what the service returns.
package web

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/louisbranch/raceline/internal/auth"
	apperrors "github.com/louisbranch/raceline/internal/errors"
	"github.com/louisbranch/raceline/internal/race/service"
)

// Handler serves the race HTTP API.
type Handler struct {
	svc      *service.Service
	authn    *auth.Authenticator
	operator string
	logger   zerolog.Logger
}

// NewHandler creates a Handler. The operator identity is the only caller
// allowed to fund accounts.
func NewHandler(svc *service.Service, authn *auth.Authenticator, operator string, logger zerolog.Logger) *Handler {
	return &Handler{
		svc:      svc,
		authn:    authn,
		operator: strings.TrimSpace(operator),
		logger:   logger,
	}
}

// Routes builds the chi router for the race API.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", h.listSessions)
		r.Get("/{sessionID}", h.getSession)

		r.Group(func(r chi.Router) {
			r.Use(h.requireIdentity)
			r.Post("/", h.createSession)
			r.Post("/{sessionID}/join", h.joinRace)
			r.Post("/{sessionID}/roll", h.rollAndMove)
			r.Post("/{sessionID}/boost", h.useBoost)
			r.Post("/{sessionID}/claim", h.claimPrize)
		})
	})

	r.Route("/accounts", func(r chi.Router) {
		r.Get("/{identity}", h.accountBalance)
		r.With(h.requireIdentity).Post("/{identity}/fund", h.fundAccount)
	})

	return r
}

type createSessionRequest struct {
	EntryFee    int64 `json:"entryFee"`
	TrackLength int   `json:"trackLength"`
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, apperrors.Wrap(apperrors.CodeInvalidParameters, "malformed request body", err))
		return
	}

	session, err := h.svc.CreateSession(r.Context(), identity, req.EntryFee, req.TrackLength)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, sessionToView(session))
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.svc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sessionToView(session))
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.svc.ListSessions(r.Context(), 0)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	views := make([]sessionSummaryView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, sessionToSummaryView(session))
	}
	h.respondJSON(w, http.StatusOK, listSessionsResponse{Sessions: views})
}

func (h *Handler) joinRace(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	session, err := h.svc.JoinRace(r.Context(), chi.URLParam(r, "sessionID"), identity)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sessionToView(session))
}

func (h *Handler) rollAndMove(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	outcome, err := h.svc.RollAndMove(r.Context(), chi.URLParam(r, "sessionID"), identity)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, moveToView(outcome))
}

func (h *Handler) useBoost(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	outcome, err := h.svc.UseBoost(r.Context(), chi.URLParam(r, "sessionID"), identity)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, moveToView(outcome))
}

func (h *Handler) claimPrize(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	outcome, err := h.svc.ClaimPrize(r.Context(), chi.URLParam(r, "sessionID"), identity)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, claimResponse{
		Session: sessionToView(outcome.Session),
		Amount:  outcome.Amount,
	})
}

type fundRequest struct {
	Amount int64 `json:"amount"`
}

func (h *Handler) fundAccount(w http.ResponseWriter, r *http.Request) {
	caller := identityFrom(r.Context())
	if h.operator == "" || caller != h.operator {
		h.respondError(w, r, apperrors.New(apperrors.CodeForbidden, "only the operator can fund accounts"))
		return
	}

	var req fundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, apperrors.Wrap(apperrors.CodeInvalidParameters, "malformed request body", err))
		return
	}
	if req.Amount <= 0 {
		h.respondError(w, r, apperrors.New(apperrors.CodeInvalidParameters, "fund amount must be positive"))
		return
	}

	target := chi.URLParam(r, "identity")
	if err := h.svc.FundAccount(r.Context(), target, req.Amount); err != nil {
		h.respondError(w, r, err)
		return
	}
	balance, err := h.svc.AccountBalance(r.Context(), target)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, accountResponse{Identity: target, Balance: balance})
}

func (h *Handler) accountBalance(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	balance, err := h.svc.AccountBalance(r.Context(), identity)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, accountResponse{Identity: identity, Balance: balance})
}
