// Package domain holds the race session data model and its state machine.
package domain

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/raceline/internal/errors"
)

// Deployment-wide game constants. These are fixed per deployment, never
// per session.
const (
	// MaxPlayers caps the roster size of one session.
	MaxPlayers = 5
	// MinPlayersToStart is the roster size that flips a session in progress.
	MinPlayersToStart = 2
	// BoostsPerPlayer is the number of boosts each player starts with.
	BoostsPerPlayer = 3
	// BoostAmount is the distance a boost advances a player.
	BoostAmount = 3
	// DiceSides is the number of faces on the movement die.
	DiceSides = 6
)

// Phase is the coarse lifecycle stage of a session.
type Phase int

const (
	// PhaseUnspecified represents an invalid phase value.
	PhaseUnspecified Phase = iota
	// PhaseWaitingForPlayers accepts new players.
	PhaseWaitingForPlayers
	// PhaseInProgress allows movement actions.
	PhaseInProgress
	// PhaseFinished has a winner and only allows the prize claim.
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseWaitingForPlayers:
		return "WaitingForPlayers"
	case PhaseInProgress:
		return "InProgress"
	case PhaseFinished:
		return "Finished"
	case PhaseUnspecified:
		return "Unspecified"
	default:
		return "Unknown"
	}
}

// PlayerState is one enrolled player's progress within a session.
type PlayerState struct {
	Identity        string
	Position        int
	BoostsRemaining int
	Finished        bool
}

// Session is one race instance: roster, track, escrowed prize pool.
type Session struct {
	ID          string
	Authority   string
	Phase       Phase
	EntryFee    int64
	TrackLength int
	Players     []PlayerState
	PrizePool   int64
	Winner      string // empty until the phase is Finished
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Player returns the roster entry for identity, or nil if not enrolled.
func (s *Session) Player(identity string) *PlayerState {
	for i := range s.Players {
		if s.Players[i].Identity == identity {
			return &s.Players[i]
		}
	}
	return nil
}

// HasPlayer reports whether identity is enrolled in the session.
func (s *Session) HasPlayer(identity string) bool {
	return s.Player(identity) != nil
}

// CreateSessionInput describes the parameters needed to create a session.
type CreateSessionInput struct {
	Authority   string
	EntryFee    int64
	TrackLength int
}

// CreateSession creates a new session in the waiting phase with an empty
// roster and a generated ID.
func CreateSession(input CreateSessionInput, now func() time.Time, idGenerator func() (string, error)) (Session, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = NewSessionID
	}

	input.Authority = strings.TrimSpace(input.Authority)
	if input.Authority == "" {
		return Session{}, apperrors.New(apperrors.CodeInvalidParameters, "authority identity is required")
	}
	if input.EntryFee < 0 {
		return Session{}, apperrors.New(apperrors.CodeInvalidParameters, "entry fee must be non-negative")
	}
	if input.TrackLength <= 0 {
		return Session{}, apperrors.New(apperrors.CodeInvalidParameters, "track length must be positive")
	}

	sessionID, err := idGenerator()
	if err != nil {
		return Session{}, fmt.Errorf("generate session id: %w", err)
	}

	createdAt := now().UTC()
	return Session{
		ID:          sessionID,
		Authority:   input.Authority,
		Phase:       PhaseWaitingForPlayers,
		EntryFee:    input.EntryFee,
		TrackLength: input.TrackLength,
		PrizePool:   0,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}, nil
}
