package domain

import (
	apperrors "github.com/louisbranch/raceline/internal/errors"
)

// Precondition checks for every state machine operation. Each check is fully
// evaluated before any mutation so a failed action leaves the session
// untouched.

// ErrUnknownPhase indicates a session record carries a phase value outside
// the closed set. It is a storage corruption signal, never a caller error.
var ErrUnknownPhase = apperrors.New(apperrors.CodeUnknown, "session phase is unknown")

// CanJoin checks whether identity may enroll in the session.
func CanJoin(s Session, identity string) error {
	switch s.Phase {
	case PhaseWaitingForPlayers:
		// joinable
	case PhaseInProgress, PhaseFinished:
		return apperrors.New(apperrors.CodeGameNotJoinable, "game is not accepting new players")
	case PhaseUnspecified:
		return ErrUnknownPhase
	default:
		return ErrUnknownPhase
	}
	if len(s.Players) >= MaxPlayers {
		return apperrors.New(apperrors.CodeGameFull, "game roster is full")
	}
	if s.HasPlayer(identity) {
		return apperrors.New(apperrors.CodeAlreadyJoined, "player already joined this game")
	}
	return nil
}

// CanMove checks whether identity may roll within the session.
func CanMove(s Session, identity string) error {
	switch s.Phase {
	case PhaseInProgress:
		// movable
	case PhaseWaitingForPlayers, PhaseFinished:
		return apperrors.New(apperrors.CodeGameNotInProgress, "game is not in progress")
	case PhaseUnspecified:
		return ErrUnknownPhase
	default:
		return ErrUnknownPhase
	}
	player := s.Player(identity)
	if player == nil {
		return apperrors.New(apperrors.CodePlayerNotFound, "player not found in this game")
	}
	if player.Finished {
		return apperrors.New(apperrors.CodePlayerAlreadyFinished, "player already finished the race")
	}
	return nil
}

// CanBoost checks whether identity may spend a boost within the session.
func CanBoost(s Session, identity string) error {
	if err := CanMove(s, identity); err != nil {
		return err
	}
	if s.Player(identity).BoostsRemaining <= 0 {
		return apperrors.New(apperrors.CodeNoBoostsRemaining, "no boosts remaining")
	}
	return nil
}

// CanClaim checks whether identity may claim the session's prize pool.
func CanClaim(s Session, identity string) error {
	switch s.Phase {
	case PhaseFinished:
		// claimable
	case PhaseWaitingForPlayers, PhaseInProgress:
		return apperrors.New(apperrors.CodeGameNotFinished, "game is not finished yet")
	case PhaseUnspecified:
		return ErrUnknownPhase
	default:
		return ErrUnknownPhase
	}
	if s.Winner != identity {
		return apperrors.New(apperrors.CodeNotWinner, "only the winner can claim the prize")
	}
	if s.PrizePool <= 0 {
		return apperrors.New(apperrors.CodeAlreadyClaimed, "prize already claimed")
	}
	return nil
}
