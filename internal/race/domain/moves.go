package domain

import (
	apperrors "github.com/louisbranch/raceline/internal/errors"
)

// MoveResult describes the outcome of one movement action.
type MoveResult struct {
	Roll     int // distance applied: die value, or BoostAmount for boosts
	Position int // position after the move
	Finished bool
	Won      bool
}

// Join enrolls identity: appends a roster entry, grows the prize pool by the
// entry fee, and flips the session in progress once the roster reaches
// MinPlayersToStart. The escrow deposit must already be secured by the
// enclosing transaction.
func (s *Session) Join(identity string) error {
	if err := CanJoin(*s, identity); err != nil {
		return err
	}
	s.Players = append(s.Players, PlayerState{
		Identity:        identity,
		Position:        0,
		BoostsRemaining: BoostsPerPlayer,
		Finished:        false,
	})
	s.PrizePool += s.EntryFee
	if len(s.Players) >= MinPlayersToStart {
		s.Phase = PhaseInProgress
	}
	return nil
}

// ApplyRoll advances identity by a die value in [1, DiceSides].
func (s *Session) ApplyRoll(identity string, roll int) (MoveResult, error) {
	if roll < 1 || roll > DiceSides {
		return MoveResult{}, apperrors.New(apperrors.CodeInvalidParameters, "roll outside the die range")
	}
	if err := CanMove(*s, identity); err != nil {
		return MoveResult{}, err
	}
	return s.advance(identity, roll), nil
}

// ApplyBoost spends one boost and advances identity by BoostAmount.
func (s *Session) ApplyBoost(identity string) (MoveResult, error) {
	if err := CanBoost(*s, identity); err != nil {
		return MoveResult{}, err
	}
	s.Player(identity).BoostsRemaining--
	return s.advance(identity, BoostAmount), nil
}

// Claim zeroes the prize pool and returns the amount the escrow must pay
// out to identity within the enclosing transaction.
func (s *Session) Claim(identity string) (int64, error) {
	if err := CanClaim(*s, identity); err != nil {
		return 0, err
	}
	amount := s.PrizePool
	s.PrizePool = 0
	return amount, nil
}

// advance moves a validated player and resolves the finish line. The winner
// is recorded exactly once; positions only ever grow.
func (s *Session) advance(identity string, distance int) MoveResult {
	player := s.Player(identity)
	player.Position += distance

	result := MoveResult{
		Roll:     distance,
		Position: player.Position,
	}
	if player.Position >= s.TrackLength {
		player.Finished = true
		result.Finished = true
		if s.Winner == "" {
			s.Winner = identity
			s.Phase = PhaseFinished
			result.Won = true
		}
	}
	return result
}
