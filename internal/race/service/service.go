// Package service implements the race session state machine. Every
// operation is one atomic transition: preconditions are fully evaluated
// before any mutation, and the storage transaction rolls back all effects
// on failure.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/raceline/internal/race/dice"
	"github.com/louisbranch/raceline/internal/race/domain"
	"github.com/louisbranch/raceline/internal/race/escrow"
	"github.com/louisbranch/raceline/internal/race/storage"
)

const (
	defaultListSessionsLimit = 20
	maxListSessionsLimit     = 100
)

// Service applies signed actions to race sessions.
type Service struct {
	store       storage.Store
	roller      *dice.Roller
	clock       func() time.Time
	idGenerator func() (string, error)
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// New creates a Service with default clock and id generation.
func New(store storage.Store, roller *dice.Roller, logger zerolog.Logger) *Service {
	return &Service{
		store:       store,
		roller:      roller,
		clock:       time.Now,
		idGenerator: domain.NewSessionID,
		logger:      logger,
		tracer:      otel.Tracer("raceline/race"),
	}
}

// MoveOutcome reports one resolved movement action.
type MoveOutcome struct {
	Session domain.Session
	Result  domain.MoveResult
}

// ClaimOutcome reports one resolved prize claim.
type ClaimOutcome struct {
	Session domain.Session
	Amount  int64
}

// CreateSession allocates a new session in the waiting phase. The caller
// becomes the session authority.
func (s *Service) CreateSession(ctx context.Context, authority string, entryFee int64, trackLength int) (domain.Session, error) {
	ctx, span := s.tracer.Start(ctx, "race.CreateSession")
	defer span.End()

	session, err := domain.CreateSession(domain.CreateSessionInput{
		Authority:   authority,
		EntryFee:    entryFee,
		TrackLength: trackLength,
	}, s.clock, s.idGenerator)
	if err != nil {
		return domain.Session{}, err
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return domain.Session{}, fmt.Errorf("persist session: %w", err)
	}

	s.logger.Info().
		Str("session_id", session.ID).
		Str("authority", session.Authority).
		Int64("entry_fee", session.EntryFee).
		Int("track_length", session.TrackLength).
		Msg("session created")
	return session, nil
}

// JoinRace deposits the entry fee into escrow and enrolls the caller. Both
// effects commit together or not at all.
func (s *Service) JoinRace(ctx context.Context, sessionID, identity string) (domain.Session, error) {
	ctx, span := s.tracer.Start(ctx, "race.JoinRace")
	defer span.End()

	session, err := s.store.UpdateSession(ctx, sessionID, func(session *domain.Session, ledger escrow.Ledger) error {
		if err := domain.CanJoin(*session, identity); err != nil {
			return err
		}
		if err := ledger.Deposit(ctx, session.ID, identity, session.EntryFee); err != nil {
			return err
		}
		if err := session.Join(identity); err != nil {
			return err
		}
		session.UpdatedAt = s.clock().UTC()
		return nil
	})
	if err != nil {
		return domain.Session{}, err
	}

	event := s.logger.Info().
		Str("session_id", session.ID).
		Str("identity", identity).
		Int("players", len(session.Players))
	if session.Phase == domain.PhaseInProgress && len(session.Players) == domain.MinPlayersToStart {
		event = event.Bool("started", true)
	}
	event.Msg("player joined")
	return session, nil
}

// RollAndMove draws one die value at execution time and advances the caller.
func (s *Service) RollAndMove(ctx context.Context, sessionID, identity string) (MoveOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "race.RollAndMove")
	defer span.End()

	var result domain.MoveResult
	session, err := s.store.UpdateSession(ctx, sessionID, func(session *domain.Session, ledger escrow.Ledger) error {
		if err := domain.CanMove(*session, identity); err != nil {
			return err
		}
		roll, err := s.roller.Roll()
		if err != nil {
			return fmt.Errorf("roll die: %w", err)
		}
		result, err = session.ApplyRoll(identity, roll)
		if err != nil {
			return err
		}
		session.UpdatedAt = s.clock().UTC()
		return nil
	})
	if err != nil {
		return MoveOutcome{}, err
	}

	event := s.logger.Info().
		Str("session_id", session.ID).
		Str("identity", identity).
		Int("roll", result.Roll).
		Int("position", result.Position)
	if result.Won {
		event = event.Bool("won", true)
	}
	event.Msg("player rolled")
	return MoveOutcome{Session: session, Result: result}, nil
}

// UseBoost spends one boost and advances the caller by the fixed boost
// distance.
func (s *Service) UseBoost(ctx context.Context, sessionID, identity string) (MoveOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "race.UseBoost")
	defer span.End()

	var result domain.MoveResult
	session, err := s.store.UpdateSession(ctx, sessionID, func(session *domain.Session, ledger escrow.Ledger) error {
		var err error
		result, err = session.ApplyBoost(identity)
		if err != nil {
			return err
		}
		session.UpdatedAt = s.clock().UTC()
		return nil
	})
	if err != nil {
		return MoveOutcome{}, err
	}

	event := s.logger.Info().
		Str("session_id", session.ID).
		Str("identity", identity).
		Int("position", result.Position).
		Int("boosts_remaining", session.Player(identity).BoostsRemaining)
	if result.Won {
		event = event.Bool("won", true)
	}
	event.Msg("player boosted")
	return MoveOutcome{Session: session, Result: result}, nil
}

// ClaimPrize pays the full prize pool out of escrow to the winner and zeroes
// the pool, closing the session.
func (s *Service) ClaimPrize(ctx context.Context, sessionID, identity string) (ClaimOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "race.ClaimPrize")
	defer span.End()

	var amount int64
	session, err := s.store.UpdateSession(ctx, sessionID, func(session *domain.Session, ledger escrow.Ledger) error {
		var err error
		amount, err = session.Claim(identity)
		if err != nil {
			return err
		}
		if err := ledger.Payout(ctx, session.ID, identity, amount); err != nil {
			return err
		}
		session.UpdatedAt = s.clock().UTC()
		return nil
	})
	if err != nil {
		return ClaimOutcome{}, err
	}

	s.logger.Info().
		Str("session_id", session.ID).
		Str("identity", identity).
		Int64("amount", amount).
		Msg("prize claimed")
	return ClaimOutcome{Session: session, Amount: amount}, nil
}

// GetSession loads the canonical state of one session.
func (s *Service) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	return s.store.GetSession(ctx, sessionID)
}

// ListSessions returns up to limit sessions, most recently created first.
func (s *Service) ListSessions(ctx context.Context, limit int) ([]domain.Session, error) {
	if limit <= 0 {
		limit = defaultListSessionsLimit
	}
	if limit > maxListSessionsLimit {
		limit = maxListSessionsLimit
	}
	return s.store.ListSessions(ctx, limit)
}

// FundAccount credits an identity's external balance. This is the dev
// faucet path, not part of the race state machine.
func (s *Service) FundAccount(ctx context.Context, identity string, amount int64) error {
	if err := s.store.Fund(ctx, identity, amount); err != nil {
		return err
	}
	s.logger.Info().Str("identity", identity).Int64("amount", amount).Msg("account funded")
	return nil
}

// AccountBalance reads an identity's external balance.
func (s *Service) AccountBalance(ctx context.Context, identity string) (int64, error) {
	return s.store.Balance(ctx, identity)
}
