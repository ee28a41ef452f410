// Package storage defines persistence interfaces for race sessions and the
// escrow accounts they draw from.
package storage

import (
	"context"

	apperrors "github.com/louisbranch/raceline/internal/errors"
	"github.com/louisbranch/raceline/internal/race/domain"
	"github.com/louisbranch/raceline/internal/race/escrow"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// Store persists sessions, accounts, and the escrow journal.
type Store interface {
	// CreateSession persists a freshly created session. The session either
	// exists fully or not at all.
	CreateSession(ctx context.Context, session domain.Session) error

	// GetSession loads one session with its roster in join order.
	GetSession(ctx context.Context, id string) (domain.Session, error)

	// ListSessions returns up to limit sessions, most recently created
	// first, with rosters loaded.
	ListSessions(ctx context.Context, limit int) ([]domain.Session, error)

	// UpdateSession loads the session, applies fn, and persists the result,
	// all within one transaction. The ledger handed to fn shares that
	// transaction, so an error from fn (a failed deposit included) rolls
	// back every effect. Concurrent updates to the same database are
	// serialized by the transaction's write lock.
	UpdateSession(ctx context.Context, id string, fn func(session *domain.Session, ledger escrow.Ledger) error) (domain.Session, error)

	// Fund credits an identity's external balance.
	Fund(ctx context.Context, identity string, amount int64) error

	// Balance reads an identity's external balance. Unknown identities
	// hold zero.
	Balance(ctx context.Context, identity string) (int64, error)

	// EscrowBalance reports a session's custody balance from the journal:
	// deposits minus payouts.
	EscrowBalance(ctx context.Context, sessionID string) (int64, error)
}
