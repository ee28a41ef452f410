// Package escrow defines custody of entry fees tied to one session.
//
// A Ledger implementation always runs inside the transaction of the action
// that invoked it: a failed deposit aborts the enclosing join, and a payout
// only ever happens as part of a prize claim. Funds held for one session are
// isolated from every other session's funds.
package escrow

import (
	"context"

	apperrors "github.com/louisbranch/raceline/internal/errors"
)

// EntryKind tags one journal entry.
type EntryKind string

const (
	// KindDeposit moves funds from a player's external balance into custody.
	KindDeposit EntryKind = "deposit"
	// KindPayout moves custody funds out to the winner.
	KindPayout EntryKind = "payout"
)

// ErrInsufficientFunds indicates the depositing account cannot cover the
// entry fee.
var ErrInsufficientFunds = apperrors.New(apperrors.CodeInsufficientFunds, "insufficient funds to deposit")

// Ledger moves funds between external accounts and session custody.
//
// The invariant for every session: the sum of its deposits minus the sum of
// its payouts equals the session's prize pool at all times.
type Ledger interface {
	// Deposit moves amount from the identity's external balance into the
	// session's custody. Fails with ErrInsufficientFunds when the balance
	// cannot cover amount.
	Deposit(ctx context.Context, sessionID, from string, amount int64) error

	// Payout moves amount out of the session's custody to the identity's
	// external balance. Only the claim step of the session state machine
	// invokes it; the authority has no payout path.
	Payout(ctx context.Context, sessionID, to string, amount int64) error
}
