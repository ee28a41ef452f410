// Package sqlite provides the SQLite-backed race storage implementation.
//
// Every action against a session runs in a single immediate transaction, so
// sqlite's writer lock serializes concurrent actions and a failed step rolls
// back roster, pool, and escrow effects together.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/raceline/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/raceline/internal/race/domain"
	"github.com/louisbranch/raceline/internal/race/escrow"
	"github.com/louisbranch/raceline/internal/race/storage"
	"github.com/louisbranch/raceline/internal/race/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists race state in SQLite.
type Store struct {
	sqlDB *sql.DB
	clock func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite race store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, clock: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// querier abstracts *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CreateSession inserts one session row. No roster rows exist at creation.
func (s *Store) CreateSession(ctx context.Context, session domain.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(session.ID) == "" {
		return fmt.Errorf("session id is required")
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO sessions (
		   id, authority, phase, entry_fee, track_length,
		   prize_pool, winner, created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.Authority,
		int(session.Phase),
		session.EntryFee,
		session.TrackLength,
		session.PrizePool,
		session.Winner,
		toMillis(session.CreatedAt),
		toMillis(session.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession loads one session with its roster in join order.
func (s *Store) GetSession(ctx context.Context, id string) (domain.Session, error) {
	return getSession(ctx, s.sqlDB, id)
}

func getSession(ctx context.Context, q querier, id string) (domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return domain.Session{}, err
	}
	row := q.QueryRowContext(
		ctx,
		`SELECT id, authority, phase, entry_fee, track_length,
		        prize_pool, winner, created_at, updated_at
		   FROM sessions WHERE id = ?`,
		id,
	)

	var session domain.Session
	var phase int
	var createdAt, updatedAt int64
	err := row.Scan(
		&session.ID,
		&session.Authority,
		&phase,
		&session.EntryFee,
		&session.TrackLength,
		&session.PrizePool,
		&session.Winner,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Session{}, storage.ErrNotFound
		}
		return domain.Session{}, fmt.Errorf("scan session: %w", err)
	}
	session.Phase = domain.Phase(phase)
	session.CreatedAt = fromMillis(createdAt)
	session.UpdatedAt = fromMillis(updatedAt)

	players, err := loadPlayers(ctx, q, id)
	if err != nil {
		return domain.Session{}, err
	}
	session.Players = players
	return session, nil
}

func loadPlayers(ctx context.Context, q querier, sessionID string) ([]domain.PlayerState, error) {
	rows, err := q.QueryContext(
		ctx,
		`SELECT identity, position, boosts_remaining, finished
		   FROM players WHERE session_id = ? ORDER BY join_order ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query players: %w", err)
	}
	defer rows.Close()

	var players []domain.PlayerState
	for rows.Next() {
		var player domain.PlayerState
		var finished int
		if err := rows.Scan(&player.Identity, &player.Position, &player.BoostsRemaining, &finished); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		player.Finished = finished != 0
		players = append(players, player)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate players: %w", err)
	}
	return players, nil
}

// ListSessions returns up to limit sessions, most recently created first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id FROM sessions ORDER BY created_at DESC, id ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	sessions := make([]domain.Session, 0, len(ids))
	for _, id := range ids {
		session, err := getSession(ctx, s.sqlDB, id)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// UpdateSession loads the session, applies fn, and persists the result in
// one transaction shared with the escrow ledger.
func (s *Store) UpdateSession(ctx context.Context, id string, fn func(session *domain.Session, ledger escrow.Ledger) error) (domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return domain.Session{}, err
	}
	if fn == nil {
		return domain.Session{}, fmt.Errorf("update function is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Session{}, fmt.Errorf("begin transaction: %w", err)
	}

	session, err := getSession(ctx, tx, id)
	if err != nil {
		_ = tx.Rollback()
		return domain.Session{}, err
	}

	ledger := &txLedger{tx: tx, clock: s.clock}
	if err := fn(&session, ledger); err != nil {
		_ = tx.Rollback()
		return domain.Session{}, err
	}

	if err := persistSession(ctx, tx, session); err != nil {
		_ = tx.Rollback()
		return domain.Session{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.Session{}, fmt.Errorf("commit transaction: %w", err)
	}
	return session, nil
}

func persistSession(ctx context.Context, q querier, session domain.Session) error {
	_, err := q.ExecContext(
		ctx,
		`UPDATE sessions
		    SET phase = ?, prize_pool = ?, winner = ?, updated_at = ?
		  WHERE id = ?`,
		int(session.Phase),
		session.PrizePool,
		session.Winner,
		toMillis(session.UpdatedAt),
		session.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	for i, player := range session.Players {
		finished := 0
		if player.Finished {
			finished = 1
		}
		_, err := q.ExecContext(
			ctx,
			`INSERT INTO players (
			   session_id, identity, join_order, position, boosts_remaining, finished
			 ) VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (session_id, identity) DO UPDATE SET
			   position = excluded.position,
			   boosts_remaining = excluded.boosts_remaining,
			   finished = excluded.finished`,
			session.ID,
			player.Identity,
			i,
			player.Position,
			player.BoostsRemaining,
			finished,
		)
		if err != nil {
			return fmt.Errorf("upsert player %s: %w", player.Identity, err)
		}
	}
	return nil
}

// txLedger implements escrow.Ledger inside one transaction.
type txLedger struct {
	tx    *sql.Tx
	clock func() time.Time
}

// Deposit moves amount from the identity's external balance into custody.
func (l *txLedger) Deposit(ctx context.Context, sessionID, from string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("deposit amount must be non-negative")
	}
	if err := ensureAccount(ctx, l.tx, from); err != nil {
		return err
	}

	var balance int64
	row := l.tx.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE identity = ?`, from)
	if err := row.Scan(&balance); err != nil {
		return fmt.Errorf("read balance: %w", err)
	}
	if balance < amount {
		return escrow.ErrInsufficientFunds
	}

	if _, err := l.tx.ExecContext(
		ctx,
		`UPDATE accounts SET balance = balance - ? WHERE identity = ?`,
		amount, from,
	); err != nil {
		return fmt.Errorf("debit account: %w", err)
	}
	return l.journal(ctx, sessionID, from, escrow.KindDeposit, amount)
}

// Payout moves amount out of custody to the identity's external balance.
func (l *txLedger) Payout(ctx context.Context, sessionID, to string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("payout amount must be non-negative")
	}
	if err := ensureAccount(ctx, l.tx, to); err != nil {
		return err
	}
	if _, err := l.tx.ExecContext(
		ctx,
		`UPDATE accounts SET balance = balance + ? WHERE identity = ?`,
		amount, to,
	); err != nil {
		return fmt.Errorf("credit account: %w", err)
	}
	return l.journal(ctx, sessionID, to, escrow.KindPayout, amount)
}

func (l *txLedger) journal(ctx context.Context, sessionID, identity string, kind escrow.EntryKind, amount int64) error {
	_, err := l.tx.ExecContext(
		ctx,
		`INSERT INTO escrow_entries (session_id, identity, kind, amount, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sessionID,
		identity,
		string(kind),
		amount,
		toMillis(l.clock()),
	)
	if err != nil {
		return fmt.Errorf("journal escrow entry: %w", err)
	}
	return nil
}

func ensureAccount(ctx context.Context, q querier, identity string) error {
	if strings.TrimSpace(identity) == "" {
		return fmt.Errorf("account identity is required")
	}
	if _, err := q.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO accounts (identity, balance) VALUES (?, 0)`,
		identity,
	); err != nil {
		return fmt.Errorf("ensure account: %w", err)
	}
	return nil
}

// Fund credits an identity's external balance.
func (s *Store) Fund(ctx context.Context, identity string, amount int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount < 0 {
		return fmt.Errorf("fund amount must be non-negative")
	}
	if err := ensureAccount(ctx, s.sqlDB, identity); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE accounts SET balance = balance + ? WHERE identity = ?`,
		amount, identity,
	); err != nil {
		return fmt.Errorf("credit account: %w", err)
	}
	return nil
}

// Balance reads an identity's external balance. Unknown identities hold zero.
func (s *Store) Balance(ctx context.Context, identity string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var balance int64
	row := s.sqlDB.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE identity = ?`, identity)
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return balance, nil
}

// EscrowBalance reports a session's custody balance from the journal.
func (s *Store) EscrowBalance(ctx context.Context, sessionID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var deposits, payouts int64
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT
		   COALESCE(SUM(CASE WHEN kind = 'deposit' THEN amount ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN kind = 'payout' THEN amount ELSE 0 END), 0)
		 FROM escrow_entries WHERE session_id = ?`,
		sessionID,
	)
	if err := row.Scan(&deposits, &payouts); err != nil {
		return 0, fmt.Errorf("sum escrow entries: %w", err)
	}
	return deposits - payouts, nil
}
