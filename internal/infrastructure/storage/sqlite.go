package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/trade_journal/internal/domain"
	"go.uber.org/multierr"
)

// SQLiteStore implements every repository of the journal on one SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ domain.TradeRepository     = (*SQLiteStore)(nil)
	_ domain.ProgressRepository  = (*SQLiteStore)(nil)
	_ domain.ChallengeRepository = (*SQLiteStore)(nil)
	_ domain.PartnerRepository   = (*SQLiteStore)(nil)
)

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// Grants and violations rely on serialized transactions.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, multierr.Append(err, db.Close())
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			trader_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity TEXT NOT NULL,
			pnl TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			executed_day TEXT NOT NULL,
			executed_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_trader_day ON trades(trader_id, executed_day);`,
		`CREATE TABLE IF NOT EXISTS xp_ledgers (
			trader_id TEXT PRIMARY KEY,
			total_xp INTEGER NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS xp_grants (
			idempotency_key TEXT PRIMARY KEY,
			trader_id TEXT NOT NULL,
			amount INTEGER NOT NULL,
			reason TEXT NOT NULL,
			source_id TEXT NOT NULL,
			granted_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_xp_grants_trader ON xp_grants(trader_id);`,
		`CREATE TABLE IF NOT EXISTS streaks (
			trader_id TEXT PRIMARY KEY,
			current_length INTEGER NOT NULL,
			longest_length INTEGER NOT NULL,
			last_qualifying_day TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS challenges (
			id TEXT PRIMARY KEY,
			definition_id TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			title TEXT NOT NULL,
			type TEXT NOT NULL,
			rule TEXT NOT NULL,
			xp_reward INTEGER NOT NULL,
			period_start TEXT NOT NULL,
			period_end TEXT NOT NULL,
			state TEXT NOT NULL,
			shared BOOLEAN NOT NULL DEFAULT 0,
			relationship_id TEXT NOT NULL DEFAULT '',
			policy TEXT NOT NULL DEFAULT '',
			participants TEXT NOT NULL DEFAULT '[]',
			outcomes TEXT NOT NULL DEFAULT '{}',
			rewarded TEXT NOT NULL DEFAULT '{}',
			updated_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_challenges_owner ON challenges(owner_id, state);`,
		`CREATE INDEX IF NOT EXISTS idx_challenges_relationship ON challenges(relationship_id, state);`,
		`CREATE TABLE IF NOT EXISTS challenge_transitions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			challenge_id TEXT NOT NULL,
			from_state TEXT NOT NULL,
			to_state TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS relationships (
			id TEXT PRIMARY KEY,
			inviter_id TEXT NOT NULL,
			invitee_id TEXT NOT NULL,
			status TEXT NOT NULL,
			rules TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL,
			accepted_at DATETIME,
			ended_at DATETIME,
			ended_by TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_relationships_inviter ON relationships(inviter_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_relationships_invitee ON relationships(invitee_id, status);`,
		`CREATE TABLE IF NOT EXISTS rule_violations (
			relationship_id TEXT NOT NULL,
			rule_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			trader_id TEXT NOT NULL,
			day TEXT NOT NULL,
			observed TEXT NOT NULL,
			limit_value TEXT NOT NULL,
			PRIMARY KEY (relationship_id, rule_id, trader_id, day)
		);`,
		`CREATE TABLE IF NOT EXISTS relationship_events (
			id TEXT PRIMARY KEY,
			relationship_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			recipient TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_relationship_events_recipient ON relationship_events(recipient, created_at);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

// withTx runs fn in a transaction, rolling back when it fails.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return multierr.Append(err, tx.Rollback())
	}
	return tx.Commit()
}

// notFound maps sql.ErrNoRows to domain.ErrNotFound.
func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, domain.ErrNotFound)
	}
	return err
}

func scanDate(raw string) (domain.Date, error) {
	if raw == "" {
		return domain.Date{}, nil
	}
	return domain.ParseDate(raw)
}
