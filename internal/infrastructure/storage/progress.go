package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vitos/trade_journal/internal/domain"
)

// ProgressRepository Implementation

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getLedger(ctx context.Context, q rowQuerier, traderID string) (domain.XPLedger, error) {
	ledger := domain.XPLedger{TraderID: traderID}
	err := q.QueryRowContext(ctx, `SELECT total_xp FROM xp_ledgers WHERE trader_id = ?`, traderID).Scan(&ledger.TotalXP)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger, nil
	}
	return ledger, err
}

// GetLedger returns a zero ledger for an unknown trader.
func (s *SQLiteStore) GetLedger(ctx context.Context, traderID string) (domain.XPLedger, error) {
	return getLedger(ctx, s.db, traderID)
}

func (s *SQLiteStore) ApplyGrant(ctx context.Context, grant domain.XPGrant, apply func(domain.XPLedger) (domain.XPLedger, error)) (prev, next domain.XPLedger, applied bool, err error) {
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		prev, err = getLedger(ctx, tx, grant.TraderID)
		if err != nil {
			return err
		}
		next = prev

		res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO xp_grants (idempotency_key, trader_id, amount, reason, source_id, granted_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			grant.IdempotencyKey, grant.TraderID, grant.Amount, grant.Reason, grant.SourceID, grant.GrantedAt)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		if next, err = apply(prev); err != nil {
			return err
		}
		if err := upsertLedger(ctx, tx, next); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return prev, prev, false, err
	}
	return prev, next, applied, nil
}

func upsertLedger(ctx context.Context, tx *sql.Tx, ledger domain.XPLedger) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO xp_ledgers (trader_id, total_xp, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(trader_id) DO UPDATE SET
		total_xp=excluded.total_xp,
		updated_at=excluded.updated_at`, ledger.TraderID, ledger.TotalXP)
	return err
}

func (s *SQLiteStore) SetLedger(ctx context.Context, ledger domain.XPLedger) error {
	if ledger.TotalXP < 0 {
		return fmt.Errorf("negative total %d: %w", ledger.TotalXP, domain.ErrOutOfRange)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return upsertLedger(ctx, tx, ledger)
	})
}

// GetStreak returns a cold streak for an unknown trader.
func (s *SQLiteStore) GetStreak(ctx context.Context, traderID string) (domain.Streak, error) {
	var st domain.Streak
	var last sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT current_length, longest_length, last_qualifying_day FROM streaks WHERE trader_id = ?`, traderID).
		Scan(&st.CurrentLength, &st.LongestLength, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Streak{}, nil
	}
	if err != nil {
		return domain.Streak{}, err
	}
	if last.Valid && last.String != "" {
		d, err := domain.ParseDate(last.String)
		if err != nil {
			return domain.Streak{}, err
		}
		st.LastQualifyingDate = &d
	}
	return st, nil
}

func (s *SQLiteStore) SaveStreak(ctx context.Context, update domain.StreakUpdate) error {
	var last sql.NullString
	if d := update.Streak.LastQualifyingDate; d != nil && !d.IsZero() {
		last = sql.NullString{String: d.String(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO streaks (trader_id, current_length, longest_length, last_qualifying_day)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(trader_id) DO UPDATE SET
		current_length=excluded.current_length,
		longest_length=excluded.longest_length,
		last_qualifying_day=excluded.last_qualifying_day`,
		update.TraderID, update.Streak.CurrentLength, update.Streak.LongestLength, last)
	return err
}
