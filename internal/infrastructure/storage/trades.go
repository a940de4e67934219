package storage

import (
	"context"
	"fmt"

	"github.com/vitos/trade_journal/internal/domain"
)

// TradeRepository Implementation

// SaveTrade inserts or updates a trade. A trade ID owned by another trader is rejected
// with ErrInvalidState.
func (s *SQLiteStore) SaveTrade(ctx context.Context, trade *domain.Trade) error {
	query := `INSERT INTO trades (id, trader_id, symbol, side, quantity, pnl, notes, executed_day, executed_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT(id) DO UPDATE SET
			  symbol=excluded.symbol,
			  side=excluded.side,
			  quantity=excluded.quantity,
			  pnl=excluded.pnl,
			  notes=excluded.notes,
			  executed_day=excluded.executed_day,
			  executed_at=excluded.executed_at
			  WHERE trades.trader_id = excluded.trader_id`
	res, err := s.db.ExecContext(ctx, query,
		trade.ID, trade.TraderID, trade.Symbol, string(trade.Side), trade.Quantity.String(), trade.PnL.String(),
		trade.Notes, trade.Day().String(), trade.ExecutedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("trade %s belongs to another trader: %w", trade.ID, domain.ErrInvalidState)
	}
	return nil
}

func (s *SQLiteStore) ListTrades(ctx context.Context, traderID string, period domain.Period) ([]domain.Trade, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	query := `SELECT id, trader_id, symbol, side, quantity, pnl, notes, executed_at FROM trades
			  WHERE trader_id = ? AND executed_day BETWEEN ? AND ?
			  ORDER BY executed_at ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, query, traderID, period.Start.String(), period.End.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var side string
		if err := rows.Scan(&t.ID, &t.TraderID, &t.Symbol, &side, &t.Quantity, &t.PnL, &t.Notes, &t.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Side = domain.Side(side)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *SQLiteStore) ListTradeDays(ctx context.Context, traderID string) ([]domain.Date, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT executed_day FROM trades WHERE trader_id = ? ORDER BY executed_day ASC`, traderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []domain.Date
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		d, err := domain.ParseDate(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse trade day %q: %w", raw, err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

func (s *SQLiteStore) ListTraderIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT trader_id FROM trades ORDER BY trader_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
