package usecase_test

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/trade_journal/internal/domain"
)

// monday is the start of the ISO week used across tests.
var monday = domain.NewDate(2025, time.March, 10)

func at(d domain.Date, hour int) time.Time {
	return d.Time().Add(time.Duration(hour) * time.Hour)
}

var tradeSeq int

func trade(traderID string, d domain.Date, pnl int64, notes string) domain.Trade {
	tradeSeq++
	return domain.Trade{
		ID:         fmt.Sprintf("t%d", tradeSeq),
		TraderID:   traderID,
		Symbol:     "ESM5",
		Side:       domain.SideLong,
		Quantity:   decimal.NewFromInt(1),
		PnL:        decimal.NewFromInt(pnl),
		Notes:      notes,
		ExecutedAt: at(d, 14),
	}
}

func snapshot(traderID string, trades ...domain.Trade) domain.ActivitySnapshot {
	return domain.ActivitySnapshot{TraderID: traderID, Trades: trades}
}
