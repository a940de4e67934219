package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Trade is a journaled futures trade. The core only reads trades.
type Trade struct {
	ID         string          `json:"id"`
	TraderID   string          `json:"trader_id"`
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	PnL        decimal.Decimal `json:"pnl"`
	Notes      string          `json:"notes,omitempty"`
	ExecutedAt time.Time       `json:"executed_at"`
}

// Day is the UTC calendar day the trade was executed on.
func (t Trade) Day() Date       { return DateOf(t.ExecutedAt) }
func (t Trade) Winning() bool   { return t.PnL.IsPositive() }
func (t Trade) Losing() bool    { return t.PnL.IsNegative() }
func (t Trade) Journaled() bool { return t.Notes != "" }

// DailySummary holds the per-day counts rules are evaluated against.
type DailySummary struct {
	Day        Date
	TradeCount int
	Wins       int
	Losses     int
	Journaled  int
	NetPnL     decimal.Decimal
}

// ActivitySnapshot is a read-only view of a trader's trades.
type ActivitySnapshot struct {
	TraderID string
	Trades   []Trade
}

// Within returns the trades executed inside p, oldest first.
func (s ActivitySnapshot) Within(p Period) ActivitySnapshot {
	out := ActivitySnapshot{TraderID: s.TraderID}
	for _, t := range s.Trades {
		if p.Contains(t.Day()) {
			out.Trades = append(out.Trades, t)
		}
	}
	sort.SliceStable(out.Trades, func(i, j int) bool {
		return out.Trades[i].ExecutedAt.Before(out.Trades[j].ExecutedAt)
	})
	return out
}

// Daily groups trades by calendar day, ordered by day.
func (s ActivitySnapshot) Daily() []DailySummary {
	byDay := make(map[Date]*DailySummary)
	for _, t := range s.Trades {
		d := t.Day()
		sum, ok := byDay[d]
		if !ok {
			sum = &DailySummary{Day: d, NetPnL: decimal.Zero}
			byDay[d] = sum
		}
		sum.TradeCount++
		if t.Winning() {
			sum.Wins++
		}
		if t.Losing() {
			sum.Losses++
		}
		if t.Journaled() {
			sum.Journaled++
		}
		sum.NetPnL = sum.NetPnL.Add(t.PnL)
	}

	out := make([]DailySummary, 0, len(byDay))
	for _, sum := range byDay {
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out
}

// QualifyingDays returns every day with at least one logged trade.
func (s ActivitySnapshot) QualifyingDays() []Date {
	daily := s.Daily()
	days := make([]Date, 0, len(daily))
	for _, sum := range daily {
		days = append(days, sum.Day)
	}
	return days
}

// Totals aggregates the whole snapshot.
func (s ActivitySnapshot) Totals() DailySummary {
	total := DailySummary{NetPnL: decimal.Zero}
	for _, sum := range s.Daily() {
		total.TradeCount += sum.TradeCount
		total.Wins += sum.Wins
		total.Losses += sum.Losses
		total.Journaled += sum.Journaled
		total.NetPnL = total.NetPnL.Add(sum.NetPnL)
	}
	return total
}
