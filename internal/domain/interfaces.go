package domain

import "context"

// TradeRepository stores journaled trades.
type TradeRepository interface {
	SaveTrade(ctx context.Context, trade *Trade) error
	ListTrades(ctx context.Context, traderID string, period Period) ([]Trade, error)
	// ListTradeDays returns every day the trader logged a trade, oldest first.
	ListTradeDays(ctx context.Context, traderID string) ([]Date, error)
	ListTraderIDs(ctx context.Context) ([]string, error)
}

// ProgressRepository stores XP ledgers, applied grants and streaks.
type ProgressRepository interface {
	GetLedger(ctx context.Context, traderID string) (XPLedger, error)
	// ApplyGrant records the grant and stores apply(current ledger) atomically. A grant whose
	// IdempotencyKey was already recorded is skipped and applied is false.
	ApplyGrant(ctx context.Context, grant XPGrant, apply func(XPLedger) (XPLedger, error)) (prev, next XPLedger, applied bool, err error)
	SetLedger(ctx context.Context, ledger XPLedger) error

	GetStreak(ctx context.Context, traderID string) (Streak, error)
	SaveStreak(ctx context.Context, update StreakUpdate) error
}

// ChallengeRepository stores challenge instances. Saves never overwrite a terminal state.
type ChallengeRepository interface {
	SaveChallenge(ctx context.Context, ch Challenge) error
	GetChallenge(ctx context.Context, id string) (Challenge, error)
	ListChallenges(ctx context.Context, ownerID string, limit int) ([]Challenge, error)
	ListOpenChallenges(ctx context.Context, ownerID string) ([]Challenge, error)
	SaveTransition(ctx context.Context, tr ChallengeTransition) error

	SaveSharedChallenge(ctx context.Context, sc SharedChallenge) error
	ListSharedChallenges(ctx context.Context, relationshipID string, openOnly bool) ([]SharedChallenge, error)
}

// PartnerRepository stores relationships, violations and events.
type PartnerRepository interface {
	SaveRelationship(ctx context.Context, rel PartnerRelationship) error
	GetRelationship(ctx context.Context, id string) (PartnerRelationship, error)
	// FindOpenRelationship returns the trader's invited or active relationship, or nil.
	FindOpenRelationship(ctx context.Context, traderID string) (*PartnerRelationship, error)

	// SaveViolation records v once per (relationship, rule, trader, day); inserted is false
	// for a repeat. Violations of an ended relationship are frozen and rejected.
	SaveViolation(ctx context.Context, v RuleViolation) (inserted bool, err error)
	ListViolations(ctx context.Context, relationshipID string) ([]RuleViolation, error)

	SaveEvent(ctx context.Context, ev RelationshipEvent) error
	ListEvents(ctx context.Context, traderID string, limit int) ([]RelationshipEvent, error)
}

// Notifier pushes relationship events to connected traders.
type Notifier interface {
	Publish(ev RelationshipEvent)
}
