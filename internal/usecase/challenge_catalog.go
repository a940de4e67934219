package usecase

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vitos/trade_journal/internal/domain"
	"go.uber.org/multierr"
)

// DefaultChallengeDefinitions is the built-in catalog. IDs are stable because instance
// IDs derive from them.
func DefaultChallengeDefinitions() []domain.ChallengeDefinition {
	return []domain.ChallengeDefinition{
		{
			ID:          "daily_log_trade",
			Title:       "Show up",
			Description: "Log at least one trade today",
			Type:        domain.ChallengeDaily,
			Rule:        domain.RuleSpec{Kind: domain.RuleMinTrades, Threshold: 1},
			XPReward:    50,
		},
		{
			ID:          "daily_journal",
			Title:       "Write it down",
			Description: "Add notes to three trades today",
			Type:        domain.ChallengeDaily,
			Rule:        domain.RuleSpec{Kind: domain.RuleMinJournaledTrades, Threshold: 3},
			XPReward:    30,
		},
		{
			ID:          "daily_no_overtrading",
			Title:       "No overtrading",
			Description: "Take no more than five trades today",
			Type:        domain.ChallengeDaily,
			Rule:        domain.RuleSpec{Kind: domain.RuleMaxTradesPerDay, Threshold: 5},
			XPReward:    40,
		},
		{
			ID:          "weekly_five_trades",
			Title:       "Busy week",
			Description: "Log five trades this week",
			Type:        domain.ChallengeWeekly,
			Rule:        domain.RuleSpec{Kind: domain.RuleMinTrades, Threshold: 5},
			XPReward:    150,
		},
		{
			ID:          "weekly_streak",
			Title:       "Three in a row",
			Description: "Trade three consecutive days this week",
			Type:        domain.ChallengeWeekly,
			Rule:        domain.RuleSpec{Kind: domain.RuleStreakDays, Threshold: 3},
			XPReward:    200,
		},
		{
			ID:          "weekly_loss_discipline",
			Title:       "Cut them short",
			Description: "Close the week with at most three losing trades",
			Type:        domain.ChallengeWeekly,
			Rule:        domain.RuleSpec{Kind: domain.RuleMaxLosingTrades, Threshold: 3},
			XPReward:    250,
		},
		{
			ID:          "shared_weekly_trades",
			Title:       "Trade together",
			Description: "Both partners log five trades this week",
			Type:        domain.ChallengeWeekly,
			Rule:        domain.RuleSpec{Kind: domain.RuleMinTrades, Threshold: 5},
			XPReward:    200,
			Shared:      true,
			Policy:      domain.RewardJoint,
		},
		{
			ID:          "shared_daily_loss_cap",
			Title:       "Protect the account",
			Description: "Keep every day's loss under 500 this week",
			Type:        domain.ChallengeWeekly,
			Rule:        domain.RuleSpec{Kind: domain.RuleMaxDailyLoss, Amount: decimal.NewFromInt(500)},
			XPReward:    150,
			Shared:      true,
			Policy:      domain.RewardIndividual,
		},
	}
}

// ChallengeCatalog is a validated set of challenge definitions.
type ChallengeCatalog struct {
	defs []domain.ChallengeDefinition
	byID map[string]domain.ChallengeDefinition
}

// NewChallengeCatalog validates every definition and reports all problems at once.
func NewChallengeCatalog(defs []domain.ChallengeDefinition) (*ChallengeCatalog, error) {
	c := &ChallengeCatalog{byID: make(map[string]domain.ChallengeDefinition, len(defs))}
	var errs error
	for _, def := range defs {
		if err := ValidateDefinition(def); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if _, dup := c.byID[def.ID]; dup {
			errs = multierr.Append(errs, fmt.Errorf("duplicate challenge id %q: %w", def.ID, domain.ErrOutOfRange))
			continue
		}
		c.byID[def.ID] = def
		c.defs = append(c.defs, def)
	}
	if errs != nil {
		return nil, errs
	}
	return c, nil
}

// Get returns the definition with the given ID.
func (c *ChallengeCatalog) Get(id string) (domain.ChallengeDefinition, bool) {
	def, ok := c.byID[id]
	return def, ok
}

// Personal returns the definitions instantiated per trader.
func (c *ChallengeCatalog) Personal() []domain.ChallengeDefinition {
	var out []domain.ChallengeDefinition
	for _, def := range c.defs {
		if !def.Shared {
			out = append(out, def)
		}
	}
	return out
}

// Shared returns the definitions instantiated per partner pair.
func (c *ChallengeCatalog) Shared() []domain.ChallengeDefinition {
	var out []domain.ChallengeDefinition
	for _, def := range c.defs {
		if def.Shared {
			out = append(out, def)
		}
	}
	return out
}
