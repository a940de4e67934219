package usecase

import (
	"fmt"

	"github.com/vitos/trade_journal/internal/domain"
	"go.uber.org/multierr"
)

// RuleEvaluator judges a rule against activity already scoped to the challenge period.
type RuleEvaluator struct {
	streaks *StreakTracker
}

// NewRuleEvaluator returns an evaluator whose streak rules use the given tracker.
func NewRuleEvaluator(streaks *StreakTracker) *RuleEvaluator {
	if streaks == nil {
		streaks = NewStreakTracker()
	}
	return &RuleEvaluator{streaks: streaks}
}

// Evaluate returns OutcomeSatisfied, OutcomeViolated or OutcomeOpen. Once the period is
// closed an intact restriction rule counts as satisfied; an unmet opportunity rule stays
// open and the caller expires it.
func (e *RuleEvaluator) Evaluate(rule domain.RuleSpec, activity domain.ActivitySnapshot, periodClosed bool) domain.Outcome {
	totals := activity.Totals()

	switch rule.Kind {
	case domain.RuleMinTrades:
		return reached(totals.TradeCount >= rule.Threshold)
	case domain.RuleMinWinningTrades:
		return reached(totals.Wins >= rule.Threshold)
	case domain.RuleMinJournaledTrades:
		return reached(totals.Journaled >= rule.Threshold)
	case domain.RuleMinNetPnL:
		return reached(totals.TradeCount > 0 && totals.NetPnL.GreaterThanOrEqual(rule.Amount))
	case domain.RuleStreakDays:
		s := e.streaks.Rebuild(activity.QualifyingDays())
		return reached(s.LongestLength >= rule.Threshold)

	case domain.RuleMaxLosingTrades:
		return held(totals.Losses > rule.Threshold, periodClosed)
	case domain.RuleMaxTradesPerDay:
		broken := false
		for _, day := range activity.Daily() {
			if day.TradeCount > rule.Threshold {
				broken = true
				break
			}
		}
		return held(broken, periodClosed)
	case domain.RuleMaxDailyLoss:
		broken := false
		floor := rule.Amount.Neg()
		for _, day := range activity.Daily() {
			if day.NetPnL.LessThan(floor) {
				broken = true
				break
			}
		}
		return held(broken, periodClosed)
	}
	return domain.OutcomeOpen
}

func reached(ok bool) domain.Outcome {
	if ok {
		return domain.OutcomeSatisfied
	}
	return domain.OutcomeOpen
}

func held(broken, periodClosed bool) domain.Outcome {
	switch {
	case broken:
		return domain.OutcomeViolated
	case periodClosed:
		return domain.OutcomeSatisfied
	}
	return domain.OutcomeOpen
}

// ValidateRule rejects rules that could never complete nor fail within a period of the
// given type.
func ValidateRule(rule domain.RuleSpec, typ domain.ChallengeType) error {
	var err error
	switch rule.Kind {
	case domain.RuleMinTrades, domain.RuleMinWinningTrades, domain.RuleMinJournaledTrades:
		if rule.Threshold < 1 {
			err = fmt.Errorf("%s needs a threshold of at least 1, got %d", rule.Kind, rule.Threshold)
		}
	case domain.RuleStreakDays:
		if rule.Threshold < 1 || rule.Threshold > typ.Days() {
			err = fmt.Errorf("%s of %d days cannot happen in a %s period", rule.Kind, rule.Threshold, typ)
		}
	case domain.RuleMinNetPnL:
		if !rule.Amount.IsPositive() {
			err = fmt.Errorf("%s needs a positive amount, got %s", rule.Kind, rule.Amount)
		}
	case domain.RuleMaxLosingTrades, domain.RuleMaxTradesPerDay:
		if rule.Threshold < 0 {
			err = fmt.Errorf("%s limit %d is negative", rule.Kind, rule.Threshold)
		}
	case domain.RuleMaxDailyLoss:
		if !rule.Amount.IsPositive() {
			err = fmt.Errorf("%s needs a positive loss limit, got %s", rule.Kind, rule.Amount)
		}
	default:
		err = fmt.Errorf("unknown rule kind %q", rule.Kind)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnsatisfiableRule, err)
	}
	return nil
}

// ValidateDefinition checks a catalog entry once, at definition time.
func ValidateDefinition(def domain.ChallengeDefinition) error {
	var errs error
	if def.ID == "" {
		errs = multierr.Append(errs, fmt.Errorf("challenge without id: %w", domain.ErrOutOfRange))
	}
	if def.Type != domain.ChallengeDaily && def.Type != domain.ChallengeWeekly {
		errs = multierr.Append(errs, fmt.Errorf("challenge %q has unknown type %q: %w", def.ID, def.Type, domain.ErrOutOfRange))
	}
	if def.XPReward <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("challenge %q reward %d must be positive: %w", def.ID, def.XPReward, domain.ErrOutOfRange))
	}
	if def.Shared && def.Policy != domain.RewardIndividual && def.Policy != domain.RewardJoint {
		errs = multierr.Append(errs, fmt.Errorf("shared challenge %q has unknown reward policy %q: %w", def.ID, def.Policy, domain.ErrOutOfRange))
	}
	if err := ValidateRule(def.Rule, def.Type); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("challenge %q: %w", def.ID, err))
	}
	return errs
}
