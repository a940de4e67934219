package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ChallengeType string

const (
	ChallengeDaily  ChallengeType = "daily"
	ChallengeWeekly ChallengeType = "weekly"
)

// PeriodFor returns the period of this challenge type containing day.
func (t ChallengeType) PeriodFor(day Date) Period {
	if t == ChallengeWeekly {
		return WeeklyPeriod(day)
	}
	return DailyPeriod(day)
}

// Days returns the length of one period of this type.
func (t ChallengeType) Days() int {
	if t == ChallengeWeekly {
		return 7
	}
	return 1
}

type ChallengeState string

const (
	ChallengePending   ChallengeState = "pending"
	ChallengeActive    ChallengeState = "active"
	ChallengeCompleted ChallengeState = "completed"
	ChallengeFailed    ChallengeState = "failed"
	ChallengeExpired   ChallengeState = "expired"
)

// Terminal reports whether no further transition is allowed.
func (s ChallengeState) Terminal() bool {
	return s == ChallengeCompleted || s == ChallengeFailed || s == ChallengeExpired
}

type RuleKind string

const (
	// Opportunity rules complete once reached and expire otherwise.
	RuleMinTrades          RuleKind = "min_trades"
	RuleMinWinningTrades   RuleKind = "min_winning_trades"
	RuleMinJournaledTrades RuleKind = "min_journaled_trades"
	RuleMinNetPnL          RuleKind = "min_net_pnl"
	RuleStreakDays         RuleKind = "streak_days"

	// Restriction rules fail once broken and complete when the period ends intact.
	RuleMaxLosingTrades RuleKind = "max_losing_trades"
	RuleMaxTradesPerDay RuleKind = "max_trades_per_day"
	RuleMaxDailyLoss    RuleKind = "max_daily_loss"
)

// Restriction reports whether the rule has a violation condition.
func (k RuleKind) Restriction() bool {
	switch k {
	case RuleMaxLosingTrades, RuleMaxTradesPerDay, RuleMaxDailyLoss:
		return true
	}
	return false
}

// RuleSpec parameterizes a rule. Count rules use Threshold, money rules use Amount.
type RuleSpec struct {
	Kind      RuleKind        `json:"kind" yaml:"kind"`
	Threshold int             `json:"threshold,omitempty" yaml:"threshold"`
	Amount    decimal.Decimal `json:"amount" yaml:"amount"`
}

// RewardPolicy decides who is rewarded by a shared challenge.
type RewardPolicy string

const (
	RewardIndividual RewardPolicy = "individual"
	RewardJoint      RewardPolicy = "joint"
)

// ChallengeDefinition is a catalog entry instantiated once per owner and period.
type ChallengeDefinition struct {
	ID          string        `json:"id" yaml:"id"`
	Title       string        `json:"title" yaml:"title"`
	Description string        `json:"description" yaml:"description"`
	Type        ChallengeType `json:"type" yaml:"type"`
	Rule        RuleSpec      `json:"rule" yaml:"rule"`
	XPReward    int64         `json:"xp_reward" yaml:"xp_reward"`
	Shared      bool          `json:"shared" yaml:"shared"`
	Policy      RewardPolicy  `json:"policy,omitempty" yaml:"policy"`
}

// Challenge is one instance of a definition for an owner (a trader, or a partner pair
// for shared challenges) and a period.
type Challenge struct {
	ID           string         `json:"id"`
	DefinitionID string         `json:"definition_id"`
	OwnerID      string         `json:"owner_id"`
	Title        string         `json:"title"`
	Type         ChallengeType  `json:"type"`
	Rule         RuleSpec       `json:"rule"`
	XPReward     int64          `json:"xp_reward"`
	Period       Period         `json:"period"`
	State        ChallengeState `json:"state"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Outcome is the verdict of a rule over a snapshot.
type Outcome string

const (
	OutcomeOpen      Outcome = "open"
	OutcomeSatisfied Outcome = "satisfied"
	OutcomeViolated  Outcome = "violated"
)

// SharedChallenge is a challenge owned by a partner pair. Participant outcomes are
// sticky once decided.
type SharedChallenge struct {
	Challenge
	RelationshipID string             `json:"relationship_id"`
	Policy         RewardPolicy       `json:"policy"`
	Participants   [2]string          `json:"participants"`
	Outcomes       map[string]Outcome `json:"outcomes"`
	Rewarded       map[string]bool    `json:"rewarded"`
}

// Outcome returns the recorded outcome of a participant.
func (s SharedChallenge) Outcome(traderID string) Outcome {
	if o, ok := s.Outcomes[traderID]; ok {
		return o
	}
	return OutcomeOpen
}
