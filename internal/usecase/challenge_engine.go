package usecase

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/trade_journal/internal/domain"
)

var challengeNamespace = uuid.MustParse("0b8e3a5c-64f1-4d1e-8f5e-1f2d9b7c4e21")

// ChallengeID is the identity of the single instance of a definition for an owner and period.
func ChallengeID(ownerID, definitionID string, period domain.Period) string {
	key := ownerID + "/" + definitionID + "/" + period.Start.String()
	return uuid.NewSHA1(challengeNamespace, []byte(key)).String()
}

// transitions lists the allowed state changes. Terminal states have no entry.
var transitions = map[domain.ChallengeState][]domain.ChallengeState{
	domain.ChallengePending: {domain.ChallengeActive, domain.ChallengeExpired},
	domain.ChallengeActive:  {domain.ChallengeCompleted, domain.ChallengeFailed, domain.ChallengeExpired},
}

func canTransition(from, to domain.ChallengeState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// transition moves ch to state "to", or returns ErrInvalidState leaving ch untouched.
func transition(ch *domain.Challenge, to domain.ChallengeState, now time.Time) (domain.ChallengeTransition, error) {
	if !canTransition(ch.State, to) {
		return domain.ChallengeTransition{}, fmt.Errorf("challenge %s cannot go from %s to %s: %w", ch.ID, ch.State, to, domain.ErrInvalidState)
	}
	tr := domain.ChallengeTransition{ChallengeID: ch.ID, From: ch.State, To: to, Timestamp: now}
	ch.State = to
	ch.UpdatedAt = now
	return tr, nil
}

// EvaluationResult is the next state of a challenge plus what must be committed.
type EvaluationResult struct {
	Challenge   domain.Challenge
	Transitions []domain.ChallengeTransition
	Grant       *domain.XPGrant
	Outcome     domain.Outcome
}

// Changed reports whether anything needs to be persisted.
func (r EvaluationResult) Changed() bool { return len(r.Transitions) > 0 }

// ChallengeEngine runs the challenge state machine:
// Pending -> Active -> Completed | Failed | Expired.
type ChallengeEngine struct {
	rules *RuleEvaluator
}

// NewChallengeEngine builds an engine over rules, or a default evaluator when nil.
func NewChallengeEngine(rules *RuleEvaluator) *ChallengeEngine {
	if rules == nil {
		rules = NewRuleEvaluator(nil)
	}
	return &ChallengeEngine{rules: rules}
}

// NewChallenge instantiates def for ownerID in the period containing day.
func (e *ChallengeEngine) NewChallenge(def domain.ChallengeDefinition, ownerID string, day domain.Date, now time.Time) (domain.Challenge, error) {
	if err := ValidateDefinition(def); err != nil {
		return domain.Challenge{}, err
	}
	if ownerID == "" {
		return domain.Challenge{}, fmt.Errorf("challenge %q has no owner: %w", def.ID, domain.ErrOutOfRange)
	}
	period := def.Type.PeriodFor(day)
	if err := period.Validate(); err != nil {
		return domain.Challenge{}, err
	}
	return domain.Challenge{
		ID:           ChallengeID(ownerID, def.ID, period),
		DefinitionID: def.ID,
		OwnerID:      ownerID,
		Title:        def.Title,
		Type:         def.Type,
		Rule:         def.Rule,
		XPReward:     def.XPReward,
		Period:       period,
		State:        domain.ChallengePending,
		UpdatedAt:    now,
	}, nil
}

// activate moves a pending challenge to active once its period has started.
func activate(ch *domain.Challenge, today domain.Date, now time.Time) (*domain.ChallengeTransition, error) {
	if ch.State != domain.ChallengePending || today.Before(ch.Period.Start) {
		return nil, nil
	}
	tr, err := transition(ch, domain.ChallengeActive, now)
	if err != nil {
		return nil, err
	}
	return &tr, nil
}

// Evaluate judges ch against the owner's activity as of now. Only trades inside the
// challenge period count. Terminal challenges are returned unchanged; a completed
// challenge yields exactly one grant, on the call that completes it.
func (e *ChallengeEngine) Evaluate(ch domain.Challenge, activity domain.ActivitySnapshot, now time.Time) (EvaluationResult, error) {
	res := EvaluationResult{Challenge: ch, Outcome: domain.OutcomeOpen}
	if ch.State.Terminal() {
		return res, nil
	}
	if activity.TraderID != "" && activity.TraderID != ch.OwnerID {
		return res, fmt.Errorf("activity of %s for challenge owned by %s: %w", activity.TraderID, ch.OwnerID, domain.ErrOutOfRange)
	}

	today := domain.DateOf(now)
	next := ch
	if tr, err := activate(&next, today, now); err != nil {
		return res, err
	} else if tr != nil {
		res.Transitions = append(res.Transitions, *tr)
	}
	if next.State == domain.ChallengePending {
		res.Challenge = next
		return res, nil
	}

	closed := next.Period.Closed(today)
	outcome := e.rules.Evaluate(next.Rule, activity.Within(next.Period), closed)
	res.Outcome = outcome

	var to domain.ChallengeState
	switch {
	case outcome == domain.OutcomeSatisfied:
		to = domain.ChallengeCompleted
	case outcome == domain.OutcomeViolated:
		to = domain.ChallengeFailed
	case closed:
		to = domain.ChallengeExpired
	}
	if to != "" {
		tr, err := transition(&next, to, now)
		if err != nil {
			return res, err
		}
		res.Transitions = append(res.Transitions, tr)
	}
	if next.State == domain.ChallengeCompleted {
		res.Grant = &domain.XPGrant{
			IdempotencyKey: GrantKey(next.ID, next.OwnerID),
			TraderID:       next.OwnerID,
			Amount:         next.XPReward,
			Reason:         "challenge completed: " + next.Title,
			SourceID:       next.ID,
			GrantedAt:      now,
		}
	}
	res.Challenge = next
	return res, nil
}

// Expire ends a pending or active challenge without reward.
func (e *ChallengeEngine) Expire(ch domain.Challenge, now time.Time) (domain.Challenge, domain.ChallengeTransition, error) {
	next := ch
	tr, err := transition(&next, domain.ChallengeExpired, now)
	if err != nil {
		return ch, domain.ChallengeTransition{}, err
	}
	return next, tr, nil
}

// Fail marks an active challenge as failed.
func (e *ChallengeEngine) Fail(ch domain.Challenge, now time.Time) (domain.Challenge, domain.ChallengeTransition, error) {
	next := ch
	tr, err := transition(&next, domain.ChallengeFailed, now)
	if err != nil {
		return ch, domain.ChallengeTransition{}, err
	}
	return next, tr, nil
}

// WeeklyXPPotential is the XP a trader can earn in a week from one daily challenge,
// assuming seven opportunities at a fixed reward.
func WeeklyXPPotential(dailyReward int64) int64 {
	return 7 * dailyReward
}
