package usecase

import (
	"fmt"
	"time"

	"github.com/vitos/trade_journal/internal/domain"
)

// SharedEvaluationResult is the next state of a shared challenge and the grants it earned.
type SharedEvaluationResult struct {
	Shared      domain.SharedChallenge
	Transitions []domain.ChallengeTransition
	Grants      []domain.XPGrant
	// Decided is set when a participant outcome was recorded by this evaluation.
	Decided bool
}

// Changed reports whether anything needs to be persisted.
func (r SharedEvaluationResult) Changed() bool {
	return r.Decided || len(r.Transitions) > 0 || len(r.Grants) > 0
}

// NewSharedChallenge instantiates a shared definition for an active relationship.
func (e *ChallengeEngine) NewSharedChallenge(def domain.ChallengeDefinition, rel domain.PartnerRelationship, day domain.Date, now time.Time) (domain.SharedChallenge, error) {
	if !def.Shared {
		return domain.SharedChallenge{}, fmt.Errorf("challenge %q is not shared: %w", def.ID, domain.ErrOutOfRange)
	}
	if rel.Status != domain.RelationshipActive {
		return domain.SharedChallenge{}, fmt.Errorf("relationship %s is %s: %w", rel.ID, rel.Status, domain.ErrInvalidState)
	}
	ch, err := e.NewChallenge(def, rel.ID, day, now)
	if err != nil {
		return domain.SharedChallenge{}, err
	}
	return domain.SharedChallenge{
		Challenge:      ch,
		RelationshipID: rel.ID,
		Policy:         def.Policy,
		Participants:   rel.Parties(),
		Outcomes:       map[string]domain.Outcome{},
		Rewarded:       map[string]bool{},
	}, nil
}

// cloneShared copies the maps so evaluation never mutates its input.
func cloneShared(sc domain.SharedChallenge) domain.SharedChallenge {
	out := sc
	out.Outcomes = make(map[string]domain.Outcome, len(sc.Outcomes))
	for k, v := range sc.Outcomes {
		out.Outcomes[k] = v
	}
	out.Rewarded = make(map[string]bool, len(sc.Rewarded))
	for k, v := range sc.Rewarded {
		out.Rewarded[k] = v
	}
	return out
}

// EvaluateShared judges each participant's activity. Decided participant outcomes never
// change. With RewardIndividual every participant who satisfies the rule is rewarded; with
// RewardJoint both are rewarded only if both satisfy it within the period, and a single
// violation fails the challenge.
func (e *ChallengeEngine) EvaluateShared(sc domain.SharedChallenge, activity map[string]domain.ActivitySnapshot, now time.Time) (SharedEvaluationResult, error) {
	res := SharedEvaluationResult{Shared: sc}
	if sc.State.Terminal() {
		return res, nil
	}

	today := domain.DateOf(now)
	next := cloneShared(sc)
	if tr, err := activate(&next.Challenge, today, now); err != nil {
		return res, err
	} else if tr != nil {
		res.Transitions = append(res.Transitions, *tr)
	}
	if next.State == domain.ChallengePending {
		res.Shared = next
		return res, nil
	}

	closed := next.Period.Closed(today)
	for _, p := range next.Participants {
		if next.Outcome(p) != domain.OutcomeOpen {
			continue
		}
		snap := activity[p]
		snap.TraderID = p
		if o := e.rules.Evaluate(next.Rule, snap.Within(next.Period), closed); o != domain.OutcomeOpen {
			next.Outcomes[p] = o
			res.Decided = true
		}
	}

	if err := e.settleShared(&next, closed, now, &res); err != nil {
		return SharedEvaluationResult{Shared: sc}, err
	}
	res.Shared = next
	return res, nil
}

// FailParticipant records a violation for traderID, as a partner rule penalty does, and
// settles the challenge. A participant already decided keeps their outcome.
func (e *ChallengeEngine) FailParticipant(sc domain.SharedChallenge, traderID string, now time.Time) (SharedEvaluationResult, error) {
	res := SharedEvaluationResult{Shared: sc}
	if sc.State.Terminal() {
		return res, fmt.Errorf("shared challenge %s is %s: %w", sc.ID, sc.State, domain.ErrInvalidState)
	}
	if sc.Participants[0] != traderID && sc.Participants[1] != traderID {
		return res, fmt.Errorf("%s is not part of shared challenge %s: %w", traderID, sc.ID, domain.ErrOutOfRange)
	}

	next := cloneShared(sc)
	if tr, err := activate(&next.Challenge, domain.DateOf(now), now); err != nil {
		return res, err
	} else if tr != nil {
		res.Transitions = append(res.Transitions, *tr)
	}
	if next.State == domain.ChallengePending {
		// Not started yet: the penalty cannot apply to a period that has not begun.
		return res, nil
	}
	if next.Outcome(traderID) == domain.OutcomeOpen {
		next.Outcomes[traderID] = domain.OutcomeViolated
		res.Decided = true
	}
	if err := e.settleShared(&next, false, now, &res); err != nil {
		return SharedEvaluationResult{Shared: sc}, err
	}
	res.Shared = next
	return res, nil
}

// ExpireShared ends a pending or active shared challenge without further rewards.
func (e *ChallengeEngine) ExpireShared(sc domain.SharedChallenge, now time.Time) (domain.SharedChallenge, domain.ChallengeTransition, error) {
	next := cloneShared(sc)
	tr, err := transition(&next.Challenge, domain.ChallengeExpired, now)
	if err != nil {
		return sc, domain.ChallengeTransition{}, err
	}
	return next, tr, nil
}

func (e *ChallengeEngine) settleShared(sc *domain.SharedChallenge, closed bool, now time.Time, res *SharedEvaluationResult) error {
	satisfied, violated := 0, 0
	for _, p := range sc.Participants {
		switch sc.Outcome(p) {
		case domain.OutcomeSatisfied:
			satisfied++
		case domain.OutcomeViolated:
			violated++
		}
	}
	all := len(sc.Participants)

	var to domain.ChallengeState
	var rewardable bool
	switch sc.Policy {
	case domain.RewardJoint:
		switch {
		case violated > 0:
			to = domain.ChallengeFailed
		case satisfied == all:
			to = domain.ChallengeCompleted
			rewardable = true
		case closed:
			to = domain.ChallengeExpired
		}
	default:
		rewardable = true
		switch {
		case satisfied == all:
			to = domain.ChallengeCompleted
		case violated == all:
			to = domain.ChallengeFailed
		case closed && satisfied > 0:
			to = domain.ChallengeCompleted
		case closed:
			to = domain.ChallengeExpired
		}
	}

	if rewardable {
		for _, p := range sc.Participants {
			if sc.Outcome(p) != domain.OutcomeSatisfied || sc.Rewarded[p] {
				continue
			}
			sc.Rewarded[p] = true
			res.Grants = append(res.Grants, domain.XPGrant{
				IdempotencyKey: GrantKey(sc.ID, p),
				TraderID:       p,
				Amount:         sc.XPReward,
				Reason:         "shared challenge completed: " + sc.Title,
				SourceID:       sc.ID,
				GrantedAt:      now,
			})
		}
	}

	if to == "" {
		return nil
	}
	tr, err := transition(&sc.Challenge, to, now)
	if err != nil {
		return err
	}
	res.Transitions = append(res.Transitions, tr)
	return nil
}
