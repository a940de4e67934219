package usecase

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vitos/trade_journal/internal/domain"
)

// PartnerAccountability runs the partner relationship lifecycle
// (Invited -> Active -> Ended) and checks shared rules.
type PartnerAccountability struct {
	resolver *LevelResolver
	engine   *ChallengeEngine
	newID    func() string
}

// NewPartnerAccountability mirrors level-ups through resolver and penalizes shared
// challenges through engine.
func NewPartnerAccountability(resolver *LevelResolver, engine *ChallengeEngine) *PartnerAccountability {
	if resolver == nil {
		resolver = NewLevelResolver(nil)
	}
	if engine == nil {
		engine = NewChallengeEngine(nil)
	}
	return &PartnerAccountability{resolver: resolver, engine: engine, newID: uuid.NewString}
}

// WithIDGenerator replaces the random ID source, for deterministic tests.
func (p *PartnerAccountability) WithIDGenerator(fn func() string) *PartnerAccountability {
	p.newID = fn
	return p
}

func (p *PartnerAccountability) event(rel domain.PartnerRelationship, kind domain.EventKind, recipient string, payload map[string]any, now time.Time) domain.RelationshipEvent {
	return domain.RelationshipEvent{
		ID:             p.newID(),
		RelationshipID: rel.ID,
		Kind:           kind,
		Recipient:      recipient,
		Payload:        payload,
		CreatedAt:      now,
	}
}

// ValidatePartnerRule rejects rules with an unknown kind, consequence or a negative limit.
func ValidatePartnerRule(rule domain.PartnerRule) error {
	switch rule.Kind {
	case domain.PartnerMaxDailyLoss:
		if !rule.Limit.IsPositive() {
			return fmt.Errorf("%s limit %s must be positive: %w", rule.Kind, rule.Limit, domain.ErrOutOfRange)
		}
	case domain.PartnerMaxTradesPerDay, domain.PartnerMaxLosingTrades:
		if rule.Limit.IsNegative() || !rule.Limit.IsInteger() {
			return fmt.Errorf("%s limit %s must be a whole non-negative count: %w", rule.Kind, rule.Limit, domain.ErrOutOfRange)
		}
	case domain.PartnerRequireJournal:
	default:
		return fmt.Errorf("unknown partner rule kind %q: %w", rule.Kind, domain.ErrOutOfRange)
	}
	switch rule.Consequence {
	case domain.ConsequenceNotify, domain.ConsequenceChallengePenalty:
	default:
		return fmt.Errorf("unknown consequence %q: %w", rule.Consequence, domain.ErrOutOfRange)
	}
	return nil
}

// Invite proposes a relationship. When the inviter already has an open relationship it is
// returned unchanged with ErrInvalidState.
func (p *PartnerAccountability) Invite(existing *domain.PartnerRelationship, inviterID, inviteeID string, rules []domain.PartnerRule, now time.Time) (domain.PartnerRelationship, []domain.RelationshipEvent, error) {
	if existing != nil && existing.Status != domain.RelationshipEnded {
		return *existing, nil, fmt.Errorf("relationship %s is already %s: %w", existing.ID, existing.Status, domain.ErrInvalidState)
	}
	if inviterID == "" || inviteeID == "" || inviterID == inviteeID {
		return domain.PartnerRelationship{}, nil, fmt.Errorf("cannot pair %q with %q: %w", inviterID, inviteeID, domain.ErrOutOfRange)
	}

	rel := domain.PartnerRelationship{
		ID:        p.newID(),
		InviterID: inviterID,
		InviteeID: inviteeID,
		Status:    domain.RelationshipInvited,
		CreatedAt: now,
	}
	for _, r := range rules {
		if err := ValidatePartnerRule(r); err != nil {
			return domain.PartnerRelationship{}, nil, err
		}
		if r.ID == "" {
			r.ID = p.newID()
		}
		rel.Rules = append(rel.Rules, r)
	}

	ev := p.event(rel, domain.EventInvited, inviteeID, map[string]any{"from": inviterID}, now)
	return rel, []domain.RelationshipEvent{ev}, nil
}

// Accept activates an invitation. Only the invitee may accept.
func (p *PartnerAccountability) Accept(rel domain.PartnerRelationship, traderID string, now time.Time) (domain.PartnerRelationship, []domain.RelationshipEvent, error) {
	if rel.Status != domain.RelationshipInvited {
		return rel, nil, fmt.Errorf("relationship %s is %s: %w", rel.ID, rel.Status, domain.ErrInvalidState)
	}
	if traderID != rel.InviteeID {
		return rel, nil, fmt.Errorf("%s is not the invitee of %s: %w", traderID, rel.ID, domain.ErrOutOfRange)
	}

	next := rel
	at := now
	next.Status = domain.RelationshipActive
	next.AcceptedAt = &at
	ev := p.event(next, domain.EventAccepted, rel.InviterID, map[string]any{"by": traderID}, now)
	return next, []domain.RelationshipEvent{ev}, nil
}

// EndResult is everything ending a relationship changes.
type EndResult struct {
	Relationship domain.PartnerRelationship
	Shared       []domain.SharedChallenge
	Transitions  []domain.ChallengeTransition
	Events       []domain.RelationshipEvent
}

// End terminates the relationship on behalf of either party. Every open shared challenge
// of the pair expires immediately, whatever is left of its period.
func (p *PartnerAccountability) End(rel domain.PartnerRelationship, traderID string, shared []domain.SharedChallenge, now time.Time) (EndResult, error) {
	if rel.Status == domain.RelationshipEnded {
		return EndResult{Relationship: rel}, fmt.Errorf("relationship %s already ended: %w", rel.ID, domain.ErrInvalidState)
	}
	if !rel.Involves(traderID) {
		return EndResult{Relationship: rel}, fmt.Errorf("%s is not a party of %s: %w", traderID, rel.ID, domain.ErrOutOfRange)
	}

	next := rel
	at := now
	next.Status = domain.RelationshipEnded
	next.EndedAt = &at
	next.EndedBy = traderID

	res := EndResult{Relationship: next}
	for _, sc := range shared {
		if sc.RelationshipID != rel.ID || sc.State.Terminal() {
			continue
		}
		expired, tr, err := p.engine.ExpireShared(sc, now)
		if err != nil {
			return EndResult{Relationship: rel}, err
		}
		res.Shared = append(res.Shared, expired)
		res.Transitions = append(res.Transitions, tr)
	}
	res.Events = append(res.Events, p.event(next, domain.EventEnded, rel.Counterparty(traderID), map[string]any{"by": traderID}, now))
	return res, nil
}

// AddRule adds a shared rule to an invited or active relationship.
func (p *PartnerAccountability) AddRule(rel domain.PartnerRelationship, rule domain.PartnerRule, by string, now time.Time) (domain.PartnerRelationship, domain.RelationshipEvent, error) {
	if rel.Status == domain.RelationshipEnded {
		return rel, domain.RelationshipEvent{}, fmt.Errorf("relationship %s ended: %w", rel.ID, domain.ErrInvalidState)
	}
	if !rel.Involves(by) {
		return rel, domain.RelationshipEvent{}, fmt.Errorf("%s is not a party of %s: %w", by, rel.ID, domain.ErrOutOfRange)
	}
	if err := ValidatePartnerRule(rule); err != nil {
		return rel, domain.RelationshipEvent{}, err
	}
	if rule.ID == "" {
		rule.ID = p.newID()
	}

	next := rel
	next.Rules = append(append([]domain.PartnerRule(nil), rel.Rules...), rule)
	ev := p.event(next, domain.EventRuleAdded, rel.Counterparty(by), map[string]any{"rule_id": rule.ID, "kind": string(rule.Kind), "by": by}, now)
	return next, ev, nil
}

// RemoveRule drops a shared rule. Removing an unknown rule is ErrNotFound.
func (p *PartnerAccountability) RemoveRule(rel domain.PartnerRelationship, ruleID, by string, now time.Time) (domain.PartnerRelationship, domain.RelationshipEvent, error) {
	if rel.Status == domain.RelationshipEnded {
		return rel, domain.RelationshipEvent{}, fmt.Errorf("relationship %s ended: %w", rel.ID, domain.ErrInvalidState)
	}
	if !rel.Involves(by) {
		return rel, domain.RelationshipEvent{}, fmt.Errorf("%s is not a party of %s: %w", by, rel.ID, domain.ErrOutOfRange)
	}

	next := rel
	next.Rules = nil
	found := false
	for _, r := range rel.Rules {
		if r.ID == ruleID {
			found = true
			continue
		}
		next.Rules = append(next.Rules, r)
	}
	if !found {
		return rel, domain.RelationshipEvent{}, fmt.Errorf("rule %s: %w", ruleID, domain.ErrNotFound)
	}
	ev := p.event(next, domain.EventRuleRemoved, rel.Counterparty(by), map[string]any{"rule_id": ruleID, "by": by}, now)
	return next, ev, nil
}

// RuleReport lists the violations found for one trader and day.
type RuleReport struct {
	Violations []domain.RuleViolation
	Events     []domain.RelationshipEvent
	// Penalized is set when a violated rule carries ConsequenceChallengePenalty.
	Penalized bool
}

// EvaluateRules checks traderID's activity on day against the relationship rules. Only an
// active relationship is evaluated. Trades are never modified.
func (p *PartnerAccountability) EvaluateRules(rel domain.PartnerRelationship, traderID string, activity domain.ActivitySnapshot, day domain.Date, now time.Time) (RuleReport, error) {
	var rep RuleReport
	if rel.Status != domain.RelationshipActive {
		return rep, fmt.Errorf("relationship %s is %s: %w", rel.ID, rel.Status, domain.ErrInvalidState)
	}
	if !rel.Involves(traderID) {
		return rep, fmt.Errorf("%s is not a party of %s: %w", traderID, rel.ID, domain.ErrOutOfRange)
	}

	totals := activity.Within(domain.DailyPeriod(day)).Totals()
	partner := rel.Counterparty(traderID)

	for _, rule := range rel.Rules {
		observed, broken := observe(rule, totals)
		if !broken {
			continue
		}
		v := domain.RuleViolation{
			RelationshipID: rel.ID,
			RuleID:         rule.ID,
			Kind:           rule.Kind,
			TraderID:       traderID,
			Day:            day,
			Observed:       observed,
			Limit:          rule.Limit,
		}
		rep.Violations = append(rep.Violations, v)

		payload := map[string]any{
			"rule_id":  rule.ID,
			"kind":     string(rule.Kind),
			"trader":   traderID,
			"day":      day.String(),
			"observed": observed.String(),
			"limit":    rule.Limit.String(),
		}
		rep.Events = append(rep.Events, p.event(rel, domain.EventRuleViolation, partner, payload, now))
		if rule.NotifyViolator {
			rep.Events = append(rep.Events, p.event(rel, domain.EventRuleViolation, traderID, payload, now))
		}
		if rule.Consequence == domain.ConsequenceChallengePenalty {
			rep.Penalized = true
			rep.Events = append(rep.Events, p.event(rel, domain.EventChallengePenalty, traderID, payload, now))
		}
	}
	return rep, nil
}

// observe returns the measured value for the rule and whether it breaks the limit.
func observe(rule domain.PartnerRule, totals domain.DailySummary) (decimal.Decimal, bool) {
	switch rule.Kind {
	case domain.PartnerMaxDailyLoss:
		loss := totals.NetPnL.Neg()
		return loss, loss.GreaterThan(rule.Limit)
	case domain.PartnerMaxTradesPerDay:
		n := decimal.NewFromInt(int64(totals.TradeCount))
		return n, n.GreaterThan(rule.Limit)
	case domain.PartnerMaxLosingTrades:
		n := decimal.NewFromInt(int64(totals.Losses))
		return n, n.GreaterThan(rule.Limit)
	case domain.PartnerRequireJournal:
		missing := int64(totals.TradeCount - totals.Journaled)
		return decimal.NewFromInt(missing), missing > 0
	}
	return decimal.Zero, false
}

// PenalizeShared applies a challenge penalty to every open shared challenge of the pair
// for traderID.
func (p *PartnerAccountability) PenalizeShared(traderID string, shared []domain.SharedChallenge, now time.Time) ([]SharedEvaluationResult, error) {
	var out []SharedEvaluationResult
	for _, sc := range shared {
		if sc.State.Terminal() {
			continue
		}
		res, err := p.engine.FailParticipant(sc, traderID, now)
		if err != nil {
			return out, err
		}
		if res.Changed() {
			out = append(out, res)
		}
	}
	return out, nil
}

// MirrorAchievement turns one partner's achievement into a notification for the other.
func (p *PartnerAccountability) MirrorAchievement(rel domain.PartnerRelationship, traderID string, kind domain.EventKind, payload map[string]any, now time.Time) (*domain.RelationshipEvent, error) {
	if rel.Status != domain.RelationshipActive {
		return nil, fmt.Errorf("relationship %s is %s: %w", rel.ID, rel.Status, domain.ErrInvalidState)
	}
	if !rel.Involves(traderID) {
		return nil, fmt.Errorf("%s is not a party of %s: %w", traderID, rel.ID, domain.ErrOutOfRange)
	}
	body := map[string]any{"partner": traderID}
	for k, v := range payload {
		body[k] = v
	}
	ev := p.event(rel, kind, rel.Counterparty(traderID), body, now)
	return &ev, nil
}

// MirrorLevelUp notifies the partner when traderID's XP moved from previousXP to newXP
// across a level boundary. It returns nil when no level was gained.
func (p *PartnerAccountability) MirrorLevelUp(rel domain.PartnerRelationship, traderID string, previousXP, newXP int64, now time.Time) (*domain.RelationshipEvent, error) {
	reached, err := p.resolver.DetectLevelUp(previousXP, newXP)
	if err != nil || reached == nil {
		return nil, err
	}
	return p.MirrorAchievement(rel, traderID, domain.EventPartnerLevelUp, map[string]any{
		"level": reached.Level,
		"title": reached.Title,
		"badge": reached.Badge,
	}, now)
}
