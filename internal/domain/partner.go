package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type RelationshipStatus string

const (
	RelationshipInvited RelationshipStatus = "invited"
	RelationshipActive  RelationshipStatus = "active"
	RelationshipEnded   RelationshipStatus = "ended"
)

type PartnerRuleKind string

const (
	PartnerMaxDailyLoss    PartnerRuleKind = "max_daily_loss"
	PartnerMaxTradesPerDay PartnerRuleKind = "max_trades_per_day"
	PartnerMaxLosingTrades PartnerRuleKind = "max_losing_trades"
	PartnerRequireJournal  PartnerRuleKind = "require_journal" // every trade carries notes
)

type Consequence string

const (
	ConsequenceNotify           Consequence = "notify"
	ConsequenceChallengePenalty Consequence = "challenge_penalty"
)

// PartnerRule is a behavior limit both partners agreed to.
type PartnerRule struct {
	ID             string          `json:"id"`
	Kind           PartnerRuleKind `json:"kind"`
	Limit          decimal.Decimal `json:"limit"`
	Consequence    Consequence     `json:"consequence"`
	NotifyViolator bool            `json:"notify_violator"`
}

// PartnerRelationship pairs two traders. Either party may end it; an ended relationship
// is kept read-only.
type PartnerRelationship struct {
	ID         string             `json:"id"`
	InviterID  string             `json:"inviter_id"`
	InviteeID  string             `json:"invitee_id"`
	Status     RelationshipStatus `json:"status"`
	Rules      []PartnerRule      `json:"rules"`
	CreatedAt  time.Time          `json:"created_at"`
	AcceptedAt *time.Time         `json:"accepted_at,omitempty"`
	EndedAt    *time.Time         `json:"ended_at,omitempty"`
	EndedBy    string             `json:"ended_by,omitempty"`
}

// Involves reports whether traderID is one of the two parties.
func (r PartnerRelationship) Involves(traderID string) bool {
	return r.InviterID == traderID || r.InviteeID == traderID
}

// Counterparty returns the other party, or "" if traderID is not a party.
func (r PartnerRelationship) Counterparty(traderID string) string {
	switch traderID {
	case r.InviterID:
		return r.InviteeID
	case r.InviteeID:
		return r.InviterID
	}
	return ""
}

// Parties returns both trader IDs, inviter first.
func (r PartnerRelationship) Parties() [2]string {
	return [2]string{r.InviterID, r.InviteeID}
}

// RuleViolation is a frozen record of a broken partner rule.
type RuleViolation struct {
	RelationshipID string          `json:"relationship_id"`
	RuleID         string          `json:"rule_id"`
	Kind           PartnerRuleKind `json:"kind"`
	TraderID       string          `json:"trader_id"`
	Day            Date            `json:"day"`
	Observed       decimal.Decimal `json:"observed"`
	Limit          decimal.Decimal `json:"limit"`
}
