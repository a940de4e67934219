package domain

import "time"

// XPLedger is a trader's cumulative XP.
type XPLedger struct {
	TraderID string `json:"trader_id"`
	TotalXP  int64  `json:"total_xp"`
}

// XPGrant adds XP to one trader. IdempotencyKey identifies the grant so it is applied
// at most once.
type XPGrant struct {
	IdempotencyKey string    `json:"idempotency_key"`
	TraderID       string    `json:"trader_id"`
	Amount         int64     `json:"amount"`
	Reason         string    `json:"reason"`
	SourceID       string    `json:"source_id"`
	GrantedAt      time.Time `json:"granted_at"`
}

// LevelUp reports a level change produced by a grant.
type LevelUp struct {
	TraderID string      `json:"trader_id"`
	From     TraderLevel `json:"from"`
	To       TraderLevel `json:"to"`
}

type ChallengeTransition struct {
	ChallengeID string         `json:"challenge_id"`
	From        ChallengeState `json:"from"`
	To          ChallengeState `json:"to"`
	Timestamp   time.Time      `json:"timestamp"`
}

type StreakUpdate struct {
	TraderID string `json:"trader_id"`
	Streak   Streak `json:"streak"`
}

type EventKind string

const (
	EventInvited            EventKind = "invited"
	EventAccepted           EventKind = "accepted"
	EventEnded              EventKind = "ended"
	EventRuleAdded          EventKind = "rule_added"
	EventRuleRemoved        EventKind = "rule_removed"
	EventRuleViolation      EventKind = "rule_violation"
	EventChallengePenalty   EventKind = "challenge_penalty"
	EventPartnerLevelUp     EventKind = "partner_level_up"
	EventPartnerChallenge   EventKind = "partner_challenge_completed"
	EventPartnerStreak      EventKind = "partner_streak"
	EventSharedChallengeWon EventKind = "shared_challenge_completed"
)

// RelationshipEvent is a lifecycle transition or a notification addressed to Recipient.
type RelationshipEvent struct {
	ID             string         `json:"id"`
	RelationshipID string         `json:"relationship_id"`
	Kind           EventKind      `json:"kind"`
	Recipient      string         `json:"recipient,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
