package usecase

import (
	"fmt"
	"time"

	"github.com/vitos/trade_journal/internal/domain"
)

// MotivationalMessage returns a short line for the dashboard header.
func MotivationalMessage(level domain.TraderLevel, progress int) string {
	switch {
	case level.Terminal():
		return fmt.Sprintf("%s %s. You've reached the top, now stay there.", level.Badge, level.Title)
	case progress >= 90:
		return fmt.Sprintf("Almost there! One more push and you leave %s behind.", level.Title)
	case progress >= 50:
		return fmt.Sprintf("Over halfway through %s. Keep the routine going.", level.Title)
	case progress > 0:
		return fmt.Sprintf("Every logged trade counts. %s is just the start.", level.Title)
	default:
		return fmt.Sprintf("Welcome to %s %s. Log a trade to start earning XP.", level.Title, level.Badge)
	}
}

// PartnerSummary is what one partner sees of the relationship.
type PartnerSummary struct {
	RelationshipID string                    `json:"relationship_id"`
	PartnerID      string                    `json:"partner_id"`
	Status         domain.RelationshipStatus `json:"status"`
	Rules          int                       `json:"rules"`
	Since          time.Time                 `json:"since"`
}

// ProgressSummary is the computed view handed to the presentation layer.
type ProgressSummary struct {
	TraderID      string              `json:"trader_id"`
	TotalXP       int64               `json:"total_xp"`
	Level         domain.TraderLevel  `json:"level"`
	NextLevel     *domain.TraderLevel `json:"next_level,omitempty"`
	Progress      int                 `json:"progress"`
	XPToNextLevel int64               `json:"xp_to_next_level"`
	Message       string              `json:"message"`
	Streak        domain.Streak       `json:"streak"`
	StreakState   domain.StreakState  `json:"streak_state"`
	Challenges    []domain.Challenge  `json:"challenges"`
	Partner       *PartnerSummary     `json:"partner,omitempty"`
}

// Summarize builds the presentation view from snapshots. rel may be nil.
func (r *LevelResolver) Summarize(ledger domain.XPLedger, streak domain.Streak, challenges []domain.Challenge, rel *domain.PartnerRelationship) (ProgressSummary, error) {
	level, err := r.ResolveLevel(ledger.TotalXP)
	if err != nil {
		return ProgressSummary{}, err
	}
	progress, err := r.ProgressToNextLevel(ledger.TotalXP)
	if err != nil {
		return ProgressSummary{}, err
	}
	remaining, err := r.XPToNextLevel(ledger.TotalXP)
	if err != nil {
		return ProgressSummary{}, err
	}

	sum := ProgressSummary{
		TraderID:      ledger.TraderID,
		TotalXP:       ledger.TotalXP,
		Level:         level,
		Progress:      progress,
		XPToNextLevel: remaining,
		Message:       MotivationalMessage(level, progress),
		Streak:        streak,
		StreakState:   streak.State(),
		Challenges:    challenges,
	}
	if next, ok := r.NextLevel(level.Level); ok {
		sum.NextLevel = &next
	}
	if rel != nil && rel.Involves(ledger.TraderID) {
		since := rel.CreatedAt
		if rel.AcceptedAt != nil {
			since = *rel.AcceptedAt
		}
		sum.Partner = &PartnerSummary{
			RelationshipID: rel.ID,
			PartnerID:      rel.Counterparty(ledger.TraderID),
			Status:         rel.Status,
			Rules:          len(rel.Rules),
			Since:          since,
		}
	}
	return sum, nil
}
