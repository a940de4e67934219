package usecase

import (
	"fmt"
	"sort"

	"github.com/vitos/trade_journal/internal/domain"
)

// StreakTracker derives consecutive-day streaks from qualifying days.
type StreakTracker struct{}

// NewStreakTracker returns a stateless tracker.
func NewStreakTracker() *StreakTracker {
	return &StreakTracker{}
}

// Advance applies one calendar day to the streak and reports whether it changed.
//
// A non-qualifying day never changes the streak: it only resets on the next qualifying
// day after a gap. Evaluating the day already recorded as LastQualifyingDate is a no-op.
func (t *StreakTracker) Advance(s domain.Streak, day domain.Date, qualifying bool) (domain.Streak, bool, error) {
	if day.IsZero() {
		return s, false, fmt.Errorf("zero streak day: %w", domain.ErrOutOfRange)
	}
	if !qualifying {
		return s, false, nil
	}

	if last := s.LastQualifyingDate; last != nil {
		switch {
		case day.Equal(*last):
			return s, false, nil
		case day.Before(*last):
			return s, false, fmt.Errorf("day %s precedes last qualifying day %s: %w", day, last, domain.ErrOutOfRange)
		case day.DaysSince(*last) == 1:
			s.CurrentLength++
		default:
			s.CurrentLength = 1
		}
	} else {
		s.CurrentLength = 1
	}

	d := day
	s.LastQualifyingDate = &d
	if s.CurrentLength > s.LongestLength {
		s.LongestLength = s.CurrentLength
	}
	return s, true, nil
}

// Rebuild computes a streak from scratch out of qualifying days in any order.
func (t *StreakTracker) Rebuild(days []domain.Date) domain.Streak {
	sorted := make([]domain.Date, len(days))
	copy(sorted, days)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	var s domain.Streak
	for _, d := range sorted {
		// Sorted input cannot go backwards and duplicates are no-ops.
		s, _, _ = t.Advance(s, d, true)
	}
	return s
}
