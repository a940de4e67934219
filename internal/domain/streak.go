package domain

type StreakState string

const (
	StreakCold    StreakState = "cold"
	StreakWarming StreakState = "warming"
)

// Streak counts consecutive qualifying days.
type Streak struct {
	CurrentLength      int   `json:"current_length"`
	LongestLength      int   `json:"longest_length"`
	LastQualifyingDate *Date `json:"last_qualifying_date,omitempty"`
}

func (s Streak) State() StreakState {
	if s.CurrentLength == 0 {
		return StreakCold
	}
	return StreakWarming
}

// Equal compares lengths and the last qualifying day by value.
func (s Streak) Equal(o Streak) bool {
	if s.CurrentLength != o.CurrentLength || s.LongestLength != o.LongestLength {
		return false
	}
	if s.LastQualifyingDate == nil || o.LastQualifyingDate == nil {
		return s.LastQualifyingDate == o.LastQualifyingDate
	}
	return s.LastQualifyingDate.Equal(*o.LastQualifyingDate)
}
