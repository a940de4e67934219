package domain

import (
	"fmt"
	"math"

	"go.uber.org/multierr"
)

// UnboundedXP marks the MaxXP of the terminal level.
const UnboundedXP int64 = math.MaxInt64

// TraderLevel is one rung of the level table. A trader sits on the level whose
// [MinXP, MaxXP) interval contains their cumulative XP.
type TraderLevel struct {
	Level int    `json:"level" yaml:"level"`
	Title string `json:"title" yaml:"title"`
	MinXP int64  `json:"min_xp" yaml:"min_xp"`
	MaxXP int64  `json:"max_xp" yaml:"-"`
	Badge string `json:"badge" yaml:"badge"`
	Color string `json:"color" yaml:"color"` // display hint
}

// Terminal reports whether the level has no upper bound.
func (l TraderLevel) Terminal() bool { return l.MaxXP == UnboundedXP }

// Contains reports whether xp falls in the level's interval.
func (l TraderLevel) Contains(xp int64) bool {
	return xp >= l.MinXP && (l.Terminal() || xp < l.MaxXP)
}

// LevelTable is an ordered, validated list of levels. Build it with NewLevelTable.
type LevelTable struct {
	levels []TraderLevel
}

// NewLevelTable validates levels and fills in MaxXP from the next level's MinXP.
// Levels must be numbered 1..n in order with strictly increasing MinXP, the first one
// starting at 0. Every violation is reported, not just the first.
func NewLevelTable(levels []TraderLevel) (*LevelTable, error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("level table is empty: %w", ErrOutOfRange)
	}

	var errs error
	out := make([]TraderLevel, len(levels))
	copy(out, levels)

	if out[0].MinXP != 0 {
		errs = multierr.Append(errs, fmt.Errorf("level %d starts at %d XP, the first level must start at 0", out[0].Level, out[0].MinXP))
	}
	for i := range out {
		if out[i].Level != i+1 {
			errs = multierr.Append(errs, fmt.Errorf("entry %d has level %d, want %d", i, out[i].Level, i+1))
		}
		if out[i].Title == "" {
			errs = multierr.Append(errs, fmt.Errorf("level %d has no title", out[i].Level))
		}
		if i > 0 && out[i].MinXP <= out[i-1].MinXP {
			errs = multierr.Append(errs, fmt.Errorf("level %d min XP %d is not above level %d min XP %d",
				out[i].Level, out[i].MinXP, out[i-1].Level, out[i-1].MinXP))
		}
		if i+1 < len(out) {
			out[i].MaxXP = out[i+1].MinXP
		} else {
			out[i].MaxXP = UnboundedXP
		}
	}
	if errs != nil {
		return nil, fmt.Errorf("invalid level table: %w", multierr.Combine(ErrOutOfRange, errs))
	}
	return &LevelTable{levels: out}, nil
}

// MustLevelTable is like NewLevelTable but panics on an invalid table.
func MustLevelTable(levels []TraderLevel) *LevelTable {
	t, err := NewLevelTable(levels)
	if err != nil {
		panic(err)
	}
	return t
}

// Levels returns a copy of the table entries.
func (t *LevelTable) Levels() []TraderLevel {
	out := make([]TraderLevel, len(t.levels))
	copy(out, t.levels)
	return out
}

// Len returns the number of levels.
func (t *LevelTable) Len() int { return len(t.levels) }

// Level returns the entry with the given level number.
func (t *LevelTable) Level(n int) (TraderLevel, bool) {
	if n < 1 || n > len(t.levels) {
		return TraderLevel{}, false
	}
	return t.levels[n-1], true
}

// Find returns the highest level whose MinXP is at most totalXP. It scans the table
// from the top down without copying it.
func (t *LevelTable) Find(totalXP int64) (TraderLevel, bool) {
	for i := len(t.levels) - 1; i >= 0; i-- {
		if t.levels[i].MinXP <= totalXP {
			return t.levels[i], true
		}
	}
	return TraderLevel{}, false
}

// Terminal returns the highest level.
func (t *LevelTable) Terminal() TraderLevel { return t.levels[len(t.levels)-1] }

// DefaultLevels is the built-in progression.
var DefaultLevels = []TraderLevel{
	{Level: 1, Title: "Rookie", MinXP: 0, Badge: "🌱", Color: "#9CA3AF"},
	{Level: 2, Title: "Apprentice", MinXP: 100, Badge: "📘", Color: "#60A5FA"},
	{Level: 3, Title: "Novice Trader", MinXP: 250, Badge: "📈", Color: "#34D399"},
	{Level: 4, Title: "Developing Trader", MinXP: 500, Badge: "🧭", Color: "#10B981"},
	{Level: 5, Title: "Skilled Trader", MinXP: 850, Badge: "🎯", Color: "#F59E0B"},
	{Level: 6, Title: "Consistent Trader", MinXP: 1300, Badge: "⚖️", Color: "#F97316"},
	{Level: 7, Title: "Disciplined Trader", MinXP: 1900, Badge: "🛡️", Color: "#EF4444"},
	{Level: 8, Title: "Seasoned Trader", MinXP: 2650, Badge: "🔥", Color: "#EC4899"},
	{Level: 9, Title: "Expert Trader", MinXP: 3600, Badge: "💎", Color: "#8B5CF6"},
	{Level: 10, Title: "Master Trader", MinXP: 4800, Badge: "🏅", Color: "#6366F1"},
	{Level: 11, Title: "Champion", MinXP: 6200, Badge: "🏆", Color: "#EAB308"},
	{Level: 12, Title: "Legend", MinXP: 7700, Badge: "👑", Color: "#FACC15"},
}

// DefaultLevelTable is validated at package init.
var DefaultLevelTable = MustLevelTable(DefaultLevels)
