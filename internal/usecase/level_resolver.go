package usecase

import (
	"fmt"
	"math"

	"github.com/vitos/trade_journal/internal/domain"
)

// LevelResolver maps cumulative XP onto a level table.
type LevelResolver struct {
	table *domain.LevelTable
}

// NewLevelResolver resolves against table, or domain.DefaultLevelTable when nil.
func NewLevelResolver(table *domain.LevelTable) *LevelResolver {
	if table == nil {
		table = domain.DefaultLevelTable
	}
	return &LevelResolver{table: table}
}

// Table returns the table the resolver was built with.
func (r *LevelResolver) Table() *domain.LevelTable { return r.table }

// ResolveLevel returns the level whose [MinXP, MaxXP) interval contains totalXP.
// The table is scanned from the top down; the first level with MinXP <= totalXP wins.
func (r *LevelResolver) ResolveLevel(totalXP int64) (domain.TraderLevel, error) {
	if totalXP < 0 {
		return domain.TraderLevel{}, fmt.Errorf("negative XP %d: %w", totalXP, domain.ErrOutOfRange)
	}

	l, ok := r.table.Find(totalXP)
	if !ok {
		return domain.TraderLevel{}, fmt.Errorf("XP %d below every level: %w", totalXP, domain.ErrOutOfRange)
	}
	if !l.Contains(totalXP) {
		// Only reachable with a table whose intervals do not chain.
		return domain.TraderLevel{}, fmt.Errorf("XP %d is above level %d bound %d: %w", totalXP, l.Level, l.MaxXP, domain.ErrOutOfRange)
	}
	return l, nil
}

// NextLevel returns the level after the given one, or false at the terminal level.
func (r *LevelResolver) NextLevel(level int) (domain.TraderLevel, bool) {
	return r.table.Level(level + 1)
}

// ProgressToNextLevel returns the percentage (0-100) of the way from the current level's
// MinXP to the next level's MinXP. It is 100 at the terminal level.
func (r *LevelResolver) ProgressToNextLevel(totalXP int64) (int, error) {
	current, err := r.ResolveLevel(totalXP)
	if err != nil {
		return 0, err
	}
	next, ok := r.NextLevel(current.Level)
	if !ok {
		return 100, nil
	}

	span := float64(next.MinXP - current.MinXP)
	pct := int(math.Round(100 * float64(totalXP-current.MinXP) / span))
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	return pct, nil
}

// XPToNextLevel returns the XP still missing for the next level, 0 at the terminal level.
func (r *LevelResolver) XPToNextLevel(totalXP int64) (int64, error) {
	current, err := r.ResolveLevel(totalXP)
	if err != nil {
		return 0, err
	}
	next, ok := r.NextLevel(current.Level)
	if !ok {
		return 0, nil
	}
	return next.MinXP - totalXP, nil
}

// DetectLevelUp returns the level reached at newXP when it is strictly above the level at
// previousXP. A grant crossing several levels reports only the final one; use LevelsCrossed
// for the intermediate ones.
func (r *LevelResolver) DetectLevelUp(previousXP, newXP int64) (*domain.TraderLevel, error) {
	before, err := r.ResolveLevel(previousXP)
	if err != nil {
		return nil, err
	}
	after, err := r.ResolveLevel(newXP)
	if err != nil {
		return nil, err
	}
	if after.Level > before.Level {
		return &after, nil
	}
	return nil, nil
}

// LevelsCrossed lists every level entered when moving from previousXP to newXP, lowest first.
func (r *LevelResolver) LevelsCrossed(previousXP, newXP int64) ([]domain.TraderLevel, error) {
	before, err := r.ResolveLevel(previousXP)
	if err != nil {
		return nil, err
	}
	after, err := r.ResolveLevel(newXP)
	if err != nil {
		return nil, err
	}

	var out []domain.TraderLevel
	for n := before.Level + 1; n <= after.Level; n++ {
		l, _ := r.table.Level(n)
		out = append(out, l)
	}
	return out, nil
}
