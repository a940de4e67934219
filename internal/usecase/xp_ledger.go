package usecase

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/vitos/trade_journal/internal/domain"
)

// grantNamespace scopes name-based grant keys.
var grantNamespace = uuid.MustParse("6f1c3f0e-2d53-4c55-9a51-4b0b7f3b9a10")

// GrantKey derives a stable idempotency key from the grant's source and recipient, so
// re-evaluating the same completion yields the same key.
func GrantKey(sourceID, traderID string) string {
	return uuid.NewSHA1(grantNamespace, []byte(sourceID+"/"+traderID)).String()
}

// ApplyGrant returns the ledger after the grant and the level reached, if it changed.
func (r *LevelResolver) ApplyGrant(ledger domain.XPLedger, grant domain.XPGrant) (domain.XPLedger, *domain.LevelUp, error) {
	if grant.Amount <= 0 {
		return ledger, nil, fmt.Errorf("grant %s amount %d: %w", grant.IdempotencyKey, grant.Amount, domain.ErrOutOfRange)
	}
	if ledger.TraderID != "" && ledger.TraderID != grant.TraderID {
		return ledger, nil, fmt.Errorf("grant for %s applied to ledger of %s: %w", grant.TraderID, ledger.TraderID, domain.ErrOutOfRange)
	}
	if ledger.TotalXP < 0 {
		return ledger, nil, fmt.Errorf("ledger of %s holds %d XP: %w", grant.TraderID, ledger.TotalXP, domain.ErrOutOfRange)
	}

	next := domain.XPLedger{TraderID: grant.TraderID, TotalXP: ledger.TotalXP + grant.Amount}
	reached, err := r.DetectLevelUp(ledger.TotalXP, next.TotalXP)
	if err != nil {
		return ledger, nil, err
	}
	if reached == nil {
		return next, nil, nil
	}

	from, _ := r.ResolveLevel(ledger.TotalXP)
	return next, &domain.LevelUp{TraderID: grant.TraderID, From: from, To: *reached}, nil
}

// Correct sets an administrative total. It may lower XP but never below zero.
func (r *LevelResolver) Correct(ledger domain.XPLedger, totalXP int64) (domain.XPLedger, error) {
	if totalXP < 0 {
		return ledger, fmt.Errorf("corrected XP %d: %w", totalXP, domain.ErrOutOfRange)
	}
	ledger.TotalXP = totalXP
	return ledger, nil
}
