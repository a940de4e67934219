package usecase

import (
	"context"
	"fmt"

	"github.com/vitos/trade_journal/internal/domain"
	"go.uber.org/zap"
)

// InvitePartner proposes a partnership. If either trader already has an open relationship,
// that relationship is returned together with ErrInvalidState.
func (s *GamificationService) InvitePartner(ctx context.Context, inviterID, inviteeID string, rules []domain.PartnerRule) (domain.PartnerRelationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.partnerRepo.FindOpenRelationship(ctx, inviterID)
	if err != nil {
		return domain.PartnerRelationship{}, fmt.Errorf("failed to load relationship: %w", err)
	}
	if existing == nil {
		if existing, err = s.partnerRepo.FindOpenRelationship(ctx, inviteeID); err != nil {
			return domain.PartnerRelationship{}, fmt.Errorf("failed to load relationship: %w", err)
		}
	}

	rel, events, err := s.partners.Invite(existing, inviterID, inviteeID, rules, s.now())
	if err != nil {
		s.logger.Warn("Invite rejected", zap.String("inviter", inviterID), zap.String("invitee", inviteeID), zap.Error(err))
		return rel, err
	}
	if err := s.partnerRepo.SaveRelationship(ctx, rel); err != nil {
		return domain.PartnerRelationship{}, fmt.Errorf("failed to save relationship: %w", err)
	}
	for _, ev := range events {
		s.emit(ctx, ev, nil)
	}
	s.logger.Info("Partner invited", zap.String("relationship", rel.ID), zap.String("inviter", inviterID), zap.String("invitee", inviteeID))
	return rel, nil
}

// AcceptPartner activates an invitation on behalf of the invitee.
func (s *GamificationService) AcceptPartner(ctx context.Context, relationshipID, traderID string) (domain.PartnerRelationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rel, err := s.partnerRepo.GetRelationship(ctx, relationshipID)
	if err != nil {
		return domain.PartnerRelationship{}, err
	}
	next, events, err := s.partners.Accept(rel, traderID, s.now())
	if err != nil {
		s.logger.Warn("Accept rejected", zap.String("relationship", rel.ID), zap.Error(err))
		return next, err
	}
	if err := s.partnerRepo.SaveRelationship(ctx, next); err != nil {
		return rel, fmt.Errorf("failed to save relationship: %w", err)
	}
	for _, ev := range events {
		s.emit(ctx, ev, nil)
	}
	s.logger.Info("Partnership active", zap.String("relationship", rel.ID))
	return next, nil
}

// EndPartner ends a relationship on behalf of either party and expires its open shared
// challenges.
func (s *GamificationService) EndPartner(ctx context.Context, relationshipID, traderID string) (domain.PartnerRelationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rel, err := s.partnerRepo.GetRelationship(ctx, relationshipID)
	if err != nil {
		return domain.PartnerRelationship{}, err
	}
	shared, err := s.challengeRepo.ListSharedChallenges(ctx, rel.ID, true)
	if err != nil {
		return rel, fmt.Errorf("failed to list shared challenges: %w", err)
	}

	now := s.now()
	res, err := s.partners.End(rel, traderID, shared, now)
	if err != nil {
		s.logger.Warn("End rejected", zap.String("relationship", rel.ID), zap.Error(err))
		return res.Relationship, err
	}
	for _, sc := range res.Shared {
		if err := s.challengeRepo.SaveSharedChallenge(ctx, sc); err != nil {
			return rel, fmt.Errorf("failed to expire shared challenge: %w", err)
		}
	}
	for _, tr := range res.Transitions {
		if err := s.challengeRepo.SaveTransition(ctx, tr); err != nil {
			return rel, fmt.Errorf("failed to save transition: %w", err)
		}
	}
	if err := s.partnerRepo.SaveRelationship(ctx, res.Relationship); err != nil {
		return rel, fmt.Errorf("failed to save relationship: %w", err)
	}
	for _, ev := range res.Events {
		s.emit(ctx, ev, nil)
	}
	s.logger.Info("Partnership ended",
		zap.String("relationship", rel.ID),
		zap.String("by", traderID),
		zap.Int("expired_challenges", len(res.Shared)))
	return res.Relationship, nil
}

// AddPartnerRule adds a shared rule.
func (s *GamificationService) AddPartnerRule(ctx context.Context, relationshipID, traderID string, rule domain.PartnerRule) (domain.PartnerRelationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rel, err := s.partnerRepo.GetRelationship(ctx, relationshipID)
	if err != nil {
		return domain.PartnerRelationship{}, err
	}
	next, ev, err := s.partners.AddRule(rel, rule, traderID, s.now())
	if err != nil {
		return next, err
	}
	if err := s.partnerRepo.SaveRelationship(ctx, next); err != nil {
		return rel, fmt.Errorf("failed to save relationship: %w", err)
	}
	s.emit(ctx, ev, nil)
	return next, nil
}

// RemovePartnerRule drops a shared rule.
func (s *GamificationService) RemovePartnerRule(ctx context.Context, relationshipID, traderID, ruleID string) (domain.PartnerRelationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rel, err := s.partnerRepo.GetRelationship(ctx, relationshipID)
	if err != nil {
		return domain.PartnerRelationship{}, err
	}
	next, ev, err := s.partners.RemoveRule(rel, ruleID, traderID, s.now())
	if err != nil {
		return next, err
	}
	if err := s.partnerRepo.SaveRelationship(ctx, next); err != nil {
		return rel, fmt.Errorf("failed to save relationship: %w", err)
	}
	s.emit(ctx, ev, nil)
	return next, nil
}

// Relationship returns a relationship by ID.
func (s *GamificationService) Relationship(ctx context.Context, relationshipID string) (domain.PartnerRelationship, error) {
	return s.partnerRepo.GetRelationship(ctx, relationshipID)
}

// Violations returns the recorded violations of a relationship, including frozen ones.
func (s *GamificationService) Violations(ctx context.Context, relationshipID string) ([]domain.RuleViolation, error) {
	return s.partnerRepo.ListViolations(ctx, relationshipID)
}

// SharedChallenges lists a relationship's shared challenges.
func (s *GamificationService) SharedChallenges(ctx context.Context, relationshipID string) ([]domain.SharedChallenge, error) {
	return s.challengeRepo.ListSharedChallenges(ctx, relationshipID, false)
}

// Events lists the notifications addressed to a trader, newest first.
func (s *GamificationService) Events(ctx context.Context, traderID string, limit int) ([]domain.RelationshipEvent, error) {
	return s.partnerRepo.ListEvents(ctx, traderID, limit)
}
