package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/trade_journal/internal/domain"
	"go.uber.org/zap"
)

// streakMilestones are the streak lengths mirrored to the partner.
var streakMilestones = map[int]bool{3: true, 7: true, 14: true, 30: true, 60: true, 100: true}

// DayReport lists what one processing pass committed for a trader.
type DayReport struct {
	TraderID    string                       `json:"trader_id"`
	Streak      domain.Streak                `json:"streak"`
	Transitions []domain.ChallengeTransition `json:"transitions"`
	Grants      []domain.XPGrant             `json:"grants"`
	LevelUps    []domain.LevelUp             `json:"level_ups"`
	Events      []domain.RelationshipEvent   `json:"events"`
}

// GamificationService is the boundary around the pure engines: it loads snapshots,
// commits the computed transitions and publishes notifications. Core errors are logged
// and the previous state is kept.
type GamificationService struct {
	tradeRepo     domain.TradeRepository
	progressRepo  domain.ProgressRepository
	challengeRepo domain.ChallengeRepository
	partnerRepo   domain.PartnerRepository
	notifier      domain.Notifier

	catalog  *ChallengeCatalog
	resolver *LevelResolver
	streaks  *StreakTracker
	engine   *ChallengeEngine
	partners *PartnerAccountability
	logger   *zap.Logger

	now func() time.Time
	mu  sync.Mutex
}

// NewGamificationService wires the engines over the given repositories. A nil table
// means domain.DefaultLevelTable; a nil notifier disables push notifications.
func NewGamificationService(
	tradeRepo domain.TradeRepository,
	progressRepo domain.ProgressRepository,
	challengeRepo domain.ChallengeRepository,
	partnerRepo domain.PartnerRepository,
	notifier domain.Notifier,
	catalog *ChallengeCatalog,
	table *domain.LevelTable,
	logger *zap.Logger,
) *GamificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	streaks := NewStreakTracker()
	resolver := NewLevelResolver(table)
	engine := NewChallengeEngine(NewRuleEvaluator(streaks))
	return &GamificationService{
		tradeRepo:     tradeRepo,
		progressRepo:  progressRepo,
		challengeRepo: challengeRepo,
		partnerRepo:   partnerRepo,
		notifier:      notifier,
		catalog:       catalog,
		resolver:      resolver,
		streaks:       streaks,
		engine:        engine,
		partners:      NewPartnerAccountability(resolver, engine),
		logger:        logger,
		now:           time.Now,
	}
}

// WithClock replaces time.Now.
func (s *GamificationService) WithClock(now func() time.Time) *GamificationService {
	s.now = now
	return s
}

// Resolver exposes the level resolver used for presentation.
func (s *GamificationService) Resolver() *LevelResolver { return s.resolver }

// RecordTrade journals a trade and processes the trader's day. A trade dated before
// today also counts for its own day; a trade dated after today is rejected.
func (s *GamificationService) RecordTrade(ctx context.Context, trade domain.Trade) (DayReport, error) {
	if trade.TraderID == "" {
		return DayReport{}, fmt.Errorf("trade without trader: %w", domain.ErrOutOfRange)
	}
	now := s.now()
	if trade.ExecutedAt.IsZero() {
		trade.ExecutedAt = now
	}
	if today := domain.DateOf(now); today.Before(trade.Day()) {
		return DayReport{}, fmt.Errorf("trade on %s is after %s: %w", trade.Day(), today, domain.ErrOutOfRange)
	}
	if trade.ID == "" {
		trade.ID = uuid.NewString()
	}
	if err := s.tradeRepo.SaveTrade(ctx, &trade); err != nil {
		return DayReport{}, fmt.Errorf("failed to save trade: %w", err)
	}
	s.logger.Info("Trade recorded",
		zap.String("trader", trade.TraderID),
		zap.String("symbol", trade.Symbol),
		zap.String("day", trade.Day().String()),
		zap.String("pnl", trade.PnL.String()))
	return s.process(ctx, trade.TraderID, trade.Day())
}

// ProcessTrader brings a trader's streak, challenges and partner state up to date.
func (s *GamificationService) ProcessTrader(ctx context.Context, traderID string) (DayReport, error) {
	return s.process(ctx, traderID, domain.Date{})
}

// process runs one pass for today. A non-zero tradeDay before today is caught up first:
// the streak is rebuilt from the stored trade days and that day's challenges and partner
// rules are evaluated.
func (s *GamificationService) process(ctx context.Context, traderID string, tradeDay domain.Date) (DayReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	today := domain.DateOf(now)
	backdated := !tradeDay.IsZero() && tradeDay.Before(today)
	rep := DayReport{TraderID: traderID}

	rel, err := s.partnerRepo.FindOpenRelationship(ctx, traderID)
	if err != nil {
		return rep, fmt.Errorf("failed to load relationship: %w", err)
	}
	var active *domain.PartnerRelationship
	if rel != nil && rel.Status == domain.RelationshipActive {
		active = rel
	}

	if backdated {
		if err := s.rebuildStreak(ctx, traderID, active, now, &rep); err != nil {
			return rep, err
		}
		if err := s.ensureChallenges(ctx, traderID, tradeDay, now); err != nil {
			return rep, err
		}
	}
	if err := s.updateStreak(ctx, traderID, today, active, now, &rep); err != nil {
		return rep, err
	}
	if err := s.ensureChallenges(ctx, traderID, today, now); err != nil {
		return rep, err
	}
	if err := s.evaluateChallenges(ctx, traderID, active, now, &rep); err != nil {
		return rep, err
	}
	if active != nil {
		// Shared challenges exist before rules run so a penalty reaches today's instances.
		if err := s.ensureShared(ctx, *active, today, now); err != nil {
			return rep, err
		}
		if backdated {
			if err := s.evaluatePartnerRules(ctx, *active, traderID, tradeDay, now, &rep); err != nil {
				return rep, err
			}
		}
		if err := s.evaluatePartnerRules(ctx, *active, traderID, today, now, &rep); err != nil {
			return rep, err
		}
		if err := s.evaluateShared(ctx, *active, now, &rep); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

// Sweep processes every known trader; it closes challenges whose period ended.
func (s *GamificationService) Sweep(ctx context.Context) error {
	ids, err := s.tradeRepo.ListTraderIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list traders: %w", err)
	}
	for _, id := range ids {
		if _, err := s.ProcessTrader(ctx, id); err != nil {
			s.logger.Error("Sweep failed for trader", zap.String("trader", id), zap.Error(err))
		}
	}
	return nil
}

func (s *GamificationService) updateStreak(ctx context.Context, traderID string, today domain.Date, rel *domain.PartnerRelationship, now time.Time, rep *DayReport) error {
	streak, err := s.progressRepo.GetStreak(ctx, traderID)
	if err != nil {
		return fmt.Errorf("failed to load streak: %w", err)
	}
	trades, err := s.tradeRepo.ListTrades(ctx, traderID, domain.DailyPeriod(today))
	if err != nil {
		return fmt.Errorf("failed to load trades: %w", err)
	}

	next, changed, err := s.streaks.Advance(streak, today, len(trades) > 0)
	if err != nil {
		s.logger.Warn("Streak not advanced", zap.String("trader", traderID), zap.Error(err))
		rep.Streak = streak
		return nil
	}
	rep.Streak = next
	if !changed {
		return nil
	}
	if err := s.progressRepo.SaveStreak(ctx, domain.StreakUpdate{TraderID: traderID, Streak: next}); err != nil {
		return fmt.Errorf("failed to save streak: %w", err)
	}
	if rel != nil && streakMilestones[next.CurrentLength] {
		s.mirror(ctx, *rel, traderID, domain.EventPartnerStreak, map[string]any{"length": next.CurrentLength}, now, rep)
	}
	return nil
}

// rebuildStreak recomputes the streak from every stored trade day. The longest streak
// never shrinks.
func (s *GamificationService) rebuildStreak(ctx context.Context, traderID string, rel *domain.PartnerRelationship, now time.Time, rep *DayReport) error {
	streak, err := s.progressRepo.GetStreak(ctx, traderID)
	if err != nil {
		return fmt.Errorf("failed to load streak: %w", err)
	}
	days, err := s.tradeRepo.ListTradeDays(ctx, traderID)
	if err != nil {
		return fmt.Errorf("failed to load trade days: %w", err)
	}

	next := s.streaks.Rebuild(days)
	if streak.LongestLength > next.LongestLength {
		next.LongestLength = streak.LongestLength
	}
	rep.Streak = next
	if next.Equal(streak) {
		return nil
	}
	if err := s.progressRepo.SaveStreak(ctx, domain.StreakUpdate{TraderID: traderID, Streak: next}); err != nil {
		return fmt.Errorf("failed to save streak: %w", err)
	}
	s.logger.Info("Streak rebuilt",
		zap.String("trader", traderID),
		zap.Int("current", next.CurrentLength),
		zap.Int("longest", next.LongestLength))
	if rel != nil && next.CurrentLength > streak.CurrentLength && streakMilestones[next.CurrentLength] {
		s.mirror(ctx, *rel, traderID, domain.EventPartnerStreak, map[string]any{"length": next.CurrentLength}, now, rep)
	}
	return nil
}

func (s *GamificationService) ensureChallenges(ctx context.Context, traderID string, today domain.Date, now time.Time) error {
	for _, def := range s.catalog.Personal() {
		ch, err := s.engine.NewChallenge(def, traderID, today, now)
		if err != nil {
			s.logger.Error("Invalid challenge definition", zap.String("definition", def.ID), zap.Error(err))
			continue
		}
		if _, err := s.challengeRepo.GetChallenge(ctx, ch.ID); err == nil {
			continue
		} else if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("failed to load challenge: %w", err)
		}
		if err := s.challengeRepo.SaveChallenge(ctx, ch); err != nil {
			return fmt.Errorf("failed to create challenge: %w", err)
		}
	}
	return nil
}

func (s *GamificationService) evaluateChallenges(ctx context.Context, traderID string, rel *domain.PartnerRelationship, now time.Time, rep *DayReport) error {
	open, err := s.challengeRepo.ListOpenChallenges(ctx, traderID)
	if err != nil {
		return fmt.Errorf("failed to list challenges: %w", err)
	}

	for _, ch := range open {
		trades, err := s.tradeRepo.ListTrades(ctx, traderID, ch.Period)
		if err != nil {
			return fmt.Errorf("failed to load trades: %w", err)
		}
		res, err := s.engine.Evaluate(ch, domain.ActivitySnapshot{TraderID: traderID, Trades: trades}, now)
		if err != nil {
			s.logger.Warn("Challenge evaluation rejected", zap.String("challenge", ch.ID), zap.Error(err))
			continue
		}
		if !res.Changed() {
			continue
		}
		// The grant commits before the terminal state: a failed grant leaves the challenge
		// open for the next pass, and a repeated grant is a no-op.
		if res.Grant != nil {
			if err := s.applyGrant(ctx, *res.Grant, rel, now, rep); err != nil {
				return err
			}
		}
		if err := s.commitChallenge(ctx, res.Challenge, res.Transitions); err != nil {
			return err
		}
		rep.Transitions = append(rep.Transitions, res.Transitions...)
		s.logger.Info("Challenge transitioned",
			zap.String("trader", traderID),
			zap.String("challenge", ch.DefinitionID),
			zap.String("state", string(res.Challenge.State)))
		if res.Challenge.State == domain.ChallengeCompleted && rel != nil {
			s.mirror(ctx, *rel, traderID, domain.EventPartnerChallenge, map[string]any{
				"challenge": res.Challenge.Title,
				"xp":        res.Challenge.XPReward,
			}, now, rep)
		}
	}
	return nil
}

func (s *GamificationService) commitChallenge(ctx context.Context, ch domain.Challenge, trs []domain.ChallengeTransition) error {
	if err := s.challengeRepo.SaveChallenge(ctx, ch); err != nil {
		return fmt.Errorf("failed to save challenge: %w", err)
	}
	for _, tr := range trs {
		if err := s.challengeRepo.SaveTransition(ctx, tr); err != nil {
			return fmt.Errorf("failed to save transition: %w", err)
		}
	}
	return nil
}

// applyGrant commits a grant at most once and mirrors a resulting level-up.
func (s *GamificationService) applyGrant(ctx context.Context, grant domain.XPGrant, rel *domain.PartnerRelationship, now time.Time, rep *DayReport) error {
	var levelUp *domain.LevelUp
	prev, next, applied, err := s.progressRepo.ApplyGrant(ctx, grant, func(l domain.XPLedger) (domain.XPLedger, error) {
		out, lu, err := s.resolver.ApplyGrant(l, grant)
		levelUp = lu
		return out, err
	})
	if err != nil {
		if errors.Is(err, domain.ErrOutOfRange) {
			s.logger.Error("Grant rejected", zap.String("key", grant.IdempotencyKey), zap.Error(err))
			return nil
		}
		return fmt.Errorf("failed to apply grant: %w", err)
	}
	if !applied {
		s.logger.Debug("Grant already applied", zap.String("key", grant.IdempotencyKey))
		return nil
	}

	rep.Grants = append(rep.Grants, grant)
	s.logger.Info("XP granted",
		zap.String("trader", grant.TraderID),
		zap.Int64("amount", grant.Amount),
		zap.Int64("total", next.TotalXP),
		zap.String("reason", grant.Reason))

	if levelUp == nil {
		return nil
	}
	rep.LevelUps = append(rep.LevelUps, *levelUp)
	s.logger.Info("Level up",
		zap.String("trader", grant.TraderID),
		zap.Int("level", levelUp.To.Level),
		zap.String("title", levelUp.To.Title))
	if rel != nil {
		ev, err := s.partners.MirrorLevelUp(*rel, grant.TraderID, prev.TotalXP, next.TotalXP, now)
		if err != nil {
			s.logger.Warn("Level up not mirrored", zap.Error(err))
		} else if ev != nil {
			s.emit(ctx, *ev, rep)
		}
	}
	return nil
}

func (s *GamificationService) evaluatePartnerRules(ctx context.Context, rel domain.PartnerRelationship, traderID string, today domain.Date, now time.Time, rep *DayReport) error {
	trades, err := s.tradeRepo.ListTrades(ctx, traderID, domain.DailyPeriod(today))
	if err != nil {
		return fmt.Errorf("failed to load trades: %w", err)
	}
	report, err := s.partners.EvaluateRules(rel, traderID, domain.ActivitySnapshot{TraderID: traderID, Trades: trades}, today, now)
	if err != nil {
		s.logger.Warn("Partner rules not evaluated", zap.String("relationship", rel.ID), zap.Error(err))
		return nil
	}

	fresh := make(map[string]bool)
	for _, v := range report.Violations {
		inserted, err := s.partnerRepo.SaveViolation(ctx, v)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidState) {
				s.logger.Warn("Violation on frozen relationship", zap.String("relationship", rel.ID))
				continue
			}
			return fmt.Errorf("failed to save violation: %w", err)
		}
		if inserted {
			fresh[v.RuleID] = true
			s.logger.Info("Partner rule violated",
				zap.String("relationship", rel.ID),
				zap.String("trader", traderID),
				zap.String("rule", string(v.Kind)))
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	penalized := false
	for _, ev := range report.Events {
		if id, _ := ev.Payload["rule_id"].(string); !fresh[id] {
			continue
		}
		if ev.Kind == domain.EventChallengePenalty {
			penalized = true
		}
		s.emit(ctx, ev, rep)
	}
	if !penalized {
		return nil
	}

	shared, err := s.challengeRepo.ListSharedChallenges(ctx, rel.ID, true)
	if err != nil {
		return fmt.Errorf("failed to list shared challenges: %w", err)
	}
	results, err := s.partners.PenalizeShared(traderID, shared, now)
	if err != nil {
		s.logger.Warn("Penalty not applied", zap.String("trader", traderID), zap.Error(err))
	}
	for _, res := range results {
		if err := s.commitShared(ctx, res, &rel, now, rep); err != nil {
			return err
		}
	}
	return nil
}

func (s *GamificationService) ensureShared(ctx context.Context, rel domain.PartnerRelationship, today domain.Date, now time.Time) error {
	for _, def := range s.catalog.Shared() {
		sc, err := s.engine.NewSharedChallenge(def, rel, today, now)
		if err != nil {
			s.logger.Error("Invalid shared challenge", zap.String("definition", def.ID), zap.Error(err))
			continue
		}
		if _, err := s.challengeRepo.GetChallenge(ctx, sc.ID); err == nil {
			continue
		} else if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("failed to load shared challenge: %w", err)
		}
		if err := s.challengeRepo.SaveSharedChallenge(ctx, sc); err != nil {
			return fmt.Errorf("failed to create shared challenge: %w", err)
		}
	}
	return nil
}

func (s *GamificationService) evaluateShared(ctx context.Context, rel domain.PartnerRelationship, now time.Time, rep *DayReport) error {
	open, err := s.challengeRepo.ListSharedChallenges(ctx, rel.ID, true)
	if err != nil {
		return fmt.Errorf("failed to list shared challenges: %w", err)
	}
	for _, sc := range open {
		activity := make(map[string]domain.ActivitySnapshot, 2)
		for _, p := range sc.Participants {
			trades, err := s.tradeRepo.ListTrades(ctx, p, sc.Period)
			if err != nil {
				return fmt.Errorf("failed to load trades: %w", err)
			}
			activity[p] = domain.ActivitySnapshot{TraderID: p, Trades: trades}
		}
		res, err := s.engine.EvaluateShared(sc, activity, now)
		if err != nil {
			s.logger.Warn("Shared challenge evaluation rejected", zap.String("challenge", sc.ID), zap.Error(err))
			continue
		}
		if err := s.commitShared(ctx, res, &rel, now, rep); err != nil {
			return err
		}
	}
	return nil
}

func (s *GamificationService) commitShared(ctx context.Context, res SharedEvaluationResult, rel *domain.PartnerRelationship, now time.Time, rep *DayReport) error {
	if !res.Changed() {
		return nil
	}
	for _, g := range res.Grants {
		if err := s.applyGrant(ctx, g, rel, now, rep); err != nil {
			return err
		}
	}
	if err := s.challengeRepo.SaveSharedChallenge(ctx, res.Shared); err != nil {
		return fmt.Errorf("failed to save shared challenge: %w", err)
	}
	for _, tr := range res.Transitions {
		if err := s.challengeRepo.SaveTransition(ctx, tr); err != nil {
			return fmt.Errorf("failed to save transition: %w", err)
		}
	}
	rep.Transitions = append(rep.Transitions, res.Transitions...)
	if res.Shared.State == domain.ChallengeCompleted && len(res.Transitions) > 0 {
		for _, p := range res.Shared.Participants {
			ev := domain.RelationshipEvent{
				ID:             uuid.NewString(),
				RelationshipID: res.Shared.RelationshipID,
				Kind:           domain.EventSharedChallengeWon,
				Recipient:      p,
				Payload:        map[string]any{"challenge": res.Shared.Title, "rewarded": res.Shared.Rewarded[p]},
				CreatedAt:      now,
			}
			s.emit(ctx, ev, rep)
		}
	}
	return nil
}

func (s *GamificationService) mirror(ctx context.Context, rel domain.PartnerRelationship, traderID string, kind domain.EventKind, payload map[string]any, now time.Time, rep *DayReport) {
	ev, err := s.partners.MirrorAchievement(rel, traderID, kind, payload, now)
	if err != nil {
		s.logger.Warn("Achievement not mirrored", zap.String("relationship", rel.ID), zap.Error(err))
		return
	}
	s.emit(ctx, *ev, rep)
}

// emit stores and publishes an event. A storage failure is logged, not returned: the
// notification is best effort once the state change itself is committed.
func (s *GamificationService) emit(ctx context.Context, ev domain.RelationshipEvent, rep *DayReport) {
	if err := s.partnerRepo.SaveEvent(ctx, ev); err != nil {
		s.logger.Error("Failed to save event", zap.String("kind", string(ev.Kind)), zap.Error(err))
		return
	}
	if rep != nil {
		rep.Events = append(rep.Events, ev)
	}
	if s.notifier != nil {
		s.notifier.Publish(ev)
	}
}

// Progress returns the presentation summary for a trader.
func (s *GamificationService) Progress(ctx context.Context, traderID string) (ProgressSummary, error) {
	ledger, err := s.progressRepo.GetLedger(ctx, traderID)
	if err != nil {
		return ProgressSummary{}, fmt.Errorf("failed to load ledger: %w", err)
	}
	streak, err := s.progressRepo.GetStreak(ctx, traderID)
	if err != nil {
		return ProgressSummary{}, fmt.Errorf("failed to load streak: %w", err)
	}
	challenges, err := s.challengeRepo.ListChallenges(ctx, traderID, 50)
	if err != nil {
		return ProgressSummary{}, fmt.Errorf("failed to list challenges: %w", err)
	}
	rel, err := s.partnerRepo.FindOpenRelationship(ctx, traderID)
	if err != nil {
		return ProgressSummary{}, fmt.Errorf("failed to load relationship: %w", err)
	}
	ledger.TraderID = traderID
	return s.resolver.Summarize(ledger, streak, challenges, rel)
}

// Challenges lists a trader's most recent challenges.
func (s *GamificationService) Challenges(ctx context.Context, traderID string, limit int) ([]domain.Challenge, error) {
	return s.challengeRepo.ListChallenges(ctx, traderID, limit)
}

// CorrectXP applies an administrative correction to a ledger.
func (s *GamificationService) CorrectXP(ctx context.Context, traderID string, total int64) (domain.XPLedger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ledger, err := s.progressRepo.GetLedger(ctx, traderID)
	if err != nil {
		return domain.XPLedger{}, fmt.Errorf("failed to load ledger: %w", err)
	}
	ledger.TraderID = traderID
	next, err := s.resolver.Correct(ledger, total)
	if err != nil {
		return ledger, err
	}
	if err := s.progressRepo.SetLedger(ctx, next); err != nil {
		return ledger, fmt.Errorf("failed to save ledger: %w", err)
	}
	s.logger.Warn("XP corrected", zap.String("trader", traderID), zap.Int64("from", ledger.TotalXP), zap.Int64("to", total))
	return next, nil
}
