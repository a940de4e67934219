package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/trade_journal/internal/domain"
	"github.com/vitos/trade_journal/internal/usecase"
	"go.uber.org/zap"
)

type serviceFixture struct {
	svc      *usecase.GamificationService
	store    *memoryStore
	notifier *recordingNotifier
	now      time.Time
}

func newServiceFixture(t *testing.T, defs ...domain.ChallengeDefinition) *serviceFixture {
	t.Helper()
	catalog, err := usecase.NewChallengeCatalog(defs)
	require.NoError(t, err)

	f := &serviceFixture{store: newMemoryStore(), notifier: &recordingNotifier{}, now: at(monday, 15)}
	f.svc = usecase.NewGamificationService(f.store, f.store, f.store, f.store, f.notifier, catalog, nil, zap.NewNop()).
		WithClock(func() time.Time { return f.now })
	return f
}

func TestGamificationService_PersonalProgress(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, logOneTrade)

	// 1. First trade completes the daily challenge once
	rep, err := f.svc.RecordTrade(ctx, trade("alice", monday, 25, ""))
	require.NoError(t, err)
	require.Len(t, rep.Grants, 1)
	assert.Equal(t, int64(50), rep.Grants[0].Amount)
	assert.Len(t, rep.Transitions, 2)
	assert.Equal(t, 1, rep.Streak.CurrentLength)

	// 2. Another trade the same day grants nothing more
	rep, err = f.svc.RecordTrade(ctx, trade("alice", monday, -5, ""))
	require.NoError(t, err)
	assert.Empty(t, rep.Grants)
	assert.Empty(t, rep.Transitions)

	summary, err := f.svc.Progress(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(50), summary.TotalXP)
	assert.Equal(t, 1, summary.Level.Level)
	assert.Equal(t, 50, summary.Progress)
	assert.Equal(t, int64(50), summary.XPToNextLevel)
	require.NotNil(t, summary.NextLevel)
	assert.Equal(t, "Apprentice", summary.NextLevel.Title)
	assert.Equal(t, domain.StreakWarming, summary.StreakState)
	assert.Nil(t, summary.Partner)

	// 3. Tuesday passes without trades; the sweep opens Tuesday's challenge
	f.now = at(monday.AddDays(1), 15)
	require.NoError(t, f.svc.Sweep(ctx))
	list, err := f.svc.Challenges(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	// 4. Wednesday: Tuesday expires, the streak restarts and alice levels up
	f.now = at(monday.AddDays(2), 15)
	rep, err = f.svc.RecordTrade(ctx, trade("alice", monday.AddDays(2), 10, ""))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Streak.CurrentLength)
	assert.Equal(t, 1, rep.Streak.LongestLength)
	require.Len(t, rep.LevelUps, 1)
	assert.Equal(t, 2, rep.LevelUps[0].To.Level)

	states := map[domain.ChallengeState]int{}
	list, err = f.svc.Challenges(ctx, "alice", 10)
	require.NoError(t, err)
	for _, ch := range list {
		states[ch.State]++
	}
	assert.Equal(t, 2, states[domain.ChallengeCompleted])
	assert.Equal(t, 1, states[domain.ChallengeExpired])

	ledger, err := f.svc.CorrectXP(ctx, "alice", 20)
	require.NoError(t, err)
	assert.Equal(t, int64(20), ledger.TotalXP)

	_, err = f.svc.CorrectXP(ctx, "alice", -1)
	assert.ErrorIs(t, err, domain.ErrOutOfRange)

	_, err = f.svc.RecordTrade(ctx, domain.Trade{Symbol: "ESM5"})
	assert.ErrorIs(t, err, domain.ErrOutOfRange)
}

func TestGamificationService_Partners(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, logOneTrade, sharedDef(domain.RewardJoint))
	f.now = at(monday, 8)

	rel, err := f.svc.InvitePartner(ctx, "alice", "bob", []domain.PartnerRule{
		{Kind: domain.PartnerMaxTradesPerDay, Limit: decimal.NewFromInt(1), Consequence: domain.ConsequenceChallengePenalty},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RelationshipInvited, rel.Status)

	// bob is already taken
	existing, err := f.svc.InvitePartner(ctx, "carol", "bob", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Equal(t, rel.ID, existing.ID)

	_, err = f.svc.AcceptPartner(ctx, rel.ID, "alice")
	assert.ErrorIs(t, err, domain.ErrOutOfRange)
	rel, err = f.svc.AcceptPartner(ctx, rel.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.RelationshipActive, rel.Status)

	f.now = at(monday, 15)
	_, err = f.svc.RecordTrade(ctx, trade("alice", monday, 30, ""))
	require.NoError(t, err)
	_, err = f.svc.RecordTrade(ctx, trade("bob", monday, 10, ""))
	require.NoError(t, err)

	// bob's second trade breaks the shared rule and costs the pair the joint challenge
	rep, err := f.svc.RecordTrade(ctx, trade("bob", monday, 10, ""))
	require.NoError(t, err)
	kinds := map[domain.EventKind]string{}
	for _, ev := range rep.Events {
		kinds[ev.Kind] = ev.Recipient
	}
	assert.Equal(t, "alice", kinds[domain.EventRuleViolation])
	assert.Equal(t, "bob", kinds[domain.EventChallengePenalty])

	shared, err := f.svc.SharedChallenges(ctx, rel.ID)
	require.NoError(t, err)
	require.Len(t, shared, 1)
	assert.Equal(t, domain.ChallengeFailed, shared[0].State)
	assert.Equal(t, domain.OutcomeViolated, shared[0].Outcome("bob"))

	// Re-processing does not repeat the violation
	rep, err = f.svc.ProcessTrader(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, rep.Events)

	violations, err := f.svc.Violations(ctx, rel.ID)
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.True(t, violations[0].Observed.Equal(decimal.NewFromInt(2)))

	assert.Equal(t, []domain.EventKind{
		domain.EventAccepted, domain.EventPartnerChallenge, domain.EventRuleViolation,
	}, f.notifier.kinds("alice"))
	assert.Equal(t, []domain.EventKind{
		domain.EventInvited, domain.EventPartnerChallenge, domain.EventChallengePenalty,
	}, f.notifier.kinds("bob"))

	summary, err := f.svc.Progress(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, summary.Partner)
	assert.Equal(t, "bob", summary.Partner.PartnerID)

	// Ending freezes the relationship
	ended, err := f.svc.EndPartner(ctx, rel.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.RelationshipEnded, ended.Status)
	_, err = f.svc.EndPartner(ctx, rel.ID, "bob")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = f.svc.RecordTrade(ctx, trade("bob", monday, -10, ""))
	require.NoError(t, err)
	violations, err = f.svc.Violations(ctx, rel.ID)
	require.NoError(t, err)
	assert.Len(t, violations, 1)

	events, err := f.svc.Events(ctx, "bob", 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventEnded, events[0].Kind)
}

func TestGamificationService_PartnerRules(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, logOneTrade)

	rel, err := f.svc.InvitePartner(ctx, "alice", "bob", nil)
	require.NoError(t, err)

	rel, err = f.svc.AddPartnerRule(ctx, rel.ID, "alice", domain.PartnerRule{
		Kind:        domain.PartnerRequireJournal,
		Consequence: domain.ConsequenceNotify,
	})
	require.NoError(t, err)
	require.Len(t, rel.Rules, 1)

	_, err = f.svc.AddPartnerRule(ctx, rel.ID, "carol", domain.PartnerRule{Kind: domain.PartnerRequireJournal, Consequence: domain.ConsequenceNotify})
	assert.ErrorIs(t, err, domain.ErrOutOfRange)

	rel, err = f.svc.RemovePartnerRule(ctx, rel.ID, "bob", rel.Rules[0].ID)
	require.NoError(t, err)
	assert.Empty(t, rel.Rules)

	_, err = f.svc.RemovePartnerRule(ctx, rel.ID, "bob", "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.AcceptPartner(ctx, "missing", "bob")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGamificationService_GrantRetriedAfterFailure(t *testing.T) {
	ctx := context.Background()
	catalog, err := usecase.NewChallengeCatalog([]domain.ChallengeDefinition{logOneTrade})
	require.NoError(t, err)
	store := newMemoryStore()
	progress := &failingGrants{memoryStore: store, failures: 1}
	svc := usecase.NewGamificationService(store, progress, store, store, nil, catalog, nil, zap.NewNop()).
		WithClock(func() time.Time { return at(monday, 15) })
	id := usecase.ChallengeID("alice", logOneTrade.ID, domain.DailyPeriod(monday))

	// 1. The grant fails, so the challenge is not closed
	_, err = svc.RecordTrade(ctx, trade("alice", monday, 25, ""))
	require.ErrorIs(t, err, errDiskIO)
	ch, err := store.GetChallenge(ctx, id)
	require.NoError(t, err)
	assert.False(t, ch.State.Terminal())
	assert.Empty(t, store.transitions)

	// 2. The next pass completes it and grants once
	rep, err := svc.ProcessTrader(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, rep.Grants, 1)
	assert.Equal(t, usecase.GrantKey(id, "alice"), rep.Grants[0].IdempotencyKey)
	ch, err = store.GetChallenge(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeCompleted, ch.State)

	// 3. Nothing more afterwards
	rep, err = svc.ProcessTrader(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, rep.Grants)
	ledger, err := store.GetLedger(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(50), ledger.TotalXP)
}

func TestGamificationService_BackdatedTrade(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, logOneTrade)
	tuesday, wednesday, thursday := monday.AddDays(1), monday.AddDays(2), monday.AddDays(3)

	// 1. Monday's trade logged on Tuesday morning counts for Monday
	f.now = at(tuesday, 9)
	rep, err := f.svc.RecordTrade(ctx, trade("alice", monday, 25, ""))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Streak.CurrentLength)
	require.NotNil(t, rep.Streak.LastQualifyingDate)
	assert.Equal(t, monday, *rep.Streak.LastQualifyingDate)
	require.Len(t, rep.Grants, 1)
	assert.Equal(t, usecase.GrantKey(usecase.ChallengeID("alice", logOneTrade.ID, domain.DailyPeriod(monday)), "alice"),
		rep.Grants[0].IdempotencyKey)

	rep, err = f.svc.RecordTrade(ctx, trade("alice", tuesday, 10, ""))
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Streak.CurrentLength)
	assert.Equal(t, 2, rep.Streak.LongestLength)

	// 2. Skipping Wednesday restarts the streak on Thursday
	f.now = at(thursday, 15)
	rep, err = f.svc.RecordTrade(ctx, trade("alice", thursday, 10, ""))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Streak.CurrentLength)
	assert.Equal(t, 2, rep.Streak.LongestLength)

	// 3. Filling the gap rebuilds it and completes Wednesday's challenge
	rep, err = f.svc.RecordTrade(ctx, trade("alice", wednesday, 10, ""))
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Streak.CurrentLength)
	assert.Equal(t, 4, rep.Streak.LongestLength)
	require.Len(t, rep.Grants, 1)
	assert.Equal(t, usecase.GrantKey(usecase.ChallengeID("alice", logOneTrade.ID, domain.DailyPeriod(wednesday)), "alice"),
		rep.Grants[0].IdempotencyKey)

	summary, err := f.svc.Progress(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(200), summary.TotalXP)

	// 4. Trades dated after today are rejected
	_, err = f.svc.RecordTrade(ctx, trade("alice", thursday.AddDays(1), 10, ""))
	assert.ErrorIs(t, err, domain.ErrOutOfRange)
}
