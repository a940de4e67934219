package usecase_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/trade_journal/internal/domain"
	"github.com/vitos/trade_journal/internal/usecase"
)

var logOneTrade = domain.ChallengeDefinition{
	ID:       "daily_log_trade",
	Title:    "Show up",
	Type:     domain.ChallengeDaily,
	Rule:     domain.RuleSpec{Kind: domain.RuleMinTrades, Threshold: 1},
	XPReward: 50,
}

func newEngine() *usecase.ChallengeEngine {
	return usecase.NewChallengeEngine(usecase.NewRuleEvaluator(usecase.NewStreakTracker()))
}

func TestChallengeEngine_DailyLogTrade(t *testing.T) {
	engine := newEngine()

	t.Run("no trades expires at day end without XP", func(t *testing.T) {
		ch, err := engine.NewChallenge(logOneTrade, "alice", monday, at(monday, 8))
		require.NoError(t, err)
		assert.Equal(t, domain.ChallengePending, ch.State)

		res, err := engine.Evaluate(ch, snapshot("alice"), at(monday, 20))
		require.NoError(t, err)
		assert.Equal(t, domain.ChallengeActive, res.Challenge.State)
		assert.Nil(t, res.Grant)

		res, err = engine.Evaluate(res.Challenge, snapshot("alice"), at(monday.AddDays(1), 0))
		require.NoError(t, err)
		assert.Equal(t, domain.ChallengeExpired, res.Challenge.State)
		assert.Nil(t, res.Grant)
		require.Len(t, res.Transitions, 1)
		assert.Equal(t, domain.ChallengeActive, res.Transitions[0].From)
		assert.Equal(t, domain.ChallengeExpired, res.Transitions[0].To)
	})

	t.Run("one trade completes with one grant", func(t *testing.T) {
		ch, err := engine.NewChallenge(logOneTrade, "alice", monday, at(monday, 8))
		require.NoError(t, err)
		activity := snapshot("alice", trade("alice", monday, 10, ""))

		res, err := engine.Evaluate(ch, activity, at(monday, 15))
		require.NoError(t, err)
		assert.Equal(t, domain.ChallengeCompleted, res.Challenge.State)
		require.Len(t, res.Transitions, 2)
		require.NotNil(t, res.Grant)
		assert.Equal(t, int64(50), res.Grant.Amount)
		assert.Equal(t, "alice", res.Grant.TraderID)
		assert.Equal(t, usecase.GrantKey(ch.ID, "alice"), res.Grant.IdempotencyKey)

		// Terminal state is sticky and yields no further grant
		again, err := engine.Evaluate(res.Challenge, activity, at(monday.AddDays(1), 1))
		require.NoError(t, err)
		assert.Equal(t, domain.ChallengeCompleted, again.Challenge.State)
		assert.Nil(t, again.Grant)
		assert.False(t, again.Changed())
	})

	t.Run("trades outside the period do not count", func(t *testing.T) {
		ch, err := engine.NewChallenge(logOneTrade, "alice", monday, at(monday, 8))
		require.NoError(t, err)
		activity := snapshot("alice", trade("alice", monday.AddDays(-1), 10, ""))

		res, err := engine.Evaluate(ch, activity, at(monday, 15))
		require.NoError(t, err)
		assert.Equal(t, domain.ChallengeActive, res.Challenge.State)
	})
}

func TestChallengeEngine_Restriction(t *testing.T) {
	engine := newEngine()
	def := domain.ChallengeDefinition{
		ID:       "weekly_loss_discipline",
		Title:    "Cut them short",
		Type:     domain.ChallengeWeekly,
		Rule:     domain.RuleSpec{Kind: domain.RuleMaxLosingTrades, Threshold: 1},
		XPReward: 250,
	}

	ch, err := engine.NewChallenge(def, "alice", monday.AddDays(3), at(monday, 8))
	require.NoError(t, err)
	assert.Equal(t, monday, ch.Period.Start)
	assert.Equal(t, monday.AddDays(6), ch.Period.End)

	t.Run("broken restriction fails", func(t *testing.T) {
		activity := snapshot("alice",
			trade("alice", monday, -10, ""),
			trade("alice", monday.AddDays(1), -20, ""))
		res, err := engine.Evaluate(ch, activity, at(monday.AddDays(1), 18))
		require.NoError(t, err)
		assert.Equal(t, domain.ChallengeFailed, res.Challenge.State)
		assert.Equal(t, domain.OutcomeViolated, res.Outcome)
		assert.Nil(t, res.Grant)
	})

	t.Run("intact restriction stays active until the week ends", func(t *testing.T) {
		activity := snapshot("alice", trade("alice", monday, -10, ""))
		res, err := engine.Evaluate(ch, activity, at(monday.AddDays(6), 23))
		require.NoError(t, err)
		assert.Equal(t, domain.ChallengeActive, res.Challenge.State)

		res, err = engine.Evaluate(res.Challenge, activity, at(monday.AddDays(7), 0))
		require.NoError(t, err)
		assert.Equal(t, domain.ChallengeCompleted, res.Challenge.State)
		require.NotNil(t, res.Grant)
		assert.Equal(t, int64(250), res.Grant.Amount)
	})
}

func TestChallengeEngine_TerminalStatesAreSticky(t *testing.T) {
	engine := newEngine()
	noLosses := domain.ChallengeDefinition{
		ID:       "daily_no_losses",
		Title:    "Green day",
		Type:     domain.ChallengeDaily,
		Rule:     domain.RuleSpec{Kind: domain.RuleMaxLosingTrades, Threshold: 0},
		XPReward: 80,
	}

	active := func(def domain.ChallengeDefinition) domain.Challenge {
		ch, err := engine.NewChallenge(def, "alice", monday, at(monday, 8))
		require.NoError(t, err)
		res, err := engine.Evaluate(ch, snapshot("alice"), at(monday, 9))
		require.NoError(t, err)
		require.Equal(t, domain.ChallengeActive, res.Challenge.State)
		return res.Challenge
	}
	expired, _, err := engine.Expire(active(logOneTrade), at(monday, 10))
	require.NoError(t, err)
	failed, _, err := engine.Fail(active(noLosses), at(monday, 10))
	require.NoError(t, err)
	completed, err := engine.Evaluate(active(logOneTrade), snapshot("alice", trade("alice", monday, 5, "")), at(monday, 10))
	require.NoError(t, err)

	tests := []struct {
		name     string
		ch       domain.Challenge
		activity domain.ActivitySnapshot
		now      time.Time
	}{
		{"expired then a trade arrives", expired, snapshot("alice", trade("alice", monday, 10, "")), at(monday, 12)},
		{"expired after the period", expired, snapshot("alice", trade("alice", monday, 10, "")), at(monday.AddDays(1), 1)},
		{"failed then the loss is gone", failed, snapshot("alice", trade("alice", monday, 10, "")), at(monday, 12)},
		{"failed after the period", failed, snapshot("alice"), at(monday.AddDays(1), 1)},
		{"completed without the trade", completed.Challenge, snapshot("alice"), at(monday.AddDays(1), 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := engine.Evaluate(tt.ch, tt.activity, tt.now)
			require.NoError(t, err)
			assert.Equal(t, tt.ch.State, res.Challenge.State)
			assert.Equal(t, tt.ch.UpdatedAt, res.Challenge.UpdatedAt)
			assert.Nil(t, res.Grant)
			assert.Empty(t, res.Transitions)
			assert.False(t, res.Changed())
		})
	}

	_, _, err = engine.Expire(failed, at(monday, 12))
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, _, err = engine.Fail(expired, at(monday, 12))
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestChallengeEngine_PendingUntilPeriodStarts(t *testing.T) {
	engine := newEngine()
	ch, err := engine.NewChallenge(logOneTrade, "alice", monday.AddDays(1), at(monday, 8))
	require.NoError(t, err)

	res, err := engine.Evaluate(ch, snapshot("alice"), at(monday, 20))
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengePending, res.Challenge.State)
	assert.False(t, res.Changed())

	expired, tr, err := engine.Expire(ch, at(monday, 21))
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeExpired, expired.State)
	assert.Equal(t, domain.ChallengePending, tr.From)
}

func TestChallengeEngine_InvalidTransitions(t *testing.T) {
	engine := newEngine()
	ch, err := engine.NewChallenge(logOneTrade, "alice", monday, at(monday, 8))
	require.NoError(t, err)

	// Pending cannot fail
	_, _, err = engine.Fail(ch, at(monday, 9))
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	ch.State = domain.ChallengeExpired
	_, _, err = engine.Expire(ch, at(monday, 9))
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = engine.Evaluate(domain.Challenge{OwnerID: "alice", State: domain.ChallengeActive}, snapshot("bob"), at(monday, 9))
	assert.ErrorIs(t, err, domain.ErrOutOfRange)
}

func TestChallengeEngine_StableIDs(t *testing.T) {
	engine := newEngine()
	a, err := engine.NewChallenge(logOneTrade, "alice", monday, at(monday, 8))
	require.NoError(t, err)
	b, err := engine.NewChallenge(logOneTrade, "alice", monday, at(monday, 22))
	require.NoError(t, err)
	c, err := engine.NewChallenge(logOneTrade, "alice", monday.AddDays(1), at(monday, 8))
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
	assert.NotEqual(t, a.ID, c.ID)
}

func TestRuleEvaluator(t *testing.T) {
	rules := usecase.NewRuleEvaluator(nil)
	week := domain.WeeklyPeriod(monday)

	tests := []struct {
		name   string
		rule   domain.RuleSpec
		trades []domain.Trade
		closed bool
		want   domain.Outcome
	}{
		{
			name:   "winning trades reached",
			rule:   domain.RuleSpec{Kind: domain.RuleMinWinningTrades, Threshold: 2},
			trades: []domain.Trade{trade("a", monday, 5, ""), trade("a", monday, 1, ""), trade("a", monday, -3, "")},
			want:   domain.OutcomeSatisfied,
		},
		{
			name:   "journaled trades short",
			rule:   domain.RuleSpec{Kind: domain.RuleMinJournaledTrades, Threshold: 2},
			trades: []domain.Trade{trade("a", monday, 5, "plan followed"), trade("a", monday, 1, "")},
			want:   domain.OutcomeOpen,
		},
		{
			name:   "net pnl needs trades",
			rule:   domain.RuleSpec{Kind: domain.RuleMinNetPnL, Amount: decimal.NewFromInt(100)},
			trades: nil,
			want:   domain.OutcomeOpen,
		},
		{
			name:   "net pnl reached",
			rule:   domain.RuleSpec{Kind: domain.RuleMinNetPnL, Amount: decimal.NewFromInt(100)},
			trades: []domain.Trade{trade("a", monday, 150, ""), trade("a", monday.AddDays(1), -40, "")},
			want:   domain.OutcomeSatisfied,
		},
		{
			name:   "streak within the week",
			rule:   domain.RuleSpec{Kind: domain.RuleStreakDays, Threshold: 3},
			trades: []domain.Trade{trade("a", monday, 1, ""), trade("a", monday.AddDays(1), 1, ""), trade("a", monday.AddDays(2), 1, "")},
			want:   domain.OutcomeSatisfied,
		},
		{
			name:   "broken streak",
			rule:   domain.RuleSpec{Kind: domain.RuleStreakDays, Threshold: 3},
			trades: []domain.Trade{trade("a", monday, 1, ""), trade("a", monday.AddDays(2), 1, ""), trade("a", monday.AddDays(4), 1, "")},
			closed: true,
			want:   domain.OutcomeOpen,
		},
		{
			name:   "overtrading on one day",
			rule:   domain.RuleSpec{Kind: domain.RuleMaxTradesPerDay, Threshold: 1},
			trades: []domain.Trade{trade("a", monday, 1, ""), trade("a", monday.AddDays(1), 1, ""), trade("a", monday.AddDays(1), 1, "")},
			want:   domain.OutcomeViolated,
		},
		{
			name:   "daily loss within limit when closed",
			rule:   domain.RuleSpec{Kind: domain.RuleMaxDailyLoss, Amount: decimal.NewFromInt(500)},
			trades: []domain.Trade{trade("a", monday, -500, ""), trade("a", monday.AddDays(1), -300, "")},
			closed: true,
			want:   domain.OutcomeSatisfied,
		},
		{
			name:   "daily loss over limit",
			rule:   domain.RuleSpec{Kind: domain.RuleMaxDailyLoss, Amount: decimal.NewFromInt(500)},
			trades: []domain.Trade{trade("a", monday, -300, ""), trade("a", monday, -201, "")},
			want:   domain.OutcomeViolated,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rules.Evaluate(tt.rule, snapshot("a", tt.trades...).Within(week), tt.closed)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateRule(t *testing.T) {
	tests := []struct {
		name string
		rule domain.RuleSpec
		typ  domain.ChallengeType
		ok   bool
	}{
		{"min trades", domain.RuleSpec{Kind: domain.RuleMinTrades, Threshold: 1}, domain.ChallengeDaily, true},
		{"zero threshold", domain.RuleSpec{Kind: domain.RuleMinTrades}, domain.ChallengeDaily, false},
		{"streak longer than a day", domain.RuleSpec{Kind: domain.RuleStreakDays, Threshold: 2}, domain.ChallengeDaily, false},
		{"streak longer than a week", domain.RuleSpec{Kind: domain.RuleStreakDays, Threshold: 8}, domain.ChallengeWeekly, false},
		{"seven day streak", domain.RuleSpec{Kind: domain.RuleStreakDays, Threshold: 7}, domain.ChallengeWeekly, true},
		{"zero loss limit", domain.RuleSpec{Kind: domain.RuleMaxDailyLoss}, domain.ChallengeDaily, false},
		{"no losses allowed", domain.RuleSpec{Kind: domain.RuleMaxLosingTrades, Threshold: 0}, domain.ChallengeDaily, true},
		{"unknown", domain.RuleSpec{Kind: "moon"}, domain.ChallengeDaily, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := usecase.ValidateRule(tt.rule, tt.typ)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, domain.ErrUnsatisfiableRule)
		})
	}
}

func TestWeeklyXPPotential(t *testing.T) {
	assert.Equal(t, int64(350), usecase.WeeklyXPPotential(50))
}
