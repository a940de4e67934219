package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/vitos/trade_journal/internal/domain"
)

// memoryStore is an in-memory implementation of every repository.
type memoryStore struct {
	mu sync.Mutex

	trades        []domain.Trade
	ledgers       map[string]domain.XPLedger
	grants        map[string]domain.XPGrant
	streaks       map[string]domain.Streak
	challenges    map[string]domain.SharedChallenge
	shared        map[string]bool
	transitions   []domain.ChallengeTransition
	relationships map[string]domain.PartnerRelationship
	violations    map[string]domain.RuleViolation
	events        []domain.RelationshipEvent
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		ledgers:       map[string]domain.XPLedger{},
		grants:        map[string]domain.XPGrant{},
		streaks:       map[string]domain.Streak{},
		challenges:    map[string]domain.SharedChallenge{},
		shared:        map[string]bool{},
		relationships: map[string]domain.PartnerRelationship{},
		violations:    map[string]domain.RuleViolation{},
	}
}

func (m *memoryStore) SaveTrade(ctx context.Context, t *domain.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, *t)
	return nil
}

func (m *memoryStore) ListTrades(ctx context.Context, traderID string, p domain.Period) ([]domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Trade
	for _, t := range m.trades {
		if t.TraderID == traderID && p.Contains(t.Day()) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memoryStore) ListTradeDays(ctx context.Context, traderID string) ([]domain.Date, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var trades []domain.Trade
	for _, t := range m.trades {
		if t.TraderID == traderID {
			trades = append(trades, t)
		}
	}
	return domain.ActivitySnapshot{TraderID: traderID, Trades: trades}.QualifyingDays(), nil
}

func (m *memoryStore) ListTraderIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, t := range m.trades {
		if !seen[t.TraderID] {
			seen[t.TraderID] = true
			out = append(out, t.TraderID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memoryStore) GetLedger(ctx context.Context, traderID string) (domain.XPLedger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.ledgers[traderID]
	l.TraderID = traderID
	return l, nil
}

func (m *memoryStore) ApplyGrant(ctx context.Context, g domain.XPGrant, apply func(domain.XPLedger) (domain.XPLedger, error)) (domain.XPLedger, domain.XPLedger, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.ledgers[g.TraderID]
	prev.TraderID = g.TraderID
	if _, dup := m.grants[g.IdempotencyKey]; dup {
		return prev, prev, false, nil
	}
	next, err := apply(prev)
	if err != nil {
		return prev, prev, false, err
	}
	m.grants[g.IdempotencyKey] = g
	m.ledgers[g.TraderID] = next
	return prev, next, true, nil
}

func (m *memoryStore) SetLedger(ctx context.Context, l domain.XPLedger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledgers[l.TraderID] = l
	return nil
}

func (m *memoryStore) GetStreak(ctx context.Context, traderID string) (domain.Streak, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streaks[traderID], nil
}

func (m *memoryStore) SaveStreak(ctx context.Context, u domain.StreakUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streaks[u.TraderID] = u.Streak
	return nil
}

func (m *memoryStore) save(sc domain.SharedChallenge, shared bool) {
	if old, ok := m.challenges[sc.ID]; ok && old.State.Terminal() {
		return
	}
	m.challenges[sc.ID] = sc
	m.shared[sc.ID] = shared
}

func (m *memoryStore) SaveChallenge(ctx context.Context, ch domain.Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.save(domain.SharedChallenge{Challenge: ch}, false)
	return nil
}

func (m *memoryStore) GetChallenge(ctx context.Context, id string) (domain.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.challenges[id]
	if !ok {
		return domain.Challenge{}, fmt.Errorf("challenge %s: %w", id, domain.ErrNotFound)
	}
	return sc.Challenge, nil
}

func (m *memoryStore) personal(ownerID string, openOnly bool) []domain.Challenge {
	var out []domain.Challenge
	for id, sc := range m.challenges {
		if m.shared[id] || sc.OwnerID != ownerID || (openOnly && sc.State.Terminal()) {
			continue
		}
		out = append(out, sc.Challenge)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DefinitionID < out[j].DefinitionID })
	return out
}

func (m *memoryStore) ListChallenges(ctx context.Context, ownerID string, limit int) ([]domain.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.personal(ownerID, false)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryStore) ListOpenChallenges(ctx context.Context, ownerID string) ([]domain.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.personal(ownerID, true), nil
}

func (m *memoryStore) SaveTransition(ctx context.Context, tr domain.ChallengeTransition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, tr)
	return nil
}

func (m *memoryStore) SaveSharedChallenge(ctx context.Context, sc domain.SharedChallenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.save(sc, true)
	return nil
}

func (m *memoryStore) ListSharedChallenges(ctx context.Context, relationshipID string, openOnly bool) ([]domain.SharedChallenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SharedChallenge
	for id, sc := range m.challenges {
		if !m.shared[id] || sc.RelationshipID != relationshipID || (openOnly && sc.State.Terminal()) {
			continue
		}
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DefinitionID < out[j].DefinitionID })
	return out, nil
}

func (m *memoryStore) SaveRelationship(ctx context.Context, rel domain.PartnerRelationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relationships[rel.ID] = rel
	return nil
}

func (m *memoryStore) GetRelationship(ctx context.Context, id string) (domain.PartnerRelationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rel, ok := m.relationships[id]
	if !ok {
		return rel, fmt.Errorf("relationship %s: %w", id, domain.ErrNotFound)
	}
	return rel, nil
}

func (m *memoryStore) FindOpenRelationship(ctx context.Context, traderID string) (*domain.PartnerRelationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rel := range m.relationships {
		if rel.Involves(traderID) && rel.Status != domain.RelationshipEnded {
			r := rel
			return &r, nil
		}
	}
	return nil, nil
}

func (m *memoryStore) SaveViolation(ctx context.Context, v domain.RuleViolation) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.relationships[v.RelationshipID].Status == domain.RelationshipEnded {
		return false, domain.ErrInvalidState
	}
	key := v.RelationshipID + "/" + v.RuleID + "/" + v.TraderID + "/" + v.Day.String()
	if _, ok := m.violations[key]; ok {
		return false, nil
	}
	m.violations[key] = v
	return true, nil
}

func (m *memoryStore) ListViolations(ctx context.Context, relationshipID string) ([]domain.RuleViolation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RuleViolation
	for _, v := range m.violations {
		if v.RelationshipID == relationshipID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *memoryStore) SaveEvent(ctx context.Context, ev domain.RelationshipEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memoryStore) ListEvents(ctx context.Context, traderID string, limit int) ([]domain.RelationshipEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RelationshipEvent
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].Recipient == traderID {
			out = append(out, m.events[i])
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var errDiskIO = errors.New("disk I/O error")

// failingGrants fails the next failures calls to ApplyGrant.
type failingGrants struct {
	*memoryStore
	failures int
}

func (f *failingGrants) ApplyGrant(ctx context.Context, g domain.XPGrant, apply func(domain.XPLedger) (domain.XPLedger, error)) (domain.XPLedger, domain.XPLedger, bool, error) {
	if f.failures > 0 {
		f.failures--
		return domain.XPLedger{}, domain.XPLedger{}, false, errDiskIO
	}
	return f.memoryStore.ApplyGrant(ctx, g, apply)
}

// recordingNotifier keeps every published event.
type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.RelationshipEvent
}

func (n *recordingNotifier) Publish(ev domain.RelationshipEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) kinds(recipient string) []domain.EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []domain.EventKind
	for _, ev := range n.events {
		if ev.Recipient == recipient {
			out = append(out, ev.Kind)
		}
	}
	return out
}
