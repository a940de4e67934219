package storage

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/vitos/trade_journal/internal/domain"
)

// ChallengeRepository Implementation

const challengeColumns = `id, definition_id, owner_id, title, type, rule, xp_reward, period_start, period_end, state,
	relationship_id, policy, participants, outcomes, rewarded, updated_at`

// upsertChallenge never overwrites a terminal state, so a late or replayed save cannot
// revive a finished challenge.
const upsertChallenge = `INSERT INTO challenges (id, definition_id, owner_id, title, type, rule, xp_reward, period_start, period_end, state,
			  shared, relationship_id, policy, participants, outcomes, rewarded, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT(id) DO UPDATE SET
			  state=excluded.state,
			  outcomes=excluded.outcomes,
			  rewarded=excluded.rewarded,
			  updated_at=excluded.updated_at
			  WHERE challenges.state NOT IN ('completed', 'failed', 'expired')`

func (s *SQLiteStore) SaveChallenge(ctx context.Context, ch domain.Challenge) error {
	return s.saveChallenge(ctx, domain.SharedChallenge{Challenge: ch}, false)
}

func (s *SQLiteStore) SaveSharedChallenge(ctx context.Context, sc domain.SharedChallenge) error {
	return s.saveChallenge(ctx, sc, true)
}

func (s *SQLiteStore) saveChallenge(ctx context.Context, sc domain.SharedChallenge, shared bool) error {
	if err := sc.Period.Validate(); err != nil {
		return err
	}
	rule, err := json.Marshal(sc.Rule)
	if err != nil {
		return fmt.Errorf("failed to encode rule: %w", err)
	}
	participants, err := json.Marshal(sc.Participants)
	if err != nil {
		return fmt.Errorf("failed to encode participants: %w", err)
	}
	outcomes, err := json.Marshal(emptyIfNil(sc.Outcomes))
	if err != nil {
		return fmt.Errorf("failed to encode outcomes: %w", err)
	}
	rewarded, err := json.Marshal(emptyIfNil(sc.Rewarded))
	if err != nil {
		return fmt.Errorf("failed to encode rewarded: %w", err)
	}

	_, err = s.db.ExecContext(ctx, upsertChallenge,
		sc.ID, sc.DefinitionID, sc.OwnerID, sc.Title, string(sc.Type), string(rule), sc.XPReward,
		sc.Period.Start.String(), sc.Period.End.String(), string(sc.State),
		shared, sc.RelationshipID, string(sc.Policy), string(participants), string(outcomes), string(rewarded), sc.UpdatedAt)
	return err
}

func emptyIfNil[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return map[K]V{}
	}
	return m
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChallenge(row rowScanner) (domain.SharedChallenge, error) {
	var sc domain.SharedChallenge
	var typ, rule, start, end, state, policy, participants, outcomes, rewarded string
	err := row.Scan(&sc.ID, &sc.DefinitionID, &sc.OwnerID, &sc.Title, &typ, &rule, &sc.XPReward, &start, &end, &state,
		&sc.RelationshipID, &policy, &participants, &outcomes, &rewarded, &sc.UpdatedAt)
	if err != nil {
		return sc, err
	}
	sc.Type = domain.ChallengeType(typ)
	sc.State = domain.ChallengeState(state)
	sc.Policy = domain.RewardPolicy(policy)

	if sc.Period.Start, err = scanDate(start); err != nil {
		return sc, err
	}
	if sc.Period.End, err = scanDate(end); err != nil {
		return sc, err
	}
	if err := json.Unmarshal([]byte(rule), &sc.Rule); err != nil {
		return sc, fmt.Errorf("failed to decode rule of %s: %w", sc.ID, err)
	}
	if err := json.Unmarshal([]byte(participants), &sc.Participants); err != nil {
		return sc, fmt.Errorf("failed to decode participants of %s: %w", sc.ID, err)
	}
	sc.Outcomes = map[string]domain.Outcome{}
	if err := json.Unmarshal([]byte(outcomes), &sc.Outcomes); err != nil {
		return sc, fmt.Errorf("failed to decode outcomes of %s: %w", sc.ID, err)
	}
	sc.Rewarded = map[string]bool{}
	if err := json.Unmarshal([]byte(rewarded), &sc.Rewarded); err != nil {
		return sc, fmt.Errorf("failed to decode rewarded of %s: %w", sc.ID, err)
	}
	return sc, nil
}

func (s *SQLiteStore) queryChallenges(ctx context.Context, query string, args ...any) ([]domain.SharedChallenge, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SharedChallenge
	for rows.Next() {
		sc, err := scanChallenge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetChallenge(ctx context.Context, id string) (domain.Challenge, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE id = ?`, id)
	sc, err := scanChallenge(row)
	if err != nil {
		return domain.Challenge{}, notFound(err, "challenge", id)
	}
	return sc.Challenge, nil
}

// ListChallenges returns the owner's personal challenges, most recent period first.
func (s *SQLiteStore) ListChallenges(ctx context.Context, ownerID string, limit int) ([]domain.Challenge, error) {
	if limit <= 0 {
		limit = 50
	}
	list, err := s.queryChallenges(ctx, `SELECT `+challengeColumns+` FROM challenges
		WHERE owner_id = ? AND shared = 0
		ORDER BY period_start DESC, definition_id ASC LIMIT ?`, ownerID, limit)
	return plain(list), err
}

func (s *SQLiteStore) ListOpenChallenges(ctx context.Context, ownerID string) ([]domain.Challenge, error) {
	list, err := s.queryChallenges(ctx, `SELECT `+challengeColumns+` FROM challenges
		WHERE owner_id = ? AND shared = 0 AND state IN ('pending', 'active')
		ORDER BY period_start ASC, definition_id ASC`, ownerID)
	return plain(list), err
}

func plain(list []domain.SharedChallenge) []domain.Challenge {
	out := make([]domain.Challenge, 0, len(list))
	for _, sc := range list {
		out = append(out, sc.Challenge)
	}
	return out
}

func (s *SQLiteStore) ListSharedChallenges(ctx context.Context, relationshipID string, openOnly bool) ([]domain.SharedChallenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM challenges WHERE relationship_id = ? AND shared = 1`
	if openOnly {
		query += ` AND state IN ('pending', 'active')`
	}
	query += ` ORDER BY period_start ASC, definition_id ASC`
	return s.queryChallenges(ctx, query, relationshipID)
}

func (s *SQLiteStore) SaveTransition(ctx context.Context, tr domain.ChallengeTransition) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO challenge_transitions (challenge_id, from_state, to_state, created_at) VALUES (?, ?, ?, ?)`,
		tr.ChallengeID, string(tr.From), string(tr.To), tr.Timestamp)
	return err
}

// ListTransitions returns the audit trail of one challenge, oldest first.
func (s *SQLiteStore) ListTransitions(ctx context.Context, challengeID string) ([]domain.ChallengeTransition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT challenge_id, from_state, to_state, created_at FROM challenge_transitions
		WHERE challenge_id = ? ORDER BY id ASC`, challengeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ChallengeTransition
	for rows.Next() {
		var tr domain.ChallengeTransition
		var from, to string
		if err := rows.Scan(&tr.ChallengeID, &from, &to, &tr.Timestamp); err != nil {
			return nil, err
		}
		tr.From, tr.To = domain.ChallengeState(from), domain.ChallengeState(to)
		out = append(out, tr)
	}
	return out, rows.Err()
}
