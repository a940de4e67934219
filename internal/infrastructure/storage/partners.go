package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/vitos/trade_journal/internal/domain"
)

// PartnerRepository Implementation

const relationshipColumns = `id, inviter_id, invitee_id, status, rules, created_at, accepted_at, ended_at, ended_by`

func (s *SQLiteStore) SaveRelationship(ctx context.Context, rel domain.PartnerRelationship) error {
	rules := rel.Rules
	if rules == nil {
		rules = []domain.PartnerRule{}
	}
	encoded, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("failed to encode rules: %w", err)
	}
	query := `INSERT INTO relationships (id, inviter_id, invitee_id, status, rules, created_at, accepted_at, ended_at, ended_by)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT(id) DO UPDATE SET
			  status=excluded.status,
			  rules=excluded.rules,
			  accepted_at=excluded.accepted_at,
			  ended_at=excluded.ended_at,
			  ended_by=excluded.ended_by
			  WHERE relationships.status != 'ended'`
	_, err = s.db.ExecContext(ctx, query,
		rel.ID, rel.InviterID, rel.InviteeID, string(rel.Status), string(encoded),
		rel.CreatedAt, rel.AcceptedAt, rel.EndedAt, rel.EndedBy)
	return err
}

func scanRelationship(row rowScanner) (domain.PartnerRelationship, error) {
	var rel domain.PartnerRelationship
	var status, rules string
	var accepted, ended sql.NullTime
	if err := row.Scan(&rel.ID, &rel.InviterID, &rel.InviteeID, &status, &rules, &rel.CreatedAt, &accepted, &ended, &rel.EndedBy); err != nil {
		return rel, err
	}
	rel.Status = domain.RelationshipStatus(status)
	if accepted.Valid {
		at := accepted.Time
		rel.AcceptedAt = &at
	}
	if ended.Valid {
		at := ended.Time
		rel.EndedAt = &at
	}
	if err := json.Unmarshal([]byte(rules), &rel.Rules); err != nil {
		return rel, fmt.Errorf("failed to decode rules of %s: %w", rel.ID, err)
	}
	return rel, nil
}

func (s *SQLiteStore) GetRelationship(ctx context.Context, id string) (domain.PartnerRelationship, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+relationshipColumns+` FROM relationships WHERE id = ?`, id)
	rel, err := scanRelationship(row)
	if err != nil {
		return domain.PartnerRelationship{}, notFound(err, "relationship", id)
	}
	return rel, nil
}

func (s *SQLiteStore) FindOpenRelationship(ctx context.Context, traderID string) (*domain.PartnerRelationship, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+relationshipColumns+` FROM relationships
		WHERE (inviter_id = ? OR invitee_id = ?) AND status != 'ended'
		ORDER BY created_at DESC LIMIT 1`, traderID, traderID)
	rel, err := scanRelationship(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

// ListRelationships returns every relationship a trader was part of, newest first.
func (s *SQLiteStore) ListRelationships(ctx context.Context, traderID string) ([]domain.PartnerRelationship, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+relationshipColumns+` FROM relationships
		WHERE inviter_id = ? OR invitee_id = ? ORDER BY created_at DESC`, traderID, traderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PartnerRelationship
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveViolation(ctx context.Context, v domain.RuleViolation) (bool, error) {
	inserted := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM relationships WHERE id = ?`, v.RelationshipID).Scan(&status)
		if err != nil {
			return notFound(err, "relationship", v.RelationshipID)
		}
		if domain.RelationshipStatus(status) == domain.RelationshipEnded {
			return fmt.Errorf("relationship %s ended: %w", v.RelationshipID, domain.ErrInvalidState)
		}

		res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO rule_violations (relationship_id, rule_id, kind, trader_id, day, observed, limit_value)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			v.RelationshipID, v.RuleID, string(v.Kind), v.TraderID, v.Day.String(), v.Observed.String(), v.Limit.String())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		inserted = n > 0
		return nil
	})
	return inserted, err
}

func (s *SQLiteStore) ListViolations(ctx context.Context, relationshipID string) ([]domain.RuleViolation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT relationship_id, rule_id, kind, trader_id, day, observed, limit_value
		FROM rule_violations WHERE relationship_id = ? ORDER BY day ASC, trader_id ASC`, relationshipID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RuleViolation
	for rows.Next() {
		var v domain.RuleViolation
		var kind, day string
		if err := rows.Scan(&v.RelationshipID, &v.RuleID, &kind, &v.TraderID, &day, &v.Observed, &v.Limit); err != nil {
			return nil, err
		}
		v.Kind = domain.PartnerRuleKind(kind)
		if v.Day, err = scanDate(day); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveEvent(ctx context.Context, ev domain.RelationshipEvent) error {
	payload, err := json.Marshal(emptyIfNil(ev.Payload))
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT OR IGNORE INTO relationship_events (id, relationship_id, kind, recipient, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.RelationshipID, string(ev.Kind), ev.Recipient, string(payload), ev.CreatedAt)
	return err
}

// ListEvents returns the events addressed to traderID, newest first.
func (s *SQLiteStore) ListEvents(ctx context.Context, traderID string, limit int) ([]domain.RelationshipEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, relationship_id, kind, recipient, payload, created_at FROM relationship_events
		WHERE recipient = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, traderID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RelationshipEvent
	for rows.Next() {
		var ev domain.RelationshipEvent
		var kind, payload string
		if err := rows.Scan(&ev.ID, &ev.RelationshipID, &kind, &ev.Recipient, &payload, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Kind = domain.EventKind(kind)
		if err := json.Unmarshal([]byte(payload), &ev.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode payload of %s: %w", ev.ID, err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
