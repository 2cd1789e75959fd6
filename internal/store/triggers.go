package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"factotum/pkg/factotum"
)

// triggerRow mirrors one triggers table row with nullable columns decoded.
type triggerRow struct {
	id            int64
	pattern       string
	isAlias       bool
	aliasOf       sql.NullInt64
	cooldownUntil time.Time
}

// Evaluate returns at most one armed trigger match for the message text.
//
// Candidates are scanned in id order, so when several triggers match the
// first-registered one wins. Triggers under cooldown are skipped entirely.
func (s *Store) Evaluate(ctx context.Context, messageText string) (*factotum.TriggerMatch, bool, error) {
	candidates, err := s.listTriggers(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("evaluate triggers: %w", err)
	}

	now := s.now()
	for _, candidate := range candidates {
		if !candidate.cooldownUntil.IsZero() && now.Before(candidate.cooldownUntil) {
			continue
		}

		compiled, err := s.compile(candidate.pattern)
		if err != nil {
			return nil, false, fmt.Errorf("evaluate trigger %d: %w", candidate.id, err)
		}
		groups := compiled.FindStringSubmatch(messageText)
		if groups == nil {
			continue
		}

		baseID := candidate.id
		if candidate.isAlias && candidate.aliasOf.Valid {
			baseID = candidate.aliasOf.Int64
		}
		factoid, found, err := s.loadFactoid(ctx, baseID)
		if err != nil {
			return nil, false, fmt.Errorf("evaluate trigger %d: %w", candidate.id, err)
		}
		if !found {
			continue
		}

		// A declared group wins even when it matched the empty string; only
		// patterns without groups fall back to the full match.
		capture := groups[0]
		if len(groups) > 1 {
			capture = groups[1]
		}

		return &factotum.TriggerMatch{
			Trigger: factotum.Trigger{
				ID:            candidate.id,
				Pattern:       candidate.pattern,
				IsAlias:       candidate.isAlias,
				CooldownUntil: candidate.cooldownUntil,
			},
			Factoid: factoid,
			Matched: groups[0],
			Capture: capture,
		}, true, nil
	}

	return nil, false, nil
}

// SaveFactoid registers or updates a base trigger with its response text.
// Re-learning an alias pattern converts it back into a base trigger.
func (s *Store) SaveFactoid(ctx context.Context, pattern, text, author string) error {
	if _, err := s.compile(pattern); err != nil {
		return fmt.Errorf("save factoid: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save factoid: begin: %w", err)
	}
	defer tx.Rollback()

	now := s.now().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO triggers (pattern, is_alias, alias_of, created_at)
		VALUES (?, 0, NULL, ?)
		ON CONFLICT(pattern) DO UPDATE SET is_alias = 0, alias_of = NULL
	`, pattern, now); err != nil {
		return fmt.Errorf("save factoid: upsert trigger: %w", err)
	}

	var triggerID int64
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM triggers WHERE pattern = ?`, pattern,
	).Scan(&triggerID); err != nil {
		return fmt.Errorf("save factoid: resolve trigger id: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO factoids (trigger_id, text, author, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(trigger_id) DO UPDATE SET text = excluded.text, author = excluded.author
	`, triggerID, text, author, now); err != nil {
		return fmt.Errorf("save factoid: upsert factoid: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save factoid: commit: %w", err)
	}

	return nil
}

// SaveAlias registers a trigger that shares the factoid of whichever existing
// trigger matches targetText. Cooldowns are ignored during target resolution.
func (s *Store) SaveAlias(ctx context.Context, pattern, targetText string) error {
	if _, err := s.compile(pattern); err != nil {
		return fmt.Errorf("save alias: %w", err)
	}

	candidates, err := s.listTriggers(ctx)
	if err != nil {
		return fmt.Errorf("save alias: %w", err)
	}

	baseID := int64(0)
	for _, candidate := range candidates {
		compiled, err := s.compile(candidate.pattern)
		if err != nil {
			return fmt.Errorf("save alias: %w", err)
		}
		if !compiled.MatchString(targetText) {
			continue
		}
		baseID = candidate.id
		if candidate.isAlias && candidate.aliasOf.Valid {
			baseID = candidate.aliasOf.Int64
		}
		break
	}
	if baseID == 0 {
		return fmt.Errorf("save alias %q: %w", pattern, factotum.ErrAliasTargetNotFound)
	}

	now := s.now().Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO triggers (pattern, is_alias, alias_of, created_at)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(pattern) DO UPDATE SET is_alias = 1, alias_of = excluded.alias_of
	`, pattern, baseID, now); err != nil {
		return fmt.Errorf("save alias: upsert trigger: %w", err)
	}

	return nil
}

// SetCooldown suppresses one trigger until the given time.
func (s *Store) SetCooldown(ctx context.Context, triggerID int64, until time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE triggers SET cooldown_until = ? WHERE id = ?`,
		until.UTC().Format(time.RFC3339Nano), triggerID,
	)
	if err != nil {
		return fmt.Errorf("set cooldown for trigger %d: %w", triggerID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set cooldown for trigger %d: %w", triggerID, err)
	}
	if affected == 0 {
		return fmt.Errorf("set cooldown for trigger %d: unknown trigger", triggerID)
	}

	return nil
}

func (s *Store) listTriggers(ctx context.Context) ([]triggerRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pattern, is_alias, alias_of, cooldown_until
		FROM triggers
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	defer rows.Close()

	candidates := make([]triggerRow, 0)
	for rows.Next() {
		var row triggerRow
		var cooldown sql.NullString
		if err := rows.Scan(&row.id, &row.pattern, &row.isAlias, &row.aliasOf, &cooldown); err != nil {
			return nil, fmt.Errorf("scan trigger row: %w", err)
		}
		if cooldown.Valid && cooldown.String != "" {
			parsed, err := time.Parse(time.RFC3339Nano, cooldown.String)
			if err != nil {
				return nil, fmt.Errorf("parse cooldown for trigger %d: %w", row.id, err)
			}
			row.cooldownUntil = parsed
		}
		candidates = append(candidates, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}

	return candidates, nil
}

func (s *Store) loadFactoid(ctx context.Context, triggerID int64) (factotum.Factoid, bool, error) {
	var factoid factotum.Factoid
	err := s.db.QueryRowContext(ctx,
		`SELECT text, author FROM factoids WHERE trigger_id = ?`, triggerID,
	).Scan(&factoid.Text, &factoid.Author)
	if errors.Is(err, sql.ErrNoRows) {
		return factotum.Factoid{}, false, nil
	}
	if err != nil {
		return factotum.Factoid{}, false, fmt.Errorf("load factoid for trigger %d: %w", triggerID, err)
	}

	return factoid, true, nil
}

var _ factotum.TriggerStore = (*Store)(nil)
