package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"factotum/pkg/factotum"
)

// SampleByType returns one uniformly random word of the given type.
func (s *Store) SampleByType(ctx context.Context, wordType factotum.WordType) (string, error) {
	var word string
	err := s.db.QueryRowContext(ctx,
		`SELECT word FROM words WHERE type = ? ORDER BY RANDOM() LIMIT 1`,
		string(wordType),
	).Scan(&word)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("sample word type %s: %w", wordType, factotum.ErrNoWordOfType)
	}
	if err != nil {
		return "", fmt.Errorf("sample word type %s: %w", wordType, err)
	}

	return word, nil
}

// ListTypes enumerates every registered type tag.
func (s *Store) ListTypes(ctx context.Context) ([]factotum.WordType, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT type FROM words ORDER BY type`)
	if err != nil {
		return nil, fmt.Errorf("list word types: %w", err)
	}
	defer rows.Close()

	types := make([]factotum.WordType, 0)
	for rows.Next() {
		var wordType string
		if err := rows.Scan(&wordType); err != nil {
			return nil, fmt.Errorf("scan word type: %w", err)
		}
		types = append(types, factotum.WordType(wordType))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list word types: %w", err)
	}

	return types, nil
}

// CreateIfAbsent registers a (type, word) pair; duplicates are silently kept.
func (s *Store) CreateIfAbsent(ctx context.Context, wordType factotum.WordType, word string) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO words (type, word) VALUES (?, ?)`,
		string(wordType), word,
	); err != nil {
		return fmt.Errorf("create word %q of type %s: %w", word, wordType, err)
	}

	return nil
}

var _ factotum.WordStore = (*Store)(nil)
