package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Tick records one occurrence of the named event with optional JSON data.
func (s *Store) Tick(ctx context.Context, name string, data json.RawMessage) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: statistics name is required", ErrInvalidArgument)
	}
	if len(data) > 0 && !json.Valid(data) {
		return fmt.Errorf("%w: statistics data for %q is not valid JSON", ErrInvalidArgument, name)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO statistics (name, data, created_at) VALUES (?, ?, ?)`,
		name, string(data), s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("store: tick %q: %w", name, err)
	}
	return nil
}

// StatSummary aggregates the ticks recorded under one name.
type StatSummary struct {
	Name   string `json:"name"`
	Count  int64  `json:"count"`
	LastAt string `json:"lastAt"`
}

// Summary returns one entry per recorded name, ordered by name.
func (s *Store) Summary(ctx context.Context) ([]StatSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, COUNT(*), MAX(created_at) FROM statistics GROUP BY name ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("store: summary: %w", err)
	}
	defer rows.Close()

	out := make([]StatSummary, 0)
	for rows.Next() {
		var sum StatSummary
		if err := rows.Scan(&sum.Name, &sum.Count, &sum.LastAt); err != nil {
			return nil, fmt.Errorf("store: summary scan: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}
