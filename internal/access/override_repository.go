package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// OverrideRepository persists per-user section overrides. A missing row is
// the "auto" state, reported as a nil Override with no error.
type OverrideRepository interface {
	Get(ctx context.Context, userID string, section Section) (*Override, error)
	ListForUser(ctx context.Context, userID string) ([]Override, error)
	Set(ctx context.Context, override *Override) error
	Delete(ctx context.Context, userID string, section Section) error
}

// SQLiteOverrideRepository implements OverrideRepository using SQLite.
type SQLiteOverrideRepository struct {
	db *sql.DB
}

// NewOverrideRepository creates a new SQLite-backed override repository.
func NewOverrideRepository(db *sql.DB) *SQLiteOverrideRepository {
	return &SQLiteOverrideRepository{db: db}
}

// Get returns the override for (user, section), or nil when none exists.
func (r *SQLiteOverrideRepository) Get(ctx context.Context, userID string, section Section) (*Override, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT user_id, section, enabled, created_by, created_at FROM section_overrides WHERE user_id = ? AND section = ?",
		userID, string(section),
	)

	o, err := scanOverride(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

// ListForUser returns all overrides for a user.
func (r *SQLiteOverrideRepository) ListForUser(ctx context.Context, userID string) ([]Override, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT user_id, section, enabled, created_by, created_at FROM section_overrides WHERE user_id = ? ORDER BY section",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing overrides: %w", err)
	}
	defer rows.Close()

	var overrides []Override
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		overrides = append(overrides, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating overrides: %w", err)
	}

	if overrides == nil {
		overrides = []Override{}
	}
	return overrides, nil
}

// Set creates or replaces the override for (user, section).
func (r *SQLiteOverrideRepository) Set(ctx context.Context, override *Override) error {
	now := time.Now().UTC().Format(time.RFC3339)
	override.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO section_overrides (user_id, section, enabled, created_by, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, section) DO UPDATE SET
			enabled = excluded.enabled,
			created_by = excluded.created_by,
			created_at = excluded.created_at`,
		override.UserID, string(override.Section), boolToInt(override.Enabled),
		nullString(override.CreatedBy), now,
	)
	if err != nil {
		return fmt.Errorf("setting override: %w", err)
	}
	return nil
}

// Delete removes an override, returning the (user, section) pair to auto.
// Deleting an absent override is not an error.
func (r *SQLiteOverrideRepository) Delete(ctx context.Context, userID string, section Section) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM section_overrides WHERE user_id = ? AND section = ?",
		userID, string(section),
	)
	if err != nil {
		return fmt.Errorf("deleting override: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOverride(s scanner) (*Override, error) {
	var o Override
	var section string
	var enabled int
	var createdBy sql.NullString
	var createdAt string

	err := s.Scan(&o.UserID, &section, &enabled, &createdBy, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning override: %w", err)
	}

	o.Section = Section(section)
	o.Enabled = enabled != 0
	if createdBy.Valid {
		o.CreatedBy = createdBy.String
	}
	o.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	return &o, nil
}

// Helper functions.

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
