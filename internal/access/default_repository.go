package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/thornfield/gatehouse/internal/auth"
)

// DefaultRepository persists per-role section defaults. A missing row is
// the "auto" state.
type DefaultRepository interface {
	Get(ctx context.Context, role auth.Role, section Section) (DefaultState, error)
	List(ctx context.Context) ([]SectionDefault, error)
	Set(ctx context.Context, def *SectionDefault) error
}

// SQLiteDefaultRepository implements DefaultRepository using SQLite.
type SQLiteDefaultRepository struct {
	db *sql.DB
}

// NewDefaultRepository creates a new SQLite-backed default repository.
func NewDefaultRepository(db *sql.DB) *SQLiteDefaultRepository {
	return &SQLiteDefaultRepository{db: db}
}

// Get returns the configured state for (role, section), DefaultAuto when no
// row exists.
func (r *SQLiteDefaultRepository) Get(ctx context.Context, role auth.Role, section Section) (DefaultState, error) {
	var state string
	err := r.db.QueryRowContext(ctx,
		"SELECT state FROM section_defaults WHERE role = ? AND section = ?",
		string(role), string(section),
	).Scan(&state)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DefaultAuto, nil
		}
		return "", fmt.Errorf("reading section default: %w", err)
	}
	return DefaultState(state), nil
}

// List returns every configured section default.
func (r *SQLiteDefaultRepository) List(ctx context.Context) ([]SectionDefault, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT role, section, state, updated_by, updated_at FROM section_defaults ORDER BY role, section")
	if err != nil {
		return nil, fmt.Errorf("listing section defaults: %w", err)
	}
	defer rows.Close()

	var defaults []SectionDefault
	for rows.Next() {
		var d SectionDefault
		var role, section, state string
		var updatedBy sql.NullString
		var updatedAt string

		if err := rows.Scan(&role, &section, &state, &updatedBy, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning section default: %w", err)
		}

		d.Role = auth.Role(role)
		d.Section = Section(section)
		d.State = DefaultState(state)
		if updatedBy.Valid {
			d.UpdatedBy = updatedBy.String
		}
		d.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

		defaults = append(defaults, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating section defaults: %w", err)
	}

	if defaults == nil {
		defaults = []SectionDefault{}
	}
	return defaults, nil
}

// Set writes the state for (role, section). Setting DefaultAuto deletes the
// row, since auto is expressed by absence.
func (r *SQLiteDefaultRepository) Set(ctx context.Context, def *SectionDefault) error {
	if def.State == DefaultAuto {
		_, err := r.db.ExecContext(ctx,
			"DELETE FROM section_defaults WHERE role = ? AND section = ?",
			string(def.Role), string(def.Section),
		)
		if err != nil {
			return fmt.Errorf("clearing section default: %w", err)
		}
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	def.UpdatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO section_defaults (role, section, state, updated_by, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (role, section) DO UPDATE SET
			state = excluded.state,
			updated_by = excluded.updated_by,
			updated_at = excluded.updated_at`,
		string(def.Role), string(def.Section), string(def.State),
		nullString(def.UpdatedBy), now,
	)
	if err != nil {
		return fmt.Errorf("setting section default: %w", err)
	}
	return nil
}
