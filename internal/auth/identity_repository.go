package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IdentityRepository persists identities and their credentials.
//
// Multi-row operations (account creation, password changes) are each one
// transaction: a user row never exists without its identity, and a password
// change never lands without the token-version bump that revokes old
// sessions.
type IdentityRepository interface {
	CreateLocalUser(ctx context.Context, user *User, passwordHash string) error
	CreateDirectoryUser(ctx context.Context, user *User, providerID string) error
	EnsureDirectoryIdentity(ctx context.Context, userID, providerID string) error
	GetLocalCredential(ctx context.Context, username string) (*User, string, error)
	ChangePassword(ctx context.Context, userID, newHash string) error
	CreateResetToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	ConsumeResetToken(ctx context.Context, tokenHash, newHash string) (string, error)
}

// SQLiteIdentityRepository implements IdentityRepository using SQLite.
type SQLiteIdentityRepository struct {
	db *sql.DB
}

// NewIdentityRepository creates a new SQLite-backed identity repository.
func NewIdentityRepository(db *sql.DB) *SQLiteIdentityRepository {
	return &SQLiteIdentityRepository{db: db}
}

// CreateLocalUser creates a user, its local identity, and its credential in
// one transaction. The identity's provider ID is the username.
func (r *SQLiteIdentityRepository) CreateLocalUser(ctx context.Context, user *User, passwordHash string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	if err := insertUser(ctx, tx, user); err != nil {
		return err
	}

	identityID, err := insertIdentity(ctx, tx, user.ID, ProviderLocal, user.Username)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO local_credentials (identity_id, password_hash, updated_at) VALUES (?, ?, ?)",
		identityID, passwordHash, now,
	); err != nil {
		return fmt.Errorf("creating credential: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing user creation: %w", err)
	}
	return nil
}

// CreateDirectoryUser creates a user and its directory identity in one
// transaction. The provider ID is the directory entry's distinguished name.
func (r *SQLiteIdentityRepository) CreateDirectoryUser(ctx context.Context, user *User, providerID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	if err := insertUser(ctx, tx, user); err != nil {
		return err
	}

	if _, err := insertIdentity(ctx, tx, user.ID, ProviderDirectory, providerID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing user creation: %w", err)
	}
	return nil
}

// EnsureDirectoryIdentity creates a directory identity row for the user if
// one does not already exist. Idempotent.
func (r *SQLiteIdentityRepository) EnsureDirectoryIdentity(ctx context.Context, userID, providerID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO identities (id, user_id, provider, provider_id, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		"idn-"+uuid.NewString()[:8], userID, ProviderDirectory, providerID, now,
	)
	if err != nil {
		return fmt.Errorf("ensuring directory identity: %w", err)
	}
	return nil
}

// GetLocalCredential looks up a user by username through their local
// identity and returns the user together with the stored password hash.
// Returns ErrUserNotFound when no local identity exists for the username.
func (r *SQLiteIdentityRepository) GetLocalCredential(ctx context.Context, username string) (*User, string, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.display_name, u.email, u.role, u.token_version, u.is_active, u.created_at, u.updated_at,
		       lc.password_hash
		FROM users u
		JOIN identities i ON i.user_id = u.id AND i.provider = ?
		JOIN local_credentials lc ON lc.identity_id = i.id
		WHERE u.username = ?`,
		ProviderLocal, username,
	)

	var u User
	var email sql.NullString
	var role string
	var isActive int
	var createdAt, updatedAt, hash string

	err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &email,
		&role, &u.TokenVersion, &isActive, &createdAt, &updatedAt, &hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", ErrUserNotFound
		}
		return nil, "", fmt.Errorf("loading local credential: %w", err)
	}

	u.Role = Role(role)
	u.IsActive = isActive != 0
	if email.Valid {
		u.Email = email.String
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	u.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &u, hash, nil
}

// ChangePassword replaces the user's password hash, bumps the token version,
// and deletes any outstanding reset tokens, all in one transaction.
func (r *SQLiteIdentityRepository) ChangePassword(ctx context.Context, userID, newHash string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	if err := applyPasswordChange(ctx, tx, userID, newHash); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing password change: %w", err)
	}
	return nil
}

// CreateResetToken stores a hashed single-use password reset token.
func (r *SQLiteIdentityRepository) CreateResetToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		"rst-"+uuid.NewString()[:8], userID, tokenHash,
		expiresAt.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("creating reset token: %w", err)
	}
	return nil
}

// ConsumeResetToken applies a password reset: it resolves the token, applies
// the new hash, bumps the token version, and deletes the consumed token, all
// in one transaction. Returns the affected user's ID so the caller can
// invalidate its cached token version.
func (r *SQLiteIdentityRepository) ConsumeResetToken(ctx context.Context, tokenHash, newHash string) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	var userID, expiresAt string
	err = tx.QueryRowContext(ctx,
		"SELECT user_id, expires_at FROM password_reset_tokens WHERE token_hash = ?",
		tokenHash,
	).Scan(&userID, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrResetTokenInvalid
		}
		return "", fmt.Errorf("resolving reset token: %w", err)
	}

	expiry, err := time.Parse(time.RFC3339, expiresAt)
	if err != nil || time.Now().After(expiry) {
		return "", ErrResetTokenInvalid
	}

	if err := applyPasswordChange(ctx, tx, userID, newHash); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing password reset: %w", err)
	}
	return userID, nil
}

// insertUser inserts a user row inside an open transaction.
func insertUser(ctx context.Context, tx *sql.Tx, user *User) error {
	if user.ID == "" {
		user.ID = "usr-" + uuid.NewString()[:8]
	}
	if user.TokenVersion == 0 {
		user.TokenVersion = 1
	}

	now := time.Now().UTC().Format(time.RFC3339)
	user.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	user.UpdatedAt = user.CreatedAt

	_, err := tx.ExecContext(ctx,
		`INSERT INTO users (id, username, display_name, email, role, token_version, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.DisplayName, nullString(user.Email),
		string(user.Role), user.TokenVersion, boolToInt(user.IsActive), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUsernameExists
		}
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

// insertIdentity inserts an identity row inside an open transaction and
// returns its generated ID.
func insertIdentity(ctx context.Context, tx *sql.Tx, userID, provider, providerID string) (string, error) {
	id := "idn-" + uuid.NewString()[:8]
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := tx.ExecContext(ctx,
		`INSERT INTO identities (id, user_id, provider, provider_id, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, userID, provider, providerID, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", ErrIdentityExists
		}
		return "", fmt.Errorf("creating identity: %w", err)
	}
	return id, nil
}

// applyPasswordChange updates the credential hash, bumps the token version,
// and clears outstanding reset tokens inside an open transaction.
func applyPasswordChange(ctx context.Context, tx *sql.Tx, userID, newHash string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := tx.ExecContext(ctx, `
		UPDATE local_credentials SET password_hash = ?, updated_at = ?
		WHERE identity_id = (SELECT id FROM identities WHERE user_id = ? AND provider = ?)`,
		newHash, now, userID, ProviderLocal,
	)
	if err != nil {
		return fmt.Errorf("updating credential: %w", err)
	}
	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrUserNotFound
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE users SET token_version = token_version + 1, updated_at = ? WHERE id = ?",
		now, userID,
	); err != nil {
		return fmt.Errorf("bumping token version: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM password_reset_tokens WHERE user_id = ?", userID,
	); err != nil {
		return fmt.Errorf("clearing reset tokens: %w", err)
	}

	return nil
}
