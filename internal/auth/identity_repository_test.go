package auth

import (
	"errors"
	"testing"
	"time"
)

func TestIdentityRepository_CreateLocalUser(t *testing.T) {
	db := testDB(t)
	repo := NewIdentityRepository(db)

	user := &User{Username: "alice", DisplayName: "Alice", Role: RoleViewer, IsActive: true}
	if err := repo.CreateLocalUser(t.Context(), user, "$argon2id$fake"); err != nil {
		t.Fatalf("CreateLocalUser() error = %v", err)
	}

	got, hash, err := repo.GetLocalCredential(t.Context(), "alice")
	if err != nil {
		t.Fatalf("GetLocalCredential() error = %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("user ID = %q, want %q", got.ID, user.ID)
	}
	if hash != "$argon2id$fake" {
		t.Errorf("hash = %q, want the stored hash", hash)
	}
}

func TestIdentityRepository_CreateLocalUser_DuplicateRollsBack(t *testing.T) {
	db := testDB(t)
	repo := NewIdentityRepository(db)

	first := &User{Username: "alice", DisplayName: "Alice", Role: RoleViewer, IsActive: true}
	if err := repo.CreateLocalUser(t.Context(), first, "hash1"); err != nil {
		t.Fatalf("CreateLocalUser() error = %v", err)
	}

	dup := &User{Username: "alice", DisplayName: "Imposter", Role: RoleViewer, IsActive: true}
	if err := repo.CreateLocalUser(t.Context(), dup, "hash2"); !errors.Is(err, ErrUsernameExists) {
		t.Fatalf("CreateLocalUser() error = %v, want ErrUsernameExists", err)
	}

	// The failed transaction must not have left partial rows behind.
	var identities int
	if err := db.QueryRow("SELECT COUNT(*) FROM identities").Scan(&identities); err != nil {
		t.Fatalf("counting identities: %v", err)
	}
	if identities != 1 {
		t.Errorf("identities = %d, want 1", identities)
	}
}

func TestIdentityRepository_CreateDirectoryUser(t *testing.T) {
	db := testDB(t)
	repo := NewIdentityRepository(db)

	user := &User{Username: "bob", DisplayName: "Bob", Email: "bob@example.org", Role: RoleEditor, IsActive: true}
	dn := "uid=bob,ou=people,dc=example,dc=org"
	if err := repo.CreateDirectoryUser(t.Context(), user, dn); err != nil {
		t.Fatalf("CreateDirectoryUser() error = %v", err)
	}

	var provider, providerID string
	err := db.QueryRow("SELECT provider, provider_id FROM identities WHERE user_id = ?", user.ID).
		Scan(&provider, &providerID)
	if err != nil {
		t.Fatalf("querying identity: %v", err)
	}
	if provider != ProviderDirectory || providerID != dn {
		t.Errorf("identity = (%q, %q), want (directory, %q)", provider, providerID, dn)
	}

	// A directory user has no local credential.
	if _, _, err := repo.GetLocalCredential(t.Context(), "bob"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetLocalCredential() error = %v, want ErrUserNotFound", err)
	}
}

func TestIdentityRepository_EnsureDirectoryIdentity_Idempotent(t *testing.T) {
	db := testDB(t)
	repo := NewIdentityRepository(db)

	user := &User{Username: "bob", DisplayName: "Bob", Role: RoleViewer, IsActive: true}
	dn := "uid=bob,ou=people,dc=example,dc=org"
	if err := repo.CreateDirectoryUser(t.Context(), user, dn); err != nil {
		t.Fatalf("CreateDirectoryUser() error = %v", err)
	}

	for range 3 {
		if err := repo.EnsureDirectoryIdentity(t.Context(), user.ID, dn); err != nil {
			t.Fatalf("EnsureDirectoryIdentity() error = %v", err)
		}
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM identities WHERE user_id = ?", user.ID).Scan(&count); err != nil {
		t.Fatalf("counting identities: %v", err)
	}
	if count != 1 {
		t.Errorf("identities = %d, want 1 (no duplicates)", count)
	}
}

func TestIdentityRepository_ChangePassword(t *testing.T) {
	db := testDB(t)
	repo := NewIdentityRepository(db)
	users := NewUserRepository(db)

	user := seedLocalUser(t, db, "alice", RoleViewer)

	if err := repo.CreateResetToken(t.Context(), user.ID, "old-reset-hash", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("CreateResetToken() error = %v", err)
	}

	if err := repo.ChangePassword(t.Context(), user.ID, "new-hash"); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}

	_, hash, err := repo.GetLocalCredential(t.Context(), "alice")
	if err != nil {
		t.Fatalf("GetLocalCredential() error = %v", err)
	}
	if hash != "new-hash" {
		t.Errorf("hash = %q, want new-hash", hash)
	}

	// The change revokes outstanding sessions and reset tokens atomically.
	v, err := users.GetTokenVersion(t.Context(), user.ID)
	if err != nil {
		t.Fatalf("GetTokenVersion() error = %v", err)
	}
	if v != 2 {
		t.Errorf("token version = %d, want 2", v)
	}

	var tokens int
	if err := db.QueryRow("SELECT COUNT(*) FROM password_reset_tokens WHERE user_id = ?", user.ID).Scan(&tokens); err != nil {
		t.Fatalf("counting reset tokens: %v", err)
	}
	if tokens != 0 {
		t.Errorf("reset tokens = %d, want 0", tokens)
	}
}

func TestIdentityRepository_ChangePassword_NoLocalIdentity(t *testing.T) {
	db := testDB(t)
	repo := NewIdentityRepository(db)

	user := &User{Username: "bob", DisplayName: "Bob", Role: RoleViewer, IsActive: true}
	if err := repo.CreateDirectoryUser(t.Context(), user, "uid=bob,dc=example,dc=org"); err != nil {
		t.Fatalf("CreateDirectoryUser() error = %v", err)
	}

	if err := repo.ChangePassword(t.Context(), user.ID, "new-hash"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("ChangePassword() error = %v, want ErrUserNotFound", err)
	}
}

func TestIdentityRepository_ConsumeResetToken(t *testing.T) {
	db := testDB(t)
	repo := NewIdentityRepository(db)
	users := NewUserRepository(db)

	user := seedLocalUser(t, db, "alice", RoleViewer)

	if err := repo.CreateResetToken(t.Context(), user.ID, "reset-hash", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("CreateResetToken() error = %v", err)
	}

	userID, err := repo.ConsumeResetToken(t.Context(), "reset-hash", "reset-password-hash")
	if err != nil {
		t.Fatalf("ConsumeResetToken() error = %v", err)
	}
	if userID != user.ID {
		t.Errorf("ConsumeResetToken() userID = %q, want %q", userID, user.ID)
	}

	_, hash, err := repo.GetLocalCredential(t.Context(), "alice")
	if err != nil {
		t.Fatalf("GetLocalCredential() error = %v", err)
	}
	if hash != "reset-password-hash" {
		t.Errorf("hash = %q, want reset-password-hash", hash)
	}

	v, err := users.GetTokenVersion(t.Context(), user.ID)
	if err != nil {
		t.Fatalf("GetTokenVersion() error = %v", err)
	}
	if v != 2 {
		t.Errorf("token version = %d, want 2", v)
	}

	// Single use: the same token cannot be consumed twice.
	if _, err := repo.ConsumeResetToken(t.Context(), "reset-hash", "another-hash"); !errors.Is(err, ErrResetTokenInvalid) {
		t.Errorf("second ConsumeResetToken() error = %v, want ErrResetTokenInvalid", err)
	}
}

func TestIdentityRepository_ConsumeResetToken_Expired(t *testing.T) {
	db := testDB(t)
	repo := NewIdentityRepository(db)

	user := seedLocalUser(t, db, "alice", RoleViewer)

	if err := repo.CreateResetToken(t.Context(), user.ID, "stale-hash", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("CreateResetToken() error = %v", err)
	}

	if _, err := repo.ConsumeResetToken(t.Context(), "stale-hash", "new-hash"); !errors.Is(err, ErrResetTokenInvalid) {
		t.Errorf("ConsumeResetToken() error = %v, want ErrResetTokenInvalid", err)
	}

	// The expired token must not have changed the password.
	_, hash, err := repo.GetLocalCredential(t.Context(), "alice")
	if err != nil {
		t.Fatalf("GetLocalCredential() error = %v", err)
	}
	if hash == "new-hash" {
		t.Error("expired reset token must not change the password")
	}
}

func TestIdentityRepository_ConsumeResetToken_Unknown(t *testing.T) {
	db := testDB(t)
	repo := NewIdentityRepository(db)

	if _, err := repo.ConsumeResetToken(t.Context(), "no-such-hash", "new-hash"); !errors.Is(err, ErrResetTokenInvalid) {
		t.Errorf("ConsumeResetToken() error = %v, want ErrResetTokenInvalid", err)
	}
}
