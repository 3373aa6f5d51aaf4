package auth

import (
	"errors"
	"testing"
)

func TestUserRepository_CreateAndGet(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)

	user := &User{
		Username:    "alice",
		DisplayName: "Alice",
		Email:       "alice@example.org",
		Role:        RoleEditor,
		IsActive:    true,
	}
	if err := repo.Create(t.Context(), user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if user.ID == "" {
		t.Error("Create() should generate an ID")
	}
	if user.TokenVersion != 1 {
		t.Errorf("TokenVersion = %d, want 1", user.TokenVersion)
	}

	got, err := repo.GetByID(t.Context(), user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Username != "alice" || got.Role != RoleEditor || !got.IsActive {
		t.Errorf("GetByID() = %+v, fields do not match", got)
	}

	byName, err := repo.GetByUsername(t.Context(), "alice")
	if err != nil {
		t.Fatalf("GetByUsername() error = %v", err)
	}
	if byName.ID != user.ID {
		t.Errorf("GetByUsername() ID = %q, want %q", byName.ID, user.ID)
	}
}

func TestUserRepository_DuplicateUsername(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)

	first := &User{Username: "alice", DisplayName: "Alice", Role: RoleViewer, IsActive: true}
	if err := repo.Create(t.Context(), first); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	dup := &User{Username: "alice", DisplayName: "Imposter", Role: RoleViewer, IsActive: true}
	if err := repo.Create(t.Context(), dup); !errors.Is(err, ErrUsernameExists) {
		t.Errorf("Create() error = %v, want ErrUsernameExists", err)
	}
}

func TestUserRepository_GetMissing(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)

	if _, err := repo.GetByID(t.Context(), "usr-missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetByID() error = %v, want ErrUserNotFound", err)
	}
	if _, err := repo.GetByUsername(t.Context(), "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetByUsername() error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_Update(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)

	user := &User{Username: "alice", DisplayName: "Alice", Role: RoleViewer, IsActive: true}
	if err := repo.Create(t.Context(), user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	user.DisplayName = "Alice Cooper"
	user.Role = RoleAdmin
	user.IsActive = false
	if err := repo.Update(t.Context(), user); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := repo.GetByID(t.Context(), user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.DisplayName != "Alice Cooper" || got.Role != RoleAdmin || got.IsActive {
		t.Errorf("Update() did not persist: %+v", got)
	}
	if got.TokenVersion != 1 {
		t.Errorf("Update() changed token version to %d", got.TokenVersion)
	}
}

func TestUserRepository_UpdateMissing(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)

	ghost := &User{ID: "usr-ghost", Username: "ghost", DisplayName: "Ghost", Role: RoleViewer}
	if err := repo.Update(t.Context(), ghost); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Update() error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_ListAndCount(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)

	empty, err := repo.List(t.Context())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("List() on empty db = %d users", len(empty))
	}

	for _, name := range []string{"alice", "bob"} {
		u := &User{Username: name, DisplayName: name, Role: RoleViewer, IsActive: true}
		if err := repo.Create(t.Context(), u); err != nil {
			t.Fatalf("Create(%s) error = %v", name, err)
		}
	}

	users, err := repo.List(t.Context())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(users) != 2 {
		t.Errorf("List() = %d users, want 2", len(users))
	}

	count, err := repo.Count(t.Context())
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 2 {
		t.Errorf("Count() = %d, want 2", count)
	}
}

func TestUserRepository_BumpTokenVersion(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)

	user := &User{Username: "alice", DisplayName: "Alice", Role: RoleViewer, IsActive: true}
	if err := repo.Create(t.Context(), user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	v, err := repo.GetTokenVersion(t.Context(), user.ID)
	if err != nil {
		t.Fatalf("GetTokenVersion() error = %v", err)
	}
	if v != 1 {
		t.Fatalf("GetTokenVersion() = %d, want 1", v)
	}

	if err := repo.BumpTokenVersion(t.Context(), user.ID); err != nil {
		t.Fatalf("BumpTokenVersion() error = %v", err)
	}

	v, err = repo.GetTokenVersion(t.Context(), user.ID)
	if err != nil {
		t.Fatalf("GetTokenVersion() error = %v", err)
	}
	if v != 2 {
		t.Errorf("GetTokenVersion() after bump = %d, want 2", v)
	}

	if err := repo.BumpTokenVersion(t.Context(), "usr-ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("BumpTokenVersion(missing) error = %v, want ErrUserNotFound", err)
	}
}
