package access

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/thornfield/gatehouse/internal/auth"
)

// testDB creates a temporary SQLite database with the access schema applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "access-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schemaSQL := `
		CREATE TABLE users (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			display_name  TEXT NOT NULL,
			email         TEXT,
			role          TEXT NOT NULL DEFAULT 'viewer',
			token_version INTEGER NOT NULL DEFAULT 1,
			is_active     INTEGER NOT NULL DEFAULT 1,
			created_at    TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at    TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE TABLE section_overrides (
			user_id    TEXT NOT NULL,
			section    TEXT NOT NULL,
			enabled    INTEGER NOT NULL,
			created_by TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			PRIMARY KEY (user_id, section),
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY (created_by) REFERENCES users(id) ON DELETE SET NULL
		) STRICT;

		CREATE TABLE section_defaults (
			role       TEXT NOT NULL,
			section    TEXT NOT NULL,
			state      TEXT NOT NULL,
			updated_by TEXT,
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			PRIMARY KEY (role, section)
		) STRICT;

		INSERT INTO section_defaults (role, section, state) VALUES ('admin', 'security', 'enabled');
	`
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("applying access schema: %v", err)
	}

	return db
}

// seedUser inserts a user row and returns it.
func seedUser(t *testing.T, db *sql.DB, username string, role auth.Role, active bool) *auth.User {
	t.Helper()

	user := &auth.User{
		Username:    username,
		DisplayName: username,
		Role:        role,
		IsActive:    active,
	}
	if err := auth.NewUserRepository(db).Create(t.Context(), user); err != nil {
		t.Fatalf("creating test user %s: %v", username, err)
	}
	return user
}

// auditRecord is one captured audit call.
type auditRecord struct {
	action string
	result string
}

// fakeAuditor captures audit calls.
type fakeAuditor struct {
	mu      sync.Mutex
	records []auditRecord
}

func (a *fakeAuditor) Record(_ context.Context, action, _, _, _, result string, _ map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, auditRecord{action: action, result: result})
}

func (a *fakeAuditor) last(t *testing.T) auditRecord {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.records) == 0 {
		t.Fatal("no audit records captured")
	}
	return a.records[len(a.records)-1]
}

// newTestService wires a service over a fresh database.
func newTestService(t *testing.T) (*Service, *sql.DB, *fakeAuditor) {
	t.Helper()

	db := testDB(t)
	audit := &fakeAuditor{}
	svc := NewService(
		NewOverrideRepository(db),
		NewDefaultRepository(db),
		auth.NewUserRepository(db),
		audit,
	)
	return svc, db, audit
}
