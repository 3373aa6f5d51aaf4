package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/thornfield/gatehouse/internal/access"
	"github.com/thornfield/gatehouse/internal/audit"
	"github.com/thornfield/gatehouse/internal/auth"
	"github.com/thornfield/gatehouse/internal/infrastructure/config"
	"github.com/thornfield/gatehouse/internal/infrastructure/logging"
)

// testPassword is the password every seeded test user gets.
const testPassword = "test-password"

// testDB creates a temporary SQLite database with the full schema applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "api-test-*.db")
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

		CREATE TABLE identities (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			provider    TEXT NOT NULL,
			provider_id TEXT NOT NULL,
			created_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			UNIQUE (provider, provider_id),
			UNIQUE (user_id, provider),
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		) STRICT;

		CREATE TABLE local_credentials (
			identity_id   TEXT PRIMARY KEY,
			password_hash TEXT NOT NULL,
			updated_at    TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			FOREIGN KEY (identity_id) REFERENCES identities(id) ON DELETE CASCADE
		) STRICT;

		CREATE TABLE password_reset_tokens (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			token_hash TEXT NOT NULL UNIQUE,
			expires_at TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
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

		CREATE TABLE audit_logs (
			id          TEXT PRIMARY KEY,
			action      TEXT NOT NULL,
			target_type TEXT NOT NULL,
			target_id   TEXT,
			user_id     TEXT,
			result      TEXT NOT NULL,
			metadata    TEXT,
			created_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
	`
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("applying schema: %v", err)
	}

	return db
}

// testEnv bundles a wired server with the handles tests need to poke at
// state behind the API's back.
type testEnv struct {
	srv       *Server
	router    http.Handler
	db        *sql.DB
	auditRepo audit.Repository
}

// newTestEnv wires a full server over a fresh database. Directory
// authentication is disabled and the hasher runs at minimal cost.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testDB(t)
	logger := &logging.Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	users := auth.NewUserRepository(db)
	identities := auth.NewIdentityRepository(db)
	auditRepo := audit.NewRepository(db)
	recorder := audit.NewRecorder(auditRepo, nil, logger.Logger)

	tokens, err := auth.NewTokenService("unit-test-root-key-0123456789abcdef", time.Hour)
	if err != nil {
		t.Fatalf("creating token service: %v", err)
	}

	srv, err := New(Deps{
		Config:     config.APIConfig{Host: "127.0.0.1", Port: 0},
		Logger:     logger,
		Users:      users,
		Identities: identities,
		Tokens:     tokens,
		Versions:   auth.NewVersionCache(users, time.Minute),
		Resolver: auth.NewStrategyResolver(config.StrategyLocalOnly,
			auth.NewLocalVerifier(identities), nil, recorder, logger.Logger),
		Hasher:    auth.NewPasswordHasher(1, 16*1024, 1),
		Access:    access.NewService(access.NewOverrideRepository(db), access.NewDefaultRepository(db), users, recorder),
		Audit:     recorder,
		AuditRepo: auditRepo,
		TokenTTL:  time.Hour,
		Version:   "test",
	})
	if err != nil {
		t.Fatalf("creating server: %v", err)
	}

	return &testEnv{
		srv:       srv,
		router:    srv.buildRouter(),
		db:        db,
		auditRepo: auditRepo,
	}
}

// seedLocalUser creates a user with a local credential. The password is
// always testPassword.
func (e *testEnv) seedLocalUser(t *testing.T, username string, role auth.Role) *auth.User {
	t.Helper()

	hash, err := auth.NewPasswordHasher(1, 16*1024, 1).Hash(testPassword)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	user := &auth.User{
		Username:    username,
		DisplayName: username,
		Role:        role,
		IsActive:    true,
	}
	if err := auth.NewIdentityRepository(e.db).CreateLocalUser(t.Context(), user, hash); err != nil {
		t.Fatalf("creating test user %s: %v", username, err)
	}
	return user
}

// do sends a request through the router. A non-empty token is attached as a
// bearer credential; a non-nil body is JSON-encoded.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// login authenticates a seeded user and returns the bearer token.
func (e *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s: status = %d, want %d; body: %s", username, rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp loginResponse
	decodeBody(t, rec, &resp)
	if resp.AccessToken == "" {
		t.Fatal("login returned empty access token")
	}
	return resp.AccessToken
}

// decodeBody unmarshals a recorded JSON response.
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}

// wantStatus fails the test when the recorded status differs.
func wantStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, want, rec.Body.String())
	}
}
