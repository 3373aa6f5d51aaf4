package api

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/thornfield/gatehouse/internal/auth"
)

// Auth constants.
const (
	// minPasswordLength is the minimum accepted password length.
	minPasswordLength = 8

	// resetTokenTTL is how long a password reset token stays usable.
	resetTokenTTL = time.Hour

	// resetTokenBytes is the number of random bytes in a reset token.
	resetTokenBytes = 32
)

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse is the response body for POST /auth/login.
type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type consumeResetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// handleLogin authenticates a credential through the configured strategy and
// returns a signed session token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	user, method, err := s.resolver.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.recordLogin("unknown", "failure")
			writeUnauthorized(w, "invalid credentials")
			return
		}
		s.logger.Error("login failed", "username", req.Username, "error", err)
		writeInternalError(w, "authentication failed")
		return
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		s.logger.Error("token issue failed", "user_id", user.ID, "error", err)
		writeInternalError(w, "failed to issue token")
		return
	}

	s.recordLogin(method, "success")
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.tokenTTL.Seconds()),
	})
}

// handleMe returns the authenticated user and the sections they can access.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	user, err := s.users.GetByID(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeUnauthorized(w, "unknown account")
			return
		}
		s.logger.Error("load current user failed", "user_id", claims.Subject, "error", err)
		writeInternalError(w, "failed to load account")
		return
	}

	sections, err := s.access.SectionsFor(r.Context(), user)
	if err != nil {
		s.logger.Error("resolve sections failed", "user_id", user.ID, "error", err)
		writeInternalError(w, "failed to resolve access")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":     user,
		"sections": sections,
	})
}

// handleLogoutAll revokes every session for the authenticated user by
// bumping the token version.
func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	if err := s.users.BumpTokenVersion(r.Context(), claims.Subject); err != nil {
		s.logger.Error("logout-all failed", "user_id", claims.Subject, "error", err)
		writeInternalError(w, "failed to revoke sessions")
		return
	}
	s.versions.Invalidate(claims.Subject)

	s.audit.LogoutAll(r.Context(), claims.Subject)
	s.recordRevocation("logout_all")

	writeJSON(w, http.StatusOK, map[string]string{"status": "sessions_revoked"})
}

// handleChangePassword changes the authenticated user's local password.
// All other sessions are revoked by the token-version bump.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		writeBadRequest(w, "password must be at least 8 characters")
		return
	}

	_, hash, err := s.identities.GetLocalCredential(r.Context(), claims.Username)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeBadRequest(w, "account has no local credential")
			return
		}
		s.logger.Error("load credential failed", "user_id", claims.Subject, "error", err)
		writeInternalError(w, "failed to change password")
		return
	}

	ok, err := auth.VerifyPassword(req.CurrentPassword, hash)
	if err != nil || !ok {
		writeForbidden(w, "current password is incorrect")
		return
	}

	newHash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		s.logger.Error("hash password failed", "error", err)
		writeInternalError(w, "failed to change password")
		return
	}

	if err := s.identities.ChangePassword(r.Context(), claims.Subject, newHash); err != nil {
		s.logger.Error("change password failed", "user_id", claims.Subject, "error", err)
		writeInternalError(w, "failed to change password")
		return
	}
	s.versions.Invalidate(claims.Subject)

	s.audit.PasswordChanged(r.Context(), claims.Subject, "change")
	s.recordRevocation("password_change")

	writeJSON(w, http.StatusOK, map[string]string{"status": "password_changed"})
}

// handleCreateResetToken issues a single-use password reset token for a
// user. Delivery to the user is out of scope; the token is returned to the
// administrator who requested it.
func (s *Server) handleCreateResetToken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	claims := claimsFromContext(r.Context())

	if _, err := s.users.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("load user for reset token failed", "user_id", id, "error", err)
		writeInternalError(w, "failed to create reset token")
		return
	}

	token := generateResetToken()
	expiresAt := time.Now().Add(resetTokenTTL)

	// Only the hash is stored; a stolen database cannot redeem tokens.
	if err := s.identities.CreateResetToken(r.Context(), id, hashResetToken(token), expiresAt); err != nil {
		s.logger.Error("create reset token failed", "user_id", id, "error", err)
		writeInternalError(w, "failed to create reset token")
		return
	}

	s.audit.Record(r.Context(), "auth.reset_requested", "user", id, claims.Subject, "success", nil)

	writeJSON(w, http.StatusOK, map[string]any{
		"reset_token": token,
		"expires_in":  int(resetTokenTTL.Seconds()),
	})
}

// handleConsumePasswordReset redeems a reset token and sets a new password.
// The token itself is the credential, so the route is unauthenticated.
func (s *Server) handleConsumePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req consumeResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Token == "" {
		writeBadRequest(w, "token is required")
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		writeBadRequest(w, "password must be at least 8 characters")
		return
	}

	newHash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		s.logger.Error("hash password failed", "error", err)
		writeInternalError(w, "failed to reset password")
		return
	}

	userID, err := s.identities.ConsumeResetToken(r.Context(), hashResetToken(req.Token), newHash)
	if err != nil {
		if errors.Is(err, auth.ErrResetTokenInvalid) {
			writeUnauthorized(w, "invalid or expired reset token")
			return
		}
		s.logger.Error("consume reset token failed", "error", err)
		writeInternalError(w, "failed to reset password")
		return
	}
	s.versions.Invalidate(userID)

	s.audit.PasswordChanged(r.Context(), userID, "reset")
	s.recordRevocation("password_reset")

	writeJSON(w, http.StatusOK, map[string]string{"status": "password_changed"})
}

// generateResetToken creates a cryptographically random token string.
func generateResetToken() string {
	b := make([]byte, resetTokenBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(b)
	return hex.EncodeToString(b)
}

// hashResetToken returns the stored form of a reset token.
func hashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// recordLogin writes a login metric point when metrics are enabled.
func (s *Server) recordLogin(method, result string) {
	if s.metrics != nil {
		s.metrics.RecordLogin(method, result)
	}
}

// recordRevocation writes a revocation metric point when metrics are enabled.
func (s *Server) recordRevocation(via string) {
	if s.metrics != nil {
		s.metrics.RecordRevocation(via)
	}
}
