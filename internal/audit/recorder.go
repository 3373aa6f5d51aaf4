package audit

import (
	"context"
	"log/slog"

	"github.com/thornfield/gatehouse/internal/auth"
)

// Publisher fans an audit entry out to an external event channel. Optional;
// a nil publisher keeps records local.
type Publisher interface {
	PublishAudit(entry Entry)
}

// Recorder writes audit records and optionally publishes them.
//
// Recording never fails the operation being audited: persistence errors are
// logged and swallowed. It satisfies both auth.LoginAuditor and the access
// package's Auditor interface.
type Recorder struct {
	repo      Repository
	publisher Publisher
	logger    *slog.Logger
}

// NewRecorder creates a recorder. publisher may be nil.
func NewRecorder(repo Repository, publisher Publisher, logger *slog.Logger) *Recorder {
	return &Recorder{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

// Record stores one audit entry.
func (r *Recorder) Record(ctx context.Context, action, targetType, targetID, userID, result string, metadata map[string]any) {
	entry := &Entry{
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		UserID:     userID,
		Result:     result,
		Metadata:   metadata,
	}

	if err := r.repo.Insert(ctx, entry); err != nil {
		r.logger.Error("failed to persist audit entry",
			"action", action,
			"result", result,
			"error", err,
		)
		return
	}

	if r.publisher != nil {
		r.publisher.PublishAudit(*entry)
	}
}

// LoginSucceeded records a successful authentication.
func (r *Recorder) LoginSucceeded(ctx context.Context, user *auth.User, method string) {
	r.Record(ctx, "auth.login", "user", user.ID, user.ID, "success", map[string]any{
		"username": user.Username,
		"method":   method,
	})
}

// LoginFailed records a rejected or failed authentication attempt. The
// password never reaches this boundary.
func (r *Recorder) LoginFailed(ctx context.Context, username, reason string) {
	r.Record(ctx, "auth.login", "user", "", "", "failure", map[string]any{
		"username": username,
		"reason":   reason,
	})
}

// LogoutAll records a mass session revocation.
func (r *Recorder) LogoutAll(ctx context.Context, userID string) {
	r.Record(ctx, "auth.logout_all", "user", userID, userID, "success", nil)
}

// PasswordChanged records a password change or reset.
func (r *Recorder) PasswordChanged(ctx context.Context, userID, via string) {
	r.Record(ctx, "auth.password_changed", "user", userID, userID, "success", map[string]any{
		"via": via,
	})
}
