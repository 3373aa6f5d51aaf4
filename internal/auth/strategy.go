package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/thornfield/gatehouse/internal/infrastructure/config"
)

// LoginAuditor records terminal login outcomes. Implementations must never
// be handed the password; only the username and outcome cross this boundary.
type LoginAuditor interface {
	LoginSucceeded(ctx context.Context, user *User, method string)
	LoginFailed(ctx context.Context, username, reason string)
}

// localVerifier is the subset of LocalVerifier the resolver needs.
type localVerifier interface {
	Verify(ctx context.Context, username, password string) (*User, error)
}

// StrategyResolver orchestrates local and directory authentication in the
// configured order.
//
// The two methods always run sequentially, never in parallel: whether a
// second attempt happens at all depends on how the first one failed. Only a
// DirectoryUnavailable outcome, or a plain directory rejection in a *-first
// mode, leads to the next method; internal errors propagate immediately.
//
// Every call produces exactly one audit record, success or failure.
type StrategyResolver struct {
	strategy  string
	local     localVerifier
	directory DirectoryAuthenticator // nil when the directory is disabled
	audit     LoginAuditor
	logger    *slog.Logger
}

// NewStrategyResolver creates a resolver for the configured strategy.
// Pass a nil directory when directory authentication is disabled; the
// resolver then never attempts it.
func NewStrategyResolver(strategy string, local *LocalVerifier, directory DirectoryAuthenticator, audit LoginAuditor, logger *slog.Logger) *StrategyResolver {
	return &StrategyResolver{
		strategy:  strategy,
		local:     local,
		directory: directory,
		audit:     audit,
		logger:    logger,
	}
}

// Authenticate resolves a username/password pair to a user and the method
// that authenticated it (ProviderLocal or ProviderDirectory).
//
// All rejection causes collapse to ErrInvalidCredentials; nothing about the
// response reveals whether the account exists or which method rejected it.
func (r *StrategyResolver) Authenticate(ctx context.Context, username, password string) (*User, string, error) {
	user, method, err := r.resolve(ctx, username, password)

	switch {
	case err == nil:
		r.audit.LoginSucceeded(ctx, user, method)
		return user, method, nil
	case errors.Is(err, ErrInvalidCredentials):
		r.audit.LoginFailed(ctx, username, "invalid_credentials")
		return nil, "", err
	default:
		r.audit.LoginFailed(ctx, username, "internal_error")
		return nil, "", err
	}
}

func (r *StrategyResolver) resolve(ctx context.Context, username, password string) (*User, string, error) {
	switch r.strategy {
	case config.StrategyLocalOnly:
		return r.localOnly(ctx, username, password)
	case config.StrategyDirectoryOnly:
		return r.directoryOnly(ctx, username, password)
	case config.StrategyLocalFirst:
		return r.localFirst(ctx, username, password)
	case config.StrategyDirectoryFirst:
		return r.directoryFirst(ctx, username, password)
	default:
		return nil, "", fmt.Errorf("unknown authentication strategy %q", r.strategy)
	}
}

func (r *StrategyResolver) localOnly(ctx context.Context, username, password string) (*User, string, error) {
	user, err := r.local.Verify(ctx, username, password)
	if err != nil {
		return nil, "", err
	}
	if user == nil {
		return nil, "", ErrInvalidCredentials
	}
	return user, ProviderLocal, nil
}

func (r *StrategyResolver) directoryOnly(ctx context.Context, username, password string) (*User, string, error) {
	result, err := r.tryDirectory(ctx, username, password)
	if err != nil {
		return nil, "", err
	}
	if result.Outcome == DirectoryAuthenticated {
		return result.User, ProviderDirectory, nil
	}
	// Unavailable is logged by tryDirectory but not distinguished
	// externally in single-method mode.
	return nil, "", ErrInvalidCredentials
}

func (r *StrategyResolver) localFirst(ctx context.Context, username, password string) (*User, string, error) {
	user, err := r.local.Verify(ctx, username, password)
	if err != nil {
		return nil, "", err
	}
	if user != nil {
		return user, ProviderLocal, nil
	}

	result, err := r.tryDirectory(ctx, username, password)
	if err != nil {
		return nil, "", err
	}
	if result.Outcome == DirectoryAuthenticated {
		return result.User, ProviderDirectory, nil
	}
	return nil, "", ErrInvalidCredentials
}

func (r *StrategyResolver) directoryFirst(ctx context.Context, username, password string) (*User, string, error) {
	result, err := r.tryDirectory(ctx, username, password)
	if err != nil {
		return nil, "", err
	}
	if result.Outcome == DirectoryAuthenticated {
		return result.User, ProviderDirectory, nil
	}

	// Rejected and Unavailable both continue to the local store; the
	// difference is only visible in the logs.
	user, err := r.local.Verify(ctx, username, password)
	if err != nil {
		return nil, "", err
	}
	if user != nil {
		return user, ProviderLocal, nil
	}
	return nil, "", ErrInvalidCredentials
}

// tryDirectory invokes the directory authenticator if one is configured.
// A nil authenticator behaves as a rejection, and the directory client is
// never touched. Unavailable outcomes are logged here, once.
func (r *StrategyResolver) tryDirectory(ctx context.Context, username, password string) (DirectoryResult, error) {
	if r.directory == nil {
		return DirectoryResult{Outcome: DirectoryRejected}, nil
	}

	result, err := r.directory.Authenticate(ctx, username, password)
	if err != nil {
		return DirectoryResult{}, fmt.Errorf("directory authentication: %w", err)
	}

	if result.Outcome == DirectoryUnavailable {
		r.logger.Warn("directory unavailable during authentication",
			"username", username,
			"error", result.Reason,
		)
	}

	return result, nil
}
