package auth

import (
	"context"
	"errors"
	"regexp"
	"time"
)

// usernamePattern defines the valid format for usernames:
// alphanumeric, dots, hyphens, underscores, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// maxUsernameLength is the maximum allowed username length.
const maxUsernameLength = 64

// IsValidUsername checks if a username meets format requirements.
func IsValidUsername(username string) bool {
	return len(username) <= maxUsernameLength && usernamePattern.MatchString(username)
}

// Role represents an authorisation tier in the system.
type Role string

const (
	// RoleViewer is the lowest-privilege role: read-only access to the
	// sections its role defaults allow. Directory users with no mapped
	// group land here.
	RoleViewer Role = "viewer"

	// RoleEditor can modify content within the sections it can access.
	RoleEditor Role = "editor"

	// RoleAdmin has full access to every section, including user and
	// access-policy administration.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of roles a user account may hold.
var ValidRoles = []Role{RoleViewer, RoleEditor, RoleAdmin}

// IsValidRole returns true if the role is one of the defined roles.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Identity providers.
const (
	// ProviderLocal marks an identity backed by a stored password hash.
	ProviderLocal = "local"

	// ProviderDirectory marks an identity backed by an external directory
	// entry; the provider ID is the entry's distinguished name.
	ProviderDirectory = "directory"
)

// User represents an account known to the system, regardless of which
// provider authenticates it.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	Email        string    `json:"email,omitempty"`
	Role         Role      `json:"role"`
	TokenVersion int64     `json:"-"` // revocation counter, never serialised to clients
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Identity links a user to one credential provider.
type Identity struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Provider   string    `json:"provider"`
	ProviderID string    `json:"provider_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// DirectoryOutcome classifies the result of a directory authentication
// attempt. The distinction drives the strategy resolver's fallback branch:
// only Unavailable permits trying another method.
type DirectoryOutcome int

const (
	// DirectoryAuthenticated means the directory verified the credential
	// and the local user record has been reconciled.
	DirectoryAuthenticated DirectoryOutcome = iota

	// DirectoryRejected is a definitive non-exceptional "not
	// authenticated": no matching entry, bad password, or the directory
	// is disabled. Never fallback-eligible.
	DirectoryRejected

	// DirectoryUnavailable means the directory could not be consulted at
	// all (configuration or connection problem). Fallback-eligible.
	DirectoryUnavailable
)

// String returns the outcome name for logs and audit metadata.
func (o DirectoryOutcome) String() string {
	switch o {
	case DirectoryAuthenticated:
		return "authenticated"
	case DirectoryRejected:
		return "rejected"
	case DirectoryUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// DirectoryResult is the three-way outcome of a directory authentication
// attempt. User is set only when Outcome is DirectoryAuthenticated; Reason
// carries the underlying cause only when Outcome is DirectoryUnavailable.
type DirectoryResult struct {
	Outcome DirectoryOutcome
	User    *User
	Reason  error
}

// DirectoryAuthenticator verifies a credential against an external
// directory. A non-nil error is an internal failure (for example a storage
// error while reconciling the user record) and is never fallback-eligible;
// infrastructure problems with the directory itself are reported as a
// DirectoryUnavailable result, not an error.
type DirectoryAuthenticator interface {
	Authenticate(ctx context.Context, username, password string) (DirectoryResult, error)
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameExists     = errors.New("username already exists")
	ErrIdentityExists     = errors.New("identity already exists")
	ErrTokenExpired       = errors.New("token has expired")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrResetTokenInvalid  = errors.New("invalid or expired reset token")
)
