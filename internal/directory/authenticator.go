package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/thornfield/gatehouse/internal/auth"
	"github.com/thornfield/gatehouse/internal/infrastructure/config"
)

// usernamePlaceholder and userDNPlaceholder are the substitution markers in
// the configured search filters.
const (
	usernamePlaceholder = "${username}"
	userDNPlaceholder   = "${userDN}"
)

// Authenticator verifies credentials against an LDAP directory and
// reconciles the matching local user record.
//
// The protocol sequence is: optional service bind, user entry search,
// credential bind as the found entry, optional group search, group-to-role
// mapping, then an atomic user upsert. Every step is a possible exit point
// with an explicit classification; the connection is closed on all of them.
type Authenticator struct {
	cfg        config.DirectoryConfig
	users      auth.UserRepository
	identities auth.IdentityRepository
	dial       DialFunc
	logger     *slog.Logger
}

// NewAuthenticator creates a directory authenticator using the production
// dialer.
func NewAuthenticator(cfg config.DirectoryConfig, users auth.UserRepository, identities auth.IdentityRepository, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		cfg:        cfg,
		users:      users,
		identities: identities,
		dial:       Dial,
		logger:     logger,
	}
}

var rejected = auth.DirectoryResult{Outcome: auth.DirectoryRejected}

func unavailable(err error) auth.DirectoryResult {
	return auth.DirectoryResult{Outcome: auth.DirectoryUnavailable, Reason: err}
}

// Authenticate implements auth.DirectoryAuthenticator.
//
// Classification: configuration and connection problems are Unavailable
// (fallback-eligible upstream); "no matching entry" and "bad password" are
// Rejected; group lookup failures are swallowed and cost only the groups.
// A non-nil error is an internal failure while reconciling the user record.
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (auth.DirectoryResult, error) {
	if !a.cfg.Enabled {
		return rejected, nil
	}
	if a.cfg.URL == "" || a.cfg.SearchBase == "" || a.cfg.SearchFilter == "" {
		return unavailable(errors.New("directory configuration incomplete: url, search_base and search_filter are required")), nil
	}

	conn, err := a.dial(ctx, a.cfg.URL, a.cfg.ConnectTimeout())
	if err != nil {
		return unavailable(fmt.Errorf("connecting to directory: %w", err)), nil
	}
	defer conn.Close() //nolint:errcheck // close on every exit path, best effort

	conn.SetTimeout(a.cfg.OperationTimeout())

	if a.cfg.BindDN != "" {
		if err := conn.Bind(a.cfg.BindDN, a.cfg.BindPassword); err != nil {
			return unavailable(fmt.Errorf("service account bind: %w", err)), nil
		}
	}

	entry, found, err := a.findUser(conn, username)
	if err != nil {
		return unavailable(fmt.Errorf("searching for user: %w", err)), nil
	}
	if !found {
		return rejected, nil
	}

	// Re-bind as the found entry to verify the supplied password.
	if err := conn.Bind(entry.DN, password); err != nil {
		return rejected, nil
	}

	groups := a.searchGroups(conn, entry.DN)
	role := a.mapRole(groups)

	user, err := a.upsert(ctx, username, entry, role)
	if err != nil {
		return auth.DirectoryResult{}, err
	}
	if user == nil {
		// Locally deactivated account; the directory password being
		// correct does not resurrect it.
		return rejected, nil
	}

	return auth.DirectoryResult{Outcome: auth.DirectoryAuthenticated, User: user}, nil
}

// findUser searches the configured base for the user entry. If multiple
// entries match, the first is taken; result ordering is directory-server
// dependent.
func (a *Authenticator) findUser(conn Conn, username string) (Entry, bool, error) {
	filter := strings.ReplaceAll(a.cfg.SearchFilter, usernamePlaceholder, ldap.EscapeFilter(username))

	result, err := conn.Search(ldap.NewSearchRequest(
		a.cfg.SearchBase,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		filter,
		requestedAttributes(),
		nil,
	))
	if err != nil {
		return Entry{}, false, err
	}

	if len(result.Entries) == 0 {
		return Entry{}, false, nil
	}
	if len(result.Entries) > 1 {
		a.logger.Warn("directory search matched multiple entries, taking first",
			"username", username,
			"matches", len(result.Entries),
		)
	}

	return entryFrom(result.Entries[0]), true, nil
}

// searchGroups looks up group memberships for the user DN. Any failure is
// logged and treated as zero groups; a group lookup problem must never fail
// an otherwise-successful authentication.
func (a *Authenticator) searchGroups(conn Conn, userDN string) []string {
	if a.cfg.GroupSearchBase == "" || a.cfg.GroupSearchFilter == "" {
		return nil
	}

	filter := strings.ReplaceAll(a.cfg.GroupSearchFilter, userDNPlaceholder, ldap.EscapeFilter(userDN))

	result, err := conn.Search(ldap.NewSearchRequest(
		a.cfg.GroupSearchBase,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		filter,
		[]string{"cn"},
		nil,
	))
	if err != nil {
		a.logger.Warn("group search failed, proceeding with no groups",
			"user_dn", userDN,
			"error", err,
		)
		return nil
	}

	var groups []string
	for _, entry := range result.Entries {
		groups = append(groups, entry.DN)
		if cn := entry.GetAttributeValue("cn"); cn != "" {
			groups = append(groups, cn)
		}
	}
	return groups
}

// mapRole maps group memberships to a role, first match in the configured
// table wins. No match assigns the lowest-privilege role.
func (a *Authenticator) mapRole(groups []string) auth.Role {
	for _, mapping := range a.cfg.GroupRoles {
		role := auth.Role(mapping.Role)
		if !auth.IsValidRole(role) {
			a.logger.Warn("ignoring group mapping with unknown role",
				"group", mapping.Group,
				"role", mapping.Role,
			)
			continue
		}
		for _, group := range groups {
			if strings.EqualFold(mapping.Group, group) {
				return role
			}
		}
	}
	return auth.RoleViewer
}

// upsert reconciles the local user record for a directory-authenticated
// identity.
//
// A new username creates User plus DIRECTORY identity atomically, seeded
// from the directory attributes. A returning user gets its display name
// re-synced, but role and email stay as set locally; directory group
// changes only affect the role at account creation. Returns (nil, nil) for
// a locally deactivated account.
func (a *Authenticator) upsert(ctx context.Context, username string, entry Entry, role auth.Role) (*auth.User, error) {
	existing, err := a.users.GetByUsername(ctx, username)
	if errors.Is(err, auth.ErrUserNotFound) {
		user := &auth.User{
			Username:    username,
			DisplayName: entry.displayName(username),
			Email:       entry.email(username),
			Role:        role,
			IsActive:    true,
		}
		if err := a.identities.CreateDirectoryUser(ctx, user, entry.DN); err != nil {
			return nil, fmt.Errorf("creating directory user: %w", err)
		}
		a.logger.Info("created user from directory entry",
			"username", username,
			"role", role,
		)
		return user, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}

	if !existing.IsActive {
		return nil, nil
	}

	if name := entry.displayName(username); name != existing.DisplayName {
		existing.DisplayName = name
		if err := a.users.Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("syncing user attributes: %w", err)
		}
	}

	if err := a.identities.EnsureDirectoryIdentity(ctx, existing.ID, entry.DN); err != nil {
		return nil, fmt.Errorf("ensuring directory identity: %w", err)
	}

	return existing, nil
}
