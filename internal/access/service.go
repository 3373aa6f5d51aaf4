package access

import (
	"context"
	"fmt"

	"github.com/thornfield/gatehouse/internal/auth"
)

// Auditor records access-policy changes. Metadata must never contain
// credentials or tokens.
type Auditor interface {
	Record(ctx context.Context, action, targetType, targetID, actorID, result string, metadata map[string]any)
}

// Service resolves effective access and applies policy changes, guarding
// section-default writes against administrator lockout.
type Service struct {
	overrides OverrideRepository
	defaults  DefaultRepository
	users     auth.UserRepository
	audit     Auditor
}

// NewService creates an access service.
func NewService(overrides OverrideRepository, defaults DefaultRepository, users auth.UserRepository, audit Auditor) *Service {
	return &Service{
		overrides: overrides,
		defaults:  defaults,
		users:     users,
		audit:     audit,
	}
}

// CanAccess resolves effective access for (user, section) from the current
// override and default snapshots.
func (s *Service) CanAccess(ctx context.Context, user *auth.User, section Section) (bool, error) {
	override, err := s.overrides.Get(ctx, user.ID, section)
	if err != nil {
		return false, fmt.Errorf("loading override: %w", err)
	}

	roleDefault, err := s.defaults.Get(ctx, user.Role, section)
	if err != nil {
		return false, fmt.Errorf("loading section default: %w", err)
	}

	return Effective(user.Role, section, override, roleDefault), nil
}

// SectionsFor resolves every section the user can currently access.
func (s *Service) SectionsFor(ctx context.Context, user *auth.User) ([]Section, error) {
	var sections []Section
	for _, section := range AllSections {
		ok, err := s.CanAccess(ctx, user, section)
		if err != nil {
			return nil, err
		}
		if ok {
			sections = append(sections, section)
		}
	}
	if sections == nil {
		sections = []Section{}
	}
	return sections, nil
}

// Overrides returns every override stored for the user.
func (s *Service) Overrides(ctx context.Context, userID string) ([]Override, error) {
	return s.overrides.ListForUser(ctx, userID)
}

// Defaults returns every configured section default.
func (s *Service) Defaults(ctx context.Context) ([]SectionDefault, error) {
	return s.defaults.List(ctx)
}

// SetOverride creates or replaces a per-user override.
func (s *Service) SetOverride(ctx context.Context, override *Override, actorID string) error {
	if !IsValidSection(override.Section) {
		return fmt.Errorf("unknown section %q", override.Section)
	}
	override.CreatedBy = actorID

	if err := s.overrides.Set(ctx, override); err != nil {
		return err
	}

	s.audit.Record(ctx, "access.override_set", "user", override.UserID, actorID, "success", map[string]any{
		"section": string(override.Section),
		"enabled": override.Enabled,
	})
	return nil
}

// ClearOverride removes a per-user override, returning it to auto.
func (s *Service) ClearOverride(ctx context.Context, userID string, section Section, actorID string) error {
	if !IsValidSection(section) {
		return fmt.Errorf("unknown section %q", section)
	}

	if err := s.overrides.Delete(ctx, userID, section); err != nil {
		return err
	}

	s.audit.Record(ctx, "access.override_cleared", "user", userID, actorID, "success", map[string]any{
		"section": string(section),
	})
	return nil
}

// SetDefault writes a per-role section default.
//
// Changes to the security section are simulated first against every active
// administrator; if the new default would leave zero administrators with
// effective access, the write is rejected with ErrLockoutPrevented and
// nothing is persisted. Fail closed.
func (s *Service) SetDefault(ctx context.Context, def *SectionDefault, actorID string) error {
	if !IsValidSection(def.Section) {
		return fmt.Errorf("unknown section %q", def.Section)
	}
	if !IsValidDefaultState(def.State) {
		return fmt.Errorf("unknown default state %q", def.State)
	}
	if !auth.IsValidRole(def.Role) {
		return fmt.Errorf("unknown role %q", def.Role)
	}
	def.UpdatedBy = actorID

	if def.Section == SectionSecurity {
		if err := s.guardLockout(ctx, def); err != nil {
			s.audit.Record(ctx, "access.default_set", "role", string(def.Role), actorID, "lockout_prevented", map[string]any{
				"section": string(def.Section),
				"state":   string(def.State),
			})
			return err
		}
	}

	if err := s.defaults.Set(ctx, def); err != nil {
		return err
	}

	s.audit.Record(ctx, "access.default_set", "role", string(def.Role), actorID, "success", map[string]any{
		"section": string(def.Section),
		"state":   string(def.State),
	})
	return nil
}

// guardLockout simulates the proposed security-section default against every
// active administrator. At least one must retain effective access.
func (s *Service) guardLockout(ctx context.Context, proposed *SectionDefault) error {
	users, err := s.users.List(ctx)
	if err != nil {
		return fmt.Errorf("listing users for lockout check: %w", err)
	}

	for i := range users {
		user := &users[i]
		if user.Role != auth.RoleAdmin || !user.IsActive {
			continue
		}

		override, err := s.overrides.Get(ctx, user.ID, SectionSecurity)
		if err != nil {
			return fmt.Errorf("loading override for lockout check: %w", err)
		}

		roleDefault := proposed.State
		if user.Role != proposed.Role {
			roleDefault, err = s.defaults.Get(ctx, user.Role, SectionSecurity)
			if err != nil {
				return fmt.Errorf("loading default for lockout check: %w", err)
			}
		}

		if Effective(user.Role, SectionSecurity, override, roleDefault) {
			return nil
		}
	}

	return ErrLockoutPrevented
}
