// Package access computes effective section access from per-user overrides,
// static role permissions, and administrator-configured role defaults.
package access

import (
	"errors"
	"time"

	"github.com/thornfield/gatehouse/internal/auth"
)

// Section names a functional area of the application subject to access
// gating.
type Section string

// Known sections. SectionSecurity manages overrides and defaults themselves
// and is therefore guarded against administrator lockout.
const (
	SectionDashboard Section = "dashboard"
	SectionContent   Section = "content"
	SectionReports   Section = "reports"
	SectionUsers     Section = "users"
	SectionAudit     Section = "audit"
	SectionSecurity  Section = "security"
)

// AllSections lists every known section.
var AllSections = []Section{
	SectionDashboard,
	SectionContent,
	SectionReports,
	SectionUsers,
	SectionAudit,
	SectionSecurity,
}

// IsValidSection returns true for a known section name.
func IsValidSection(s Section) bool {
	for _, v := range AllSections {
		if s == v {
			return true
		}
	}
	return false
}

// Override is an explicit per-user exception to role-derived access.
// Absence of an override means "auto": fall through to role-derived tiers.
type Override struct {
	UserID    string    `json:"user_id"`
	Section   Section   `json:"section"`
	Enabled   bool      `json:"enabled"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DefaultState is the administrator-configured per-role section default.
type DefaultState string

const (
	// DefaultEnabled grants the section to the role unless overridden.
	DefaultEnabled DefaultState = "enabled"

	// DefaultDisabled withholds the section unless the static permission
	// table or a per-user override grants it.
	DefaultDisabled DefaultState = "disabled"

	// DefaultAuto is the absence of a configured default.
	DefaultAuto DefaultState = "auto"
)

// IsValidDefaultState returns true for a known default state.
func IsValidDefaultState(s DefaultState) bool {
	return s == DefaultEnabled || s == DefaultDisabled || s == DefaultAuto
}

// SectionDefault is a stored (role, section) default row.
type SectionDefault struct {
	Role      auth.Role    `json:"role"`
	Section   Section      `json:"section"`
	State     DefaultState `json:"state"`
	UpdatedBy string       `json:"updated_by,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// roleSections is the static permission table: the sections each role's
// permissions grant outright. Admin holds a wildcard over every section;
// this is the single source of truth for role-derived access.
var roleSections = map[auth.Role][]Section{
	auth.RoleViewer: {
		SectionDashboard,
	},
	auth.RoleEditor: {
		SectionDashboard,
		SectionContent,
		SectionReports,
	},
}

// HasRolePermission returns true if the role's static permissions grant the
// section. Admin holds a wildcard over every section except security: the
// security section is governed solely by defaults and overrides, so that
// misconfigured defaults are detectable (and rejectable) by the lockout
// guard instead of being silently shadowed by the wildcard. A fresh schema
// seeds an enabled (admin, security) default.
func HasRolePermission(role auth.Role, section Section) bool {
	if role == auth.RoleAdmin {
		return section != SectionSecurity
	}
	for _, s := range roleSections[role] {
		if s == section {
			return true
		}
	}
	return false
}

// SectionsForRole returns the sections the role's static permissions grant.
func SectionsForRole(role auth.Role) []Section {
	var result []Section
	for _, s := range AllSections {
		if HasRolePermission(role, s) {
			result = append(result, s)
		}
	}
	return result
}

// Effective computes effective boolean access for a role and section from
// three input snapshots, in strict precedence order:
//
//  1. override = deny  -> false
//  2. override = allow -> true
//  3. static role permission grants the section -> true
//  4. role default disabled -> false; enabled -> true
//  5. deny by default
//
// Pure function, no side effects: a nil override means auto.
func Effective(role auth.Role, section Section, override *Override, roleDefault DefaultState) bool {
	if override != nil {
		return override.Enabled
	}

	if HasRolePermission(role, section) {
		return true
	}

	switch roleDefault {
	case DefaultDisabled:
		return false
	case DefaultEnabled:
		return true
	default:
		return false
	}
}

// ErrLockoutPrevented rejects a section-default change that would leave no
// active administrator with access to the security section.
var ErrLockoutPrevented = errors.New("change would lock out every administrator")
