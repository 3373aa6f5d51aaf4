package access

import (
	"testing"

	"github.com/thornfield/gatehouse/internal/auth"
)

func allowOverride() *Override { return &Override{Enabled: true} }
func denyOverride() *Override  { return &Override{Enabled: false} }

// Exhaustive precedence matrix: override {allow, deny, auto} x permission
// {granted, not granted} x role default {enabled, disabled, auto}.
// Deny wins, then allow, then permission, then role default, then deny.
func TestEffective_PrecedenceMatrix(t *testing.T) {
	// Editor's static permissions grant content but not users.
	granted := SectionContent
	notGranted := SectionUsers
	role := auth.RoleEditor

	tests := []struct {
		name        string
		section     Section
		override    *Override
		roleDefault DefaultState
		want        bool
	}{
		// Deny override wins over everything.
		{"deny/granted/enabled", granted, denyOverride(), DefaultEnabled, false},
		{"deny/granted/disabled", granted, denyOverride(), DefaultDisabled, false},
		{"deny/granted/auto", granted, denyOverride(), DefaultAuto, false},
		{"deny/not-granted/enabled", notGranted, denyOverride(), DefaultEnabled, false},
		{"deny/not-granted/disabled", notGranted, denyOverride(), DefaultDisabled, false},
		{"deny/not-granted/auto", notGranted, denyOverride(), DefaultAuto, false},

		// Allow override wins over everything below it.
		{"allow/granted/enabled", granted, allowOverride(), DefaultEnabled, true},
		{"allow/granted/disabled", granted, allowOverride(), DefaultDisabled, true},
		{"allow/granted/auto", granted, allowOverride(), DefaultAuto, true},
		{"allow/not-granted/enabled", notGranted, allowOverride(), DefaultEnabled, true},
		{"allow/not-granted/disabled", notGranted, allowOverride(), DefaultDisabled, true},
		{"allow/not-granted/auto", notGranted, allowOverride(), DefaultAuto, true},

		// No override: static permission outranks the role default.
		{"auto/granted/enabled", granted, nil, DefaultEnabled, true},
		{"auto/granted/disabled", granted, nil, DefaultDisabled, true},
		{"auto/granted/auto", granted, nil, DefaultAuto, true},

		// No override, no permission: the role default decides.
		{"auto/not-granted/enabled", notGranted, nil, DefaultEnabled, true},
		{"auto/not-granted/disabled", notGranted, nil, DefaultDisabled, false},

		// Nothing grants: implicit deny.
		{"auto/not-granted/auto", notGranted, nil, DefaultAuto, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Effective(role, tt.section, tt.override, tt.roleDefault)
			if got != tt.want {
				t.Errorf("Effective() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHasRolePermission(t *testing.T) {
	tests := []struct {
		role    auth.Role
		section Section
		want    bool
	}{
		{auth.RoleViewer, SectionDashboard, true},
		{auth.RoleViewer, SectionContent, false},
		{auth.RoleViewer, SectionSecurity, false},
		{auth.RoleEditor, SectionContent, true},
		{auth.RoleEditor, SectionReports, true},
		{auth.RoleEditor, SectionUsers, false},
		{auth.RoleAdmin, SectionUsers, true},
		{auth.RoleAdmin, SectionAudit, true},
		// The security section is never granted statically; it flows
		// through defaults so the lockout guard can reason about it.
		{auth.RoleAdmin, SectionSecurity, false},
	}

	for _, tt := range tests {
		if got := HasRolePermission(tt.role, tt.section); got != tt.want {
			t.Errorf("HasRolePermission(%s, %s) = %v, want %v", tt.role, tt.section, got, tt.want)
		}
	}
}

func TestSectionsForRole(t *testing.T) {
	admin := SectionsForRole(auth.RoleAdmin)
	if len(admin) != len(AllSections)-1 {
		t.Errorf("admin sections = %d, want %d", len(admin), len(AllSections)-1)
	}

	viewer := SectionsForRole(auth.RoleViewer)
	if len(viewer) != 1 || viewer[0] != SectionDashboard {
		t.Errorf("viewer sections = %v, want [dashboard]", viewer)
	}
}

func TestIsValidSection(t *testing.T) {
	if !IsValidSection(SectionAudit) {
		t.Error("audit should be a valid section")
	}
	if IsValidSection("attic") {
		t.Error("attic should not be a valid section")
	}
}
