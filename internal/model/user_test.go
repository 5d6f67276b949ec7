package model

import (
	"strings"
	"testing"
	"time"
)

// Minimum roles for the shop's actions, as gated by the API.
const (
	browseStock  = RoleUser
	intakePieces = RoleManager
	renameBranch = RoleManager
	manageStaff  = RoleAdmin
	runBackfill  = RoleAdmin
)

func TestRoleAtLeast(t *testing.T) {
	tests := []struct {
		name     string
		role     string
		minimum  string
		expected bool
	}{
		{"clerk browses stock", RoleUser, browseStock, true},
		{"clerk cannot intake pieces", RoleUser, intakePieces, false},
		{"clerk cannot manage staff", RoleUser, manageStaff, false},
		{"manager intakes pieces", RoleManager, intakePieces, true},
		{"manager renames branch", RoleManager, renameBranch, true},
		{"manager cannot manage staff", RoleManager, manageStaff, false},
		{"manager cannot run backfill", RoleManager, runBackfill, false},
		{"admin browses stock", RoleAdmin, browseStock, true},
		{"admin intakes pieces", RoleAdmin, intakePieces, true},
		{"admin runs backfill", RoleAdmin, runBackfill, true},
		// Unknown roles fail closed.
		{"legacy owner role", "owner", browseStock, false},
		{"unknown minimum", RoleAdmin, "goldsmith", false},
		{"case matters", "Admin", browseStock, false},
		{"empty both", "", "", false},
		{"empty role", "", RoleUser, false},
	}

	for _, tt := range tests {
		got := RoleAtLeast(tt.role, tt.minimum)
		if got != tt.expected {
			t.Errorf("%s: RoleAtLeast(%q, %q) = %v, want %v", tt.name, tt.role, tt.minimum, got, tt.expected)
		}
	}
}

func TestValidRole(t *testing.T) {
	for _, role := range []string{RoleAdmin, RoleManager, RoleUser} {
		if !ValidRole(role) {
			t.Errorf("ValidRole(%q) = false", role)
		}
	}
	for _, role := range []string{"", "owner", "Manager", "jeweler"} {
		if ValidRole(role) {
			t.Errorf("ValidRole(%q) = true", role)
		}
	}
}

func TestUserActive(t *testing.T) {
	clerk := User{Username: "prodajalka", Role: RoleUser}
	if !clerk.Active() {
		t.Error("user without deleted_at should be active")
	}
	left := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	clerk.DeletedAt = &left
	if clerk.Active() {
		t.Error("deleted user should not be active")
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		wantErr  bool
	}{
		{"", true},
		{"short", true},
		{"1234567", true},
		{"12345678", false},
		{"a-valid-password", false},
		{"zlato-585-srebro-925", false},
		// Length counts bytes, so four two-byte letters already pass.
		{"čšž", true},
		{"čšžć", false},
		{strings.Repeat("ž", MaxPasswordLength/2), false},
		{strings.Repeat("ž", MaxPasswordLength/2) + "x", true},
		{strings.Repeat("x", MaxPasswordLength), false},
		{strings.Repeat("x", MaxPasswordLength+1), true},
	}

	for _, tt := range tests {
		err := ValidatePassword(tt.password)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidatePassword(%q) error = %v, wantErr %v", tt.password, err, tt.wantErr)
		}
	}
}
