package store

import (
	"context"
	"testing"

	"github.com/erazemk/nakit/internal/db"
	"github.com/erazemk/nakit/internal/model"
)

func TestCreateAndGetUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, err := CreateUser(ctx, database, "testuser", "hash123", model.RoleUser)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Username != "testuser" {
		t.Errorf("expected username 'testuser', got %q", user.Username)
	}
	if user.Role != model.RoleUser {
		t.Errorf("expected role 'user', got %q", user.Role)
	}

	got, err := GetUser(ctx, database, user.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Username != "testuser" {
		t.Errorf("expected username 'testuser', got %q", got.Username)
	}
}

func TestGetUserByUsername(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	CreateUser(ctx, database, "alice", "hash", model.RoleAdmin)

	user, err := GetUserByUsername(ctx, database, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if user == nil {
		t.Fatal("expected user, got nil")
	}
	if user.Username != "alice" {
		t.Errorf("expected 'alice', got %q", user.Username)
	}

	missing, err := GetUserByUsername(ctx, database, "bob")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing user")
	}
}

func TestListUsers(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	CreateUser(ctx, database, "a", "hash", model.RoleUser)
	CreateUser(ctx, database, "b", "hash", model.RoleManager)

	users, err := ListUsers(ctx, database)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("expected 2 users, got %d", len(users))
	}
}

func TestDeleteUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "deleteme", "hash", model.RoleUser)
	DeleteUser(ctx, database, user.ID)

	users, _ := ListUsers(ctx, database)
	if len(users) != 0 {
		t.Errorf("expected 0 users after delete, got %d", len(users))
	}
}

func TestUpdateUserPassword(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "pwuser", "oldhash", model.RoleUser)
	UpdateUserPassword(ctx, database, user.ID, "newhash")

	got, _ := GetUser(ctx, database, user.ID)
	if got.PasswordHash != "newhash" {
		t.Errorf("expected password hash 'newhash', got %q", got.PasswordHash)
	}
}

func TestUpdateUserPasswordResetsFailures(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "locked", "hash", model.RoleUser)
	RecordLoginFailure(ctx, database, user.ID)
	UpdateUserPassword(ctx, database, user.ID, "reset")

	got, _ := GetUser(ctx, database, user.ID)
	if got.FailedLogins != 0 {
		t.Errorf("expected failed_logins 0 after reset, got %d", got.FailedLogins)
	}
}

func TestGetUserByUsernamePrefersActive(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	old, _ := CreateUser(ctx, database, "carol", "old", model.RoleUser)
	DeleteUser(ctx, database, old.ID)
	current, err := CreateUser(ctx, database, "carol", "new", model.RoleManager)
	if err != nil {
		t.Fatalf("re-creating deleted username: %v", err)
	}

	got, err := GetUserByUsername(ctx, database, "carol")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if got.ID != current.ID {
		t.Errorf("expected active user %d, got %d", current.ID, got.ID)
	}
}

func TestLoginCounters(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "dave", "hash", model.RoleUser)
	for range 3 {
		if err := RecordLoginFailure(ctx, database, user.ID); err != nil {
			t.Fatalf("RecordLoginFailure: %v", err)
		}
	}
	got, _ := GetUser(ctx, database, user.ID)
	if got.FailedLogins != 3 {
		t.Errorf("expected 3 failed logins, got %d", got.FailedLogins)
	}

	if err := RecordLoginSuccess(ctx, database, user.ID); err != nil {
		t.Fatalf("RecordLoginSuccess: %v", err)
	}
	got, _ = GetUser(ctx, database, user.ID)
	if got.FailedLogins != 0 {
		t.Errorf("expected failed logins reset, got %d", got.FailedLogins)
	}
}

func TestUpgradePasswordHashCompareAndSwap(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "erin", "legacy", model.RoleUser)
	RecordLoginFailure(ctx, database, user.ID)

	swapped, err := UpgradePasswordHash(ctx, database, user.ID, "legacy", "modern")
	if err != nil {
		t.Fatalf("UpgradePasswordHash: %v", err)
	}
	if !swapped {
		t.Fatal("expected first upgrade to swap")
	}

	// A second upgrader still holding the old value must not overwrite.
	swapped, err = UpgradePasswordHash(ctx, database, user.ID, "legacy", "other")
	if err != nil {
		t.Fatalf("UpgradePasswordHash: %v", err)
	}
	if swapped {
		t.Error("expected stale upgrade to be a no-op")
	}

	got, _ := GetUser(ctx, database, user.ID)
	if got.PasswordHash != "modern" {
		t.Errorf("expected hash 'modern', got %q", got.PasswordHash)
	}
	if got.FailedLogins != 0 {
		t.Errorf("expected counters reset by upgrade, got %d", got.FailedLogins)
	}
}
