package store

import (
	"context"
	"testing"

	"github.com/erazemk/nakit/internal/db"
)

func TestCreateAndGetBranch(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	branch, err := CreateBranch(ctx, database, "HPI", "Main street")
	if err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if branch.Code != "HPI" || branch.Name != "Main street" {
		t.Errorf("unexpected branch %+v", branch)
	}

	byCode, err := GetBranchByCode(ctx, database, "HPI")
	if err != nil {
		t.Fatalf("GetBranchByCode: %v", err)
	}
	if byCode == nil || byCode.ID != branch.ID {
		t.Errorf("expected branch %d by code, got %+v", branch.ID, byCode)
	}

	missing, err := GetBranch(ctx, database, 999)
	if err != nil {
		t.Fatalf("GetBranch: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing branch")
	}
}

func TestBranchCodeUnique(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	CreateBranch(ctx, database, "HPI", "Main street")
	if _, err := CreateBranch(ctx, database, "HPI", "Second"); err == nil {
		t.Error("expected error for duplicate branch code")
	}
}

func TestRenameBranchKeepsCode(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	branch, _ := CreateBranch(ctx, database, "HPI", "Main street")
	if err := RenameBranch(ctx, database, branch.ID, "Old town"); err != nil {
		t.Fatalf("RenameBranch: %v", err)
	}
	got, _ := GetBranch(ctx, database, branch.ID)
	if got.Name != "Old town" || got.Code != "HPI" {
		t.Errorf("expected renamed branch with code HPI, got %+v", got)
	}
}

func TestCategories(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	CreateCategory(ctx, database, "rng", "Rings")
	chains, _ := CreateCategory(ctx, database, "chn", "Chains")
	RenameCategory(ctx, database, chains.ID, "Necklaces")

	categories, err := ListCategories(ctx, database)
	if err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	if len(categories) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(categories))
	}
	// Ordered by code.
	if categories[0].Code != "chn" || categories[0].Name != "Necklaces" {
		t.Errorf("unexpected first category %+v", categories[0])
	}
}
