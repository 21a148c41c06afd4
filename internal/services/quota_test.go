package services

import (
	"errors"
	"testing"

	"github.com/Nexavor/yidongwagnpan/internal/models"
)

func TestQuotaUnlimitedSentinel(t *testing.T) {
	db := setupServiceDB(t)
	user := createTestUser(t, db, "alice")
	zero := int64(0)
	if err := db.Model(&models.User{}).Where("id = ?", user.ID).
		Update("max_storage_bytes", &zero).Error; err != nil {
		t.Fatalf("setting unlimited quota: %v", err)
	}

	quota := NewQuota(db)
	if err := quota.Check(testCtx(), user.ID, 1<<40); err != nil {
		t.Fatalf("unlimited user rejected: %v", err)
	}
}

func TestQuotaDefaultsToOneGiB(t *testing.T) {
	db := setupServiceDB(t)
	user := createTestUser(t, db, "alice")

	usage, err := NewQuota(db).Usage(testCtx(), user.ID)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if usage.MaxBytes != models.DefaultMaxStorageBytes {
		t.Fatalf("expected default ceiling %d, got %d", models.DefaultMaxStorageBytes, usage.MaxBytes)
	}
}

func TestQuotaBoundary(t *testing.T) {
	db := setupServiceDB(t)
	user := createTestUser(t, db, "alice")
	root := ensureRoot(t, db, user.ID)
	limit := int64(100)
	if err := db.Model(&models.User{}).Where("id = ?", user.ID).
		Update("max_storage_bytes", &limit).Error; err != nil {
		t.Fatalf("setting quota: %v", err)
	}
	createTestFile(t, db, "a.bin", root.ID, user.ID, 60)

	quota := NewQuota(db)
	if err := quota.Check(testCtx(), user.ID, 40); err != nil {
		t.Fatalf("used+incoming == max must pass: %v", err)
	}
	if err := quota.Check(testCtx(), user.ID, 41); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
}

func TestQuotaIgnoresTrashedFiles(t *testing.T) {
	db := setupServiceDB(t)
	user := createTestUser(t, db, "alice")
	root := ensureRoot(t, db, user.ID)

	active := createTestFile(t, db, "a.bin", root.ID, user.ID, 30)
	gone := createTestFile(t, db, "b.bin", root.ID, user.ID, 70)
	trashTestFile(t, db, gone)
	_ = active

	usage, err := NewQuota(db).Usage(testCtx(), user.ID)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if usage.UsedBytes != 30 {
		t.Fatalf("trashed bytes counted: used=%d", usage.UsedBytes)
	}
}

func TestSetMaxStorage(t *testing.T) {
	db := setupServiceDB(t)
	user := createTestUser(t, db, "alice")
	admin := &models.User{Username: "admin", PasswordHash: "hash", IsAdmin: true}
	if err := db.Create(admin).Error; err != nil {
		t.Fatalf("creating admin: %v", err)
	}

	quota := NewQuota(db)
	if err := quota.SetMaxStorage(testCtx(), user.ID, 512); err != nil {
		t.Fatalf("SetMaxStorage: %v", err)
	}
	usage, err := quota.Usage(testCtx(), user.ID)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if usage.MaxBytes != 512 {
		t.Fatalf("ceiling not applied: %d", usage.MaxBytes)
	}

	if err := quota.SetMaxStorage(testCtx(), admin.ID, 512); err == nil {
		t.Fatalf("expected refusal for admin target")
	}
	if err := quota.SetMaxStorage(testCtx(), 9999, 512); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
