package services

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/Nexavor/yidongwagnpan/internal/models"
	"github.com/Nexavor/yidongwagnpan/internal/storage"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func testCtx() context.Context {
	return context.Background()
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	err = db.AutoMigrate(
		&models.User{},
		&models.Folder{},
		&models.File{},
		&models.AuthToken{},
		&models.Setting{},
	)
	if err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	user := &models.User{Username: username, PasswordHash: "hash"}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating user %s: %v", username, err)
	}
	return user
}

func ensureRoot(t *testing.T, db *gorm.DB, userID uint) *models.Folder {
	t.Helper()
	root, err := NewLifecycle(db, nil).EnsureRootFolder(testCtx(), userID)
	if err != nil {
		t.Fatalf("failed creating root folder: %v", err)
	}
	return root
}

func createTestFolder(t *testing.T, db *gorm.DB, name string, parentID, userID uint) *models.Folder {
	t.Helper()
	folder, err := NewLifecycle(db, nil).CreateFolder(testCtx(), name, parentID, userID)
	if err != nil {
		t.Fatalf("failed creating folder %s: %v", name, err)
	}
	return folder
}

func createTestFile(t *testing.T, db *gorm.DB, name string, folderID, userID uint, size int64) *models.File {
	t.Helper()
	file := &models.File{
		MessageID:   NewMessageID(),
		FileName:    name,
		FolderID:    folderID,
		UserID:      userID,
		Size:        size,
		FileID:      "payload-" + name,
		StorageType: "s3",
		Date:        time.Now().UnixMilli(),
	}
	if err := db.Create(file).Error; err != nil {
		t.Fatalf("failed creating file %s: %v", name, err)
	}
	return file
}

func trashTestFile(t *testing.T, db *gorm.DB, file *models.File) {
	t.Helper()
	now := time.Now().UnixMilli()
	err := db.Model(&models.File{}).Where("message_id = ?", file.MessageID).
		Updates(map[string]interface{}{"is_deleted": true, "deleted_at": now}).Error
	if err != nil {
		t.Fatalf("failed trashing file: %v", err)
	}
}

func reloadFile(t *testing.T, db *gorm.DB, messageID string) *models.File {
	t.Helper()
	var file models.File
	if err := db.First(&file, "message_id = ?", messageID).Error; err != nil {
		t.Fatalf("failed reloading file %s: %v", messageID, err)
	}
	return &file
}

func reloadFolder(t *testing.T, db *gorm.DB, id uint) *models.Folder {
	t.Helper()
	var folder models.Folder
	if err := db.First(&folder, "id = ?", id).Error; err != nil {
		t.Fatalf("failed reloading folder %d: %v", id, err)
	}
	return &folder
}

func strptr(s string) *string {
	return &s
}

// fakeBackend records removals and serves uploads from memory, standing in
// for a payload store during engine tests.
type fakeBackend struct {
	mu      sync.Mutex
	removed []storage.RemovalFile
	listing []storage.RemoteObject
}

func (f *fakeBackend) Upload(ctx context.Context, r io.Reader, size int64, fileName, contentType string, userID, folderID uint) (*storage.UploadResult, error) {
	return &storage.UploadResult{FileID: "fake-" + fileName}, nil
}

func (f *fakeBackend) Download(ctx context.Context, fileID string, userID uint) (*storage.Object, error) {
	return nil, storage.ErrNotFound
}

func (f *fakeBackend) Remove(ctx context.Context, files []storage.RemovalFile, userID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, files...)
	return nil
}

func (f *fakeBackend) List(ctx context.Context, prefix string) ([]storage.RemoteObject, error) {
	return f.listing, nil
}

func (f *fakeBackend) removedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.removed)
}

type staticProvider struct {
	backend storage.Backend
}

func (p staticProvider) Current(ctx context.Context) (storage.Backend, error) {
	return p.backend, nil
}
