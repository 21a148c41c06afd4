package handlers

import (
	"bytes"
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Nexavor/yidongwagnpan/internal/config"
	"github.com/Nexavor/yidongwagnpan/internal/middleware"
	"github.com/Nexavor/yidongwagnpan/internal/models"
	"github.com/Nexavor/yidongwagnpan/internal/services"
	"github.com/Nexavor/yidongwagnpan/internal/storage"
	"github.com/Nexavor/yidongwagnpan/pkg/logger"
	"github.com/Nexavor/yidongwagnpan/pkg/utils"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"
)

// memoryBackend keeps payloads in a map so upload and download round-trip
// without a live storage service.
type memoryBackend struct {
	mu       sync.Mutex
	payloads map[string][]byte
	types    map[string]string
	removed  []storage.RemovalFile
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{
		payloads: map[string][]byte{},
		types:    map[string]string{},
	}
}

func (m *memoryBackend) Upload(ctx context.Context, r io.Reader, size int64, fileName, contentType string, userID, folderID uint) (*storage.UploadResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	fileID := fmt.Sprintf("%d/%d/%s", userID, folderID, fileName)
	m.mu.Lock()
	m.payloads[fileID] = data
	m.types[fileID] = contentType
	m.mu.Unlock()
	return &storage.UploadResult{FileID: fileID}, nil
}

func (m *memoryBackend) Download(ctx context.Context, fileID string, userID uint) (*storage.Object, error) {
	m.mu.Lock()
	data, ok := m.payloads[fileID]
	contentType := m.types[fileID]
	m.mu.Unlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &storage.Object{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentType:   contentType,
		ContentLength: int64(len(data)),
	}, nil
}

func (m *memoryBackend) Remove(ctx context.Context, files []storage.RemovalFile, userID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range files {
		delete(m.payloads, f.FileID)
		m.removed = append(m.removed, f)
	}
	return nil
}

func (m *memoryBackend) List(ctx context.Context, prefix string) ([]storage.RemoteObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []storage.RemoteObject{}
	for id, data := range m.payloads {
		if strings.HasPrefix(id, prefix) {
			out = append(out, storage.RemoteObject{FileID: id, Size: int64(len(data))})
		}
	}
	return out, nil
}

type staticProvider struct {
	backend storage.Backend
}

func (p *staticProvider) Current(ctx context.Context) (storage.Backend, error) {
	return p.backend, nil
}

type testEnv struct {
	app     *fiber.App
	db      *gorm.DB
	backend *memoryBackend
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		gosqlite.MustRegisterScalarFunction("NOW", 0, func(ctx *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			return time.Now().UTC(), nil
		})
		logger.Init()
		utils.ConfigureJWT("test-secret", 24)
		utils.ConfigureEncryption("test-encryption-secret")
	})

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

	backend := newMemoryBackend()
	backends := &staticProvider{backend: backend}
	storageManager := config.NewStorageManager(db)
	if err := storageManager.Save(&config.StorageConfig{StorageMode: config.StorageModeS3}); err != nil {
		t.Fatalf("failed seeding storage config: %v", err)
	}

	lifecycle := services.NewLifecycle(db, backends)
	quota := services.NewQuota(db)
	shares := services.NewShares(db)
	catalog := services.NewCatalog(db)
	importer := services.NewImporter(db, backends, storageManager)

	authHandler := NewAuthHandler(db, lifecycle, quota)
	foldersHandler := NewFoldersHandler(db, lifecycle, catalog, shares)
	filesHandler := NewFilesHandler(db, lifecycle, quota, catalog, backends, storageManager)
	trashHandler := NewTrashHandler(lifecycle, catalog)
	sharesHandler := NewSharesHandler(shares, catalog, backends)
	adminHandler := NewAdminHandler(db, quota, importer, storageManager)

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 100 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Post("/logout", authMiddleware.RequireAuth, authHandler.Logout)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)
	authRoutes.Put("/password", authMiddleware.RequireAuth, authHandler.ChangePassword)

	folderRoutes := api.Group("/folders", authMiddleware.RequireAuth)
	folderRoutes.Post("/", foldersHandler.Create)
	folderRoutes.Get("/", foldersHandler.All)
	folderRoutes.Get("/:id/contents", foldersHandler.Contents)
	folderRoutes.Get("/:id/path", foldersHandler.Path)
	folderRoutes.Put("/:id/rename", foldersHandler.Rename)
	folderRoutes.Put("/:id/password", foldersHandler.SetPassword)
	folderRoutes.Post("/:id/unlock", foldersHandler.VerifyPassword)
	folderRoutes.Post("/:id/share", sharesHandler.CreateFolderShare)
	folderRoutes.Delete("/:id/share", sharesHandler.CancelFolderShare)

	fileRoutes := api.Group("/files", authMiddleware.RequireAuth)
	fileRoutes.Post("/upload", filesHandler.Upload)
	fileRoutes.Get("/search", filesHandler.Search)
	fileRoutes.Post("/move", filesHandler.Move)
	fileRoutes.Get("/:id/download", filesHandler.Download)
	fileRoutes.Put("/:id/rename", filesHandler.Rename)
	fileRoutes.Post("/:id/share", sharesHandler.CreateFileShare)
	fileRoutes.Delete("/:id/share", sharesHandler.CancelFileShare)

	trashRoutes := api.Group("/trash", authMiddleware.RequireAuth)
	trashRoutes.Get("/", trashHandler.List)
	trashRoutes.Post("/delete", trashHandler.Delete)
	trashRoutes.Post("/restore", trashHandler.Restore)
	trashRoutes.Post("/purge", trashHandler.Purge)
	trashRoutes.Post("/empty", trashHandler.Empty)

	api.Get("/shares", authMiddleware.RequireAuth, sharesHandler.List)

	publicRoutes := api.Group("/public")
	publicRoutes.Get("/files/:token", sharesHandler.PublicFileMeta)
	publicRoutes.Get("/files/:token/download", sharesHandler.PublicFileDownload)
	publicRoutes.Post("/files/:token/download", sharesHandler.PublicFileDownload)
	publicRoutes.Get("/folders/:token", sharesHandler.PublicFolderListing)
	publicRoutes.Post("/folders/:token", sharesHandler.PublicFolderListing)
	publicRoutes.Get("/folders/:token/archive", sharesHandler.PublicFolderArchive)

	adminRoutes := api.Group("/admin", authMiddleware.RequireAuth, middleware.AdminOnly)
	adminRoutes.Get("/users", adminHandler.ListUsers)
	adminRoutes.Put("/users/:id/quota", adminHandler.SetQuota)
	adminRoutes.Delete("/users/:id", adminHandler.DeleteUser)
	adminRoutes.Get("/storage", adminHandler.GetStorageConfig)
	adminRoutes.Put("/storage", adminHandler.UpdateStorageConfig)
	adminRoutes.Post("/storage/scan", adminHandler.ScanImport)

	return &testEnv{app: app, db: db, backend: backend}
}

// createTestUser inserts a user with an active session and provisions the
// root folder, returning the user, bearer token and encrypted root id.
func createTestUser(t *testing.T, env *testEnv, username string, isAdmin bool) (*models.User, string, string) {
	t.Helper()

	hash, err := utils.HashPassword("secret123")
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}
	user := &models.User{Username: username, PasswordHash: hash, IsAdmin: isAdmin}
	if err := env.db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]string{
		"username": username,
		"password": "secret123",
	}, nil)
	assertStatus(t, resp, http.StatusOK)
	body := decodeJSONMap(t, resp)

	data, _ := body["data"].(map[string]any)
	token, _ := data["token"].(string)
	rootID, _ := data["rootFolderId"].(string)
	if token == "" || rootID == "" {
		t.Fatalf("login response missing token or root folder id: %+v", body)
	}
	return user, token, rootID
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}
	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}
	return payload
}

func responseData(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	body := decodeJSONMap(t, resp)
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected object data, got %+v", body)
	}
	return data
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// newMultipartBody writes a folderId field plus one file part into buf and
// returns the Content-Type header value.
func newMultipartBody(t *testing.T, buf *bytes.Buffer, folderID, fileName, content string) string {
	t.Helper()

	mw := multipart.NewWriter(buf)
	if err := mw.WriteField("folderId", folderID); err != nil {
		t.Fatalf("failed writing folderId field: %v", err)
	}
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("failed creating file part: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("failed writing file content: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed closing multipart writer: %v", err)
	}
	return mw.FormDataContentType()
}

// uploadTestFile pushes a small payload through the real upload endpoint and
// returns the created file's message id.
func uploadTestFile(t *testing.T, env *testEnv, token, folderID, fileName, content string) string {
	t.Helper()

	var buf bytes.Buffer
	contentType := newMultipartBody(t, &buf, folderID, fileName, content)

	headers := authHeaders(token)
	headers["Content-Type"] = contentType

	resp := performRequest(t, env.app, http.MethodPost, "/api/files/upload", &buf, headers)
	assertStatus(t, resp, http.StatusCreated)

	data := responseData(t, resp)
	messageID, _ := data["messageID"].(string)
	if messageID == "" {
		t.Fatalf("upload response missing message id: %+v", data)
	}
	return messageID
}
