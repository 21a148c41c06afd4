package handlers

import (
	"net/http"
	"testing"

	"github.com/Nexavor/yidongwagnpan/internal/models"
)

func trashItems(t *testing.T, env *testEnv, token string, fileIDs, folderIDs []string) {
	t.Helper()

	payload := map[string]any{}
	if fileIDs != nil {
		payload["fileIds"] = fileIDs
	}
	if folderIDs != nil {
		payload["folderIds"] = folderIDs
	}
	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/trash/delete", payload, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)
}

func TestTrashListShowsTopLevelOnly(t *testing.T) {
	env := setupTestEnv(t)
	_, token, rootID := createTestUser(t, env, "alice", false)

	docsID := createFolder(t, env, token, rootID, "docs")
	createFolder(t, env, token, docsID, "sub")
	uploadTestFile(t, env, token, docsID, "inner.txt", "data")
	looseID := uploadTestFile(t, env, token, rootID, "loose.txt", "data")

	trashItems(t, env, token, []string{looseID}, []string{docsID})

	resp := performRequest(t, env.app, http.MethodGet, "/api/trash/", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)
	data := responseData(t, resp)

	files, _ := data["files"].([]any)
	folders, _ := data["folders"].([]any)
	if len(files) != 1 || len(folders) != 1 {
		t.Fatalf("expected one top-level file and folder in trash, got files=%d folders=%d", len(files), len(folders))
	}
}

func TestRestoreEndpointFallsBackToRoot(t *testing.T) {
	env := setupTestEnv(t)
	_, token, rootID := createTestUser(t, env, "alice", false)

	docsID := createFolder(t, env, token, rootID, "docs")
	fileID := uploadTestFile(t, env, token, docsID, "a.txt", "data")

	// trash the file first, then its parent
	trashItems(t, env, token, []string{fileID}, nil)
	trashItems(t, env, token, nil, []string{docsID})

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/trash/restore", map[string]any{
		"fileIds": []string{fileID},
	}, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)

	var file models.File
	if err := env.db.First(&file, "message_id = ?", fileID).Error; err != nil {
		t.Fatalf("failed loading restored file: %v", err)
	}
	if file.IsDeleted {
		t.Fatal("expected file restored")
	}
	rootFolderID, err := parseFolderID(rootID)
	if err != nil {
		t.Fatalf("failed decoding root id: %v", err)
	}
	if file.FolderID != rootFolderID {
		t.Fatalf("expected file restored to root %d, got %d", rootFolderID, file.FolderID)
	}
}

func TestPurgeEndpointRemovesPayloads(t *testing.T) {
	env := setupTestEnv(t)
	_, token, rootID := createTestUser(t, env, "alice", false)

	fileID := uploadTestFile(t, env, token, rootID, "gone.txt", "data")
	trashItems(t, env, token, []string{fileID}, nil)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/trash/purge", map[string]any{
		"fileIds": []string{fileID},
	}, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)

	var count int64
	if err := env.db.Model(&models.File{}).Where("message_id = ?", fileID).Count(&count).Error; err != nil {
		t.Fatalf("failed counting files: %v", err)
	}
	if count != 0 {
		t.Fatal("expected file row deleted")
	}
	if len(env.backend.removed) != 1 {
		t.Fatalf("expected one backend removal, got %d", len(env.backend.removed))
	}
}

func TestEmptyTrashEndpoint(t *testing.T) {
	env := setupTestEnv(t)
	_, token, rootID := createTestUser(t, env, "alice", false)

	trashed := uploadTestFile(t, env, token, rootID, "old.txt", "data")
	uploadTestFile(t, env, token, rootID, "keep.txt", "data")
	trashItems(t, env, token, []string{trashed}, nil)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/trash/empty", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)

	var names []string
	if err := env.db.Model(&models.File{}).Pluck("file_name", &names).Error; err != nil {
		t.Fatalf("failed listing files: %v", err)
	}
	if len(names) != 1 || names[0] != "keep.txt" {
		t.Fatalf("expected only keep.txt to survive, got %v", names)
	}
}

func TestTrashSelectionRequired(t *testing.T) {
	env := setupTestEnv(t)
	_, token, _ := createTestUser(t, env, "alice", false)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/trash/delete", map[string]any{}, authHeaders(token))
	assertStatus(t, resp, http.StatusBadRequest)

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/trash/purge", map[string]any{}, authHeaders(token))
	assertStatus(t, resp, http.StatusBadRequest)
}
