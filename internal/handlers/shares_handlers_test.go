package handlers

import (
	"archive/zip"
	"bytes"
	"io"
	"net/http"
	"testing"
)

func shareFile(t *testing.T, env *testEnv, token, messageID string, body map[string]string) string {
	t.Helper()

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/files/"+messageID+"/share", body, authHeaders(token))
	assertStatus(t, resp, http.StatusCreated)
	data := responseData(t, resp)
	shareToken, _ := data["token"].(string)
	if shareToken == "" {
		t.Fatalf("share response missing token: %+v", data)
	}
	return shareToken
}

func TestPublicFileShareFlow(t *testing.T) {
	env := setupTestEnv(t)
	_, token, rootID := createTestUser(t, env, "alice", false)

	messageID := uploadTestFile(t, env, token, rootID, "report.txt", "shared content")
	shareToken := shareFile(t, env, token, messageID, map[string]string{"ttl": "24h"})

	// metadata is public
	resp := performRequest(t, env.app, http.MethodGet, "/api/public/files/"+shareToken, nil, nil)
	assertStatus(t, resp, http.StatusOK)
	meta := responseData(t, resp)
	if meta["fileName"] != "report.txt" {
		t.Fatalf("expected shared file name report.txt, got %v", meta["fileName"])
	}
	if meta["protected"] != false {
		t.Fatalf("expected unprotected share, got %v", meta["protected"])
	}

	resp = performRequest(t, env.app, http.MethodGet, "/api/public/files/"+shareToken+"/download", nil, nil)
	assertStatus(t, resp, http.StatusOK)
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading shared payload: %v", err)
	}
	if string(payload) != "shared content" {
		t.Fatalf("expected shared payload %q, got %q", "shared content", string(payload))
	}

	t.Run("unknown token not found", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/public/files/bogus", nil, nil)
		assertStatus(t, resp, http.StatusNotFound)
	})

	t.Run("cancel revokes access", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodDelete, "/api/files/"+messageID+"/share", nil, authHeaders(token))
		assertStatus(t, resp, http.StatusOK)

		resp = performRequest(t, env.app, http.MethodGet, "/api/public/files/"+shareToken, nil, nil)
		assertStatus(t, resp, http.StatusNotFound)
	})
}

func TestPasswordProtectedShare(t *testing.T) {
	env := setupTestEnv(t)
	_, token, rootID := createTestUser(t, env, "alice", false)

	messageID := uploadTestFile(t, env, token, rootID, "secret.txt", "classified")
	shareToken := shareFile(t, env, token, messageID, map[string]string{"password": "sesame"})

	resp := performRequest(t, env.app, http.MethodGet, "/api/public/files/"+shareToken+"/download", nil, nil)
	assertStatus(t, resp, http.StatusUnauthorized)

	resp = performRequest(t, env.app, http.MethodGet, "/api/public/files/"+shareToken+"/download?password=wrong", nil, nil)
	assertStatus(t, resp, http.StatusUnauthorized)

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/public/files/"+shareToken+"/download", map[string]string{
		"password": "sesame",
	}, nil)
	assertStatus(t, resp, http.StatusOK)
	defer resp.Body.Close()
	payload, _ := io.ReadAll(resp.Body)
	if string(payload) != "classified" {
		t.Fatalf("expected payload %q, got %q", "classified", string(payload))
	}
}

func TestInvalidShareExpiryRejected(t *testing.T) {
	env := setupTestEnv(t)
	_, token, rootID := createTestUser(t, env, "alice", false)

	messageID := uploadTestFile(t, env, token, rootID, "a.txt", "x")

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/files/"+messageID+"/share", map[string]string{
		"ttl": "junk",
	}, authHeaders(token))
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestPublicFolderListingAndArchive(t *testing.T) {
	env := setupTestEnv(t)
	_, token, rootID := createTestUser(t, env, "alice", false)

	docsID := createFolder(t, env, token, rootID, "docs")
	subID := createFolder(t, env, token, docsID, "sub")
	uploadTestFile(t, env, token, docsID, "a.txt", "top")
	uploadTestFile(t, env, token, subID, "b.txt", "nested")

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/folders/"+docsID+"/share", map[string]string{}, authHeaders(token))
	assertStatus(t, resp, http.StatusCreated)
	data := responseData(t, resp)
	shareToken, _ := data["token"].(string)

	resp = performRequest(t, env.app, http.MethodGet, "/api/public/folders/"+shareToken, nil, nil)
	assertStatus(t, resp, http.StatusOK)
	listing := responseData(t, resp)
	if listing["folderName"] != "docs" {
		t.Fatalf("expected shared folder docs, got %v", listing["folderName"])
	}
	files, _ := listing["files"].([]any)
	if len(files) != 2 {
		t.Fatalf("expected two shared files, got %d", len(files))
	}

	resp = performRequest(t, env.app, http.MethodGet, "/api/public/folders/"+shareToken+"/archive", nil, nil)
	assertStatus(t, resp, http.StatusOK)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading archive: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("failed opening archive: %v", err)
	}

	got := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("failed opening archive entry %s: %v", f.Name, err)
		}
		content, _ := io.ReadAll(rc)
		rc.Close()
		got[f.Name] = string(content)
	}
	if got["a.txt"] != "top" || got["sub/b.txt"] != "nested" {
		t.Fatalf("unexpected archive contents: %+v", got)
	}
}

func TestActiveSharesListing(t *testing.T) {
	env := setupTestEnv(t)
	_, token, rootID := createTestUser(t, env, "alice", false)

	first := uploadTestFile(t, env, token, rootID, "a.txt", "x")
	second := uploadTestFile(t, env, token, rootID, "b.txt", "y")
	shareFile(t, env, token, first, map[string]string{})
	shareFile(t, env, token, second, map[string]string{})

	resp := performRequest(t, env.app, http.MethodGet, "/api/shares", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)
	data := responseData(t, resp)
	files, _ := data["files"].([]any)
	if len(files) != 2 {
		t.Fatalf("expected two active file shares, got %d", len(files))
	}
}

func TestTrashedFileShareStopsResolving(t *testing.T) {
	env := setupTestEnv(t)
	_, token, rootID := createTestUser(t, env, "alice", false)

	messageID := uploadTestFile(t, env, token, rootID, "a.txt", "x")
	shareToken := shareFile(t, env, token, messageID, map[string]string{})

	trashItems(t, env, token, []string{messageID}, nil)

	resp := performRequest(t, env.app, http.MethodGet, "/api/public/files/"+shareToken, nil, nil)
	assertStatus(t, resp, http.StatusNotFound)
}
