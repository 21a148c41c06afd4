package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func setupResponseTestApp() *fiber.App {
	app := fiber.New()

	app.Get("/success", func(c *fiber.Ctx) error {
		return Success(c, fiber.StatusCreated, fiber.Map{"id": "123"})
	})

	app.Get("/error", func(c *fiber.Ctx) error {
		return Error(c, fiber.StatusBadRequest, "invalid input")
	})

	return app
}

func performResponseTestRequest(t *testing.T, app *fiber.App, path string) (int, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed decoding response body: %v", err)
	}
	return resp.StatusCode, body
}

func TestSuccess(t *testing.T) {
	app := setupResponseTestApp()

	status, body := performResponseTestRequest(t, app, "/success")
	if status != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, status)
	}
	if body["success"] != true {
		t.Fatalf("expected success envelope, got %v", body)
	}
	data, ok := body["data"].(map[string]any)
	if !ok || data["id"] != "123" {
		t.Fatalf("expected data with id 123, got %v", body["data"])
	}
}

func TestError(t *testing.T) {
	app := setupResponseTestApp()

	status, body := performResponseTestRequest(t, app, "/error")
	if status != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, status)
	}
	if body["success"] != false {
		t.Fatalf("expected failure envelope, got %v", body)
	}
	if body["error"] != "invalid input" {
		t.Fatalf("expected error message, got %v", body["error"])
	}
}
