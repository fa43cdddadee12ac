package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	_ "github.com/mattn/go-sqlite3"

	"github.com/nerrad567/gray-logic-discovery/internal/dms"
	"github.com/nerrad567/gray-logic-discovery/internal/flows"
	"github.com/nerrad567/gray-logic-discovery/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-discovery/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-discovery/internal/ssdp"
)

// testServer builds a Server wired to real (but empty) components and
// returns it with its router for direct handler testing.
func testServer(t *testing.T, secret string) (*Server, http.Handler) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	schema := `
		CREATE TABLE discovery_flows (
			id          TEXT PRIMARY KEY,
			domain      TEXT NOT NULL,
			unique_id   TEXT NOT NULL,
			info        TEXT NOT NULL,
			created_at  TEXT NOT NULL,
			UNIQUE (domain, unique_id)
		);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create test schema: %v", err)
	}

	scanner := ssdp.NewScanner(ssdp.Config{}, nil, nil)
	store := flows.NewStore(flows.NewSQLiteRepository(db))
	registry := dms.NewRegistry()

	server, err := New(Deps{
		Config:   config.APIConfig{Host: "127.0.0.1", Port: 0},
		Security: config.SecurityConfig{JWT: config.JWTConfig{Enabled: secret != "", Secret: secret}},
		Logger:   logging.Default(),
		Scanner:  scanner,
		Sources:  registry,
		Flows:    store,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return server, server.buildRouter()
}

func TestNewMissingDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New() with no deps succeeded")
	}
	if _, err := New(Deps{Logger: logging.Default()}); err == nil {
		t.Error("New() without scanner succeeded")
	}
}

func TestHandleHealth(t *testing.T) {
	_, router := testServer(t, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
}

func TestHandleMetrics(t *testing.T) {
	server, router := testServer(t, "")
	server.startedAt = time.Now()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var metrics SystemMetrics
	if err := json.Unmarshal(rec.Body.Bytes(), &metrics); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if metrics.Runtime.Goroutines == 0 {
		t.Error("Goroutines = 0")
	}
	if metrics.Version != "test" {
		t.Errorf("Version = %q", metrics.Version)
	}
}

func TestHealthCheckNotStarted(t *testing.T) {
	server, _ := testServer(t, "")
	if err := server.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() on unstarted server succeeded")
	}
}

// =====================================================================
// Auth middleware
// =====================================================================

func signToken(t *testing.T, secret, subject string, expiry time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": expiry.Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

func TestAuthMiddlewareExplicitlyDisabled(t *testing.T) {
	_, router := testServer(t, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/discovery/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with auth disabled", rec.Code)
	}
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	_, router := testServer(t, "test-secret")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/discovery/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAuthMiddlewareAcceptsValidToken(t *testing.T) {
	_, router := testServer(t, "test-secret")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/discovery/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "test-secret", "panel-1", time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestAuthMiddlewareRejectsExpiredToken(t *testing.T) {
	_, router := testServer(t, "test-secret")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/discovery/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "test-secret", "panel-1", time.Now().Add(-time.Hour)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAuthMiddlewareRejectsWrongSecret(t *testing.T) {
	_, router := testServer(t, "test-secret")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/discovery/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "other-secret", "panel-1", time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	_, router := testServer(t, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not set")
	}

	// Client-provided IDs are echoed back.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "fixed-id" {
		t.Errorf("X-Request-ID = %q, want fixed-id", got)
	}
}
