package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/portal/internal/config"
	"github.com/hitoshi/portal/internal/repository"
)

func setTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SESSION_STORE", "memory")
	t.Setenv("GOOGLE_CLIENT_ID", "test-client-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "test-client-secret")
	t.Setenv("GOOGLE_REDIRECT_URL", "http://localhost:8080/auth/callback")
	t.Setenv("BASE_URL", "http://localhost:3000/")
	t.Setenv("NEWS_FEED_URL", "")
	t.Setenv("KAFKA_BROKERS", "")
}

func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()
	setTestEnv(t)
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	return cfg
}

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	setTestEnv(t)
	t.Setenv("LOG_LEVEL", "warn")

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if cfg.SessionStore != config.SessionStoreMemory {
		t.Errorf("SessionStore = %q", cfg.SessionStore)
	}

	slog.Info("suppressed")
	slog.Warn("init test")
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected a single JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "init test" || entry["service"] != "portal" {
		t.Errorf("unexpected log entry: %v", entry)
	}
}

func TestInit_WithMissingConfig_ReturnsError(t *testing.T) {
	setTestEnv(t)
	t.Setenv("GOOGLE_CLIENT_ID", "")

	cfg, err := Init(&bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error for missing GOOGLE_CLIENT_ID")
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}
}

func TestRun_WithMissingEnv_ReturnsError(t *testing.T) {
	setTestEnv(t)
	t.Setenv("BASE_URL", "")

	if err := Run(&bytes.Buffer{}, []string{"serve"}); err == nil {
		t.Fatal("Run with missing env should return error")
	}
}

func TestRun_Worker_NonPostgresStoreExitsCleanly(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	if err := Run(&buf, []string{"worker"}); err != nil {
		t.Fatalf("Run(worker) = %v", err)
	}
	if !strings.Contains(buf.String(), "cleanup worker is not required") {
		t.Errorf("expected skip log, got %s", buf.String())
	}
}

func TestRun_Migrate_RequiresPostgres(t *testing.T) {
	setTestEnv(t)

	err := Run(&bytes.Buffer{}, []string{"migrate"})
	if err == nil || !strings.Contains(err.Error(), "SESSION_STORE=postgres") {
		t.Fatalf("Run(migrate) = %v, want SESSION_STORE error", err)
	}
}

func TestOpenSessionStore_Memory(t *testing.T) {
	cfg := loadTestConfig(t)

	store, closeStore, err := openSessionStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("openSessionStore: %v", err)
	}
	defer closeStore()

	if _, ok := store.(*repository.MemorySessionStore); !ok {
		t.Errorf("store = %T, want *MemorySessionStore", store)
	}
}

func TestBuildHandler_ServesPublicRoutes(t *testing.T) {
	cfg := loadTestConfig(t)
	store := repository.NewMemorySessionStore(repository.StoreConfig{TTL: time.Hour})

	router, shutdown, err := buildHandler(cfg, store, slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))
	if err != nil {
		t.Fatalf("buildHandler: %v", err)
	}
	defer shutdown()

	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{"/health", http.StatusOK, `"status":"ok"`},
		{"/auth/session", http.StatusOK, `"granted":false`},
		{"/api/csrf-token", http.StatusOK, "token"},
		{"/api/dashboard", http.StatusUnauthorized, "NOT_AUTHENTICATED"},
		{"/metrics", http.StatusOK, "go_goroutines"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("body %q does not contain %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestBuildHandler_InvalidTimezone(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.DisplayTimezone = "Mars/Olympus_Mons"

	_, _, err := buildHandler(cfg, repository.NewMemorySessionStore(repository.StoreConfig{}), slog.Default())
	if err == nil || !strings.Contains(err.Error(), "DISPLAY_TIMEZONE") {
		t.Errorf("err = %v, want DISPLAY_TIMEZONE error", err)
	}
}

func TestMaskDatabaseURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://portal:secret@db:5432/portal?sslmode=disable", "postgres://portal:xxxxx@db:5432/portal?sslmode=disable"},
		{"postgres://db:5432/portal", "postgres://db:5432/portal"},
		{"not a url", "***"},
		{"", "***"},
	}
	for _, tt := range tests {
		if got := maskDatabaseURL(tt.in); got != tt.want {
			t.Errorf("maskDatabaseURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
