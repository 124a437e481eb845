package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CreditEngine/internal/accounting"
	"github.com/router-for-me/CreditEngine/internal/config"
	"github.com/router-for-me/CreditEngine/internal/db"
	"github.com/router-for-me/CreditEngine/internal/models"
	"github.com/router-for-me/CreditEngine/internal/security"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "app-test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	return conn
}

func TestHasAdminInitialized(t *testing.T) {
	conn := openTestDB(t)

	initialized, err := HasAdminInitialized(conn)
	if err != nil {
		t.Fatalf("HasAdminInitialized: %v", err)
	}
	if initialized {
		t.Fatalf("expected initialized=false before migrate")
	}

	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	client := models.User{Username: "client", Role: models.UserRoleClient, Active: true}
	if errCreate := conn.Create(&client).Error; errCreate != nil {
		t.Fatalf("create client: %v", errCreate)
	}
	initialized, err = HasAdminInitialized(conn)
	if err != nil {
		t.Fatalf("HasAdminInitialized after migrate: %v", err)
	}
	if initialized {
		t.Fatalf("expected initialized=false with only a client account")
	}

	if _, errAdmin := EnsureAdminUser(conn, "admin"); errAdmin != nil {
		t.Fatalf("EnsureAdminUser: %v", errAdmin)
	}
	initialized, err = HasAdminInitialized(conn)
	if err != nil {
		t.Fatalf("HasAdminInitialized after seed: %v", err)
	}
	if !initialized {
		t.Fatalf("expected initialized=true after admin created")
	}
}

func TestEnsureAdminUserIsIdempotent(t *testing.T) {
	conn := openTestDB(t)
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	first, errFirst := EnsureAdminUser(conn, " admin ")
	if errFirst != nil {
		t.Fatalf("EnsureAdminUser: %v", errFirst)
	}
	second, errSecond := EnsureAdminUser(conn, "admin")
	if errSecond != nil {
		t.Fatalf("EnsureAdminUser again: %v", errSecond)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same admin id, got %d and %d", first.ID, second.ID)
	}

	client := models.User{Username: "bob", Role: models.UserRoleClient, Active: true}
	if errCreate := conn.Create(&client).Error; errCreate != nil {
		t.Fatalf("create client: %v", errCreate)
	}
	if _, errPromote := EnsureAdminUser(conn, "bob"); errPromote == nil {
		t.Fatalf("expected error for existing non-admin user")
	}
	if _, errEmpty := EnsureAdminUser(conn, "  "); errEmpty == nil {
		t.Fatalf("expected error for empty username")
	}
}

func TestIssueAdminToken(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	dsn := filepath.Join(dir, "engine.db")
	content := "database-dsn: " + dsn + "\njwt:\n  secret: app-test-secret\n  expiry: 1h\n"
	if errWrite := os.WriteFile(configPath, []byte(content), 0o600); errWrite != nil {
		t.Fatalf("write config: %v", errWrite)
	}
	t.Setenv(config.EnvDBConnection, "")
	t.Setenv(config.EnvJWTSecret, "")

	token, errIssue := IssueAdminToken(context.Background(), config.AppConfig{ConfigPath: configPath}, "ops")
	if errIssue != nil {
		t.Fatalf("IssueAdminToken: %v", errIssue)
	}
	claims, errParse := security.ParseUserToken("app-test-secret", token)
	if errParse != nil {
		t.Fatalf("parse token: %v", errParse)
	}
	if claims.Role != string(models.UserRoleAdmin) {
		t.Fatalf("expected admin role, got %q", claims.Role)
	}
}

func TestRouterServesHealthAndMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	conn := openTestDB(t)
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	r := NewRouter(conn, config.JWTConfig{Secret: "s", Expiry: time.Hour}, accounting.NewEngine(conn, accounting.Options{}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from healthz, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from metrics, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Fatalf("expected default collectors in metrics output")
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v0/front/packages", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from packages, got %d", rec.Code)
	}
}
