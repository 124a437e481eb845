package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/router-for-me/CreditEngine/internal/models"
	internalsettings "github.com/router-for-me/CreditEngine/internal/settings"
)

func TestIsPostgresDSN(t *testing.T) {
	cases := map[string]bool{
		"postgres://u:p@localhost:5432/credits":       true,
		"postgresql://localhost/credits":              true,
		"host=localhost user=u dbname=credits":        true,
		"file:credits.db?_pragma=busy_timeout(5000)":  false,
		"/var/lib/credits/credits.db":                 false,
	}
	for dsn, want := range cases {
		if got := isPostgresDSN(dsn); got != want {
			t.Fatalf("dsn %q: expected %v, got %v", dsn, want, got)
		}
	}
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}

func TestMigrateSQLite(t *testing.T) {
	conn, errOpen := Open(filepath.Join(t.TempDir(), "credits.db"))
	if errOpen != nil {
		t.Fatalf("open: %v", errOpen)
	}
	if !IsSQLite(conn) {
		t.Fatalf("expected sqlite dialect, got %q", DialectName(conn))
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	// Running twice must be harmless.
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("second migrate: %v", errMigrate)
	}

	var settings []models.Setting
	if errFind := conn.Find(&settings).Error; errFind != nil {
		t.Fatalf("load settings: %v", errFind)
	}
	keys := make(map[string]bool, len(settings))
	for _, s := range settings {
		keys[s.Key] = true
	}
	if !keys[internalsettings.SpendThrottleLimitKey] || !keys[internalsettings.MinFeedbackLengthKey] {
		t.Fatalf("expected default settings seeded, got %v", keys)
	}
}

func TestMigrateTwiceThenRefreshSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credits.db")
	conn, errOpen := Open(path)
	if errOpen != nil {
		t.Fatalf("open: %v", errOpen)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	if errUpdate := conn.Model(&models.Setting{}).Where("key = ?", internalsettings.MinFeedbackLengthKey).
		Update("value", models.SettingValue(`40`)).Error; errUpdate != nil {
		t.Fatalf("update setting: %v", errUpdate)
	}
	// An integer literal written by another tool must still load.
	if errExec := conn.Exec("UPDATE settings SET value = 3 WHERE key = ?", internalsettings.SpendThrottleLimitKey).Error; errExec != nil {
		t.Fatalf("raw update: %v", errExec)
	}

	sqlDB, errDB := conn.DB()
	if errDB != nil {
		t.Fatalf("sql db: %v", errDB)
	}
	_ = sqlDB.Close()

	reopened, errReopen := Open(path)
	if errReopen != nil {
		t.Fatalf("reopen: %v", errReopen)
	}
	if errMigrate := Migrate(reopened); errMigrate != nil {
		t.Fatalf("second migrate: %v", errMigrate)
	}
	t.Cleanup(func() { internalsettings.StoreDBConfig(nil) })
	if errRefresh := internalsettings.Refresh(context.Background(), reopened); errRefresh != nil {
		t.Fatalf("refresh: %v", errRefresh)
	}
	if got := internalsettings.IntValue(internalsettings.MinFeedbackLengthKey, 0); got != 40 {
		t.Fatalf("expected min feedback 40, got %d", got)
	}
	if got := internalsettings.IntValue(internalsettings.SpendThrottleLimitKey, 0); got != 3 {
		t.Fatalf("expected throttle limit 3, got %d", got)
	}
}

func TestMigrateDeactivatesDuplicateActiveSubscriptions(t *testing.T) {
	conn, errOpen := Open(filepath.Join(t.TempDir(), "credits.db"))
	if errOpen != nil {
		t.Fatalf("open: %v", errOpen)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	for i := 0; i < 3; i++ {
		sub := models.Subscription{UserID: 7, PackageID: 1, RemainingCredits: 5, IsActive: true}
		if errCreate := conn.Create(&sub).Error; errCreate != nil {
			t.Fatalf("create subscription: %v", errCreate)
		}
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	var active []models.Subscription
	if errFind := conn.Where("user_id = ? AND is_active = ?", 7, true).Find(&active).Error; errFind != nil {
		t.Fatalf("load subscriptions: %v", errFind)
	}
	if len(active) != 1 || active[0].ID != 3 {
		t.Fatalf("expected only subscription 3 active, got %+v", active)
	}
}

func TestMigrateKeepsNewestSubscriptionByCreatedAt(t *testing.T) {
	conn, errOpen := Open(filepath.Join(t.TempDir(), "credits.db"))
	if errOpen != nil {
		t.Fatalf("open: %v", errOpen)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	// Insert order differs from creation order: the row with the lowest id is newest.
	createdAt := []time.Time{base.Add(48 * time.Hour), base, base.Add(24 * time.Hour)}
	ids := make([]uint64, 0, len(createdAt))
	for _, at := range createdAt {
		sub := models.Subscription{UserID: 9, PackageID: 1, RemainingCredits: 5, IsActive: true, CreatedAt: at, UpdatedAt: at}
		if errCreate := conn.Create(&sub).Error; errCreate != nil {
			t.Fatalf("create subscription: %v", errCreate)
		}
		ids = append(ids, sub.ID)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	var active []models.Subscription
	if errFind := conn.Where("user_id = ? AND is_active = ?", 9, true).Find(&active).Error; errFind != nil {
		t.Fatalf("load subscriptions: %v", errFind)
	}
	if len(active) != 1 || active[0].ID != ids[0] {
		t.Fatalf("expected subscription %d active, got %+v", ids[0], active)
	}
}
