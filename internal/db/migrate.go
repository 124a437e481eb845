package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/router-for-me/CreditEngine/internal/models"
	internalsettings "github.com/router-for-me/CreditEngine/internal/settings"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite:
		return migrateSQLite(conn)
	case DialectPostgres, "":
		return migratePostgres(conn)
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}
}

// allModels lists every table owned by the engine.
func allModels() []any {
	return []any{
		&models.User{},
		&models.Package{},
		&models.Subscription{},
		&models.ServiceType{},
		&models.Request{},
		&models.CreditTransaction{},
		&models.Setting{},
	}
}

// migratePostgres applies PostgreSQL-specific schema updates and indexes.
func migratePostgres(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(allModels()...); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	if errDeactivate := deactivateDuplicateActiveSubscriptions(conn); errDeactivate != nil {
		return errDeactivate
	}
	if errCheck := conn.Exec(`
		DO $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1 FROM pg_constraint WHERE conname = 'chk_requests_revision_counts'
			) THEN
				ALTER TABLE requests
				ADD CONSTRAINT chk_requests_revision_counts
				CHECK (current_revision_count >= 0 AND total_revisions >= 0);
			END IF;
		END $$;
	`).Error; errCheck != nil {
		return fmt.Errorf("db: add request revision check: %w", errCheck)
	}

	return ensureDefaultSettings(conn)
}

// migrateSQLite applies SQLite-specific schema updates and indexes.
func migrateSQLite(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(allModels()...); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	if errDeactivate := deactivateDuplicateActiveSubscriptions(conn); errDeactivate != nil {
		return errDeactivate
	}

	return ensureDefaultSettings(conn)
}

// deactivateDuplicateActiveSubscriptions keeps only the newest active subscription per user.
func deactivateDuplicateActiveSubscriptions(conn *gorm.DB) error {
	if errUpdate := conn.Exec(`
		UPDATE subscriptions
		SET is_active = ?
		WHERE is_active = ?
		AND id NOT IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY user_id ORDER BY created_at DESC, id DESC
				) AS rn
				FROM subscriptions
				WHERE is_active = ?
			) ranked
			WHERE rn = 1
		)
	`, false, true, true).Error; errUpdate != nil {
		return fmt.Errorf("db: deactivate duplicate subscriptions: %w", errUpdate)
	}
	return nil
}

// ensureDefaultSettings seeds runtime settings with their defaults.
func ensureDefaultSettings(conn *gorm.DB) error {
	if errEnsure := ensureIntSetting(conn, internalsettings.SpendThrottleLimitKey, internalsettings.DefaultSpendThrottleLimit); errEnsure != nil {
		return errEnsure
	}
	if errEnsure := ensureIntSetting(conn, internalsettings.MinFeedbackLengthKey, internalsettings.DefaultMinFeedbackLength); errEnsure != nil {
		return errEnsure
	}
	return nil
}

// ensureIntSetting ensures an integer setting exists and defaults when empty.
func ensureIntSetting(conn *gorm.DB, key string, value int) error {
	payload, errMarshal := json.Marshal(value)
	if errMarshal != nil {
		return fmt.Errorf("db: marshal %s setting: %w", key, errMarshal)
	}
	rawValue := models.SettingValue(payload)

	var existing models.Setting
	if errFind := conn.Where("key = ?", key).First(&existing).Error; errFind == nil {
		trimmed := strings.TrimSpace(string(existing.Value))
		if len(existing.Value) == 0 || trimmed == "" || trimmed == "null" {
			if errUpdate := conn.Model(&existing).Updates(map[string]any{
				"value":      rawValue,
				"updated_at": time.Now().UTC(),
			}).Error; errUpdate != nil {
				return fmt.Errorf("db: update %s setting: %w", key, errUpdate)
			}
		}
		return nil
	} else if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return fmt.Errorf("db: query %s setting: %w", key, errFind)
	}

	setting := models.Setting{
		Key:       key,
		Value:     rawValue,
		UpdatedAt: time.Now().UTC(),
	}
	if errCreate := conn.Create(&setting).Error; errCreate != nil {
		return fmt.Errorf("db: create %s setting: %w", key, errCreate)
	}
	return nil
}
