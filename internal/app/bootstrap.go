package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/router-for-me/CreditEngine/internal/config"
	"github.com/router-for-me/CreditEngine/internal/db"
	"github.com/router-for-me/CreditEngine/internal/models"
	"github.com/router-for-me/CreditEngine/internal/security"
	"gorm.io/gorm"
)

var errEmptyUsername = errors.New("username is required")

// ConfigExists reports whether the config file exists at the path.
func ConfigExists(configPath string) bool {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return false
	}
	return true
}

// HasAdminInitialized reports whether the system has at least one admin account.
func HasAdminInitialized(conn *gorm.DB) (bool, error) {
	if conn == nil {
		return false, fmt.Errorf("nil db")
	}
	if !conn.Migrator().HasTable(&models.User{}) {
		return false, nil
	}
	var count int64
	if errCount := conn.Model(&models.User{}).Where("role = ?", models.UserRoleAdmin).Count(&count).Error; errCount != nil {
		return false, errCount
	}
	return count > 0, nil
}

// EnsureAdminUser returns the named admin, creating it when absent.
func EnsureAdminUser(conn *gorm.DB, username string) (models.User, error) {
	if conn == nil {
		return models.User{}, fmt.Errorf("open database: nil connection")
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return models.User{}, errEmptyUsername
	}

	var user models.User
	if errFind := conn.Where("username = ?", username).Limit(1).Find(&user).Error; errFind != nil {
		return models.User{}, fmt.Errorf("load user: %w", errFind)
	}
	if user.ID != 0 {
		if user.Role != models.UserRoleAdmin {
			return models.User{}, fmt.Errorf("user %q exists without the admin role", username)
		}
		return user, nil
	}

	now := time.Now().UTC()
	user = models.User{
		Username:  username,
		Role:      models.UserRoleAdmin,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		return models.User{}, fmt.Errorf("create admin: %w", errCreate)
	}
	return user, nil
}

// IssueAdminToken migrates the database, ensures the admin exists and signs
// a bearer token for it.
func IssueAdminToken(ctx context.Context, cfg config.AppConfig, username string) (string, error) {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return "", err
	}
	jwtConfig, errJWT := config.LoadJWTConfig(configPath)
	if errJWT != nil {
		return "", errJWT
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return "", fmt.Errorf("open database: %w", err)
	}
	conn = conn.WithContext(ctx)
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return "", fmt.Errorf("migrate database: %w", errMigrate)
	}
	admin, errAdmin := EnsureAdminUser(conn, username)
	if errAdmin != nil {
		return "", errAdmin
	}
	return security.IssueUserToken(jwtConfig.Secret, admin.ID, string(admin.Role), jwtConfig.Expiry, time.Now())
}
