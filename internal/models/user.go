package models

import "time"

// UserRole identifies the marketplace role of an account.
type UserRole string

// UserRole constants define marketplace roles.
const (
	// UserRoleClient submits and pays for requests.
	UserRoleClient UserRole = "client"
	// UserRoleProvider fulfills requests.
	UserRoleProvider UserRole = "provider"
	// UserRoleAdmin manages packages and service types.
	UserRoleAdmin UserRole = "admin"
)

// User represents a marketplace account referenced by subscriptions and requests.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username string   `gorm:"type:text;not null;uniqueIndex"`             // Unique login name.
	Name     string   `gorm:"type:text"`                                  // Display name.
	Email    string   `gorm:"type:text;index"`                            // Email address.
	Role     UserRole `gorm:"type:varchar(16);not null;default:'client'"` // Marketplace role.

	Active bool `gorm:"not null;default:true"` // Whether the account is usable.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
