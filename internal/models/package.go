package models

import "time"

// Package represents a purchasable credit package.
type Package struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name        string  `gorm:"type:varchar(255);not null"`            // Package name.
	Description string  `gorm:"type:text"`                             // Package description.
	Price       float64 `gorm:"type:decimal(10,2);not null;default:0"` // Package price.

	Credits      int `gorm:"not null;default:0"`  // Credits granted on subscribe.
	DurationDays int `gorm:"not null;default:30"` // Subscription length in days.

	SortOrder int  `gorm:"not null;default:0"`    // Display ordering weight.
	IsEnabled bool `gorm:"not null;default:true"` // Whether the package can be purchased.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
