package models

import "time"

// Subscription records a client's prepaid credit balance for a package period.
type Subscription struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index:idx_subscriptions_user_active,priority:1"` // Owning client ID.

	PackageID uint64  `gorm:"not null;index"`       // Purchased package ID.
	Package   Package `gorm:"foreignKey:PackageID"` // Purchased package record.

	RemainingCredits int `gorm:"not null;default:0;check:remaining_credits >= 0"` // Spendable credit balance.

	StartDate time.Time `gorm:"not null"`                                                // Period start time.
	EndDate   time.Time `gorm:"not null;index:idx_subscriptions_user_active,priority:3"` // Period end time.

	IsActive bool `gorm:"not null;default:true;index:idx_subscriptions_user_active,priority:2"` // Whether the subscription is current.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// ActiveAt reports whether the subscription is usable at the given time.
func (s *Subscription) ActiveAt(now time.Time) bool {
	if s == nil {
		return false
	}
	return s.IsActive && !s.EndDate.Before(now)
}
