package models

import "time"

// CreditTransaction records one mutation of a subscription balance.
type CreditTransaction struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Reference string `gorm:"type:varchar(36);not null;uniqueIndex"` // External reference (UUID).

	UserID         uint64 `gorm:"not null;index"` // Client ID.
	SubscriptionID uint64 `gorm:"not null;index"` // Mutated subscription ID.

	Delta        int    `gorm:"not null"`  // Signed credit change.
	BalanceAfter int    `gorm:"not null"`  // Balance after the change.
	Reason       string `gorm:"type:text"` // Caller-supplied reason.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
