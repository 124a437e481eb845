package models

import (
	"time"

	"gorm.io/datatypes"
)

// AttributeType identifies the input kind of a service-type question.
type AttributeType string

// AttributeType constants define supported question kinds.
const (
	AttributeTypeText        AttributeType = "text"
	AttributeTypeTextarea    AttributeType = "textarea"
	AttributeTypeNumber      AttributeType = "number"
	AttributeTypeSelect      AttributeType = "select"
	AttributeTypeMultiselect AttributeType = "multiselect"
)

// OptionCost assigns an explicit credit cost to one select option.
type OptionCost struct {
	Value string `json:"value"`
	Cost  int    `json:"cost"`
}

// Attribute is a dynamic question defined by a service type.
type Attribute struct {
	ID               string        `json:"id,omitempty"`
	Question         string        `json:"question"`
	Type             AttributeType `json:"type"`
	Required         bool          `json:"required,omitempty"`
	Options          []string      `json:"options,omitempty"`
	CreditImpact     float64       `json:"credit_impact,omitempty"`
	IncludedQuantity *float64      `json:"included_quantity,omitempty"`
	OptionsWithCost  []OptionCost  `json:"options_with_cost,omitempty"`
}

// ServiceType holds pricing and revision policy for a kind of request.
type ServiceType struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name        string `gorm:"type:varchar(255);not null"` // Service type name.
	Description string `gorm:"type:text"`                  // Service type description.

	CreditCost int `gorm:"not null;default:0"` // Base credit cost per request.

	MaxFreeRevisions         int  `gorm:"not null;default:0"`     // Free revisions per request.
	PaidRevisionCost         int  `gorm:"not null;default:0"`     // Credits per paid revision.
	ResetFreeRevisionsOnPaid bool `gorm:"not null;default:false"` // Whether a paid revision re-grants the free allotment.

	PriorityCostLow    *int // Surcharge for low priority; nil uses the default.
	PriorityCostMedium *int // Surcharge for medium priority; nil uses the default.
	PriorityCostHigh   *int // Surcharge for high priority; nil uses the default.

	Attributes datatypes.JSONSlice[Attribute] `gorm:"type:jsonb"` // Dynamic questions.

	IsEnabled bool `gorm:"not null;default:true"` // Whether new requests may use it.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
