package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"gorm.io/datatypes"
)

// RequestStatus represents the lifecycle state of a service request.
type RequestStatus string

// RequestStatus constants define request lifecycle states.
const (
	RequestStatusPending           RequestStatus = "PENDING"
	RequestStatusInProgress        RequestStatus = "IN_PROGRESS"
	RequestStatusDelivered         RequestStatus = "DELIVERED"
	RequestStatusRevisionRequested RequestStatus = "REVISION_REQUESTED"
	RequestStatusCompleted         RequestStatus = "COMPLETED"
	RequestStatusCancelled         RequestStatus = "CANCELLED"
)

// RevisionType labels how the latest revision was paid for.
type RevisionType string

// RevisionType constants.
const (
	RevisionTypeFree RevisionType = "free"
	RevisionTypePaid RevisionType = "paid"
)

// Priority is the urgency level chosen by the client.
type Priority string

// Priority constants.
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// AnswerValue holds either a single answer or a list of selected options.
type AnswerValue struct {
	Single string
	Multi  []string
	IsList bool
}

// TextAnswer builds a single-valued answer.
func TextAnswer(v string) AnswerValue { return AnswerValue{Single: v} }

// ListAnswer builds a multi-valued answer.
func ListAnswer(v ...string) AnswerValue { return AnswerValue{Multi: v, IsList: true} }

// Values returns the answer as a list regardless of its shape.
func (a AnswerValue) Values() []string {
	if a.IsList {
		return a.Multi
	}
	if a.Single == "" {
		return nil
	}
	return []string{a.Single}
}

// MarshalJSON encodes the answer as a string or a string array.
func (a AnswerValue) MarshalJSON() ([]byte, error) {
	if a.IsList {
		if a.Multi == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(a.Multi)
	}
	return json.Marshal(a.Single)
}

// UnmarshalJSON accepts a string, a number, or an array of strings.
func (a *AnswerValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*a = AnswerValue{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	switch data[0] {
	case '[':
		var list []string
		if errList := json.Unmarshal(data, &list); errList != nil {
			return fmt.Errorf("answer: %w", errList)
		}
		a.Multi = list
		a.IsList = true
		return nil
	case '"':
		return json.Unmarshal(data, &a.Single)
	default:
		var num float64
		if errNum := json.Unmarshal(data, &num); errNum != nil {
			return fmt.Errorf("answer: unsupported value %s", string(data))
		}
		a.Single = strconv.FormatFloat(num, 'f', -1, 64)
		return nil
	}
}

// AttributeResponse is a client's answer to a service-type question.
type AttributeResponse struct {
	AttributeID string      `json:"attribute_id,omitempty"`
	Question    string      `json:"question"`
	Answer      AnswerValue `json:"answer"`
}

// Request is a client-submitted unit of paid work.
type Request struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ClientID   uint64  `gorm:"not null;index"` // Submitting client ID.
	ProviderID *uint64 `gorm:"index"`          // Assigned provider ID.

	ServiceTypeID uint64      `gorm:"not null;index"`           // Service type ID.
	ServiceType   ServiceType `gorm:"foreignKey:ServiceTypeID"` // Service type record.

	Title    string        `gorm:"type:varchar(255)"`                           // Short request title.
	Priority Priority      `gorm:"type:varchar(16);not null;default:'low'"`     // Chosen priority.
	Status   RequestStatus `gorm:"type:varchar(32);not null;default:'PENDING'"` // Lifecycle state.

	CreditCost int `gorm:"not null;default:0"` // Credits charged so far.

	CurrentRevisionCount int           `gorm:"not null;default:0"`     // Free revisions consumed in the current allotment.
	TotalRevisions       int           `gorm:"not null;default:0"`     // All revisions ever requested.
	IsRevision           bool          `gorm:"not null;default:false"` // Whether the request is in a revision cycle.
	RevisionType         *RevisionType `gorm:"type:varchar(8)"`        // How the latest revision was paid for.

	AttributeResponses datatypes.JSONSlice[AttributeResponse] `gorm:"type:jsonb"` // Answers to service-type questions.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
