package models

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Setting stores a runtime configuration value as JSON.
type Setting struct {
	Key   string       `gorm:"primaryKey;type:varchar(128)"` // Setting key.
	Value SettingValue // JSON encoded value.

	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// SettingValue is a raw JSON document. SQLite may hand scalar JSON back as a
// number, so Scan accepts numeric and text driver values alike.
type SettingValue []byte

// GormDBDataType stores the value as jsonb on postgres and text elsewhere.
func (SettingValue) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db != nil && db.Dialector != nil && db.Dialector.Name() == "postgres" {
		return "jsonb"
	}
	return "text"
}

// Value implements driver.Valuer.
func (v SettingValue) Value() (driver.Value, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return string(v), nil
}

// Scan implements sql.Scanner.
func (v *SettingValue) Scan(src any) error {
	switch raw := src.(type) {
	case nil:
		*v = nil
	case []byte:
		*v = append(SettingValue(nil), raw...)
	case string:
		*v = SettingValue(raw)
	case int64:
		*v = SettingValue(strconv.FormatInt(raw, 10))
	case float64:
		*v = SettingValue(strconv.FormatFloat(raw, 'f', -1, 64))
	case bool:
		*v = SettingValue(strconv.FormatBool(raw))
	default:
		return fmt.Errorf("models: unsupported setting value type %T", src)
	}
	return nil
}

// MarshalJSON emits the stored document verbatim.
func (v SettingValue) MarshalJSON() ([]byte, error) {
	if len(v) == 0 {
		return []byte("null"), nil
	}
	return []byte(v), nil
}
