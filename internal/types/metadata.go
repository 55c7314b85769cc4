package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Metadata holds client-supplied key-value pairs, persisted as JSONB
type Metadata map[string]string

// Scan implements sql.Scanner so Metadata can be read from a JSONB column
func (m *Metadata) Scan(value any) error {
	if value == nil {
		*m = make(Metadata)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("metadata: cannot scan %T into JSONB", value)
	}

	result := make(Metadata)
	err := json.Unmarshal(bytes, &result)
	*m = result
	return err
}

// Value implements driver.Valuer, writing nil maps as an empty JSONB object
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return json.Marshal(make(Metadata))
	}
	return json.Marshal(m)
}
