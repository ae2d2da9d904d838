package valueobjects

import (
	"encoding/json"

	"github.com/google/uuid"

	pkgerrors "unimem/pkg/errors"
)

// MemoryID identifies one memory unit and its vector record.
type MemoryID struct {
	value string
}

// NewMemoryID creates a new random MemoryID
func NewMemoryID() MemoryID {
	return MemoryID{value: uuid.New().String()}
}

// ParseMemoryID validates an externally supplied id.
func ParseMemoryID(id string) (MemoryID, error) {
	if id == "" {
		return MemoryID{}, pkgerrors.NewValidationError("memory ID cannot be empty")
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return MemoryID{}, pkgerrors.NewValidationError("memory ID must be a valid UUID")
	}
	return MemoryID{value: parsed.String()}, nil
}

func (id MemoryID) String() string {
	return id.value
}

func (id MemoryID) Equals(other MemoryID) bool {
	return id.value == other.value
}

func (id MemoryID) IsZero() bool {
	return id.value == ""
}

// MarshalJSON implements json.Marshaler
func (id MemoryID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.value)
}

// UnmarshalJSON implements json.Unmarshaler
func (id *MemoryID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return pkgerrors.NewValidationError("memory ID must be a string")
	}
	parsed, err := ParseMemoryID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
