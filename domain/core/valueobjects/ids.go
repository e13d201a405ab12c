package valueobjects

import (
	"errors"

	"github.com/google/uuid"
)

// NewID generates a new random identifier for any entity
func NewID() string {
	return uuid.New().String()
}

// ValidateID checks that an identifier is a well-formed UUID
func ValidateID(id string) error {
	if id == "" {
		return errors.New("id cannot be empty")
	}
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("id must be a valid UUID")
	}
	return nil
}
