package store

import "github.com/google/uuid"

// NewID returns a store-assigned project identifier.
func NewID() string {
	return uuid.NewString()
}
