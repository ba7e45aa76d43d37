package utils

import (
	"github.com/google/uuid"
)

// NewID returns a random UUID string used as a document id.
func NewID() string {
	return uuid.NewString()
}

// IsID reports whether s is a well-formed id produced by NewID.
func IsID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
