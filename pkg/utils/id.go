package utils

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateRunID returns a run identifier prefixed with the search kind.
// UUIDv7 keeps ids roughly time ordered.
func GenerateRunID(kind string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	if kind == "" {
		return "run-" + id.String()
	}
	return fmt.Sprintf("%s-%s", kind, id.String())
}

// GenerateID returns a random identifier
func GenerateID() string {
	return uuid.NewString()
}
