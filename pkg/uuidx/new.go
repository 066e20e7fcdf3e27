// Package uuidx issues time-ordered identifiers for event records.
package uuidx

import "github.com/google/uuid"

// New returns a fresh version 7 UUID. Version 7 keeps identifiers roughly
// sortable by creation time. It panics if generation fails.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}
