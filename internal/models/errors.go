package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the referenced aggregate does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict indicates an optimistic version mismatch on save.
	// The caller must reload the aggregate and retry the whole operation.
	ErrVersionConflict = errors.New("version conflict")

	// ErrDuplicate indicates a uniqueness violation (idempotency key,
	// ticket per order). Not a failure for callers that treat repeated
	// requests as already resolved.
	ErrDuplicate = errors.New("duplicate")
)

// ValidationError describes malformed input, rejected before any mutation
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
