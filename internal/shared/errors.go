package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrNoRowsAffected indicates a write that matched zero rows. Persistence
	// helpers treat this as a hard failure, never a silent no-op.
	ErrNoRowsAffected = errors.New("no rows affected")
)
