package domain

import "errors"

var (
	// ErrInvalidState is returned when an operation targets a challenge or relationship in a
	// terminal or otherwise incompatible state. The caller keeps the existing state.
	ErrInvalidState = errors.New("invalid state")

	// ErrOutOfRange covers negative XP, malformed date ranges and XP totals no level covers.
	ErrOutOfRange = errors.New("out of range")

	// ErrUnsatisfiableRule flags a challenge rule that can never complete nor fail.
	ErrUnsatisfiableRule = errors.New("unsatisfiable rule")

	ErrNotFound = errors.New("not found")
)
