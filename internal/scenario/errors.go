package scenario

import "errors"

// Scenario file errors.
var (
	// ErrInvalidPath is returned when a path has no id, a duplicate id,
	// or periods that are not numbered 1..n.
	ErrInvalidPath = errors.New("invalid scenario path")

	// ErrNoPaths is returned when a scenario file defines no paths.
	ErrNoPaths = errors.New("no scenario paths")

	// ErrInvalidList is returned for a malformed command-line list.
	ErrInvalidList = errors.New("invalid list")
)
