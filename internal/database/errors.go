package database

import "errors"

// ErrCounterNotFound is returned when the sentinel counter row is missing.
// Migrations seed the row, so hitting this indicates a broken deployment
// rather than a normal empty state.
var ErrCounterNotFound = errors.New("view counter not found")
