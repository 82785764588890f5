package store

import "errors"

// ErrNotFound is returned when an update targets a record that does not exist
// for the calling organization.
var ErrNotFound = errors.New("not found")
