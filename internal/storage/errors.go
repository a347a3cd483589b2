// Package storage implements the postgres persistence layer with gorm.
package storage

import "errors"

var (
	// ErrNotFound reports a lookup miss for a required record.
	ErrNotFound = errors.New("record not found")
	// ErrConflict reports a lost revision race on a session row. The
	// caller should reload the session and retry once.
	ErrConflict = errors.New("session modified concurrently")
)
