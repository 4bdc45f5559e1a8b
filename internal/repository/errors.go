package repository

import "errors"

var (
	// ErrNotFound covers both a missing document and one outside the caller's
	// store scope; callers cannot tell the two apart.
	ErrNotFound = errors.New("document not found")

	// ErrCASMismatch is returned when a compare-and-set write lost to a
	// concurrent writer.
	ErrCASMismatch = errors.New("document revision changed concurrently")

	// ErrUniqueTaken is returned when a unique-field reservation already
	// belongs to another record.
	ErrUniqueTaken = errors.New("unique value already reserved")

	// ErrConflictTerminal is returned when a conflict in a terminal status is
	// asked to transition again.
	ErrConflictTerminal = errors.New("conflict already in terminal status")
)
