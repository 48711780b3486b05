// Package services implements the lookup logic of the mirror: identity
// validation, batch reconciliation against the entity store, refresh
// scheduling and file redirect resolution. This file centralizes the
// service-level error values so that callers can check them with errors.Is.
//
// Translation into HTTP status codes is performed at the handler layer.
package services

import "errors"

var (
	// ErrInvalidIdentity is returned when a caller-supplied id, slug or hash
	// fails shape validation. The store is never touched in that case.
	ErrInvalidIdentity = errors.New("invalid identity")

	// ErrEmptyBatch is returned when a batch lookup names no ids at all.
	ErrEmptyBatch = errors.New("batch is empty")

	// ErrBatchTooLarge is returned when a batch lookup exceeds MaxBatch ids.
	ErrBatchTooLarge = errors.New("batch too large")

	// ErrUnsupportedAlgorithm is returned for hash algorithms other than
	// sha1 and sha512.
	ErrUnsupportedAlgorithm = errors.New("unsupported hash algorithm")

	// ErrBadCursor is returned for a pagination cursor the inventory did
	// not issue.
	ErrBadCursor = errors.New("bad cursor")
)
