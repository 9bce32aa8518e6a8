// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// confirmation service and handlers to distinguish between different
// failure scenarios. ErrVersionConflict is the optimistic concurrency
// signal: the row exists but was written by someone else since it was
// read, so the caller must re-read and retry.
package repository

import "errors"

// ErrSpotNotFound is returned when no spot row exists for the given id.
var ErrSpotNotFound = errors.New("spot not found")

// ErrEventNotFound is returned when no event row exists for the given id.
var ErrEventNotFound = errors.New("event not found")

// ErrVersionConflict is returned by CompareAndSwap when the stored
// version differs from the expected one.
var ErrVersionConflict = errors.New("version conflict")

// ErrConflict is returned when an insert collides with an existing
// row, such as creating a spot with an id already in use. Handlers
// should translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")
