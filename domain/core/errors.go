package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions for the CRB entity model.
var (
	// Not found errors
	ErrNotFound       = errors.New("resource not found")
	ErrRunNotFound    = fmt.Errorf("%w: run", ErrNotFound)
	ErrBasisNotFound  = fmt.Errorf("%w: basis element", ErrNotFound)
	ErrTableNotFound  = fmt.Errorf("%w: operator table", ErrNotFound)
	ErrArchiveMissing = fmt.Errorf("%w: persisted archive", ErrNotFound)

	// Invariant violations (spec.md §3)
	ErrSizeMismatch      = errors.New("|WN| != |WN_dual| or inconsistent with N")
	ErrIndexOutOfBounds  = errors.New("index out of bounds")
	ErrNotOrthonormal    = errors.New("basis is not orthonormal within tolerance")
	ErrInconsistentGrowth = errors.New("table growth is not append-only")
	ErrDimensionMax      = errors.New("basis dimension exceeds N_max")

	// Determinism / persistence errors
	ErrVersionMismatch = errors.New("persisted archive schema version mismatch")
	ErrHashMismatch    = errors.New("content hash mismatch")
)

// NewNotFoundError reports a missing resource identified by kind and id.
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

// NewIndexError reports an out-of-bounds index access, which spec.md §4.1
// classifies as fatal for parameter-space/sampling lookups.
func NewIndexError(what string, index, size int) error {
	return fmt.Errorf("%w: %s index %d (size %d)", ErrIndexOutOfBounds, what, index, size)
}

// IsNotFoundError reports whether err is (or wraps) ErrNotFound.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvariantError reports whether err is one of the data-model invariant
// violations of spec.md §3.
func IsInvariantError(err error) bool {
	return errors.Is(err, ErrSizeMismatch) ||
		errors.Is(err, ErrNotOrthonormal) ||
		errors.Is(err, ErrInconsistentGrowth) ||
		errors.Is(err, ErrDimensionMax)
}
