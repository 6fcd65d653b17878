// Package apperr holds the sentinel errors shared across Casefile components.
package apperr

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrImmutableField    = errors.New("immutable field")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrIntegrityFailure  = errors.New("integrity failure")
	ErrDuplicateCitation = errors.New("duplicate citation")
	ErrCapacityExceeded  = errors.New("capacity exceeded")
)
