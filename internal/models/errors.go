package models

import "errors"

// Custom errors
var (
	ErrNotFound           = errors.New("record not found")
	ErrDuplicateKey       = errors.New("duplicate key violation")
	ErrInvalidID          = errors.New("invalid ID format")
	ErrInsufficientData   = errors.New("insufficient data")
	ErrStaleInput         = errors.New("stale input")
	ErrInvalidAccumulator = errors.New("invalid accumulator")
	ErrDevigNonConvergent = errors.New("devig solver did not converge")
	ErrAlreadyResolved    = errors.New("pick already resolved")
)
