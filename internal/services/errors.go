package services

import "errors"

var (
	// ErrValidation is returned when request input is missing or wrong-shaped.
	ErrValidation = errors.New("validation error")

	// ErrVersionLimit is returned when a session has reached the configured
	// maxVersions cap. The ledger rejects the commit outright rather than
	// pruning history.
	ErrVersionLimit = errors.New("version limit reached")
)
