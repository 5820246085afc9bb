package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Backends, caches and the lookup
// client return these (optionally wrapped) so services can translate them
// into domain errors.
//
// - ErrNotFound: entity does not exist in the backend or cache
// - ErrConflict: a unique key is already taken
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: collaborator temporarily unavailable (breaker open, timeout)
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
