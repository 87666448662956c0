package store

import "errors"

// Error kinds returned by Store operations. Handlers in internal/web map
// these to HTTP status codes.
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation")
	ErrIntegrity  = errors.New("integrity")
)
