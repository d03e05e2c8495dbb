package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated is returned when a request carries no usable token.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden is returned when the principal lacks the required role.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict marks writes rejected because of existing state.
	ErrConflict = errors.New("conflict")
	// ErrValidation marks request payloads rejected by struct validation.
	ErrValidation = errors.New("validation failed")
)
