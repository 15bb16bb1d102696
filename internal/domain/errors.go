package domain

import "errors"

// Sentinel errors forming the service error taxonomy. Repositories and
// services wrap these with fmt.Errorf("...: %w", err); handlers map them to
// HTTP statuses with errors.Is.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness violation (e.g. duplicate username).
	ErrConflict = errors.New("conflict")

	// ErrInvalidReference indicates a target entity or group reference that
	// does not resolve to an existing record.
	ErrInvalidReference = errors.New("invalid reference")

	// ErrForbidden indicates the principal resolved but lacks rights for the
	// requested action. Never retried; terminal for the request.
	ErrForbidden = errors.New("forbidden")

	// ErrUnauthenticated indicates a missing or invalid principal.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidInput indicates a request that fails validation before it
	// reaches the store (missing fields, malformed values, unknown roles).
	ErrInvalidInput = errors.New("invalid input")
)
