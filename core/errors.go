package core

import "errors"

// Error taxonomy shared by every component. Storage and service layers wrap
// these with fmt.Errorf("...: %w", ...) so callers can classify failures
// with errors.Is regardless of where they originated.
//
// Administrative callers see these surfaced as HTTP statuses. The automated
// ingestion path absorbs all of them: a failing side effect is logged and
// the upload still succeeds.
var (
	// ErrNotFound means a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAccessDenied means the entity exists but belongs to another tenant.
	ErrAccessDenied = errors.New("access denied")

	// ErrInvalidRequest means the input is malformed or a duplicate.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrUnprocessableState means a business rule rejected the operation.
	ErrUnprocessableState = errors.New("unprocessable state")

	// ErrExternalDependency means an outbound channel or provider failed.
	// Always absorbed, recorded as a failed delivery or an error-sentinel
	// enrichment, never retried synchronously.
	ErrExternalDependency = errors.New("external dependency failure")
)
