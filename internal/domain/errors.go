package domain

import "errors"

var (
	// ErrValidation marks malformed or empty caller input. Nothing is persisted
	// and no quota is spent when it is returned.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a missing batch or quota row.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks an operation racing an active writer, e.g. resuming a
	// batch that is already being driven by a running loop.
	ErrConflict = errors.New("conflict")

	// ErrForbidden marks an ownership violation.
	ErrForbidden = errors.New("forbidden")

	// ErrAdmissionDenied marks a quota ceiling violation. It is always wrapped
	// with a reason naming the specific limit and current usage.
	ErrAdmissionDenied = errors.New("admission denied")

	// ErrShuttingDown marks a start request arriving while a process-wide
	// shutdown is in progress.
	ErrShuttingDown = errors.New("shutting down")
)
