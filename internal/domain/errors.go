package domain

import "errors"

// Error kinds surfaced by the configuration model, lifecycle manager and
// rotation engine. Callers classify failures with errors.Is; the concrete
// error carries the detail via wrapping.
var (
	// ErrInvalidConfiguration marks a structurally or semantically bad
	// destination descriptor.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrAlreadyExists marks a duplicate destination name on create.
	ErrAlreadyExists = errors.New("destination already exists")

	// ErrResourceUnavailable marks a directory, file or network open
	// failure at destination creation. Fatal to that destination only.
	ErrResourceUnavailable = errors.New("resource unavailable")

	// ErrRenameConflict marks a rotation racing an external holder of the
	// active file after bounded retries were exhausted.
	ErrRenameConflict = errors.New("rename conflict")

	// ErrUnsupportedOperation marks a call outside a destination type's
	// capability matrix. Never recoverable.
	ErrUnsupportedOperation = errors.New("unsupported operation")
)
