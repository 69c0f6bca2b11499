package domain

import "errors"

// Error kinds returned by fisher operations. Callers match them with errors.Is.
var (
	// ErrAlreadyExists is returned when a wallet already owns a record.
	ErrAlreadyExists = errors.New("fisher already exists")
	// ErrNotFound is returned when no record exists for a wallet.
	ErrNotFound = errors.New("fisher not found")
	// ErrUnauthorized is returned when the caller is not the record owner or
	// failed authentication.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrOverflow is returned when a counter increment would wrap.
	ErrOverflow = errors.New("arithmetic overflow")
	// ErrInvalidInput is returned for out of range scores and malformed references.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict is returned when another writer changed the record between
	// read and commit. Unlike the kinds above it is retryable.
	ErrConflict = errors.New("concurrent modification")
)

// IsRetryable reports whether retrying the same call could succeed. The domain
// error kinds are deterministic for a given input; only backend failures are
// worth a retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	for _, terminal := range []error{ErrAlreadyExists, ErrNotFound, ErrUnauthorized, ErrOverflow, ErrInvalidInput} {
		if errors.Is(err, terminal) {
			return false
		}
	}
	var rv RuleViolationError
	return !errors.As(err, &rv)
}
