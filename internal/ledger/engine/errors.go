package engine

import "errors"

var (
	// ErrInvalidInput indicates a caller-correctable argument problem. No
	// mutation was attempted.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound indicates a referenced account does not exist. No
	// mutation was applied.
	ErrNotFound = errors.New("account not found")
	// ErrInsufficientFunds indicates a business-rule rejection: the debit
	// account balance would go negative. The unit of work rolled back with
	// no visible effect. It is not a system fault.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

type transientError struct {
	cause error
}

func (e transientError) Error() string {
	if e.cause == nil {
		return "transient storage failure"
	}
	return e.cause.Error()
}

func (e transientError) Unwrap() error {
	return e.cause
}

// Transient marks an error as a retryable storage failure. The unit of work
// rolled back, so callers may retry the operation unchanged.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return transientError{cause: err}
}

// IsTransient reports whether err was marked as a retryable storage failure.
func IsTransient(err error) bool {
	var target transientError
	return errors.As(err, &target)
}
