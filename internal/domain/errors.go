package domain

import "errors"

var (
	ErrJobNotFound      = errors.New("job not found")
	ErrArtifactNotFound = errors.New("artifact not found")
	ErrJobActive        = errors.New("job is still active")
)

// ErrorClass governs retry eligibility for adapter failures.
type ErrorClass int

const (
	// ClassTransient failures (network errors, rate limits, timeouts) are
	// retried with bounded exponential backoff.
	ClassTransient ErrorClass = iota
	// ClassPermanent failures (bad credentials, invalid input, rejected
	// content) fail the stage immediately.
	ClassPermanent
)

func (c ErrorClass) String() string {
	if c == ClassTransient {
		return "transient"
	}
	return "permanent"
}

// StageError is an adapter failure carrying its retry classification.
// Adapters classify at the point of failure where the provider context is
// known, instead of callers inferring a class from error text.
type StageError struct {
	Class ErrorClass
	Err   error
}

func (e *StageError) Error() string { return e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

// Transient wraps err as a retryable stage error.
func Transient(err error) *StageError {
	return &StageError{Class: ClassTransient, Err: err}
}

// Permanent wraps err as a non-retryable stage error.
func Permanent(err error) *StageError {
	return &StageError{Class: ClassPermanent, Err: err}
}

// Classify returns the retry class of err. Unclassified errors count as
// permanent: retrying an unknown failure against a paid provider is worse
// than surfacing it.
func Classify(err error) ErrorClass {
	var se *StageError
	if errors.As(err, &se) {
		return se.Class
	}
	return ClassPermanent
}
