package utils

import "errors"

type PermError string

func (e PermError) Error() string {
	return string(e)
}

func (e PermError) IsPermanent() bool {
	return true
}

var (
	// ErrPlanning marks failures of an optimization attempt (packing files by
	// statistics, proving an ordering). Callers keep their previous plan.
	ErrPlanning = PermError("planning error")

	// ErrData marks failures while materializing a batch. They terminate the
	// enclosing stream.
	ErrData = PermError("data error")
)

// IsPermanent reports whether err must not be retried.
func IsPermanent(err error) bool {
	var pe interface{ IsPermanent() bool }
	if errors.As(err, &pe) {
		return pe.IsPermanent()
	}
	return false
}

type permanentError struct {
	err error
}

func (e permanentError) Error() string {
	return e.err.Error()
}

func (e permanentError) Unwrap() error {
	return e.err
}

func (e permanentError) IsPermanent() bool {
	return true
}

// Permanent marks err as not retryable while keeping it unwrappable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}
