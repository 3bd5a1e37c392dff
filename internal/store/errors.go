package store

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a persistence failure.
type ErrorKind string

const (
	KindTransport  ErrorKind = "transport"
	KindConstraint ErrorKind = "constraint"
)

// StoreError is returned by every backend. Callers log it and carry on with
// their in-memory state.
type StoreError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s failed (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func Transport(op string, err error) *StoreError {
	return &StoreError{Kind: KindTransport, Op: op, Err: err}
}

func Constraint(op string, err error) *StoreError {
	return &StoreError{Kind: KindConstraint, Op: op, Err: err}
}

// KindOf returns the kind of a StoreError anywhere in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}
