package errors

import "fmt"

// RuntimeError is a fatal error of a command, with an optional hint that
// tells the user how to resolve it.
type RuntimeError struct {
	msg  string
	err  error
	hint string
}

// NewRuntimeError returns a new RuntimeError.
func NewRuntimeError(msg string, err error, hint string) *RuntimeError {
	return &RuntimeError{msg: msg, err: err, hint: hint}
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return fmt.Sprintf("%s: %s", e.msg, e.err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *RuntimeError) Unwrap() error {
	return e.err
}

// Hint returns the suggested resolution for the error.
func (e *RuntimeError) Hint() string {
	return e.hint
}
