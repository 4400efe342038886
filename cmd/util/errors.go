package util

import (
	"errors"
	"fmt"
)

// Process exit codes, one per failure reason
const (
	ExitOK          = 0 // success
	ExitParseError  = 1 // invalid argument or flag value
	ExitMissingArgs = 2 // required arguments are missing
	ExitServerError = 3 // the server could not bind or failed while serving
	ExitClientError = 4 // the client could not reach the server or got no valid reply
)

// ExitError is an error that carries the exit code of the process
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an ExitError with a formatted message
func NewExitError(code int, format string, args ...any) *ExitError {
	return &ExitError{Code: code, Err: fmt.Errorf(format, args...)}
}

// ExitCode returns the exit code for err. Errors without code (e.g. unknown
// flags reported by cobra) are parse errors.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitParseError
}
