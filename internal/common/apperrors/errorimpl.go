package apperrors

import (
	"errors"
	"strings"
)

// appError is the concrete implementation behind apperrors.Error.
type appError struct {
	msg           string  // primary error message
	base          error   // base error for errors.Is/As compatibility
	wrappedErrors []error // additional wrapped errors
	statuscode    int     // HTTP status code
}

// Error returns the primary error message.
func (e *appError) Error() string {
	return e.msg
}

// ErrorAll returns the primary message followed by every wrapped error,
// separated by "; ".
func (e *appError) ErrorAll() string {
	if len(e.wrappedErrors) == 0 {
		return e.msg
	}
	var b strings.Builder
	b.WriteString(e.msg)
	for _, err := range e.wrappedErrors {
		b.WriteString("; ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap returns the base error for compatibility with errors.Is / errors.As.
func (e *appError) Unwrap() error {
	return e.base
}

// UnwrapAll returns all wrapped errors in the order they were added.
func (e *appError) UnwrapAll() []error {
	return e.wrappedErrors
}

// New derives a fresh error using the current error as a template. The new
// error inherits the status code and chains to the original via Unwrap.
func (e *appError) New(msg string) Error {
	return &appError{
		msg:        msg,
		base:       e,
		statuscode: e.statuscode,
	}
}

// Msg derives an error with a new message that wraps the original.
func (e *appError) Msg(msg string) Error {
	return &appError{
		msg:           msg,
		base:          e,
		wrappedErrors: append([]error{e}, e.wrappedErrors...),
		statuscode:    e.statuscode,
	}
}

// MsgErr derives an error with a new message and additional wrapped errors.
func (e *appError) MsgErr(msg string, errs ...error) Error {
	return &appError{
		msg:           msg,
		base:          e,
		wrappedErrors: append([]error{e}, errs...),
		statuscode:    e.statuscode,
	}
}

// Err derives an error that keeps the current message and attaches errs.
func (e *appError) Err(errs ...error) Error {
	return &appError{
		msg:           e.msg,
		base:          e,
		wrappedErrors: append([]error{e}, errs...),
		statuscode:    e.statuscode,
	}
}

// SetStatusCode returns a shallow copy with an updated status code.
func (e *appError) SetStatusCode(code int) Error {
	cp := *e
	cp.statuscode = code
	return &cp
}

// StatusCode returns the HTTP status code associated with the error.
func (e *appError) StatusCode() int {
	return e.statuscode
}

// Is reports whether target matches the base error or any wrapped error.
func (e *appError) Is(target error) bool {
	if target == nil {
		return false
	}
	if errors.Is(e.base, target) {
		return true
	}
	for _, err := range e.wrappedErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// New creates a root-level application error with the given message.
func New(msg string) Error {
	return &appError{
		msg: msg,
	}
}
