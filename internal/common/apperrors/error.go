// Package apperrors provides the application error type used across the
// gateway. It extends the standard error interface with error chaining and
// HTTP status code management so that handlers can map failures to responses
// without switch statements at every call site.
package apperrors

// Error is the interface implemented by all application errors. Methods that
// derive a new error return Error to support chaining; the receiver is never
// mutated.
type Error interface {
	error
	Unwrap() error // support for errors.Is / errors.As

	New(msg string) Error                  // derives a fresh error using the current one as template
	Msg(msg string) Error                  // derives an error with a new message, wrapping the original
	MsgErr(msg string, err ...error) Error // derives an error with a message and extra wrapped errors
	Err(err ...error) Error                // attaches additional errors, keeping the message
	SetStatusCode(int) Error               // sets the HTTP status code
	StatusCode() int                       // returns the HTTP status code
	ErrorAll() string                      // returns the message including all wrapped errors
	UnwrapAll() []error                    // returns all wrapped errors
}
