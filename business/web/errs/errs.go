// Package errs provides the error types returned by the processor's web
// handlers.
package errs

import (
	"errors"
	"net/http"
)

// Response is the document returned to a client when a request fails.
type Response struct {
	Error   string            `json:"error"`
	TraceID string            `json:"trace_id,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Trusted is an error whose message is safe to show to the client. Any
// other error is reported as an internal error.
type Trusted struct {
	Err    error
	Status int
}

// NewTrusted wraps a provided error with an HTTP status code. This
// function should be used when handlers encounter expected errors.
func NewTrusted(err error, status int) error {
	return &Trusted{err, status}
}

// BadRequest marks an error caused by the request content.
func BadRequest(err error) error {
	return NewTrusted(err, http.StatusBadRequest)
}

// NotFound marks an error caused by an unknown resource.
func NotFound(err error) error {
	return NewTrusted(err, http.StatusNotFound)
}

// Unavailable marks an error raised while the log is not accepting records.
func Unavailable(err error) error {
	return NewTrusted(err, http.StatusServiceUnavailable)
}

// Error implements the error interface. This is what will be shown in the
// services' logs.
func (te *Trusted) Error() string {
	return te.Err.Error()
}

// Unwrap gives access to the wrapped error.
func (te *Trusted) Unwrap() error {
	return te.Err
}

// IsTrusted checks if a trusted error exists in the chain.
func IsTrusted(err error) bool {
	var te *Trusted
	return errors.As(err, &te)
}

// GetTrusted returns the first trusted error in the chain or nil.
func GetTrusted(err error) *Trusted {
	var te *Trusted
	if !errors.As(err, &te) {
		return nil
	}
	return te
}
