package api

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures that reach callers of the client.
type ErrorKind string

const (
	KindNetwork ErrorKind = "network"
	KindTimeout ErrorKind = "timeout"
	KindHTTP    ErrorKind = "http"
	KindParse   ErrorKind = "parse"
)

const genericErrorMessage = "An error occurred"

// Error is returned by every client call that fails.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// StatusCode returns the HTTP status of an *Error, or zero.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func httpStatusError(status int, payload *ErrorPayload) *Error {
	msg := fmt.Sprintf("HTTP error! status: %d", status)
	if payload != nil && payload.Message != "" {
		msg = payload.Message
	}
	return &Error{Kind: KindHTTP, StatusCode: status, Message: msg}
}

func parseError(status int, err error) *Error {
	return &Error{Kind: KindParse, StatusCode: status, Message: genericErrorMessage, Err: err}
}
