// Package errs defines the coded errors shared by the API client, the fake app and the
// polling helpers. A code survives wrapping, so callers branch on Is instead of on text.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a failure.
type Code string

const (
	InvalidArgument Code = "invalid_argument"
	NotFound        Code = "not_found"
	Conflict        Code = "conflict"
	Unauthenticated Code = "unauthenticated"
	// Timeout marks a polled job that never left "running" within its attempt budget.
	Timeout Code = "timeout"
	// ConditionNotMet marks a generic poll whose predicate never held.
	ConditionNotMet Code = "condition_not_met"
	RateLimited     Code = "rate_limited"
	Unavailable     Code = "unavailable"
	Internal        Code = "internal"
)

// statusOf is the canonical status for each code the fake app can answer with.
var statusOf = map[Code]int{
	InvalidArgument: http.StatusBadRequest,
	Unauthenticated: http.StatusUnauthorized,
	NotFound:        http.StatusNotFound,
	Conflict:        http.StatusConflict,
	Timeout:         http.StatusRequestTimeout,
	RateLimited:     http.StatusTooManyRequests,
	Unavailable:     http.StatusServiceUnavailable,
}

// codeOf also folds in the statuses a real deployment answers with that have no code of their own.
var codeOf = map[int]Code{
	http.StatusUnprocessableEntity: InvalidArgument,
	http.StatusForbidden:           Unauthenticated,
	http.StatusGatewayTimeout:      Timeout,
	http.StatusBadGateway:          Unavailable,
}

func init() {
	for code, status := range statusOf {
		codeOf[status] = code
	}
}

// Error is a coded error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to cause, which stays reachable through errors.Is.
func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Err: cause}
}

// CodeOf returns the first code in err's chain. Nil and uncoded errors are Internal.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) && coded.Code != "" {
		return coded.Code
	}
	return Internal
}

// Is reports whether err carries code anywhere in its chain.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// MessageOf returns the message safe to put in a response body.
// Uncoded errors collapse to "internal error" so raw driver errors never leak.
func MessageOf(err error) string {
	if err == nil {
		return string(Internal)
	}
	var coded *Error
	if errors.As(err, &coded) && coded.Message != "" {
		return coded.Message
	}
	return "internal error"
}

// HTTPStatus maps a code to the status the fake app answers with; unknown codes are 500.
func HTTPStatus(code Code) int {
	if status, ok := statusOf[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// FromStatus classifies an HTTP status returned by the app under test.
// Statuses without a code, 500 included, are Internal.
func FromStatus(status int) Code {
	if code, ok := codeOf[status]; ok {
		return code
	}
	return Internal
}
