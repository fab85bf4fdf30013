package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
)

type Code int

const (
	Internal     Code = http.StatusInternalServerError
	NotFound     Code = http.StatusNotFound
	Conflict     Code = http.StatusConflict
	Validation   Code = http.StatusBadRequest
	InvalidQuery Code = http.StatusUnprocessableEntity
	// UnknownField is an invalid query raised when a path segment resolves to nothing
	UnknownField Code = http.StatusFailedDependency
)

// Error is a custom error
type Error struct {
	Code     Code     `json:"code"`
	Messages []string `json:"messages"`
	Err      error    `json:"err,omitempty"`
}

// Error returns the Error as a json string
func (e *Error) Error() string {
	if e.Code == 0 {
		e.Code = http.StatusOK
	}
	bits, _ := json.Marshal(e.RemoveError())
	if e.Err != nil && e.Err != error(e) {
		return fmt.Sprintf("%s: %s", string(bits), e.Err.Error())
	}
	return string(bits)
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	if e.Err == error(e) {
		return nil
	}
	return e.Err
}

// RemoveError removes the error from the Error and leaves it's messages and code
func (e *Error) RemoveError() *Error {
	return &Error{
		Code:     e.Code,
		Messages: e.Messages,
		Err:      nil,
	}
}

// Extract extracts the custom Error from the given error
func Extract(err error) *Error {
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return &Error{
		Code:     0,
		Messages: nil,
		Err:      err,
	}
}

// Wrap wraps the given error and returns a new one. Wrapping a nil error returns nil.
func Wrap(err error, code Code, msg string, args ...any) error {
	if err == nil {
		return nil
	}
	e, ok := err.(*Error)
	if ok {
		if msg != "" {
			e.Messages = append(e.Messages, fmt.Sprintf(msg, args...))
		}
		if code > 0 {
			e.Code = code
		}
		return e
	}
	e = &Error{
		Code: code,
		Err:  err,
	}
	if msg != "" {
		e.Messages = append(e.Messages, fmt.Sprintf(msg, args...))
	}
	return e
}

// New creates a new error with the given code and message
func New(code Code, msg string, args ...any) error {
	return &Error{
		Code:     code,
		Messages: []string{fmt.Sprintf(msg, args...)},
	}
}

// Is reports whether the error carries the given code
func Is(err error, code Code) bool {
	if err == nil {
		return false
	}
	return Extract(err).Code == code
}

// IsInvalidQuery reports whether the error is a caller error in a filter expression.
// UnknownField errors are invalid queries.
func IsInvalidQuery(err error) bool {
	return Is(err, InvalidQuery) || Is(err, UnknownField)
}
