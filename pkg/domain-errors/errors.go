// Package domainerrors carries coded errors across service boundaries.
//
// Infrastructure layers return sentinels (pkg/platform/sentinel, store-specific
// errors); services translate those into a Code so transports and callers can
// branch on the failure class without string matching.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a failure.
type Code string

const (
	CodeInvalidInput           Code = "invalid_input"
	CodeNotFound               Code = "not_found"
	CodeConflict               Code = "conflict"
	CodeUnauthorized           Code = "unauthorized"
	CodeInternal               Code = "internal"
	CodeConcurrencyConflict    Code = "concurrency_conflict"
	CodeInvalidTransition      Code = "invalid_transition"
	CodeAggregateAlreadyExists Code = "aggregate_already_exists"
	CodeAggregateNotFound      Code = "aggregate_not_found"
	CodeProviderUnavailable    Code = "provider_unavailable"
	CodeProviderTimeout        Code = "provider_timeout"
	CodeSnapshotCorrupt        Code = "snapshot_corrupt"
)

// Error is a coded error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns a coded error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to err. A nil err yields nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether any coded error in err's chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// CodeOf returns the outermost code in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Is is errors.Is, re-exported so services need a single errors import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
