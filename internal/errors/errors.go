// Package errors provides shared error types for the CBETA gateway.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// ValidationError indicates a tool argument failed schema validation.
type ValidationError struct {
	Field   string // field name that failed validation
	Message string // "missing field" or "invalid field"
	Detail  string // optional explanation, e.g. "expected integer, got string"
}

func (e *ValidationError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "validation failed"
	}
	if e.Field == "" {
		return msg
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", msg, e.Field, e.Detail)
	}
	return fmt.Sprintf("%s: %s", msg, e.Field)
}

// NewMissingFieldError reports an absent required field.
func NewMissingFieldError(field string) *ValidationError {
	return &ValidationError{Field: field, Message: "missing field"}
}

// NewInvalidFieldError reports a field whose value has the wrong kind.
func NewInvalidFieldError(field, detail string) *ValidationError {
	return &ValidationError{Field: field, Message: "invalid field", Detail: detail}
}

// RemoteError indicates the remote search service answered with a non-2xx status.
type RemoteError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote service returned status %d for %s", e.StatusCode, e.Path)
	}
	return fmt.Sprintf("remote service returned status %d for %s: %s", e.StatusCode, e.Path, e.Body)
}

// TransportError indicates the request never produced a response:
// connection refused, DNS failure, timeout or cancellation.
type TransportError struct {
	Path    string
	Timeout bool
	Err     error
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("request to %s timed out: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("request to %s failed: %v", e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DuplicateToolError is returned when a tool name is registered twice.
type DuplicateToolError struct {
	Name string
	Unit string // unit that attempted the second registration
}

func (e *DuplicateToolError) Error() string {
	if e.Unit != "" {
		return fmt.Sprintf("tool %q already registered (duplicate from unit %s)", e.Name, e.Unit)
	}
	return fmt.Sprintf("tool %q already registered", e.Name)
}

// UnitLoadError wraps a failure raised while loading a tool unit.
type UnitLoadError struct {
	Unit string
	Err  error
}

func (e *UnitLoadError) Error() string {
	return fmt.Sprintf("unit %s failed to load: %v", e.Unit, e.Err)
}

func (e *UnitLoadError) Unwrap() error { return e.Err }

// IsValidation returns true if err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsRemote returns true if err is or wraps a RemoteError.
func IsRemote(err error) bool {
	var target *RemoteError
	return errors.As(err, &target)
}

// IsTransport returns true if err is or wraps a TransportError.
func IsTransport(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

// IsTimeout returns true if err is a transport timeout or a context deadline.
func IsTimeout(err error) bool {
	var target *TransportError
	if errors.As(err, &target) && target.Timeout {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsDuplicate returns true if err is or wraps a DuplicateToolError.
func IsDuplicate(err error) bool {
	var target *DuplicateToolError
	return errors.As(err, &target)
}
