// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed error handling with rich context for Clade.
package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode classifies Clade errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeConfiguration indicates invalid or missing startup configuration.
	// Fatal at startup, never retried.
	CodeConfiguration ErrorCode = "CONFIGURATION_ERROR"

	// CodeTransientResource indicates quota or rate-limit exhaustion of an
	// external resource. Retried with credential rotation.
	CodeTransientResource ErrorCode = "TRANSIENT_RESOURCE"

	// CodePermanentCall indicates an external call failed in a way that
	// retrying cannot fix (auth failure, malformed request).
	CodePermanentCall ErrorCode = "PERMANENT_CALL"

	// CodeParse indicates structured extraction of a model output failed.
	// Recovered locally with a fallback artifact; never propagates.
	CodeParse ErrorCode = "PARSE_ERROR"

	// CodeValidation indicates a rejected operation: unknown parent on
	// registration, mandate missing required fields, spawn budget exceeded.
	CodeValidation ErrorCode = "VALIDATION_ERROR"

	// CodeNotFound indicates a requested resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeCancelled indicates the caller cancelled the operation.
	CodeCancelled ErrorCode = "CANCELLED"
)

// CladeError is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type CladeError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Recoverable bool
	StatusCode  int
}

// Error implements the error interface.
func (e *CladeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *CladeError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *CladeError) MarshalJSON() ([]byte, error) {
	type Alias CladeError
	return json.Marshal(&struct {
		Message     string `json:"message"`
		Code        string `json:"code"`
		Err         string `json:"error,omitempty"`
		Recoverable bool   `json:"recoverable"`
		*Alias
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Err:         fmt.Sprintf("%v", e.Err),
		Recoverable: e.Recoverable,
		Alias:       (*Alias)(e),
	})
}

// New creates a new CladeError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *CladeError {
	return &CladeError{
		Code:        code,
		Message:     msg,
		Err:         cause,
		Context:     make(map[string]interface{}),
		Attributes:  make(map[string]string),
		Recoverable: code == CodeTransientResource,
		StatusCode:  codeToStatusCode(code),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *CladeError) WithContext(key string, value interface{}) *CladeError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
// Returns the error for method chaining.
func (e *CladeError) WithAttribute(key, value string) *CladeError {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *CladeError) WithRecoverable(recoverable bool) *CladeError {
	e.Recoverable = recoverable
	return e
}

// AsCladeError attempts to convert an error to a CladeError.
// Returns the error as CladeError if it is one, or wraps it otherwise.
func AsCladeError(err error) *CladeError {
	if err == nil {
		return nil
	}
	if ce, ok := err.(*CladeError); ok {
		return ce
	}
	return New(CodeInternal, "wrapped error", err)
}

// HasCode reports whether err is a CladeError carrying the given code.
func HasCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	if ce, ok := err.(*CladeError); ok {
		return ce.Code == code
	}
	return false
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *CladeError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// codeToStatusCode maps error codes to HTTP status codes.
func codeToStatusCode(code ErrorCode) int {
	switch code {
	case CodeNotFound:
		return 404
	case CodeValidation:
		return 400
	case CodeTimeout:
		return 408
	case CodeTransientResource:
		return 429
	case CodeCancelled:
		return 499
	default:
		return 500
	}
}
