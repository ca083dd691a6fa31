// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package eventbus

import "errors"

// ErrPublisherClosed is returned when publishing after Close.
var ErrPublisherClosed = errors.New("publisher is closed")

// ErrStreamNotFound is returned when the JetStream stream doesn't exist.
var ErrStreamNotFound = errors.New("stream not found")

// ErrInvalidConfig is returned when configuration is invalid.
var ErrInvalidConfig = errors.New("invalid configuration")

// ErrorCategory classifies processing failures for metrics and DLQ headers.
type ErrorCategory string

const (
	CategoryTransient  ErrorCategory = "transient"
	CategoryValidation ErrorCategory = "validation"
	CategoryLogical    ErrorCategory = "logical"
	CategoryInternal   ErrorCategory = "internal"
)

// RetryableError marks a failure worth redelivering. The router nacks the
// message and JetStream retries it up to the delivery budget.
type RetryableError struct {
	Message  string
	Cause    error
	Category ErrorCategory
}

func (e *RetryableError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *RetryableError) Unwrap() error {
	return e.Cause
}

// NewRetryableError wraps a transient failure.
func NewRetryableError(message string, cause error) *RetryableError {
	return &RetryableError{Message: message, Cause: cause, Category: CategoryTransient}
}

// PermanentError marks a failure that can never succeed. The handler acks
// the message so it is not redelivered; the error is logged and counted.
type PermanentError struct {
	Message  string
	Cause    error
	Category ErrorCategory
}

func (e *PermanentError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *PermanentError) Unwrap() error {
	return e.Cause
}

// NewPermanentError wraps an unrecoverable failure.
func NewPermanentError(message string, cause error) *PermanentError {
	return &PermanentError{Message: message, Cause: cause, Category: CategoryLogical}
}

// NewValidationDrop wraps a malformed-message failure.
func NewValidationDrop(message string, cause error) *PermanentError {
	return &PermanentError{Message: message, Cause: cause, Category: CategoryValidation}
}

// IsPermanent reports whether err (or anything it wraps) is a PermanentError.
func IsPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm)
}
