// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-authflow.
//
// go-authflow is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package autherr defines the closed set of failures produced by the
// authentication flow. Every error carries a stable string code that
// embedders can use for localized display, so the flow layer never has
// to inspect HTTP status codes or platform errors directly.
package autherr

import (
	"errors"
	"fmt"
	"time"
)

// Error is a typed authentication failure. Errors compare equal (via
// errors.Is) when their codes match, regardless of cause or retry-after,
// so callers can match against the package sentinels.
type Error struct {
	// Code is the stable, machine-readable error code.
	Code string

	// Message is a short human-readable description.
	Message string

	// RetryAfter is the cooldown carried by rate-limit errors.
	// Zero for all other codes.
	RetryAfter time.Duration

	// Cause is the underlying error, if any.
	Cause error
}

// Sentinel errors for the closed taxonomy. Match with errors.Is.
var (
	// ErrTechnical is the fallback for any unclassified failure.
	ErrTechnical = &Error{Code: "somethingWentWrong", Message: "technical error"}

	// ErrRequestTimeout is returned when a request exceeds the transport timeout.
	ErrRequestTimeout = &Error{Code: "requestTimeout", Message: "request timed out"}

	// ErrConflict is returned when a resource already exists.
	ErrConflict = &Error{Code: "conflict", Message: "resource already exists"}

	// ErrNotFound is returned when a resource cannot be found.
	ErrNotFound = &Error{Code: "notFound", Message: "resource not found"}

	// ErrUnauthorized is returned when the session is missing or invalid.
	ErrUnauthorized = &Error{Code: "unauthorized", Message: "unauthorized"}

	// ErrInvalidPassword is returned when password verification fails.
	ErrInvalidPassword = &Error{Code: "invalidPassword", Message: "invalid password"}

	// ErrInvalidPasscode is returned when passcode verification fails.
	ErrInvalidPasscode = &Error{Code: "invalidPasscode", Message: "invalid passcode"}

	// ErrMaxAttemptsReached is returned when a passcode has been consumed
	// by too many failed attempts or has been invalidated server-side.
	ErrMaxAttemptsReached = &Error{
		Code:    "maxNumOfPasscodeAttemptsReached",
		Message: "maximum number of passcode attempts reached",
	}

	// ErrPasscodeExpired is derived client-side when a passcode TTL
	// countdown reaches zero before finalization.
	ErrPasscodeExpired = &Error{Code: "passcodeExpired", Message: "passcode expired"}

	// ErrInvalidWebauthnCredential is returned when the server rejects a
	// WebAuthn assertion.
	ErrInvalidWebauthnCredential = &Error{
		Code:    "invalidWebauthnCredential",
		Message: "invalid webauthn credential",
	}

	// ErrWebauthnCancelled is returned when the platform credential
	// operation is rejected or cancelled before reaching the server.
	ErrWebauthnCancelled = &Error{
		Code:    "webauthnRequestCancelled",
		Message: "webauthn request cancelled",
	}

	// ErrTooManyRequests is returned when the server rate-limits a
	// request. Use NewTooManyRequests to carry the retry-after window.
	ErrTooManyRequests = &Error{Code: "tooManyRequests", Message: "too many requests"}
)

// Error returns the error message, including the cause when present.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of e carrying the given underlying error.
// The sentinel itself is never mutated.
func (e *Error) WithCause(cause error) *Error {
	cp := *e
	cp.Cause = cause
	return &cp
}

// NewTooManyRequests returns a rate-limit error carrying the server's
// retry-after window.
func NewTooManyRequests(retryAfter time.Duration) *Error {
	cp := *ErrTooManyRequests
	cp.RetryAfter = retryAfter
	return &cp
}

// Technical wraps an unclassified failure into the fallback error.
func Technical(cause error) *Error {
	return ErrTechnical.WithCause(cause)
}

// CodeOf extracts the stable code from err, falling back to the
// technical-error code for anything outside the taxonomy.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrTechnical.Code
}

// RetryAfterOf extracts the retry-after window from err, or zero if err
// does not carry one.
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// IsSoft reports whether err is recoverable without user-visible
// display. Cancelling a platform credential prompt is the only soft
// failure; everything else is shown.
func IsSoft(err error) bool {
	return errors.Is(err, ErrWebauthnCancelled)
}
