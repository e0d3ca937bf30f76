package model

import (
	"errors"
	"fmt"
	"time"
)

// Verification and authentication error kinds. Callers branch with
// errors.Is; handlers collapse credential-class failures into a generic
// response while the precise kind stays available for logging and
// lockout accounting.
var (
	ErrExpired          = errors.New("token expired")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrInvalidKey       = errors.New("unknown signing key")
	ErrRevoked          = errors.New("token revoked")
	ErrDeviceMismatch   = errors.New("token bound to another device")
	ErrWrongTokenKind   = errors.New("wrong token kind")
	ErrPolicyDenied     = errors.New("issuance denied by policy")
	ErrMalformed        = errors.New("malformed token")

	ErrDeviceTrustFailed = errors.New("device trust below threshold")
	ErrAccountLocked     = errors.New("account locked")

	ErrLowQuality       = errors.New("biometric template quality too low")
	ErrLivenessFailed   = errors.New("liveness check failed")
	ErrIntegrityFailure = errors.New("biometric template integrity failure")
	ErrTooManyAttempts  = errors.New("too many attempts")

	ErrTransient = errors.New("transient store error")

	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
)

// AccountLockedError carries the remaining lock window so callers can
// surface a Retry-After instead of a bare denial.
type AccountLockedError struct {
	RetryAfter time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked, retry after %s", e.RetryAfter)
}

func (e *AccountLockedError) Unwrap() error { return ErrAccountLocked }

// TooManyAttemptsError carries the time until the rolling attempt
// window resets.
type TooManyAttemptsError struct {
	RetryAfter time.Duration
}

func (e *TooManyAttemptsError) Error() string {
	return fmt.Sprintf("too many attempts, retry after %s", e.RetryAfter)
}

func (e *TooManyAttemptsError) Unwrap() error { return ErrTooManyAttempts }
