package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrSeatConflict        = errors.New("seat conflict")
	ErrReferenceExhausted  = errors.New("booking reference retries exhausted")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrPolicyViolation     = errors.New("policy violation")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrConcurrentUpdate means another request changed the booking first; the
	// caller may retry against the fresh state.
	ErrConcurrentUpdate    = errors.New("booking was changed by another request, retry")
)

var (
	ErrAlreadyCancelled = policyError("booking is already cancelled")
	ErrAlreadyPaid      = policyError("booking is already paid")
	ErrBookingCancelled = policyError("booking is cancelled")

	// ErrStateChanged means a conditional write found the booking in another state.
	ErrStateChanged = errors.New("booking state changed concurrently")
	// ErrDuplicateReference is returned by the store when a reference is taken.
	ErrDuplicateReference = errors.New("booking reference already exists")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string        { return e.msg }
func (e *kindError) Is(target error) bool { return target == e.kind }

func policyError(msg string) error {
	return &kindError{kind: ErrPolicyViolation, msg: msg}
}

// PolicyViolation builds an error matching ErrPolicyViolation.
func PolicyViolation(format string, args ...any) error {
	return policyError(fmt.Sprintf(format, args...))
}

// Unauthorized builds an error matching ErrUnauthorized.
func Unauthorized(format string, args ...any) error {
	return &kindError{kind: ErrUnauthorized, msg: fmt.Sprintf(format, args...)}
}

// NotFound builds an error matching ErrNotFound.
func NotFound(what, id string) error {
	return &kindError{kind: ErrNotFound, msg: fmt.Sprintf("%s %s not found", what, id)}
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Reason
	}
	return fmt.Sprintf("validation error: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// SeatConflictError names the seats that could not be reserved.
type SeatConflictError struct {
	Seats []string
}

func (e *SeatConflictError) Error() string {
	return "seats unavailable: " + strings.Join(e.Seats, ", ")
}

func (e *SeatConflictError) Is(target error) bool { return target == ErrSeatConflict }

// Upstream wraps a collaborator failure so it matches ErrUpstreamUnavailable.
func Upstream(op string, err error) error {
	return &upstreamError{op: op, err: err}
}

type upstreamError struct {
	op  string
	err error
}

func (e *upstreamError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrUpstreamUnavailable, e.op, e.err)
}

func (e *upstreamError) Is(target error) bool { return target == ErrUpstreamUnavailable }
func (e *upstreamError) Unwrap() error        { return e.err }
