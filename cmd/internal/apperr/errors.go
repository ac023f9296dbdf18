// Package apperr defines the error taxonomy shared by the booking and intake flows.
//
// Callers classify failures with errors.Is against the sentinels and errors.As against the
// typed errors. UserMessage maps any error onto one of the three user-facing buckets.
package apperr

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrValidation is returned when user input is rejected before any I/O.
	ErrValidation = errors.New("validation failed")

	// ErrRateLimited is returned when an identity exceeded its action budget.
	ErrRateLimited = errors.New("rate limited")

	// ErrRemote is returned when the remote store could not complete a read or write.
	ErrRemote = errors.New("remote store unavailable")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a conditional write lost a race.
	ErrConflict = errors.New("conflict")

	// ErrInvalidTransition is returned when a status change is not in the transition table.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field string
	Msg   string
	Err   error
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", ErrValidation, e.Msg)
	}
	return fmt.Sprintf("%v: %s: %s", ErrValidation, e.Field, e.Msg)
}

// Unwrap exposes ErrValidation and, when set, the more specific cause.
func (e ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrValidation, e.Err}
	}
	return []error{ErrValidation}
}

// Invalid is shorthand for a ValidationError on one field.
func Invalid(field, msg string) error {
	return ValidationError{Field: field, Msg: msg}
}

// RateLimitError carries retry metadata for a rejected action.
type RateLimitError struct {
	Action     string
	RetryAfter time.Duration
}

func (e RateLimitError) Error() string {
	if e.RetryAfter <= 0 {
		return fmt.Sprintf("%s: %v", e.Action, ErrRateLimited)
	}
	return fmt.Sprintf("%s: %v: retry after %s", e.Action, ErrRateLimited, e.RetryAfter)
}

func (e RateLimitError) Unwrap() error { return ErrRateLimited }

// RetryMinutes rounds RetryAfter up to whole minutes, never below one.
func (e RateLimitError) RetryMinutes() int {
	m := int(math.Ceil(e.RetryAfter.Minutes()))
	if m < 1 {
		return 1
	}
	return m
}

// RemoteError wraps a failed remote store call.
type RemoteError struct {
	Op  string
	Err error
}

func (e RemoteError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, ErrRemote)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrRemote, e.Err)
}

func (e RemoteError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRemote}
	}
	return []error{ErrRemote, e.Err}
}

// Remote wraps err as a RemoteError unless it is nil or already classified.
func Remote(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRemote) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		return err
	}
	return RemoteError{Op: op, Err: err}
}

// TransitionError reports a status change the lifecycle does not permit.
type TransitionError struct {
	From string
	To   string
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("%v: %s -> %s", ErrInvalidTransition, e.From, e.To)
}

func (e TransitionError) Unwrap() error { return ErrInvalidTransition }
