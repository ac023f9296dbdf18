package booking

import (
	"strings"

	"glowlogy/cmd/internal/apperr"
)

// Status is a booking's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// transitions lists every permitted change. cancelled and completed are terminal.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// activeStatuses hold a slot.
var activeStatuses = []any{StatusPending, StatusConfirmed}

// ParseStatus accepts the four lifecycle states, case-insensitively.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return s, nil
	}
	return "", apperr.Invalid("status", "must be one of pending, confirmed, completed, cancelled")
}

// CanTransition reports whether s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Active reports whether a booking in s holds its slot.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}
