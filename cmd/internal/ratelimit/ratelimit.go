// Package ratelimit implements sliding-window action limits keyed by caller identity.
package ratelimit

import (
	"context"
	"strings"
	"time"
	"unicode"

	"glowlogy/cmd/internal/apperr"
)

// IdentityKind selects how a raw identity is canonicalized before it keys a window.
type IdentityKind uint8

const (
	KindSession IdentityKind = iota
	KindEmail
	KindPhone
)

// Policy is one rate-limit budget. Policies sharing a Name share windows.
type Policy struct {
	Name   string
	Kind   IdentityKind
	Max    int
	Window time.Duration
}

// Decision is the outcome of CheckAndRecord.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter checks an action against its window and records it when allowed.
type Limiter interface {
	CheckAndRecord(ctx context.Context, identity string, p Policy) (Decision, error)
}

// Normalize canonicalizes identity for kind.
func Normalize(kind IdentityKind, identity string) string {
	switch kind {
	case KindEmail:
		return strings.ToLower(strings.TrimSpace(identity))
	case KindPhone:
		return strings.Map(func(r rune) rune {
			if unicode.IsDigit(r) {
				return r
			}
			return -1
		}, identity)
	default:
		return strings.TrimSpace(identity)
	}
}

// Enforce runs CheckAndRecord and converts a rejection into apperr.RateLimitError.
func Enforce(ctx context.Context, l Limiter, identity string, p Policy) error {
	d, err := l.CheckAndRecord(ctx, identity, p)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return apperr.RateLimitError{Action: p.Name, RetryAfter: d.RetryAfter}
	}
	return nil
}

func windowKey(p Policy, identity string) (string, error) {
	id := Normalize(p.Kind, identity)
	if id == "" {
		return "", apperr.Invalid("identity", "is required for rate limiting")
	}
	return p.Name + ":" + id, nil
}

// evaluate prunes events outside the window and decides whether one more fits.
// events must be ascending. The returned slice reuses the input backing array.
func evaluate(now time.Time, events []time.Time, limit int, window time.Duration) ([]time.Time, Decision) {
	cut := now.Add(-window)
	dst := events[:0]
	for _, t := range events {
		if t.After(cut) {
			dst = append(dst, t)
		}
	}

	if len(dst) >= limit {
		retry := dst[0].Add(window).Sub(now)
		if retry <= 0 {
			retry = time.Millisecond
		}
		return dst, Decision{Allowed: false, RetryAfter: retry}
	}
	return dst, Decision{Allowed: true}
}

// Default budgets. Newsletter signups share the contact window.
var (
	BookingPolicy    = Policy{Name: "booking", Kind: KindSession, Max: 5, Window: time.Hour}
	ContactPolicy    = Policy{Name: "contact", Kind: KindEmail, Max: 3, Window: time.Hour}
	MembershipPolicy = Policy{Name: "membership", Kind: KindEmail, Max: 3, Window: time.Hour}
	CallbackPolicy   = Policy{Name: "callback", Kind: KindPhone, Max: 3, Window: 24 * time.Hour}
	NewsletterPolicy = ContactPolicy
)
