// Package identity resolves the signed-in customer from the identity
// provider's ID token. Sign-in itself happens at the provider.
package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

var (
	// ErrInvalidToken is returned when an ID token fails verification or validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrConfig is returned for invalid verifier configuration.
	ErrConfig = errors.New("invalid config")
)

// Identity is the signed-in customer as the provider describes them.
type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
	PhotoURL    string `json:"photoURL,omitempty"`
	Admin       bool   `json:"admin,omitempty"`
}

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Resolver finds the caller of a request. ok is false for guests; err is set
// only when credentials were presented and rejected.
type Resolver interface {
	Resolve(r *http.Request) (id Identity, ok bool, err error)
}

// Guest resolves every request as a guest.
type Guest struct{}

func (Guest) Resolve(*http.Request) (Identity, bool, error) { return Identity{}, false, nil }

type ctxKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
