package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the ID token payload.
type Claims struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	Admin   bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier validates HS256 ID tokens and resolves bearer requests.
type TokenVerifier struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
	now      func() time.Time
}

// VerifierOption configures a TokenVerifier.
type VerifierOption func(*TokenVerifier)

// WithIssuer requires the iss claim.
func WithIssuer(iss string) VerifierOption {
	return func(v *TokenVerifier) { v.issuer = strings.TrimSpace(iss) }
}

// WithAudience requires aud to contain aud.
func WithAudience(aud string) VerifierOption {
	return func(v *TokenVerifier) { v.audience = strings.TrimSpace(aud) }
}

// WithLeeway tolerates clock skew on exp/nbf/iat.
func WithLeeway(d time.Duration) VerifierOption {
	return func(v *TokenVerifier) {
		if d >= 0 {
			v.leeway = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *TokenVerifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewTokenVerifier requires a secret of at least 32 bytes.
func NewTokenVerifier(secret []byte, opts ...VerifierOption) (*TokenVerifier, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("%w: identity secret must be at least 32 bytes", ErrConfig)
	}
	v := &TokenVerifier{
		secret: append([]byte(nil), secret...),
		leeway: 30 * time.Second,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v, nil
}

// Verify parses and validates token.
func (v *TokenVerifier) Verify(token string) (Identity, error) {
	if v == nil {
		return Identity{}, ErrInvalidToken
	}
	popts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		popts = append(popts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		popts = append(popts, jwt.WithAudience(v.audience))
	}

	var c Claims
	t, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, popts...)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !t.Valid || strings.TrimSpace(c.Subject) == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{
		ID:          c.Subject,
		Email:       NormalizeEmail(c.Email),
		DisplayName: strings.TrimSpace(c.Name),
		PhotoURL:    strings.TrimSpace(c.Picture),
		Admin:       c.Admin,
	}, nil
}

// Resolve implements Resolver.
func (v *TokenVerifier) Resolve(r *http.Request) (Identity, bool, error) {
	tok := BearerToken(r)
	if tok == "" {
		return Identity{}, false, nil
	}
	id, err := v.Verify(tok)
	if err != nil {
		return Identity{}, false, err
	}
	return id, true, nil
}

// Issue signs a token for id valid for ttl. It backs the CLI and tests; in
// production tokens come from the provider.
func (v *TokenVerifier) Issue(id Identity, ttl time.Duration) (string, error) {
	if v == nil {
		return "", errors.New("identity: nil verifier")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := v.now()
	c := Claims{
		Email:   id.Email,
		Name:    id.DisplayName,
		Picture: id.PhotoURL,
		Admin:   id.Admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if v.audience != "" {
		c.Audience = jwt.ClaimStrings{v.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.secret)
}

var _ Resolver = (*TokenVerifier)(nil)
