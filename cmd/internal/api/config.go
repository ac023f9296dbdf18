package api

import (
	"net/http"
	"strings"
)

// Config controls request limits and the anonymous session cookie.
type Config struct {
	MaxBodyBytes int64

	SessionCookie  string
	CookiePath     string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:   64 << 10,
		SessionCookie:  "glowlogy_session",
		CookiePath:     "/",
		CookieSecure:   true,
		CookieSameSite: http.SameSiteLaxMode,
	}
}

// normalized fills zero values from DefaultConfig and applies cookie guardrails.
func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = def.MaxBodyBytes
	}
	c.SessionCookie = strings.TrimSpace(c.SessionCookie)
	if c.SessionCookie == "" {
		c.SessionCookie = def.SessionCookie
	}
	if strings.TrimSpace(c.CookiePath) == "" {
		c.CookiePath = def.CookiePath
	}
	if c.CookieSameSite == 0 {
		c.CookieSameSite = def.CookieSameSite
	}
	// Browsers reject SameSite=None without Secure.
	if c.CookieSameSite == http.SameSiteNoneMode {
		c.CookieSecure = true
	}
	return c
}

// ParseSameSite maps a config string onto http.SameSite, defaulting to Lax.
func ParseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "default":
		return http.SameSiteDefaultMode
	default:
		return http.SameSiteLaxMode
	}
}
