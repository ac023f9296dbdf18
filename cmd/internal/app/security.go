package app

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"glowlogy/cmd/internal/api"
)

// ValidateConfig enforces the startup policy. It fails fast instead of
// silently running with a weaker setup than configured.
func ValidateConfig(cfg Config) error {
	var errs []error

	if s := cfg.IdentitySecret; s != "" && len(s) < 32 {
		// Measured in bytes: the secret is used as a raw HMAC key.
		errs = append(errs, errors.New("GLOWLOGY_IDENTITY_SECRET is too short (min 32 bytes)"))
	}
	if cfg.SharedRateLimits && strings.TrimSpace(cfg.DatabaseURL) == "" {
		errs = append(errs, errors.New("GLOWLOGY_SHARED_RATE_LIMITS=true requires GLOWLOGY_DATABASE_URL"))
	}
	if cfg.ReadinessRequireDB && strings.TrimSpace(cfg.DatabaseURL) == "" {
		errs = append(errs, errors.New("GLOWLOGY_READINESS_REQUIRE_DB=true requires GLOWLOGY_DATABASE_URL"))
	}
	if api.ParseSameSite(cfg.CookieSameSite) == http.SameSiteNoneMode && !cfg.CookieSecure {
		errs = append(errs, errors.New("GLOWLOGY_COOKIE_SAMESITE=none requires GLOWLOGY_COOKIE_SECURE=true"))
	}
	switch strings.ToLower(strings.TrimSpace(cfg.LogFormat)) {
	case "", "json", "text", "pretty":
	default:
		errs = append(errs, fmt.Errorf("GLOWLOGY_LOG_FORMAT=%q: want json, text or pretty", cfg.LogFormat))
	}
	if cfg.BatchWindow < 0 || cfg.JanitorInterval < 0 {
		errs = append(errs, errors.New("batch window and janitor interval must not be negative"))
	}
	if cfg.CORSAllowCredentials {
		for _, o := range cfg.CORSAllowedOrigins {
			if strings.TrimSpace(o) == "*" {
				errs = append(errs, errors.New("GLOWLOGY_CORS_ALLOW_CREDENTIALS=true cannot be combined with a * origin"))
				break
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
