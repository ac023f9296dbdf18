// Package validate holds the canonical input validators shared by every intake flow.
package validate

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"glowlogy/cmd/internal/apperr"
)

const dateLayout = "2006-01-02"

var (
	emailRE = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRE = regexp.MustCompile(`^[+]?[0-9]{10,13}$`)
	clockRE = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)
)

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// CleanPhone strips the separators users commonly type.
func CleanPhone(s string) string {
	return strings.NewReplacer(" ", "", "-", "", "\t", "").Replace(strings.TrimSpace(s))
}

// Required rejects blank values.
func Required(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return apperr.Invalid(field, "is required")
	}
	return nil
}

// MaxLen rejects values longer than n runes.
func MaxLen(field, v string, n int) error {
	if utf8.RuneCountInString(v) > n {
		return apperr.Invalid(field, "is too long")
	}
	return nil
}

// Email returns the normalized address or a validation error.
func Email(field, raw string) (string, error) {
	if err := Required(field, raw); err != nil {
		return "", err
	}
	v := NormalizeEmail(raw)
	if !emailRE.MatchString(v) {
		return "", apperr.Invalid(field, "is not a valid email address")
	}
	return v, nil
}

// Phone returns the cleaned number or a validation error.
// Accepts an optional leading + followed by 10 to 13 digits.
func Phone(field, raw string) (string, error) {
	if err := Required(field, raw); err != nil {
		return "", err
	}
	v := CleanPhone(raw)
	if !phoneRE.MatchString(v) {
		return "", apperr.Invalid(field, "is not a valid phone number")
	}
	return v, nil
}

// Date parses a calendar date in YYYY-MM-DD form.
func Date(field, raw string) (time.Time, error) {
	if err := Required(field, raw); err != nil {
		return time.Time{}, err
	}
	d, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, apperr.Invalid(field, "must be a date in YYYY-MM-DD form")
	}
	return d, nil
}

// Clock checks an HH:MM wall-clock time.
func Clock(field, raw string) (string, error) {
	if err := Required(field, raw); err != nil {
		return "", err
	}
	v := strings.TrimSpace(raw)
	if !clockRE.MatchString(v) {
		return "", apperr.Invalid(field, "must be a time in HH:MM form")
	}
	return v, nil
}

// OneOf returns v (or def when v is blank) if it is in allowed.
func OneOf(field, v, def string, allowed ...string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		v = def
	}
	for _, a := range allowed {
		if v == a {
			return v, nil
		}
	}
	return "", apperr.Invalid(field, "is not one of the accepted values")
}
