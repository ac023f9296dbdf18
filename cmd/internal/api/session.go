package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const sessionCookieTTL = 180 * 24 * time.Hour

// sessionID returns the anonymous session id of the caller, minting and
// setting a new cookie when the request carries none. The id keys the
// booking rate limit.
func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(h.cfg.SessionCookie); err == nil {
		if v := strings.TrimSpace(c.Value); v != "" {
			if _, err := uuid.Parse(v); err == nil {
				return v
			}
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.SessionCookie,
		Value:    id,
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		Expires:  h.now().Add(sessionCookieTTL),
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	})
	return id
}
