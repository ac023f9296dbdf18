package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"glowlogy/cmd/internal/apperr"
)

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration, msg string) {
	if retryAfter > 0 {
		secs := int64(retryAfter / time.Second)
		if retryAfter%time.Second != 0 {
			secs++
		}
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", msg)
}

// writeAppError maps the apperr taxonomy onto a status code and renders the
// user-facing message. Remote details are logged, never returned.
func (h *Handler) writeAppError(w http.ResponseWriter, op string, err error) {
	msg := apperr.UserMessage(err)

	var ve apperr.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: apiError{
			Code:    "invalid_request",
			Message: msg,
			Field:   ve.Field,
		}})
		return
	}

	var re apperr.RateLimitError
	if errors.As(err, &re) {
		h.obs.RateLimited(re.Action)
		h.log.Info(op+".rate_limited", "action", re.Action, "retry_after", re.RetryAfter)
		writeRateLimited(w, re.RetryAfter, msg)
		return
	}

	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", msg)
	case errors.Is(err, apperr.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, apperr.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", "the record changed, please reload and try again")
	case errors.Is(err, apperr.ErrRemote):
		h.log.Error(op+".fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "unavailable", msg)
	default:
		h.log.Error(op+".fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", msg)
	}
}
