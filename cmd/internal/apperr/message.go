package apperr

import (
	"errors"
	"fmt"
)

// UserMessage renders err for display. It never leaks remote error details.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var ve ValidationError
	if errors.As(err, &ve) {
		if ve.Field == "" {
			return fmt.Sprintf("Please check your details: %s.", ve.Msg)
		}
		return fmt.Sprintf("Please fix the %s field: %s.", ve.Field, ve.Msg)
	}

	var re RateLimitError
	if errors.As(err, &re) {
		n := re.RetryMinutes()
		if n == 1 {
			return "You're doing that too often. Please wait 1 minute and try again."
		}
		return fmt.Sprintf("You're doing that too often. Please wait %d minutes and try again.", n)
	}

	if errors.Is(err, ErrNotFound) {
		return "We couldn't find that record."
	}

	return "Something went wrong. Please try again."
}
