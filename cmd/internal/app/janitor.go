package app

import (
	"context"
	"time"
)

// runJanitor purges expired cache entries and stale rate-limit windows every
// interval until ctx is done.
func (a *App) runJanitor(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.sweep(ctx)
		}
	}
}

func (a *App) sweep(ctx context.Context) {
	if a.cache != nil {
		n, err := a.cache.ClearExpired(ctx)
		if err != nil {
			a.log.Warn("janitor.cache.fail", "err", err)
		} else if n > 0 {
			a.log.Debug("janitor.cache", "removed", n)
		}
	}
	if n := a.local.Sweep(); n > 0 {
		a.log.Debug("janitor.ratelimit.local", "removed", n)
	}
	if a.shared != nil {
		n, err := a.shared.Sweep(ctx, a.longestWindow())
		if err != nil {
			a.log.Warn("janitor.ratelimit.shared.fail", "err", err)
		} else if n > 0 {
			a.log.Debug("janitor.ratelimit.shared", "removed", n)
		}
	}
}

func (a *App) longestWindow() time.Duration {
	l := a.policy.Limits()
	longest := time.Hour
	for _, p := range []time.Duration{l.Booking.Window, l.Contact.Window, l.Membership.Window, l.Callback.Window} {
		longest = max(longest, p)
	}
	return longest
}
