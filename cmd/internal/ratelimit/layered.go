package ratelimit

import "context"

// Releaser is implemented by limiters that can take back a recorded event.
type Releaser interface {
	Release(ctx context.Context, identity string, p Policy) error
}

// Layered consults a local limiter before a shared one. A local rejection
// short-circuits without touching the shared store; a shared rejection or
// failure gives the local event back when Local is a Releaser.
type Layered struct {
	Local  Limiter
	Shared Limiter
}

// NewLayered returns local when shared is nil.
func NewLayered(local, shared Limiter) Limiter {
	if shared == nil {
		return local
	}
	if local == nil {
		return shared
	}
	return Layered{Local: local, Shared: shared}
}

// CheckAndRecord implements Limiter.
func (l Layered) CheckAndRecord(ctx context.Context, identity string, p Policy) (Decision, error) {
	d, err := l.Local.CheckAndRecord(ctx, identity, p)
	if err != nil || !d.Allowed {
		return d, err
	}
	d, err = l.Shared.CheckAndRecord(ctx, identity, p)
	if err != nil || !d.Allowed {
		if r, ok := l.Local.(Releaser); ok {
			_ = r.Release(context.WithoutCancel(ctx), identity, p)
		}
	}
	return d, err
}
