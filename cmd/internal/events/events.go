// Package events publishes domain events (booking and inquiry lifecycle) to
// downstream consumers such as notification workers.
package events

import (
	"context"
	"sync"
	"time"
)

// Routing keys.
const (
	BookingCreated       = "booking.created"
	BookingStatusChanged = "booking.status_changed"
	ContactSubmitted     = "inquiry.contact.submitted"
	MembershipSubmitted  = "inquiry.membership.submitted"
	CallbackSubmitted    = "inquiry.callback.submitted"
	NewsletterSubscribed = "inquiry.newsletter.submitted"
)

// Event is the envelope every message carries.
type Event struct {
	Key  string    `json:"key"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

// Publisher delivers events. Publish failures never roll back the write that
// produced the event; callers log them and continue.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Keys returns the routing keys published so far, in order.
func (r *Recorder) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Key)
	}
	return out
}
