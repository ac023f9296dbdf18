// Package booking implements the appointment lifecycle: creation with a
// per-slot uniqueness guard, customer listings, status transitions and slot
// availability.
package booking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"glowlogy/cmd/internal/cache"
	"glowlogy/cmd/internal/coord"
	"glowlogy/cmd/internal/docstore"
	"glowlogy/cmd/internal/events"
	"glowlogy/cmd/internal/ratelimit"
)

// Collection is the document store collection holding bookings.
const Collection = "bookings"

// ErrSlotTaken is the cause attached when an active booking already holds the slot.
var ErrSlotTaken = errors.New("slot already booked")

// Booking is one appointment. ID is the store's document id; BookingID is the
// reference shown to the customer.
type Booking struct {
	ID           string     `json:"id"`
	BookingID    string     `json:"bookingId"`
	LocationID   string     `json:"locationId"`
	ServiceID    string     `json:"serviceId"`
	Date         string     `json:"date"`
	Time         string     `json:"time"`
	CustomerName string     `json:"customerName"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone"`
	UserID       *string    `json:"userId"`
	Notes        string     `json:"notes,omitempty"`
	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	CancelledAt  *time.Time `json:"cancelledAt,omitempty"`
	CancelReason string     `json:"cancelReason,omitempty"`
}

// CreateInput is a booking request. SessionID keys the rate limit and is
// required; UserID is empty for guests.
type CreateInput struct {
	SessionID string `json:"-"`
	UserID    string `json:"-"`

	LocationID   string `json:"locationId"`
	ServiceID    string `json:"serviceId"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	CustomerName string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Notes        string `json:"notes,omitempty"`
}

// Cache is the subset of cache.Tiered the service needs.
type Cache interface {
	Get(ctx context.Context, ns string, dst any) (cache.Source, bool)
	Generation(ns string) uint64
	SetIfUnchanged(ctx context.Context, ns string, gen uint64, payload any) (bool, error)
	Invalidate(ctx context.Context, ns string)
}

// Deps are the collaborators of Service. Store, Cache and Limiter are required.
type Deps struct {
	Store   docstore.Store
	Cache   Cache
	Limiter ratelimit.Limiter
	Coord   *coord.Coordinator
	Events  events.Publisher
	Log     *slog.Logger
}

// Service runs the booking flows.
type Service struct {
	store   docstore.Store
	cache   Cache
	limiter ratelimit.Limiter
	coord   *coord.Coordinator
	events  events.Publisher
	log     *slog.Logger

	policy  ratelimit.Policy
	slots   []string
	slotSet map[string]struct{}
	now     func() time.Time
	ids     *idGenerator

	batchOpts []coord.BatcherOption[Booking]
	batch     *coord.Batcher[Booking]
}

// Option configures Service.
type Option func(*Service)

// WithPolicy overrides ratelimit.BookingPolicy.
func WithPolicy(p ratelimit.Policy) Option {
	return func(s *Service) {
		if p.Max > 0 && p.Window > 0 {
			s.policy = p
		}
	}
}

// WithSlots overrides the daily slot list.
func WithSlots(slots []string) Option {
	return func(s *Service) {
		if len(slots) > 0 {
			s.slots = append([]string(nil), slots...)
		}
	}
}

// WithClock overrides the time source used for booking references.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithBatchWindow overrides coord.DefaultBatchWindow for by-id lookups.
func WithBatchWindow(d time.Duration) Option {
	return func(s *Service) {
		s.batchOpts = append(s.batchOpts, coord.WithWindow[Booking](d))
	}
}

// WithBatchObserver reports batch flushes to o.
func WithBatchObserver(o coord.Observer) Option {
	return func(s *Service) {
		s.batchOpts = append(s.batchOpts, coord.WithBatchObserver[Booking](o))
	}
}

// DefaultSlots is the fixed daily slot list.
var DefaultSlots = []string{
	"09:00", "09:30", "10:00", "10:30", "11:00", "11:30",
	"12:00", "12:30", "14:00", "14:30", "15:00", "15:30",
	"16:00", "16:30", "17:00", "17:30", "18:00", "18:30",
}

// NewService constructs a Service.
func NewService(d Deps, opts ...Option) (*Service, error) {
	if d.Store == nil {
		return nil, errors.New("booking: nil store")
	}
	if d.Cache == nil {
		return nil, errors.New("booking: nil cache")
	}
	if d.Limiter == nil {
		return nil, errors.New("booking: nil limiter")
	}

	s := &Service{
		store:   d.Store,
		cache:   d.Cache,
		limiter: d.Limiter,
		coord:   d.Coord,
		events:  d.Events,
		log:     d.Log,
		policy:  ratelimit.BookingPolicy,
		slots:   append([]string(nil), DefaultSlots...),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.coord == nil {
		s.coord = coord.New(nil)
	}
	if s.events == nil {
		s.events = events.Noop{}
	}
	if s.log == nil {
		s.log = slog.Default()
	}

	s.slotSet = make(map[string]struct{}, len(s.slots))
	for _, t := range s.slots {
		s.slotSet[t] = struct{}{}
	}
	s.ids = newIDGenerator(s.now)
	s.batch = coord.NewBatcher(func(b Booking) string { return b.ID }, s.batchOpts...)
	return s, nil
}

// Slots returns the configured daily slot list.
func (s *Service) Slots() []string {
	return append([]string(nil), s.slots...)
}

func decode(doc docstore.Document) (Booking, error) {
	var b Booking
	if err := doc.Decode(&b); err != nil {
		return Booking{}, err
	}
	b.ID = doc.ID
	if b.CreatedAt.IsZero() {
		b.CreatedAt = doc.CreatedAt
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = doc.UpdatedAt
	}
	return b, nil
}

func decodeAll(docs []docstore.Document) ([]Booking, error) {
	out := make([]Booking, 0, len(docs))
	for _, d := range docs {
		b, err := decode(d)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *Service) publish(ctx context.Context, key string, data any) {
	if err := s.events.Publish(ctx, events.Event{Key: key, At: s.now(), Data: data}); err != nil {
		s.log.Warn("booking.event.publish.fail", "key", key, "err", err)
	}
}
