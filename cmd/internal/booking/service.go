package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"glowlogy/cmd/internal/apperr"
	"glowlogy/cmd/internal/cache"
	"glowlogy/cmd/internal/coord"
	"glowlogy/cmd/internal/docstore"
	"glowlogy/cmd/internal/events"
	"glowlogy/cmd/internal/ratelimit"
	"glowlogy/cmd/internal/validate"
)

// Create validates in, charges the session's booking budget and stores a
// pending booking. The insert is refused when an active booking already holds
// the same location, date and time.
func (s *Service) Create(ctx context.Context, in CreateInput) (Booking, error) {
	fields, err := s.validateCreate(in)
	if err != nil {
		return Booking{}, err
	}

	session := strings.TrimSpace(in.SessionID)
	if session == "" {
		return Booking{}, apperr.Invalid("sessionId", "is required")
	}
	if err := ratelimit.Enforce(ctx, s.limiter, session, s.policy); err != nil {
		if errors.Is(err, apperr.ErrRateLimited) || errors.Is(err, apperr.ErrValidation) {
			return Booking{}, err
		}
		return Booking{}, apperr.Remote("booking.ratelimit", err)
	}

	ref, err := s.ids.next()
	if err != nil {
		return Booking{}, fmt.Errorf("booking reference: %w", err)
	}
	fields["bookingId"] = ref
	fields["status"] = StatusPending
	fields["createdAt"] = docstore.ServerTimestamp
	fields["updatedAt"] = docstore.ServerTimestamp

	guard := []docstore.Filter{
		docstore.Eq("locationId", fields["locationId"]),
		docstore.Eq("date", fields["date"]),
		docstore.Eq("time", fields["time"]),
		docstore.In("status", activeStatuses...),
	}
	doc, err := s.store.InsertUnless(ctx, Collection, fields, guard)
	if errors.Is(err, docstore.ErrConflict) {
		return Booking{}, apperr.ValidationError{Field: "time", Msg: "is no longer available", Err: ErrSlotTaken}
	}
	if err != nil {
		s.log.Error("booking.create.fail", "err", err)
		return Booking{}, apperr.Remote("booking.create", err)
	}

	s.cache.Invalidate(ctx, cache.NSBookings)

	b, err := decode(doc)
	if err != nil {
		return Booking{}, apperr.Remote("booking.create", err)
	}
	s.log.Info("booking.created", "booking_id", b.BookingID, "location_id", b.LocationID, "date", b.Date, "time", b.Time)
	s.publish(ctx, events.BookingCreated, b)
	return b, nil
}

func (s *Service) validateCreate(in CreateInput) (docstore.Fields, error) {
	for _, f := range []struct{ field, v string }{
		{"location", in.LocationID},
		{"service", in.ServiceID},
		{"date", in.Date},
		{"time", in.Time},
		{"name", in.CustomerName},
		{"email", in.Email},
		{"phone", in.Phone},
	} {
		if err := validate.Required(f.field, f.v); err != nil {
			return nil, err
		}
	}
	if err := validate.MaxLen("name", in.CustomerName, 120); err != nil {
		return nil, err
	}
	if err := validate.MaxLen("notes", in.Notes, 1000); err != nil {
		return nil, err
	}
	email, err := validate.Email("email", in.Email)
	if err != nil {
		return nil, err
	}
	phone, err := validate.Phone("phone", in.Phone)
	if err != nil {
		return nil, err
	}
	if _, err := validate.Date("date", in.Date); err != nil {
		return nil, err
	}
	clock, err := validate.Clock("time", in.Time)
	if err != nil {
		return nil, err
	}
	if _, ok := s.slotSet[clock]; !ok {
		return nil, apperr.Invalid("time", "is not a bookable slot")
	}

	var userID any
	if u := strings.TrimSpace(in.UserID); u != "" {
		userID = u
	}
	f := docstore.Fields{
		"locationId":   strings.TrimSpace(in.LocationID),
		"serviceId":    strings.TrimSpace(in.ServiceID),
		"date":         strings.TrimSpace(in.Date),
		"time":         clock,
		"customerName": strings.TrimSpace(in.CustomerName),
		"email":        email,
		"phone":        phone,
		"userId":       userID,
	}
	if notes := strings.TrimSpace(in.Notes); notes != "" {
		f["notes"] = notes
	}
	return f, nil
}

// ListForUser returns the customer's bookings, newest first. With useCache a
// fresh cached list is returned without touching the store.
func (s *Service) ListForUser(ctx context.Context, email string, useCache bool) ([]Booking, error) {
	email, err := validate.Email("email", email)
	if err != nil {
		return nil, err
	}

	if useCache {
		var byEmail map[string][]Booking
		if _, ok := s.cache.Get(ctx, cache.NSBookings, &byEmail); ok {
			if list, ok := byEmail[email]; ok {
				return list, nil
			}
		}
	}

	list, err := coord.Dedupe(ctx, s.coord, "bookings:user:"+email, func(ctx context.Context) ([]Booking, error) {
		gen := s.cache.Generation(cache.NSBookings)
		docs, err := s.store.Query(ctx, Collection, docstore.Query{
			Where:   []docstore.Filter{docstore.Eq("email", email)},
			OrderBy: "createdAt",
			Desc:    true,
		})
		if err != nil {
			return nil, apperr.Remote("booking.list", err)
		}
		list, err := decodeAll(docs)
		if err != nil {
			return nil, apperr.Remote("booking.list", err)
		}

		byEmail := map[string][]Booking{}
		_, _ = s.cache.Get(ctx, cache.NSBookings, &byEmail)
		if byEmail == nil {
			byEmail = map[string][]Booking{}
		}
		byEmail[email] = list
		// A write that finished during the query already invalidated this list.
		if stored, err := s.cache.SetIfUnchanged(ctx, cache.NSBookings, gen, byEmail); err != nil {
			s.log.Warn("booking.list.cache.fail", "err", err)
		} else if !stored {
			s.log.Debug("booking.list.cache.skip_stale", "email", email)
		}
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (s *Service) fetchByIDs(ctx context.Context, ids []string) ([]Booking, error) {
	docs, err := s.store.GetMany(ctx, Collection, ids)
	if err != nil {
		return nil, apperr.Remote("booking.get", err)
	}
	list, err := decodeAll(docs)
	if err != nil {
		return nil, apperr.Remote("booking.get", err)
	}
	return list, nil
}

// Get returns one booking by document id. Lookups arriving together share a
// single store round trip.
func (s *Service) Get(ctx context.Context, id string) (Booking, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Booking{}, apperr.Invalid("id", "is required")
	}
	list, err := s.batch.Load(ctx, Collection, []string{id}, s.fetchByIDs)
	if err != nil {
		return Booking{}, err
	}
	if len(list) == 0 {
		return Booking{}, fmt.Errorf("booking %s: %w", id, apperr.ErrNotFound)
	}
	return list[0], nil
}

// GetMany returns the bookings that exist among ids, in no particular order.
func (s *Service) GetMany(ctx context.Context, ids []string) ([]Booking, error) {
	clean := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			clean = append(clean, id)
		}
	}
	if len(clean) == 0 {
		return nil, nil
	}
	return s.batch.Load(ctx, Collection, clean, s.fetchByIDs)
}

// FindByReference looks a booking up by its customer-facing reference.
func (s *Service) FindByReference(ctx context.Context, ref string) (Booking, error) {
	ref = strings.ToUpper(strings.TrimSpace(ref))
	if ref == "" {
		return Booking{}, apperr.Invalid("bookingId", "is required")
	}
	docs, err := s.store.Query(ctx, Collection, docstore.Query{
		Where: []docstore.Filter{docstore.Eq("bookingId", ref)},
		Limit: 1,
	})
	if err != nil {
		return Booking{}, apperr.Remote("booking.find", err)
	}
	if len(docs) == 0 {
		return Booking{}, fmt.Errorf("booking %s: %w", ref, apperr.ErrNotFound)
	}
	b, err := decode(docs[0])
	if err != nil {
		return Booking{}, apperr.Remote("booking.find", err)
	}
	return b, nil
}

// UpdateStatus moves a booking to status. Setting the current status is a
// no-op; any change outside the transition table fails with
// apperr.TransitionError. A concurrent change between read and write fails
// with apperr.ErrConflict.
func (s *Service) UpdateStatus(ctx context.Context, id, status string) (Booking, error) {
	next, err := ParseStatus(status)
	if err != nil {
		return Booking{}, err
	}
	return s.transition(ctx, id, next, nil)
}

// Cancel cancels a pending or confirmed booking, recording reason.
func (s *Service) Cancel(ctx context.Context, id, reason string) (Booking, error) {
	reason = strings.TrimSpace(reason)
	if err := validate.MaxLen("reason", reason, 500); err != nil {
		return Booking{}, err
	}
	return s.transition(ctx, id, StatusCancelled, docstore.Fields{
		"cancelReason": reason,
		"cancelledAt":  docstore.ServerTimestamp,
	})
}

// Confirm confirms a pending booking.
func (s *Service) Confirm(ctx context.Context, id string) (Booking, error) {
	return s.transition(ctx, id, StatusConfirmed, nil)
}

// Complete marks a confirmed booking as completed.
func (s *Service) Complete(ctx context.Context, id string) (Booking, error) {
	return s.transition(ctx, id, StatusCompleted, nil)
}

func (s *Service) load(ctx context.Context, id string) (Booking, error) {
	doc, err := s.store.Get(ctx, Collection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return Booking{}, fmt.Errorf("booking %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return Booking{}, apperr.Remote("booking.get", err)
	}
	b, err := decode(doc)
	if err != nil {
		return Booking{}, apperr.Remote("booking.get", err)
	}
	return b, nil
}

func (s *Service) transition(ctx context.Context, id string, next Status, extra docstore.Fields) (Booking, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Booking{}, apperr.Invalid("id", "is required")
	}

	cur, err := s.load(ctx, id)
	if err != nil {
		return Booking{}, err
	}
	if cur.Status == next {
		return cur, nil
	}
	if !cur.Status.CanTransition(next) {
		return Booking{}, apperr.TransitionError{From: string(cur.Status), To: string(next)}
	}

	fields := docstore.Fields{
		"status":    next,
		"updatedAt": docstore.ServerTimestamp,
	}
	for k, v := range extra {
		fields[k] = v
	}
	err = s.store.UpdateIf(ctx, Collection, id, []docstore.Filter{docstore.Eq("status", cur.Status)}, fields)
	switch {
	case errors.Is(err, docstore.ErrConflict):
		return Booking{}, fmt.Errorf("booking %s changed concurrently: %w", id, apperr.ErrConflict)
	case errors.Is(err, docstore.ErrNotFound):
		return Booking{}, fmt.Errorf("booking %s: %w", id, apperr.ErrNotFound)
	case err != nil:
		s.log.Error("booking.status.fail", "id", id, "to", next, "err", err)
		return Booking{}, apperr.Remote("booking.update", err)
	}

	s.cache.Invalidate(ctx, cache.NSBookings)
	s.log.Info("booking.status.changed", "id", id, "from", cur.Status, "to", next)

	updated, err := s.load(ctx, id)
	if err != nil {
		// The write landed; report what we know.
		s.log.Warn("booking.status.reload.fail", "id", id, "err", err)
		updated = cur
		updated.Status = next
	}
	s.publish(ctx, events.BookingStatusChanged, map[string]any{
		"id":        id,
		"bookingId": cur.BookingID,
		"from":      cur.Status,
		"to":        next,
	})
	return updated, nil
}

// AvailableSlots returns the daily slots not held by an active booking at
// locationID on date. A failed availability query returns every slot.
func (s *Service) AvailableSlots(ctx context.Context, date, locationID string) ([]string, error) {
	if err := validate.Required("location", locationID); err != nil {
		return nil, err
	}
	if _, err := validate.Date("date", date); err != nil {
		return nil, err
	}
	date = strings.TrimSpace(date)
	locationID = strings.TrimSpace(locationID)

	docs, err := s.store.Query(ctx, Collection, docstore.Query{
		Where: []docstore.Filter{
			docstore.Eq("locationId", locationID),
			docstore.Eq("date", date),
			docstore.In("status", activeStatuses...),
		},
	})
	if err != nil {
		s.log.Warn("booking.slots.query.fail", "location_id", locationID, "date", date, "err", err)
		return s.Slots(), nil
	}

	taken := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		var b struct {
			Time string `json:"time"`
		}
		if err := d.Decode(&b); err == nil {
			taken[b.Time] = struct{}{}
		}
	}
	out := make([]string, 0, len(s.slots))
	for _, t := range s.slots {
		if _, ok := taken[t]; !ok {
			out = append(out, t)
		}
	}
	return out, nil
}
