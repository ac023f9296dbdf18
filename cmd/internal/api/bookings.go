package api

import (
	"net/http"
	"strconv"
	"strings"

	"glowlogy/cmd/internal/apperr"
	"glowlogy/cmd/internal/booking"
	"glowlogy/cmd/internal/identity"
	"glowlogy/cmd/internal/validate"
)

type listBookingsResponse struct {
	Bookings []booking.Booking `json:"bookings"`
}

type statusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type cancelRequest struct {
	Email  string `json:"email,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type slotsResponse struct {
	Date       string   `json:"date"`
	LocationID string   `json:"locationId"`
	Slots      []string `json:"slots"`
}

func (h *Handler) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var in booking.CreateInput
	if !h.decode(w, r, &in) {
		return
	}
	id, signedIn, ok := h.caller(w, r)
	if !ok {
		return
	}
	in.SessionID = h.sessionID(w, r)
	if signedIn {
		in.UserID = id.ID
		if strings.TrimSpace(in.Email) == "" {
			in.Email = id.Email
		}
	}

	b, err := h.bookings.Create(r.Context(), in)
	if err != nil {
		h.writeAppError(w, "api.booking.create", err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// handleListBookings lists the caller's bookings. Admins may pass ?email= to
// list someone else's.
func (h *Handler) handleListBookings(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireSignedIn(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	email := id.Email
	if raw := strings.TrimSpace(q.Get("email")); raw != "" && validate.NormalizeEmail(raw) != id.Email {
		if !id.Admin {
			writeError(w, http.StatusForbidden, "forbidden", "you can only list your own bookings")
			return
		}
		email = raw
	}
	fresh, _ := strconv.ParseBool(q.Get("fresh"))

	list, err := h.bookings.ListForUser(r.Context(), email, !fresh)
	if err != nil {
		h.writeAppError(w, "api.booking.list", err)
		return
	}
	writeJSON(w, http.StatusOK, listBookingsResponse{Bookings: list})
}

// handleLookupBooking finds a booking by its reference. The email must match
// the booking, so guests can check a booking without signing in.
func (h *Handler) handleLookupBooking(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ref := strings.TrimSpace(q.Get("ref"))
	if err := validate.Required("ref", ref); err != nil {
		h.writeAppError(w, "api.booking.lookup", err)
		return
	}
	email, err := validate.Email("email", q.Get("email"))
	if err != nil {
		h.writeAppError(w, "api.booking.lookup", err)
		return
	}

	b, err := h.bookings.FindByReference(r.Context(), ref)
	if err != nil {
		h.writeAppError(w, "api.booking.lookup", err)
		return
	}
	if b.Email != email {
		h.writeAppError(w, "api.booking.lookup", apperr.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireSignedIn(w, r)
	if !ok {
		return
	}
	b, err := h.bookings.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeAppError(w, "api.booking.get", err)
		return
	}
	if !canManage(id, true, b, "") {
		h.writeAppError(w, "api.booking.get", apperr.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireSignedIn(w, r)
	if !ok {
		return
	}
	if !id.Admin {
		writeError(w, http.StatusForbidden, "forbidden", "admin access required")
		return
	}
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}

	bookingID := r.PathValue("id")
	var (
		b   booking.Booking
		err error
	)
	if strings.TrimSpace(req.Reason) != "" && strings.EqualFold(strings.TrimSpace(req.Status), string(booking.StatusCancelled)) {
		b, err = h.bookings.Cancel(r.Context(), bookingID, req.Reason)
	} else {
		b, err = h.bookings.UpdateStatus(r.Context(), bookingID, req.Status)
	}
	if err != nil {
		h.writeAppError(w, "api.booking.status", err)
		return
	}
	h.log.Info("api.booking.status", "id", b.ID, "status", b.Status, "by", id.ID)
	writeJSON(w, http.StatusOK, b)
}

// handleCancelBooking lets the customer cancel. Signed-in callers are matched
// by account email, guests by the email in the body.
func (h *Handler) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, signedIn, ok := h.caller(w, r)
	if !ok {
		return
	}

	b, err := h.bookings.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeAppError(w, "api.booking.cancel", err)
		return
	}
	if !canManage(id, signedIn, b, req.Email) {
		h.writeAppError(w, "api.booking.cancel", apperr.ErrNotFound)
		return
	}

	b, err = h.bookings.Cancel(r.Context(), b.ID, req.Reason)
	if err != nil {
		h.writeAppError(w, "api.booking.cancel", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) handleSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, loc := strings.TrimSpace(q.Get("date")), strings.TrimSpace(q.Get("location"))

	slots, err := h.bookings.AvailableSlots(r.Context(), date, loc)
	if err != nil {
		h.writeAppError(w, "api.slots", err)
		return
	}
	writeJSON(w, http.StatusOK, slotsResponse{Date: date, LocationID: loc, Slots: slots})
}

// canManage reports whether the caller may see or cancel b. Unknown callers
// get a not-found answer so booking ids cannot be probed.
func canManage(id identity.Identity, signedIn bool, b booking.Booking, email string) bool {
	if signedIn && (id.Admin || id.Email == b.Email) {
		return true
	}
	email = validate.NormalizeEmail(email)
	return email != "" && email == b.Email
}
