// Package api serves the booking, intake and catalog flows as JSON over HTTP.
// Handlers only translate; every business rule lives in the services.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"glowlogy/cmd/internal/booking"
	"glowlogy/cmd/internal/catalog"
	"glowlogy/cmd/internal/identity"
	"glowlogy/cmd/internal/inquiry"
)

// Observer receives rate-limit rejections. *telemetry.Metrics satisfies it.
type Observer interface {
	RateLimited(policy string)
}

type noopObserver struct{}

func (noopObserver) RateLimited(string) {}

// Deps are the services behind the handlers. Bookings, Inquiries and Catalog are required.
type Deps struct {
	Bookings  *booking.Service
	Inquiries *inquiry.Service
	Catalog   *catalog.Catalog
	Identity  identity.Resolver
}

// Handler wires HTTP endpoints to the booking, intake and catalog services.
type Handler struct {
	log *slog.Logger
	cfg Config

	bookings  *booking.Service
	inquiries *inquiry.Service
	catalog   *catalog.Catalog
	ids       identity.Resolver

	obs Observer
	now func() time.Time
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithObserver reports rate-limit rejections to obs.
func WithObserver(obs Observer) HandlerOption {
	return func(h *Handler) {
		if h == nil || obs == nil {
			return
		}
		h.obs = obs
	}
}

// WithClock overrides the time source used for cookie expiry.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if h == nil || now == nil {
			return
		}
		h.now = now
	}
}

// NewHandler constructs a Handler. A nil Identity resolves every caller as a guest.
func NewHandler(log *slog.Logger, cfg Config, d Deps, opts ...HandlerOption) (*Handler, error) {
	if d.Bookings == nil {
		return nil, errors.New("api: nil booking service")
	}
	if d.Inquiries == nil {
		return nil, errors.New("api: nil inquiry service")
	}
	if d.Catalog == nil {
		return nil, errors.New("api: nil catalog")
	}
	if log == nil {
		log = slog.Default()
	}

	h := &Handler{
		log:       log,
		cfg:       cfg.normalized(),
		bookings:  d.Bookings,
		inquiries: d.Inquiries,
		catalog:   d.Catalog,
		ids:       d.Identity,
		obs:       noopObserver{},
		now:       func() time.Time { return time.Now().UTC() },
	}
	if h.ids == nil {
		h.ids = identity.Guest{}
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Register wires the API routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /v1/bookings", h.handleCreateBooking)
	mux.HandleFunc("GET /v1/bookings", h.handleListBookings)
	mux.HandleFunc("GET /v1/bookings/lookup", h.handleLookupBooking)
	mux.HandleFunc("GET /v1/bookings/{id}", h.handleGetBooking)
	mux.HandleFunc("PATCH /v1/bookings/{id}/status", h.handleUpdateStatus)
	mux.HandleFunc("POST /v1/bookings/{id}/cancel", h.handleCancelBooking)
	mux.HandleFunc("GET /v1/slots", h.handleSlots)

	mux.HandleFunc("POST /v1/contact", h.handleContact)
	mux.HandleFunc("POST /v1/membership", h.handleMembership)
	mux.HandleFunc("POST /v1/callback", h.handleCallback)
	mux.HandleFunc("POST /v1/newsletter", h.handleNewsletter)

	mux.HandleFunc("GET /v1/services", h.handleServices)
	mux.HandleFunc("GET /v1/services/{id}", h.handleService)
	mux.HandleFunc("GET /v1/categories", h.handleCategories)
	mux.HandleFunc("GET /v1/locations", h.handleLocations)
	mux.HandleFunc("GET /v1/locations/{id}", h.handleLocation)
	mux.HandleFunc("GET /v1/cities", h.handleCities)
}

// caller resolves the identity of r. ok is false when a response was already
// written because presented credentials were rejected.
func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (id identity.Identity, signedIn, ok bool) {
	id, signedIn, err := h.ids.Resolve(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_token", "sign-in expired, please sign in again")
		return identity.Identity{}, false, false
	}
	return id, signedIn, true
}

func (h *Handler) requireSignedIn(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	id, signedIn, ok := h.caller(w, r)
	if !ok {
		return identity.Identity{}, false
	}
	if !signedIn {
		writeError(w, http.StatusUnauthorized, "unauthorized", "sign in required")
		return identity.Identity{}, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return false
	}
	return true
}
