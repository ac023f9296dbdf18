package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"glowlogy/cmd/internal/booking"
	"glowlogy/cmd/internal/cache"
	"glowlogy/cmd/internal/catalog"
	"glowlogy/cmd/internal/docstore"
	"glowlogy/cmd/internal/identity"
	"glowlogy/cmd/internal/inquiry"
	"glowlogy/cmd/internal/ratelimit"
)

type recordingObserver struct {
	mu       sync.Mutex
	policies []string
}

func (o *recordingObserver) RateLimited(policy string) {
	o.mu.Lock()
	o.policies = append(o.policies, policy)
	o.mu.Unlock()
}

func (o *recordingObserver) seen() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.policies...)
}

type testEnv struct {
	ts     *httptest.Server
	client *http.Client
	store  *docstore.Memory
	tokens *identity.TokenVerifier
	obs    *recordingObserver
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := docstore.NewMemory()
	c := cache.New(cache.NewMemoryKV(0), cache.WithLogger(log))
	limiter := ratelimit.NewMemory()

	bookings, err := booking.NewService(booking.Deps{Store: store, Cache: c, Limiter: limiter, Log: log},
		booking.WithBatchWindow(time.Millisecond))
	if err != nil {
		t.Fatalf("booking.NewService: %v", err)
	}
	inquiries, err := inquiry.NewService(inquiry.Deps{Store: store, Limiter: limiter, Log: log})
	if err != nil {
		t.Fatalf("inquiry.NewService: %v", err)
	}
	cat, err := catalog.New(catalog.Deps{Store: store, Cache: c, Log: log}, catalog.WithBatchWindow(time.Millisecond))
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	tokens, err := identity.NewTokenVerifier([]byte(strings.Repeat("k", 32)))
	if err != nil {
		t.Fatalf("NewTokenVerifier: %v", err)
	}

	obs := &recordingObserver{}
	cfg := DefaultConfig()
	cfg.CookieSecure = false
	h, err := NewHandler(log, cfg, Deps{
		Bookings:  bookings,
		Inquiries: inquiries,
		Catalog:   cat,
		Identity:  tokens,
	}, WithObserver(obs))
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	mux := http.NewServeMux()
	h.Register(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New: %v", err)
	}
	client := ts.Client()
	client.Jar = jar

	return testEnv{ts: ts, client: client, store: store, tokens: tokens, obs: obs}
}

func (e testEnv) token(t *testing.T, id identity.Identity) string {
	t.Helper()
	tok, err := e.tokens.Issue(id, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return tok
}

func (e testEnv) do(t *testing.T, method, path string, body any, token string) *http.Response {
	t.Helper()

	var rd io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rd)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = res.Body.Close() })
	return res
}

func decodeBody[T any](t *testing.T, res *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(res.Body).Decode(&v); err != nil {
		t.Fatalf("decode %T: %v", v, err)
	}
	return v
}

func expectStatus(t *testing.T, res *http.Response, want int) {
	t.Helper()
	if res.StatusCode != want {
		b, _ := io.ReadAll(res.Body)
		t.Fatalf("%s %s: status=%d want %d body=%s", res.Request.Method, res.Request.URL.Path, res.StatusCode, want, b)
	}
}

func bookingBody(slot string) map[string]string {
	return map[string]string{
		"locationId": "mumbai-bandra",
		"serviceId":  "massage-swedish",
		"date":       "2025-06-10",
		"time":       slot,
		"name":       "Asha Rao",
		"email":      "asha@example.com",
		"phone":      "98765 43210",
	}
}

func TestAPI_CreateBooking_SessionCookieKeysRateLimit(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	slots := []string{"09:00", "09:30", "10:00", "10:30", "11:00"}
	for i, slot := range slots {
		res := e.do(t, http.MethodPost, "/v1/bookings", bookingBody(slot), "")
		expectStatus(t, res, http.StatusCreated)
		b := decodeBody[booking.Booking](t, res)
		if b.Status != booking.StatusPending || b.Email != "asha@example.com" {
			t.Fatalf("booking %d: %+v", i, b)
		}
		if i == 0 && len(res.Cookies()) == 0 {
			t.Fatalf("first booking did not set a session cookie")
		}
	}

	res := e.do(t, http.MethodPost, "/v1/bookings", bookingBody("11:30"), "")
	expectStatus(t, res, http.StatusTooManyRequests)
	secs, err := strconv.Atoi(res.Header.Get("Retry-After"))
	if err != nil || secs <= 0 || secs > 3600 {
		t.Fatalf("Retry-After=%q", res.Header.Get("Retry-After"))
	}
	er := decodeBody[errorResponse](t, res)
	if er.Error.Code != "rate_limited" || !strings.Contains(er.Error.Message, "too often") {
		t.Fatalf("error=%+v", er.Error)
	}
	if got := e.obs.seen(); !slices.Equal(got, []string{ratelimit.BookingPolicy.Name}) {
		t.Fatalf("observer saw %v", got)
	}
}

func TestAPI_CreateBooking_Rejections(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	missingEmail := bookingBody("09:00")
	delete(missingEmail, "email")

	tests := []struct {
		name  string
		body  any
		code  string
		field string
	}{
		{name: "missing email", body: missingEmail, code: "invalid_request", field: "email"},
		{name: "off-grid slot", body: bookingBody("09:15"), code: "invalid_request", field: "time"},
		{name: "unknown field", body: `{"locationId":"x","bogus":1}`, code: "invalid_json"},
		{name: "trailing data", body: `{"locationId":"x"}{}`, code: "invalid_json"},
	}
	for _, tc := range tests {
		res := e.do(t, http.MethodPost, "/v1/bookings", tc.body, "")
		expectStatus(t, res, http.StatusBadRequest)
		er := decodeBody[errorResponse](t, res)
		if er.Error.Code != tc.code || er.Error.Field != tc.field {
			t.Fatalf("%s: error=%+v", tc.name, er.Error)
		}
	}

	expectStatus(t, e.do(t, http.MethodPost, "/v1/bookings", bookingBody("14:00"), ""), http.StatusCreated)
	res := e.do(t, http.MethodPost, "/v1/bookings", bookingBody("14:00"), "")
	expectStatus(t, res, http.StatusBadRequest)
	if er := decodeBody[errorResponse](t, res); er.Error.Field != "time" {
		t.Fatalf("taken slot error=%+v", er.Error)
	}
}

func TestAPI_CreateBooking_RemoteFailure(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	e.store.FailNext("insert", errors.New("unavailable"))
	res := e.do(t, http.MethodPost, "/v1/bookings", bookingBody("09:00"), "")
	expectStatus(t, res, http.StatusServiceUnavailable)
	er := decodeBody[errorResponse](t, res)
	if er.Error.Message != "Something went wrong. Please try again." {
		t.Fatalf("message=%q", er.Error.Message)
	}
}

func TestAPI_InvalidTokenRejected(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	res := e.do(t, http.MethodPost, "/v1/bookings", bookingBody("09:00"), "not-a-token")
	expectStatus(t, res, http.StatusUnauthorized)
	if er := decodeBody[errorResponse](t, res); er.Error.Code != "invalid_token" {
		t.Fatalf("error=%+v", er.Error)
	}
}

func TestAPI_ListAndGetBookings(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	asha := e.token(t, identity.Identity{ID: "u-asha", Email: "asha@example.com"})
	other := e.token(t, identity.Identity{ID: "u-ravi", Email: "ravi@example.com"})
	admin := e.token(t, identity.Identity{ID: "u-admin", Email: "ops@glowlogy.com", Admin: true})

	body := bookingBody("10:00")
	delete(body, "email")
	res := e.do(t, http.MethodPost, "/v1/bookings", body, asha)
	expectStatus(t, res, http.StatusCreated)
	created := decodeBody[booking.Booking](t, res)
	if created.UserID == nil || *created.UserID != "u-asha" || created.Email != "asha@example.com" {
		t.Fatalf("signed-in booking=%+v", created)
	}

	expectStatus(t, e.do(t, http.MethodGet, "/v1/bookings", nil, ""), http.StatusUnauthorized)

	res = e.do(t, http.MethodGet, "/v1/bookings", nil, asha)
	expectStatus(t, res, http.StatusOK)
	if list := decodeBody[listBookingsResponse](t, res); len(list.Bookings) != 1 || list.Bookings[0].ID != created.ID {
		t.Fatalf("own list=%+v", list)
	}

	res = e.do(t, http.MethodGet, "/v1/bookings", nil, other)
	expectStatus(t, res, http.StatusOK)
	if list := decodeBody[listBookingsResponse](t, res); list.Bookings == nil || len(list.Bookings) != 0 {
		t.Fatalf("other list=%+v", list)
	}

	expectStatus(t, e.do(t, http.MethodGet, "/v1/bookings?email=asha@example.com", nil, other), http.StatusForbidden)
	res = e.do(t, http.MethodGet, "/v1/bookings?email=asha@example.com&fresh=1", nil, admin)
	expectStatus(t, res, http.StatusOK)
	if list := decodeBody[listBookingsResponse](t, res); len(list.Bookings) != 1 {
		t.Fatalf("admin list=%+v", list)
	}

	expectStatus(t, e.do(t, http.MethodGet, "/v1/bookings/"+created.ID, nil, asha), http.StatusOK)
	expectStatus(t, e.do(t, http.MethodGet, "/v1/bookings/"+created.ID, nil, other), http.StatusNotFound)
	expectStatus(t, e.do(t, http.MethodGet, "/v1/bookings/"+created.ID, nil, admin), http.StatusOK)
	expectStatus(t, e.do(t, http.MethodGet, "/v1/bookings/missing", nil, admin), http.StatusNotFound)
}

func TestAPI_LookupBooking(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	res := e.do(t, http.MethodPost, "/v1/bookings", bookingBody("12:00"), "")
	expectStatus(t, res, http.StatusCreated)
	created := decodeBody[booking.Booking](t, res)

	res = e.do(t, http.MethodGet, "/v1/bookings/lookup?ref="+strings.ToLower(created.BookingID)+"&email=ASHA@example.com", nil, "")
	expectStatus(t, res, http.StatusOK)
	if got := decodeBody[booking.Booking](t, res); got.ID != created.ID {
		t.Fatalf("lookup=%+v", got)
	}

	expectStatus(t, e.do(t, http.MethodGet, "/v1/bookings/lookup?ref="+created.BookingID+"&email=ravi@example.com", nil, ""), http.StatusNotFound)
	expectStatus(t, e.do(t, http.MethodGet, "/v1/bookings/lookup?email=asha@example.com", nil, ""), http.StatusBadRequest)
}

func TestAPI_UpdateStatus(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	res := e.do(t, http.MethodPost, "/v1/bookings", bookingBody("15:00"), "")
	expectStatus(t, res, http.StatusCreated)
	created := decodeBody[booking.Booking](t, res)
	path := "/v1/bookings/" + created.ID + "/status"

	customer := e.token(t, identity.Identity{ID: "u-asha", Email: "asha@example.com"})
	admin := e.token(t, identity.Identity{ID: "u-admin", Email: "ops@glowlogy.com", Admin: true})

	expectStatus(t, e.do(t, http.MethodPatch, path, statusRequest{Status: "confirmed"}, ""), http.StatusUnauthorized)
	expectStatus(t, e.do(t, http.MethodPatch, path, statusRequest{Status: "confirmed"}, customer), http.StatusForbidden)

	res = e.do(t, http.MethodPatch, path, statusRequest{Status: "confirmed"}, admin)
	expectStatus(t, res, http.StatusOK)
	if got := decodeBody[booking.Booking](t, res); got.Status != booking.StatusConfirmed {
		t.Fatalf("status=%s", got.Status)
	}

	res = e.do(t, http.MethodPatch, path, statusRequest{Status: "pending"}, admin)
	expectStatus(t, res, http.StatusConflict)
	if er := decodeBody[errorResponse](t, res); er.Error.Code != "invalid_transition" {
		t.Fatalf("error=%+v", er.Error)
	}

	expectStatus(t, e.do(t, http.MethodPatch, path, statusRequest{Status: "archived"}, admin), http.StatusBadRequest)
	expectStatus(t, e.do(t, http.MethodPatch, "/v1/bookings/missing/status", statusRequest{Status: "confirmed"}, admin), http.StatusNotFound)

	res = e.do(t, http.MethodPatch, path, statusRequest{Status: "cancelled", Reason: "therapist unavailable"}, admin)
	expectStatus(t, res, http.StatusOK)
	if got := decodeBody[booking.Booking](t, res); got.Status != booking.StatusCancelled || got.CancelReason != "therapist unavailable" {
		t.Fatalf("cancelled=%+v", got)
	}
}

func TestAPI_CancelBooking_Guest(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	res := e.do(t, http.MethodPost, "/v1/bookings", bookingBody("16:00"), "")
	expectStatus(t, res, http.StatusCreated)
	created := decodeBody[booking.Booking](t, res)
	path := "/v1/bookings/" + created.ID + "/cancel"

	expectStatus(t, e.do(t, http.MethodPost, path, cancelRequest{Email: "ravi@example.com"}, ""), http.StatusNotFound)

	res = e.do(t, http.MethodPost, path, cancelRequest{Email: " Asha@Example.com", Reason: "plans changed"}, "")
	expectStatus(t, res, http.StatusOK)
	if got := decodeBody[booking.Booking](t, res); got.Status != booking.StatusCancelled {
		t.Fatalf("status=%s", got.Status)
	}

	res = e.do(t, http.MethodPost, path, cancelRequest{Email: "asha@example.com"}, "")
	expectStatus(t, res, http.StatusOK)
}

func TestAPI_Slots(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	expectStatus(t, e.do(t, http.MethodPost, "/v1/bookings", bookingBody("11:00"), ""), http.StatusCreated)

	res := e.do(t, http.MethodGet, "/v1/slots?date=2025-06-10&location=mumbai-bandra", nil, "")
	expectStatus(t, res, http.StatusOK)
	got := decodeBody[slotsResponse](t, res)
	if slices.Contains(got.Slots, "11:00") || !slices.Contains(got.Slots, "11:30") {
		t.Fatalf("slots=%v", got.Slots)
	}
	if len(got.Slots) != len(booking.DefaultSlots)-1 {
		t.Fatalf("got %d slots want %d", len(got.Slots), len(booking.DefaultSlots)-1)
	}

	expectStatus(t, e.do(t, http.MethodGet, "/v1/slots?date=10/06/2025&location=mumbai-bandra", nil, ""), http.StatusBadRequest)
}

func TestAPI_Inquiries(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	res := e.do(t, http.MethodPost, "/v1/contact", inquiry.ContactInput{
		Name: "Asha", Email: "asha@example.com", Message: "Do you have gift cards?",
	}, "")
	expectStatus(t, res, http.StatusCreated)
	if rc := decodeBody[inquiry.Receipt](t, res); rc.Kind != inquiry.KindContact || rc.ID == "" {
		t.Fatalf("contact receipt=%+v", rc)
	}

	res = e.do(t, http.MethodPost, "/v1/contact", inquiry.ContactInput{Name: "Asha", Email: "asha@example.com"}, "")
	expectStatus(t, res, http.StatusBadRequest)
	if er := decodeBody[errorResponse](t, res); er.Error.Field != "message" {
		t.Fatalf("error=%+v", er.Error)
	}

	res = e.do(t, http.MethodPost, "/v1/callback", inquiry.CallbackInput{Name: "Asha", Phone: "+91 98765 43210"}, "")
	expectStatus(t, res, http.StatusCreated)

	member := e.token(t, identity.Identity{ID: "u-asha", Email: "asha@example.com"})
	res = e.do(t, http.MethodPost, "/v1/membership", inquiry.MembershipInput{
		PlanName: "Gold", PlanPrice: 9999, Name: "Asha", Email: "asha@example.com", Phone: "9876543210",
	}, member)
	expectStatus(t, res, http.StatusCreated)
	if rc := decodeBody[inquiry.Receipt](t, res); rc.Kind != inquiry.KindMembership {
		t.Fatalf("membership receipt=%+v", rc)
	}

	expectStatus(t, e.do(t, http.MethodPost, "/v1/newsletter", newsletterRequest{Email: "news@example.com"}, ""), http.StatusCreated)
	res = e.do(t, http.MethodPost, "/v1/newsletter", newsletterRequest{Email: "NEWS@example.com"}, "")
	expectStatus(t, res, http.StatusOK)
	if rc := decodeBody[inquiry.Receipt](t, res); !rc.AlreadySubscribed {
		t.Fatalf("resubscribe receipt=%+v", rc)
	}

	expectStatus(t, e.do(t, http.MethodGet, "/v1/contact", nil, ""), http.StatusMethodNotAllowed)
}

func TestAPI_Catalog(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	res := e.do(t, http.MethodGet, "/v1/services?popular=true&limit=3", nil, "")
	expectStatus(t, res, http.StatusOK)
	services := decodeBody[servicesResponse](t, res)
	if len(services.Services) != 3 {
		t.Fatalf("popular services=%d", len(services.Services))
	}
	for _, s := range services.Services {
		if !s.Popular {
			t.Fatalf("non-popular service %s", s.ID)
		}
	}

	res = e.do(t, http.MethodGet, "/v1/services?category=nails", nil, "")
	expectStatus(t, res, http.StatusOK)
	if got := decodeBody[servicesResponse](t, res); len(got.Services) != 2 {
		t.Fatalf("nails services=%d", len(got.Services))
	}

	expectStatus(t, e.do(t, http.MethodGet, "/v1/services?limit=x", nil, ""), http.StatusBadRequest)
	expectStatus(t, e.do(t, http.MethodGet, "/v1/services/massage-swedish", nil, ""), http.StatusOK)
	expectStatus(t, e.do(t, http.MethodGet, "/v1/services/nope", nil, ""), http.StatusNotFound)

	res = e.do(t, http.MethodGet, "/v1/categories", nil, "")
	expectStatus(t, res, http.StatusOK)
	if got := decodeBody[categoriesResponse](t, res); len(got.Categories) != 6 {
		t.Fatalf("categories=%d", len(got.Categories))
	}

	res = e.do(t, http.MethodGet, "/v1/locations?featured=true", nil, "")
	expectStatus(t, res, http.StatusOK)
	if got := decodeBody[locationsResponse](t, res); len(got.Locations) != 3 {
		t.Fatalf("featured locations=%d", len(got.Locations))
	}
	res = e.do(t, http.MethodGet, "/v1/locations?q=juhu", nil, "")
	expectStatus(t, res, http.StatusOK)
	if got := decodeBody[locationsResponse](t, res); len(got.Locations) != 1 || got.Locations[0].ID != "mumbai-juhu" {
		t.Fatalf("search=%+v", got.Locations)
	}
	expectStatus(t, e.do(t, http.MethodGet, "/v1/locations?featured=maybe", nil, ""), http.StatusBadRequest)
	expectStatus(t, e.do(t, http.MethodGet, "/v1/locations/delhi-cp", nil, ""), http.StatusOK)
	expectStatus(t, e.do(t, http.MethodGet, "/v1/locations/nope", nil, ""), http.StatusNotFound)

	res = e.do(t, http.MethodGet, "/v1/cities", nil, "")
	expectStatus(t, res, http.StatusOK)
	if got := decodeBody[citiesResponse](t, res); !slices.Equal(got.Cities, []string{"New Delhi", "Mumbai", "Bangalore"}) {
		t.Fatalf("cities=%v", got.Cities)
	}
}

func TestParseSameSite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want http.SameSite
	}{
		{in: "strict", want: http.SameSiteStrictMode},
		{in: "lax", want: http.SameSiteLaxMode},
		{in: "none", want: http.SameSiteNoneMode},
		{in: "default", want: http.SameSiteDefaultMode},
		{in: "unknown", want: http.SameSiteLaxMode},
	}
	for _, tc := range tests {
		if got := ParseSameSite(tc.in); got != tc.want {
			t.Fatalf("ParseSameSite(%q)=%v, want %v", tc.in, got, tc.want)
		}
	}

	cfg := Config{CookieSameSite: http.SameSiteNoneMode}.normalized()
	if !cfg.CookieSecure {
		t.Fatalf("SameSite=None requires Secure=true")
	}
	if cfg.SessionCookie == "" || cfg.MaxBodyBytes <= 0 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}
