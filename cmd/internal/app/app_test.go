package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"glowlogy/cmd/internal/realtime"
)

func TestRuntimeBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "explicit localhost", in: "127.0.0.1:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v4", in: "0.0.0.0:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v6", in: "[::]:9090", want: "http://127.0.0.1:9090"},
		{name: "empty host", in: ":8080", want: "http://127.0.0.1:8080"},
		{name: "ipv6 host", in: "[2001:db8::1]:9090", want: "http://[2001:db8::1]:9090"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := runtimeBaseURL(tc.in)
			if got != tc.want {
				t.Fatalf("runtimeBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
			}
		})
	}
}

func TestWSBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{in: "http://127.0.0.1:8080", want: "ws://127.0.0.1:8080"},
		{in: "https://book.glowlogy.example", want: "wss://book.glowlogy.example"},
		{in: "127.0.0.1:8080", want: "ws://127.0.0.1:8080"},
	}

	for _, tc := range cases {
		got := wsBaseURL(tc.in)
		if got != tc.want {
			t.Fatalf("wsBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
		}
	}

	if got := FeedURL("0.0.0.0:8080"); got != "ws://127.0.0.1:8080"+FeedPath {
		t.Fatalf("FeedURL=%q", got)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := loadConfig(map[string]string{})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.HTTPAddr != "0.0.0.0:8080" || cfg.LogFormat != "json" || cfg.MaxBodyBytes != 65536 {
		t.Fatalf("server defaults: %+v", cfg)
	}
	if !cfg.DBAutoMigrate || cfg.BatchWindow != 10*time.Millisecond || cfg.JanitorInterval != 5*time.Minute {
		t.Fatalf("runtime defaults: %+v", cfg)
	}
	if !cfg.CookieSecure || cfg.CookieSameSite != "lax" || cfg.AMQPExchange != "glowlogy.events" {
		t.Fatalf("integration defaults: %+v", cfg)
	}
	if len(cfg.WSAllowedOrigins) != 2 || !cfg.WSOriginRequired {
		t.Fatalf("feed defaults: %+v", cfg)
	}
}

func TestLoadConfig_ParsesPrefixedVariables(t *testing.T) {
	t.Parallel()

	cfg, err := loadConfig(map[string]string{
		"GLOWLOGY_HTTP_ADDR":            "127.0.0.1:9000",
		"GLOWLOGY_CORS_ALLOWED_ORIGINS": "https://glowlogy.example,https://admin.glowlogy.example",
		"GLOWLOGY_BATCH_WINDOW":         "25ms",
		"GLOWLOGY_LOG_FORMAT":           "pretty",
		"HTTP_ADDR":                     "ignored:1",
	})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.HTTPAddr != "127.0.0.1:9000" {
		t.Fatalf("HTTPAddr=%q", cfg.HTTPAddr)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://admin.glowlogy.example" {
		t.Fatalf("CORSAllowedOrigins=%v", cfg.CORSAllowedOrigins)
	}
	if cfg.BatchWindow != 25*time.Millisecond || cfg.LogFormat != "pretty" {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestLoadConfig_Rejects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "bad duration", env: map[string]string{"GLOWLOGY_BATCH_WINDOW": "soon"}, want: "parse env"},
		{name: "short secret", env: map[string]string{"GLOWLOGY_IDENTITY_SECRET": "short"}, want: "IDENTITY_SECRET"},
		{name: "shared limits without db", env: map[string]string{"GLOWLOGY_SHARED_RATE_LIMITS": "true"}, want: "SHARED_RATE_LIMITS"},
		{name: "readiness without db", env: map[string]string{"GLOWLOGY_READINESS_REQUIRE_DB": "true"}, want: "READINESS_REQUIRE_DB"},
		{name: "samesite none insecure", env: map[string]string{"GLOWLOGY_COOKIE_SAMESITE": "none", "GLOWLOGY_COOKIE_SECURE": "false"}, want: "COOKIE_SAMESITE"},
		{name: "log format", env: map[string]string{"GLOWLOGY_LOG_FORMAT": "xml"}, want: "LOG_FORMAT"},
		{name: "credentials with wildcard", env: map[string]string{"GLOWLOGY_CORS_ALLOWED_ORIGINS": "*", "GLOWLOGY_CORS_ALLOW_CREDENTIALS": "true"}, want: "CORS_ALLOW_CREDENTIALS"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := loadConfig(tc.env)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err=%v want mention of %q", err, tc.want)
			}
		})
	}
}

func TestValidateConfig_JoinsErrors(t *testing.T) {
	t.Parallel()

	err := ValidateConfig(Config{IdentitySecret: "short", SharedRateLimits: true, LogFormat: "json"})
	if err == nil {
		t.Fatalf("expected error")
	}
	msg := err.Error()
	if !strings.HasPrefix(msg, "config: ") || !strings.Contains(msg, "IDENTITY_SECRET") || !strings.Contains(msg, "SHARED_RATE_LIMITS") {
		t.Fatalf("err=%q", msg)
	}
}

func newTestApp(t *testing.T) (*App, *httptest.Server) {
	t.Helper()

	cfg, err := loadConfig(map[string]string{
		"GLOWLOGY_COOKIE_SECURE": "false",
		"GLOWLOGY_LOG_LEVEL":     "error",
	})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	a, err := New(context.Background(), cfg, newLogger(io.Discard, "error", "json", false))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		ts.Close()
		a.Close(context.Background())
	})
	return a, ts
}

func post(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	res, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { _ = res.Body.Close() })
	return res
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	res, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(res.Body)
	return res, string(b)
}

func TestApp_ServesProbesAndAPI(t *testing.T) {
	t.Parallel()
	_, ts := newTestApp(t)

	if res, body := get(t, ts.URL+"/healthz"); res.StatusCode != http.StatusOK || body != "ok\n" {
		t.Fatalf("healthz status=%d body=%q", res.StatusCode, body)
	}
	if res, _ := get(t, ts.URL+"/readyz"); res.StatusCode != http.StatusOK {
		t.Fatalf("readyz status=%d", res.StatusCode)
	}

	res := post(t, ts.URL+"/v1/contact", map[string]string{
		"name": "Asha", "email": "asha@example.com", "message": "Do you have gift cards?",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("contact status=%d", res.StatusCode)
	}
	if res.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("security headers missing")
	}

	res, body := get(t, ts.URL+"/v1/services?popular=true")
	if res.StatusCode != http.StatusOK || !strings.Contains(body, "massage-swedish") {
		t.Fatalf("services status=%d body=%s", res.StatusCode, body)
	}

	res, body = get(t, ts.URL+"/metrics")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("metrics status=%d", res.StatusCode)
	}
	if !strings.Contains(body, `glowlogy_http_requests_total{method="POST",route="POST /v1/contact",status="201"} 1`) {
		t.Fatalf("request metric missing from:\n%s", body)
	}
}

func TestApp_BookingCreatePublishesInvalidation(t *testing.T) {
	t.Parallel()
	a, ts := newTestApp(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan realtime.Invalidation, 1)
	done := make(chan error, 1)
	go func() {
		done <- realtime.Watch(ctx, wsBaseURL(ts.URL)+FeedPath, "http://127.0.0.1", []string{"bookings"}, func(inv realtime.Invalidation) {
			select {
			case got <- inv:
			default:
			}
			cancel()
		})
	}()

	deadline := time.Now().Add(5 * time.Second)
	for a.hub.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("watcher never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	res := post(t, ts.URL+"/v1/bookings", map[string]string{
		"locationId": "mumbai-bandra",
		"serviceId":  "massage-swedish",
		"date":       "2025-06-10",
		"time":       "10:00",
		"name":       "Asha Rao",
		"email":      "asha@example.com",
		"phone":      "98765 43210",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("booking status=%d", res.StatusCode)
	}

	select {
	case inv := <-got:
		if inv.Namespace != "bookings" {
			t.Fatalf("namespace=%q", inv.Namespace)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no invalidation received")
	}
	if err := <-done; err != nil {
		t.Fatalf("Watch: %v", err)
	}
}
