package app

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestPrettyHandler_PlainLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}, false))
	log.With("component", "cache").WithGroup("req").Warn("cache.durable.write.fail",
		"namespace", "bookings", "err", "storage full")

	out := buf.String()
	for _, want := range []string{
		"[WARN]",
		"msg=cache.durable.write.fail",
		"component=cache",
		"req.namespace=bookings",
		`req.err="storage full"`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("color codes without color: %q", out)
	}
}

func TestPrettyHandler_ColorsDomainValues(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, nil, true))
	log.Info("http.request", "status", 503, "source", "memory")
	log.Info("booking.status", "status", "cancelled")

	out := buf.String()
	if !strings.Contains(out, "status="+ansiRed+"503"+ansiReset) {
		t.Fatalf("5xx not red: %q", out)
	}
	if !strings.Contains(out, "source="+ansiGreen+"memory"+ansiReset) {
		t.Fatalf("memory hit not green: %q", out)
	}
	if !strings.Contains(out, "status="+ansiRed+"cancelled"+ansiReset) {
		t.Fatalf("cancelled not red: %q", out)
	}
}

func TestPrettyHandler_DropsBelowLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}, false))
	log.Info("quiet")
	if buf.Len() != 0 {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestQuoteIfNeeded(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":          `""`,
		"plain":     "plain",
		"two words": `"two words"`,
		"k=v":       `"k=v"`,
	}
	for in, want := range cases {
		if got := quoteIfNeeded(in); got != want {
			t.Fatalf("quoteIfNeeded(%q)=%q want %q", in, got, want)
		}
	}
}
