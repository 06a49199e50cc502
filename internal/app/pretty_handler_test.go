package app

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestPrettyHandler_PlainLine(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	h := newPrettyHandler(&sb, &slog.HandlerOptions{Level: slog.LevelInfo}, false)

	r := slog.NewRecord(time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC), slog.LevelInfo, "api.request", 0)
	r.AddAttrs(
		slog.String("method", "GET"),
		slog.Int("status", 200),
		slog.String("path", "/auth/check"),
	)

	if err := h.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	got := sb.String()
	for _, want := range []string{"[INFO]", "api.request", "method=GET", "status=200", "path=/auth/check"} {
		if !strings.Contains(got, want) {
			t.Fatalf("line %q missing %q", got, want)
		}
	}
	if !strings.HasSuffix(got, "\n") {
		t.Fatalf("line not newline-terminated: %q", got)
	}
}

func TestPrettyHandler_GroupsAndAttrs(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	base := newPrettyHandler(&sb, nil, false)
	h := base.WithAttrs([]slog.Attr{slog.String("component", "session")}).WithGroup("ws")

	r := slog.NewRecord(time.Now(), slog.LevelWarn, "reconnect", 0)
	r.AddAttrs(slog.Int("attempt", 2))

	if err := h.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	got := sb.String()
	if !strings.Contains(got, "[WARN]") {
		t.Fatalf("missing level tag: %q", got)
	}
	if !strings.Contains(got, "ws.attempt=2") {
		t.Fatalf("missing grouped attr: %q", got)
	}
}

func TestQuoteIfNeeded(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{in: "", want: `""`},
		{in: "plain", want: "plain"},
		{in: "two words", want: `"two words"`},
		{in: `a"b`, want: `"a\"b"`},
	}
	for _, tc := range cases {
		if got := quoteIfNeeded(tc.in); got != tc.want {
			t.Fatalf("quoteIfNeeded(%q)=%q want=%q", tc.in, got, tc.want)
		}
	}
}

func TestLevelTag_NoColor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   slog.Level
		want string
	}{
		{in: slog.LevelDebug, want: "[DEBUG]"},
		{in: slog.LevelInfo, want: "[INFO]"},
		{in: slog.LevelWarn, want: "[WARN]"},
		{in: slog.LevelError, want: "[ERROR]"},
	}
	for _, tc := range cases {
		if got := levelTag(tc.in, false); got != tc.want {
			t.Fatalf("levelTag(%v)=%q want=%q", tc.in, got, tc.want)
		}
	}
}

func TestPrettyHandler_EnabledRespectsLevel(t *testing.T) {
	t.Parallel()

	h := newPrettyHandler(&strings.Builder{}, &slog.HandlerOptions{Level: slog.LevelWarn}, false)
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatalf("info should be disabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Fatalf("error should be enabled at warn level")
	}
}
