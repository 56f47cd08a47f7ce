package logging

import (
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for raw, want := range cases {
		if got := ParseLevel(raw); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestMaskFieldHidesCredentials(t *testing.T) {
	if attr := MaskField("component", "gateway"); attr.Value.String() != "gateway" {
		t.Fatalf("plain key was masked: %v", attr)
	}
	for _, key := range []string{"authorization", "hmac_secret", "X-Api-Token"} {
		if attr := MaskField(key, "abc"); attr.Value.String() != RedactedValue {
			t.Fatalf("expected %s to be redacted, got %v", key, attr)
		}
	}
	if attr := MaskField("token", "  "); attr.Value.String() != "  " {
		t.Fatalf("empty values should pass through, got %v", attr)
	}
}

func TestMaskDSN(t *testing.T) {
	cases := map[string]string{
		"postgres://cdp:hunter2@db:5432/events?sslmode=disable": "postgres://cdp:[REDACTED]@db:5432/events?sslmode=disable",
		"host=db user=cdp password=hunter2 dbname=events":       "host=db user=cdp password=[REDACTED] dbname=events",
		"/var/lib/cdp/events.db":                                "/var/lib/cdp/events.db",
		"postgres://cdp@db/events":                              "postgres://cdp@db/events",
	}
	for in, want := range cases {
		if got := MaskDSN(in); got != want {
			t.Fatalf("MaskDSN(%q) = %q, want %q", in, got, want)
		}
	}
}
