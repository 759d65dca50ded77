package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func uninstall(t *testing.T) {
	t.Helper()
	reset := func() {
		mu.Lock()
		shared = nil
		mu.Unlock()
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	}
	reset()
	t.Cleanup(reset)
}

func TestInit_AddsServiceFields(t *testing.T) {
	uninstall(t)

	var buf bytes.Buffer
	log := Init(Options{Level: "debug", Output: &buf, Service: "auth-service", Version: "v1.2.3"})
	log.Debug().Str("user_id", "u1").Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["service"] != "auth-service" || entry["version"] != "v1.2.3" || entry["user_id"] != "u1" {
		t.Fatalf("unexpected fields: %v", entry)
	}
}

func TestInit_OnlyFirstCallWins(t *testing.T) {
	uninstall(t)

	var first, second bytes.Buffer
	Init(Options{Level: "info", Output: &first})
	Init(Options{Level: "debug", Output: &second})

	log := Get()
	log.Info().Msg("once")
	if first.Len() == 0 || second.Len() != 0 {
		t.Fatalf("expected output only on the first writer")
	}
}

func TestGet_BeforeInitIsUsable(t *testing.T) {
	uninstall(t)

	log := Get()
	log.Info().Msg("startup failure")

	var buf bytes.Buffer
	Init(Options{Output: &buf, Service: "user-service"})
	installed := Get()
	installed.Info().Msg("after init")
	if !bytes.Contains(buf.Bytes(), []byte(`"service":"user-service"`)) {
		t.Fatalf("expected Get to return the installed logger, got %q", buf.String())
	}
}

func TestNew_LeavesSharedLoggerAlone(t *testing.T) {
	uninstall(t)

	var buf bytes.Buffer
	log := New(Options{Level: "warn", Output: &buf})
	log.Info().Msg("filtered")
	log.Warn().Msg("kept")

	if bytes.Contains(buf.Bytes(), []byte("filtered")) || !bytes.Contains(buf.Bytes(), []byte("kept")) {
		t.Fatalf("expected level filtering at warn, got %q", buf.String())
	}
	mu.Lock()
	installed := shared != nil
	mu.Unlock()
	if installed {
		t.Fatalf("New must not install the shared logger")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		" DEBUG ": zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
