package state

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoggerFuncAdapts(t *testing.T) {
	var got LogEvent
	logger := LoggerFunc(func(event LogEvent) { got = event })

	logger.Log(LogEvent{Op: "persist", Store: "prefs"})

	if got.Op != "persist" || got.Store != "prefs" {
		t.Fatalf("expected event to pass through, got %+v", got)
	}

	var nilLogger LoggerFunc
	nilLogger.Log(LogEvent{Op: "noop"})
}

func TestWithLoggerNilFallsBackToNoop(t *testing.T) {
	st := New(counterCreator, WithLogger(nil))

	st.SetState(Partial{"count": 1})
	if st.GetState()["count"] != 1 {
		t.Fatalf("expected store to work with a nil logger")
	}
}

func TestSlogLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := NewSlogLogger(slog.New(handler))

	logger.Log(LogEvent{Op: "compose", Store: "prefs", Detail: "middleware 1 skipped", Duration: 3 * time.Millisecond})
	out := buf.String()
	if !strings.Contains(out, "level=DEBUG") {
		t.Fatalf("expected error-free events at debug level, got %q", out)
	}
	if !strings.Contains(out, "op=compose") || !strings.Contains(out, "store=prefs") {
		t.Fatalf("expected op and store attributes, got %q", out)
	}
	if !strings.Contains(out, "duration=") {
		t.Fatalf("expected duration attribute, got %q", out)
	}

	buf.Reset()
	logger.Log(LogEvent{Op: "persist", Err: errors.New("disk full")})
	out = buf.String()
	if !strings.Contains(out, "level=ERROR") {
		t.Fatalf("expected failing events at error level, got %q", out)
	}
	if !strings.Contains(out, "disk full") {
		t.Fatalf("expected error text in output, got %q", out)
	}
}

func TestSlogLoggerDefaultsNilLogger(t *testing.T) {
	if NewSlogLogger(nil) == nil {
		t.Fatalf("expected a usable logger for nil input")
	}
}
