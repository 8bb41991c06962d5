package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

func decodeLastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &entry); err != nil {
		t.Fatalf("decode log entry: %v (%s)", err, buf.String())
	}
	return entry
}

func TestLoggerErrorIncludesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})

	ctx := context.Background()
	ctx = log.WithRequestID(ctx, "req-123")
	ctx = log.WithOrderID(ctx, "order-1")

	log.Error(ctx, "boom", errors.New("boom"))

	entry := decodeLastEntry(t, buf)
	if entry["request_id"] != "req-123" {
		t.Fatalf("expected request_id to be preserved; entry=%v", entry)
	}
	if entry["order_id"] != "order-1" {
		t.Fatalf("expected order_id to be preserved; entry=%v", entry)
	}
	if entry["error"] != "boom" {
		t.Fatalf("expected error field; entry=%v", entry)
	}
	if _, ok := entry["stack"]; !ok {
		t.Fatalf("expected stack trace on error; entry=%v", entry)
	}
}

func TestLoggerWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf, WarnStack: true})
	log.Warn(context.Background(), "warny")
	if _, ok := decodeLastEntry(t, buf)["stack"]; !ok {
		t.Fatalf("expected stack when warn stack enabled")
	}

	buf.Reset()
	quiet := New(Options{ServiceName: "test", Output: buf})
	quiet.Warn(context.Background(), "warny")
	if _, ok := decodeLastEntry(t, buf)["stack"]; ok {
		t.Fatalf("expected no stack when warn stack disabled")
	}
}

func TestLoggerLevelFiltersDebug(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: zerolog.InfoLevel, Output: buf})
	log.Debug(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected debug entry to be filtered, got %s", buf.String())
	}
}

func TestParseLevelDefaults(t *testing.T) {
	if lvl := ParseLevel(""); lvl != zerolog.InfoLevel {
		t.Fatalf("expected default info level, got %v", lvl)
	}
	if lvl := ParseLevel("invalid"); lvl != zerolog.InfoLevel {
		t.Fatalf("invalid level should fallback to info, got %v", lvl)
	}
	if lvl := ParseLevel(" WARN "); lvl != zerolog.WarnLevel {
		t.Fatalf("expected warn level, got %v", lvl)
	}
}

func TestLoggerAddsTraceIDsFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x4b, 0xf9, 0x2f, 0x35, 0x77, 0xb3, 0x4d, 0xa6, 0xa3, 0xce, 0x92, 0x9d, 0x0e, 0x0e, 0x47, 0x36},
		SpanID:     trace.SpanID{0x00, 0xf0, 0x67, 0xaa, 0x0b, 0xa9, 0x02, 0xb7},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	ctx = log.WithUserID(ctx, "u-1")
	log.Info(ctx, "traced")

	entry := decodeLastEntry(t, buf)
	if entry["trace_id"] != "4bf92f3577b34da6a3ce929d0e0e4736" || entry["span_id"] != "00f067aa0ba902b7" {
		t.Fatalf("expected trace ids; entry=%v", entry)
	}
	if entry["user_id"] != "u-1" {
		t.Fatalf("expected user_id; entry=%v", entry)
	}

	buf.Reset()
	log.Info(context.Background(), "untraced")
	if _, ok := decodeLastEntry(t, buf)["trace_id"]; ok {
		t.Fatalf("expected no trace_id without a span")
	}
}

func TestWithFieldsDoesNotLeakIntoParentContext(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})

	parent := log.WithOrderID(context.Background(), "order-1")
	child := log.WithFields(parent, map[string]any{"step": "refund", "attempt": 2})

	log.Info(child, "child")
	entry := decodeLastEntry(t, buf)
	if entry["order_id"] != "order-1" || entry["step"] != "refund" || entry["attempt"] != float64(2) {
		t.Fatalf("unexpected child entry %v", entry)
	}

	buf.Reset()
	log.Info(parent, "parent")
	if _, ok := decodeLastEntry(t, buf)["step"]; ok {
		t.Fatalf("child fields leaked into parent")
	}
}
