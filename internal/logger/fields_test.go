package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStringFields(t *testing.T) {
	fields := StringFields(
		StringField{Key: "  session_id  ", Value: "  abc123  "},
		StringField{Key: "ignored", Value: "   "},
		StringField{Key: "   ", Value: "empty key"},
	)

	if len(fields) != 1 {
		t.Fatalf("expected 1 field, got %d", len(fields))
	}

	if fields[0].Key != "session_id" || fields[0].String != "abc123" {
		t.Fatalf("unexpected session field: %+v", fields[0])
	}

	empty := StringFields()
	if len(empty) != 0 {
		t.Fatalf("expected empty fields, got %d", len(empty))
	}
}

func TestWithFields(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	enriched := WithFields(logger, zap.String("foo", "bar"))
	enriched.Info("test log")

	entries := observed.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	ctx := entries[0].ContextMap()
	if ctx["foo"] != "bar" {
		t.Fatalf("expected field to be bar, got %q", ctx["foo"])
	}

	enriched = WithFields(nil, zap.String("baz", "qux"))
	if enriched == nil {
		t.Fatalf("expected fallback logger when nil provided")
	}

	// Ensure logging with the fallback logger does not panic.
	enriched.Info("another log")
}

func TestConversationFields(t *testing.T) {
	fields := ConversationFields("  session-1  ", "collecting_info")
	if len(fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(fields))
	}
	if fields[0].Key != FieldSession || fields[0].String != "session-1" {
		t.Fatalf("unexpected session field: %+v", fields[0])
	}
	if fields[1].Key != FieldPhase || fields[1].String != "collecting_info" {
		t.Fatalf("unexpected phase field: %+v", fields[1])
	}

	fields = ConversationFields("", "greeting")
	if len(fields) != 1 {
		t.Fatalf("expected empty session id to be dropped, got %d fields", len(fields))
	}
}

func TestTruncateForLog(t *testing.T) {
	if got := TruncateForLog("  hello world  ", 5); got != "hello..." {
		t.Fatalf("unexpected truncation: %q", got)
	}
	if got := TruncateForLog("short", 10); got != "short" {
		t.Fatalf("expected untouched string, got %q", got)
	}
	if got := TruncateForLog("anything", 0); got != "" {
		t.Fatalf("expected empty string for zero limit, got %q", got)
	}
}
