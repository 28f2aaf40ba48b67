package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

// decodeLogLines разбирает JSON-строки лога в записи
func decodeLogLines(t *testing.T, buf *bytes.Buffer) []LogEntry {
	t.Helper()

	var entries []LogEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry LogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("Failed to parse log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

// TestLoggerLevels проверяет фильтрацию по уровню логирования
func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDefaultLogger()
	logger.SetOutput(&buf)
	logger.SetLevel(LogLevelWarn)

	ctx := context.Background()
	logger.Debug(ctx, "debug message")
	logger.Info(ctx, "info message")
	logger.Warn(ctx, "warn message")
	logger.Error(ctx, "error message")

	entries := decodeLogLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries above Warn, got %d", len(entries))
	}
	if entries[0].Level != "WARN" || entries[1].Level != "ERROR" {
		t.Errorf("Unexpected levels: %s, %s", entries[0].Level, entries[1].Level)
	}

	if !logger.IsEnabled(LogLevelError) {
		t.Error("Error level must be enabled")
	}
	if logger.IsEnabled(LogLevelInfo) {
		t.Error("Info level must be disabled at Warn threshold")
	}
}

// TestLoggerFields проверяет произвольные поля и контекстные логгеры
func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDefaultLogger()
	logger.SetOutput(&buf)

	derived := logger.WithComponent("coordinator").WithFields(
		String("transport", "udp"),
		Int("port", 5060),
	)
	derived.Info(context.Background(), "listening",
		Bool("ready", true),
	)

	entries := decodeLogLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}

	entry := entries[0]
	if entry.Component != "coordinator" {
		t.Errorf("Expected component coordinator, got %q", entry.Component)
	}
	if entry.Message != "listening" {
		t.Errorf("Unexpected message %q", entry.Message)
	}
	if entry.Fields["transport"] != "udp" {
		t.Errorf("Expected transport field, got %v", entry.Fields)
	}
	if entry.Fields["ready"] != true {
		t.Errorf("Expected ready=true, got %v", entry.Fields["ready"])
	}
}

// TestLoggerWithEvent проверяет контекст события в полях лога
func TestLoggerWithEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDefaultLogger()
	logger.SetOutput(&buf)

	ev := NewEvent(EventCallReceived, map[string]any{AttrCallUUID: "u1"})
	logger.WithEvent(ev).Info(context.Background(), "event deferred")

	entries := decodeLogLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if entries[0].Fields["event_kind"] != "callReceived" {
		t.Errorf("Expected event_kind field, got %v", entries[0].Fields)
	}
	if entries[0].Fields["call_uuid"] != "u1" {
		t.Errorf("Expected call_uuid field, got %v", entries[0].Fields)
	}
}

// TestLoggerWithCall проверяет контекст вызова
func TestLoggerWithCall(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDefaultLogger()
	logger.SetOutput(&buf)

	logger.WithCall("abc-123").Info(context.Background(), "call updated")

	entries := decodeLogLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if entries[0].Fields["call_uuid"] != "abc-123" {
		t.Errorf("Expected call_uuid field, got %v", entries[0].Fields)
	}
}

// TestLoggerContextExtraction проверяет извлечение контекста из ctx
func TestLoggerContextExtraction(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDefaultLogger()
	logger.SetOutput(&buf)

	ctx := context.WithValue(context.Background(), "call_uuid", "ctx-uuid")
	logger.Info(ctx, "from context")

	entries := decodeLogLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if entries[0].CallUUID != "ctx-uuid" {
		t.Errorf("Expected call_uuid from context, got %q", entries[0].CallUUID)
	}
}

// TestLoggerLogError проверяет структурированный вывод BridgeError
func TestLoggerLogError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDefaultLogger()
	logger.SetOutput(&buf)

	err := ErrInvalidConfig("maximumCallGroups", 0, "must be positive")
	logger.LogError(context.Background(), err, "config rejected")

	entries := decodeLogLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}

	entry := entries[0]
	if entry.ErrorCode != "INVALID_CONFIG" {
		t.Errorf("Expected error code INVALID_CONFIG, got %q", entry.ErrorCode)
	}
	if entry.ErrorCat != "CONFIG" {
		t.Errorf("Expected category CONFIG, got %q", entry.ErrorCat)
	}
	if entry.Error == "" {
		t.Error("Expected error text in entry")
	}
	if len(entry.StackTrace) == 0 {
		t.Error("Expected stack trace for error level")
	}
}

// TestNoOpLogger проверяет логгер-заглушку
func TestNoOpLogger(t *testing.T) {
	logger := NoOpLogger{}

	if logger.IsEnabled(LogLevelFatal) {
		t.Error("NoOpLogger must report all levels disabled")
	}

	// Все методы безопасны и ничего не делают
	ctx := context.Background()
	logger.Info(ctx, "ignored")
	logger.LogError(ctx, ErrResourceExhaustion("buffer", 10), "ignored")
	logger.WithComponent("x").WithCall("y").WithFields(String("a", "b")).Warn(ctx, "ignored")
}
