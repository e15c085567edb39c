package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLogger_WritesJobContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("glean", LevelInfo, &buf).With(map[string]any{"job_key": "b/k.png"})

	logger.Info("job done", map[string]any{"state": "done"})

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	entry := lines[0]
	if entry["message"] != "job done" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v", entry["level"])
	}
	if entry["service"] != "glean" {
		t.Errorf("service = %v", entry["service"])
	}
	if entry["job_key"] != "b/k.png" {
		t.Errorf("job_key = %v", entry["job_key"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["state"] != "done" {
		t.Errorf("fields = %v", entry["fields"])
	}
}

func TestLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("", LevelWarn, &buf)

	logger.Debug("hidden", nil)
	logger.Info("hidden", nil)
	logger.Warn("shown", nil)

	lines := decodeLines(t, &buf)
	if len(lines) != 1 || lines[0]["message"] != "shown" {
		t.Fatalf("expected only the warning, got %v", lines)
	}
}

func TestLogger_NilIsNoop(t *testing.T) {
	var logger *Logger
	logger.Info("ignored", map[string]any{"k": "v"})
	if logger.With(map[string]any{"k": "v"}) != nil {
		t.Error("With on nil logger should stay nil")
	}
	if err := logger.Sync(); err != nil {
		t.Errorf("Sync on nil logger = %v", err)
	}
}
