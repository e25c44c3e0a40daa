package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestNamedAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf).Named("Cloud")

	logger.Warnf("attempt %d failed", 1)

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if lines[0]["component"] != "Cloud" {
		t.Errorf("component = %v, want Cloud", lines[0]["component"])
	}
	if lines[0]["level"] != "warn" {
		t.Errorf("level = %v, want warn", lines[0]["level"])
	}
	if lines[0]["message"] != "attempt 1 failed" {
		t.Errorf("message = %v", lines[0]["message"])
	}
}

func TestSetDebugControlsDebugOutput(t *testing.T) {
	defer SetDebug(false)

	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf)

	SetDebug(false)
	logger.Debugf("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug line written at info level: %s", buf.String())
	}

	SetDebug(true)
	logger.Debugf("shown")
	lines := decodeLines(t, &buf)
	if len(lines) != 1 || lines[0]["message"] != "shown" {
		t.Errorf("expected single debug line, got %v", lines)
	}
}

func TestRetryLoggerLogsAtDebug(t *testing.T) {
	SetDebug(true)
	defer SetDebug(false)

	var buf bytes.Buffer
	rl := NewRetryLogger(NewLoggerWithWriter(&buf))
	rl.Error("request failed", "url", "https://host/x", "error", "eof")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if lines[0]["level"] != "debug" {
		t.Errorf("level = %v, want debug", lines[0]["level"])
	}
	if lines[0]["url"] != "https://host/x" {
		t.Errorf("url field = %v", lines[0]["url"])
	}
	if lines[0]["source"] != "retryablehttp" {
		t.Errorf("source = %v", lines[0]["source"])
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := NewNopLogger()
	logger.Errorf("nothing %s", "here")
	logger.Named("x").Warn().Msg("still nothing")
}
