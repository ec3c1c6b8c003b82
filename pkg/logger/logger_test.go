package logger_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/leech/pkg/logger"
	"github.com/OFFIS-RIT/leech/pkg/logger/console"
	"github.com/OFFIS-RIT/leech/pkg/logger/logtest"
)

func TestDispatchForwardsKeyvals(t *testing.T) {
	rec := &logtest.Recorder{}
	logger.Init(rec)

	logger.Log("[Test] plain", "k", "v")
	logger.Warn("[Test] warned", "stage", "index")

	entries := rec.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if len(entries[0].Keyvals) != 2 || entries[0].Keyvals[1] != "v" {
		t.Fatalf("Log dropped keyvals: %#v", entries[0].Keyvals)
	}
	if rec.Count("warn", "warned") != 1 {
		t.Fatalf("expected one warn entry")
	}
}

func TestDispatchFansOutToEveryInstance(t *testing.T) {
	a, b := &logtest.Recorder{}, &logtest.Recorder{}
	logger.Init(a, b)

	logger.Info("[Test] hello")

	if a.Count("info", "hello") != 1 || b.Count("info", "hello") != 1 {
		t.Fatalf("expected both instances to receive the entry")
	}
}

func TestConsoleJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	c := console.NewConsoleLogger(console.ConsoleLoggerParams{Format: "json", Output: &buf})

	c.Info("[Test] json line", "internal_id", "abc")

	line := strings.TrimSpace(buf.String())
	var decoded map[string]any
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("expected json output, got %q: %v", line, err)
	}
	if decoded["internal_id"] != "abc" {
		t.Fatalf("expected internal_id key in output, got %v", decoded)
	}
}

func TestConsoleDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	c := console.NewConsoleLogger(console.ConsoleLoggerParams{Output: &buf})
	c.Debug("[Test] hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug output should be suppressed at info level")
	}

	buf.Reset()
	c = console.NewConsoleLogger(console.ConsoleLoggerParams{Debug: true, Output: &buf})
	c.Debug("[Test] shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("expected debug output, got %q", buf.String())
	}
}
