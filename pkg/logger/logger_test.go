package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   LogLevelDebug,
		" WARN ":  LogLevelWarn,
		"warning": LogLevelWarn,
		"error":   LogLevelError,
		"info":    LogLevelInfo,
		"loud":    LogLevelInfo,
		"":        LogLevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestConsoleOutputHidesMetaAttributes(t *testing.T) {
	var console, file bytes.Buffer
	l := NewLoggerWithWriters(LogLevelInfo, &console, &file).WithComponent("router").WithEvent("ev-1")

	l.InfoWithIntention(IntentionRouting, "Message routed", "rule", "broadcast")

	line := console.String()
	if !strings.HasPrefix(line, iconFor(IntentionRouting)+" Message routed") {
		t.Errorf("Expected icon and message first, got %q", line)
	}
	if !strings.Contains(line, "rule=broadcast") {
		t.Errorf("Expected rule attribute on console, got %q", line)
	}
	for _, hidden := range []string{"component=", "event=", "intention="} {
		if strings.Contains(line, hidden) {
			t.Errorf("Console output should not contain %s: %q", hidden, line)
		}
	}

	fileLine := file.String()
	for _, want := range []string{"component=router", "event=ev-1", "intention=routing", "rule=broadcast"} {
		if !strings.Contains(fileLine, want) {
			t.Errorf("File output missing %s: %q", want, fileLine)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var console, file bytes.Buffer
	l := NewLoggerWithWriters(LogLevelWarn, &console, &file)

	l.DebugWithIntention(IntentionBridge, "debug line")
	l.Info("info line")
	l.Warn("warn line")

	if strings.Contains(console.String(), "debug line") || strings.Contains(console.String(), "info line") {
		t.Errorf("Lines below warn should be dropped, got %q", console.String())
	}
	if !strings.Contains(console.String(), "warn line") {
		t.Errorf("Expected warn line, got %q", console.String())
	}
}

func TestMultiHandlerRespectsEachLevel(t *testing.T) {
	var verbose, quiet bytes.Buffer
	h := newMultiHandler(
		newTextHandler(&verbose, slog.LevelDebug),
		newTextHandler(&quiet, slog.LevelWarn),
	)
	l := slog.New(h).With("component", "gateway")

	l.Debug("adapter polling")
	l.Warn("inbound queue full")

	if !strings.Contains(verbose.String(), "adapter polling") || !strings.Contains(verbose.String(), "inbound queue full") {
		t.Errorf("Debug sink should receive both records, got %q", verbose.String())
	}
	if strings.Contains(quiet.String(), "adapter polling") {
		t.Errorf("Warn sink received a debug record: %q", quiet.String())
	}
	if !strings.Contains(quiet.String(), "component=gateway") {
		t.Errorf("Attributes should reach every sink, got %q", quiet.String())
	}
}
