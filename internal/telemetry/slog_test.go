package telemetry

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// SetupLogger tests
// ---------------------------------------------------------------------------

func TestSetupLogger_DoesNotPanicForAllCombinations(t *testing.T) {
	formats := []string{"json", "text", "JSON", "TEXT", "", "unknown"}
	levels := []string{"debug", "info", "warn", "warning", "error", "ERROR", "", "unknown"}

	var buf bytes.Buffer
	for _, format := range formats {
		for _, level := range levels {
			t.Run(format+"/"+level, func(t *testing.T) {
				defer func() {
					if r := recover(); r != nil {
						t.Errorf("setupLogger(%q, %q) panicked: %v", format, level, r)
					}
				}()
				setupLogger(&buf, format, level)
			})
		}
	}
	SetupLogger("text", "error")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetupLogger_JSONFormat_ProducesValidJSON(t *testing.T) {
	var buf bytes.Buffer
	setupLogger(&buf, "json", "info")
	defer SetupLogger("text", "error")

	buf.Reset()
	slog.Info("invitation sent", "organization_id", "org-1")

	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("JSON handler produced no output")
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(line), &obj); err != nil {
		t.Fatalf("JSON handler output is not valid JSON: %v\noutput: %s", err, line)
	}
	if obj["msg"] != "invitation sent" {
		t.Errorf("expected msg=invitation sent, got %v", obj["msg"])
	}
	if obj["organization_id"] != "org-1" {
		t.Errorf("expected organization_id=org-1, got %v", obj["organization_id"])
	}
}

func TestSetupLogger_TextFormat_ProducesKeyValuePairs(t *testing.T) {
	var buf bytes.Buffer
	setupLogger(&buf, "text", "info")
	defer SetupLogger("text", "error")

	slog.Info("text test", "env", "development")

	line := buf.String()
	if !strings.Contains(line, "text test") {
		t.Errorf("text handler output does not contain message: %q", line)
	}
	if !strings.Contains(line, "env=development") {
		t.Errorf("text handler output does not contain env=development: %q", line)
	}
}

func TestSetLogLevel_AppliesWithoutReinstall(t *testing.T) {
	var buf bytes.Buffer
	setupLogger(&buf, "json", "warn")
	defer SetupLogger("text", "error")

	buf.Reset()
	slog.Info("should be suppressed")
	if strings.Contains(buf.String(), "should be suppressed") {
		t.Fatal("Info record appeared despite warn level")
	}

	SetLogLevel("debug")
	if LogLevel() != slog.LevelDebug {
		t.Fatalf("LogLevel() = %v, want debug", LogLevel())
	}
	slog.Info("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Error("Info record suppressed after SetLogLevel(debug)")
	}
}
