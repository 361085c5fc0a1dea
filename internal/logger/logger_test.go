package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/GyroZepelix/cornerstone/internal/config"
)

func TestNew(t *testing.T) {
	t.Run("console format", func(t *testing.T) {
		var buf bytes.Buffer
		log := New(config.LogConfig{Level: "info", Format: "console"}, &buf)

		log.Info().Msg("hello world")

		output := buf.String()
		if !strings.Contains(output, "hello world") {
			t.Errorf("expected output to contain 'hello world', got %q", output)
		}
		if strings.Contains(output, "{") {
			t.Errorf("expected console format, got json-like output: %s", output)
		}
	})

	t.Run("json format", func(t *testing.T) {
		var buf bytes.Buffer
		log := New(config.LogConfig{Level: "error", Format: "json"}, &buf)

		log.Error().Err(errors.New("boom")).Msg("an error occurred")

		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("unmarshal log line: %v\noutput: %s", err, buf.String())
		}
		if entry["level"] != "error" {
			t.Errorf("level = %v, want error", entry["level"])
		}
		if entry["message"] != "an error occurred" {
			t.Errorf("message = %v", entry["message"])
		}
		if entry["error"] != "boom" {
			t.Errorf("error = %v, want boom", entry["error"])
		}
	})

	t.Run("level filtering", func(t *testing.T) {
		var buf bytes.Buffer
		log := New(config.LogConfig{Level: "warn", Format: "json"}, &buf)

		log.Info().Msg("hidden")
		log.Warn().Msg("shown")

		output := buf.String()
		if strings.Contains(output, "hidden") {
			t.Error("info message should be filtered at warn level")
		}
		if !strings.Contains(output, "shown") {
			t.Error("warn message should be logged")
		}
	})

	t.Run("unknown level falls back to info", func(t *testing.T) {
		var buf bytes.Buffer
		log := New(config.LogConfig{Level: "loud", Format: "json"}, &buf)

		log.Debug().Msg("debug")
		log.Info().Msg("info")

		if strings.Contains(buf.String(), `"debug"`) {
			t.Error("debug should be filtered")
		}
		if !strings.Contains(buf.String(), `"info"`) {
			t.Error("info should be logged")
		}
	})
}
