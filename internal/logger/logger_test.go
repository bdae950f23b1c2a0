package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	if ParseLevel("") != zerolog.InfoLevel {
		t.Fatalf("expected info for empty level")
	}
	if ParseLevel(" DEBUG ") != zerolog.DebugLevel {
		t.Fatalf("expected debug level")
	}
	if ParseLevel("loud") != zerolog.InfoLevel {
		t.Fatalf("expected info for unknown level")
	}
}

func TestNewWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Service: "packwise", Level: "info", Output: &buf})

	log.Debug().Msg("hidden")
	log.Info().Str("trip_id", "t1").Msg("saved")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected one json line: %v", err)
	}
	if entry["service"] != "packwise" || entry["trip_id"] != "t1" || entry["message"] != "saved" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestNewConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Service: "packwise", Format: "console", Output: &buf})
	log.Info().Msg("hello")

	if !bytes.Contains(buf.Bytes(), []byte("hello")) {
		t.Fatalf("expected console output")
	}
	if json.Valid(bytes.TrimSpace(buf.Bytes())) {
		t.Fatalf("expected non-json console output")
	}
}
