package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/jwebster45206/scene-engine/internal/config"
)

func TestSetup_Production(t *testing.T) {
	var buf bytes.Buffer
	log := setup(&config.Config{Environment: "production", LogLevel: slog.LevelInfo}, &buf)
	defer slog.SetDefault(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	runID := uuid.New()
	WithRunID(log, runID).Info("Scene run starting", "turn", 0)
	log.Debug("hidden")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", buf.String(), err)
	}
	if entry["run_id"] != runID.String() || entry["msg"] != "Scene run starting" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestSetup_Development(t *testing.T) {
	var buf bytes.Buffer
	log := setup(&config.Config{Environment: "development", LogLevel: slog.LevelDebug}, &buf)
	defer slog.SetDefault(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	WithError(WithRequestID(log, "req-1"), errors.New("boom")).Debug("failed")
	out := buf.String()
	for _, want := range []string{"level=DEBUG", "request_id=req-1", "error=boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
}
