package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/pointline/pointline/internal/config"
)

func TestSubsystemLoggerCarriesSingleComponent(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Defaults()
	a := New(&cfg, slog.New(slog.NewJSONHandler(&buf, nil)))

	a.root.With(slog.String("component", "intake")).Info("ready")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not valid JSON: %v", err)
	}
	if line["component"] != "intake" {
		t.Errorf("component = %v, want intake", line["component"])
	}
	if got := bytes.Count(buf.Bytes(), []byte(`"component"`)); got != 1 {
		t.Errorf("component key appears %d times, want 1:\n%s", got, buf.String())
	}

	buf.Reset()
	a.logger.Info("starting")
	line = map[string]any{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not valid JSON: %v", err)
	}
	if line["component"] != "app" {
		t.Errorf("app component = %v, want app", line["component"])
	}
}
