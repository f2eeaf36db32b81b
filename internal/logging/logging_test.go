package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, Config{Level: "debug", Format: "json"}).With(String("component", "session"))

	log.Info(context.Background(), "run installed", Int("accepted", 3), Float64("max_speed", 10.5), Err(errors.New("boom")))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if rec["msg"] != "run installed" || rec["component"] != "session" {
		t.Fatalf("record = %v", rec)
	}
	if rec["accepted"] != float64(3) || rec["max_speed"] != 10.5 || rec["error"] != "boom" {
		t.Fatalf("record fields = %v", rec)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, Config{Level: "warn"})

	log.Info(context.Background(), "hidden")
	log.Warn(context.Background(), "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("output = %q", out)
	}
}

func TestRequestScopedLogger(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx, reqLog := WithRequestLogger(ctx, nil)
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Fatalf("request id = %q, want req-1", got)
	}
	ctx = ContextWithLogger(ctx, reqLog)
	if LoggerFromContext(ctx) == nil {
		t.Fatalf("logger missing from context")
	}

	ctx, id := EnsureRequestID(context.Background())
	if id == "" || RequestIDFromContext(ctx) != id {
		t.Fatalf("EnsureRequestID = %q", id)
	}
	if LoggerFromContext(context.Background()) != nil {
		t.Fatalf("empty context returned a logger")
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "playback.log")
	log := New(Config{File: path, Format: "json"})
	log.Info(context.Background(), "to file")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Fatalf("log file = %q", data)
	}
}
