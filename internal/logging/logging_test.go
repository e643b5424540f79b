package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewWithWriterJSONFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, Config{Level: "debug", Format: "json"})

	ForRadio(log, "rx0").Info(context.Background(), "lock applied",
		Float64("value", 2400.5),
		Bool("locked", true),
		Err(errors.New("boom")),
	)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if rec["msg"] != "lock applied" {
		t.Fatalf("msg = %v", rec["msg"])
	}
	if rec["radio"] != "rx0" || rec["value"] != 2400.5 || rec["locked"] != true || rec["error"] != "boom" {
		t.Fatalf("unexpected fields: %v", rec)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, Config{Level: "warn", Format: "text"})

	log.Info(context.Background(), "dropped")
	log.Warn(context.Background(), "kept")

	out := buf.String()
	if strings.Contains(out, "dropped") || !strings.Contains(out, "kept") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestErrNil(t *testing.T) {
	if f := Err(nil); f.Key != "error" || f.Value != "" {
		t.Fatalf("Err(nil) = %+v", f)
	}
}

func TestEnsureRequestIDIsStable(t *testing.T) {
	ctx, id := EnsureRequestID(context.Background())
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("request id %q is not a uuid: %v", id, err)
	}
	again, id2 := EnsureRequestID(ctx)
	if id2 != id || RequestIDFromContext(again) != id {
		t.Fatalf("request id changed: %q vs %q", id, id2)
	}
}

func TestWithRequestLoggerNilBase(t *testing.T) {
	ctx, l := WithRequestLogger(context.Background(), nil)
	if l == nil || RequestIDFromContext(ctx) == "" {
		t.Fatal("expected logger and request id")
	}
	ctx = ContextWithLogger(ctx, nil)
	if LoggerFromContext(ctx) == nil {
		t.Fatal("expected noop logger on context")
	}
	if LoggerFromContext(context.Background()) != nil {
		t.Fatal("expected nil logger on bare context")
	}
}

func TestContextRequestIDIsStamped(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, Config{Format: "json"})
	ctx := ContextWithRequestID(context.Background(), "req-1")

	log.Info(ctx, "unbound", Param("ch0/gain_dB"))
	_, bound := WithRequestLogger(ctx, log)
	bound.Info(ctx, "bound")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", buf.String())
	}
	for _, line := range lines {
		if n := strings.Count(line, `"request_id":"req-1"`); n != 1 {
			t.Fatalf("request_id appears %d times in %s", n, line)
		}
	}
	if !strings.Contains(lines[0], `"param":"ch0/gain_dB"`) {
		t.Fatalf("missing param field: %s", lines[0])
	}
}

func TestForRadioNilBase(t *testing.T) {
	if ForRadio(nil, "rx0") == nil {
		t.Fatal("expected noop logger")
	}
}
