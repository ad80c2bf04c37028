package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
)

func decodeLines(t *testing.T, b *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(b.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		m := map[string]any{}
		if err := json.Unmarshal(line, &m); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestSlogBridge_ContextFieldsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "info", Component: "test"}, &buf)
	log := NewSlog(&zl).With("line", "METRO 1")

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithSession(ctx, "sess-1")
	log.InfoContext(ctx, "region built", "chunks", 3, "err", errors.New("boom"))
	log.DebugContext(ctx, "hidden")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("lines=%d want 1 (debug filtered)", len(lines))
	}
	m := lines[0]
	for k, want := range map[string]any{
		"msg":        "region built",
		"request_id": "req-1",
		"session_id": "sess-1",
		"component":  "test",
		"line":       "METRO 1",
		"chunks":     float64(3),
		"err":        "boom",
		"level":      "info",
	} {
		if m[k] != want {
			t.Fatalf("%s=%v want %v (record %v)", k, m[k], want, m)
		}
	}
}

func TestSlogBridge_GroupsPrefixKeys(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "debug"}, &buf)
	log := NewSlog(&zl).WithGroup("upstream")
	log.Warn("slow", slog.String("name", "overpass"))

	m := decodeLines(t, &buf)[0]
	if m["upstream.name"] != "overpass" || m["level"] != "warn" {
		t.Fatalf("record=%v", m)
	}
}

func TestDiscard_IsDisabled(t *testing.T) {
	if Discard().Enabled(context.Background(), slog.LevelError) {
		t.Fatalf("discard logger must not be enabled")
	}
}
