package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid json log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLoggerInjectsServiceAndTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := NewFromConfig(Config{Service: "rangemax", Module: "test", Level: "debug", Output: &buf})

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02, 0x03},
		SpanID:     trace.SpanID{0x0a, 0x0b},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	logger.With("op", "max").InfoContext(ctx, "query done", "result", 8)

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	rec := lines[0]
	if rec["service"] != "rangemax" || rec["module"] != "test" || rec["op"] != "max" {
		t.Errorf("missing attributes: %v", rec)
	}
	if rec["trace_id"] != sc.TraceID().String() || rec["span_id"] != sc.SpanID().String() {
		t.Errorf("trace ids not injected: %v", rec)
	}
	if _, ok := rec["timestamp"]; !ok {
		t.Errorf("time key not renamed: %v", rec)
	}
}

// useDefault 在测试期间替换默认 Logger，结束时恢复。
func useDefault(t *testing.T, l *Logger) {
	t.Helper()
	mu.RLock()
	prev, prevLevel := defaultLogger, level
	mu.RUnlock()
	prevSlog := slog.Default()

	SetDefault(l)
	t.Cleanup(func() {
		mu.Lock()
		defaultLogger, level = prev, prevLevel
		mu.Unlock()
		slog.SetDefault(prevSlog)
	})
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewFromConfig(Config{Level: "warn", Output: &buf})
	useDefault(t, logger)

	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %s", buf.String())
	}

	SetLevel("debug")
	if CurrentLevel() != slog.LevelDebug {
		t.Fatalf("CurrentLevel() = %v", CurrentLevel())
	}
	logger.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("debug line missing after SetLevel: %s", buf.String())
	}
}

func TestNewLoggerKeepsDefaultLevel(t *testing.T) {
	var defaultBuf, otherBuf bytes.Buffer
	cli := NewFromConfig(Config{Service: "rangemax", Module: "cli", Level: "error", Output: &defaultBuf})
	useDefault(t, cli)

	other := NewFromConfig(Config{Module: "other", Level: "debug", Output: &otherBuf})
	if CurrentLevel() != slog.LevelError {
		t.Fatalf("CurrentLevel() = %v after creating another logger", CurrentLevel())
	}

	if got := InitLogger(Config{Level: "debug"}); got != cli {
		t.Error("InitLogger replaced an explicitly set default")
	}
	if Default() != cli {
		t.Error("Default() is not the logger passed to SetDefault")
	}

	Default().Info("dropped")
	slog.Warn("dropped too")
	other.Debug("kept")
	if defaultBuf.Len() != 0 {
		t.Errorf("default logger ignored its level: %s", defaultBuf.String())
	}
	if !strings.Contains(otherBuf.String(), "kept") {
		t.Errorf("other logger output = %q", otherBuf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerWritesFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "rangemax.log")
	logger := NewFromConfig(Config{Service: "rangemax", Format: "text", Output: &console, File: path, MaxSize: 1})

	logger.Info("tree built", "size", 5)
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(console.String(), "msg=\"tree built\"") {
		t.Errorf("text console output = %q", console.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"msg":"tree built"`) {
		t.Errorf("file output = %q", data)
	}
}
