package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func newBufferLogger(level Level, f Formatter) (Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := NewLogger(WithLevel(level), WithFormatter(f), WithOutput(NewWriterOutput(&buf)))
	return l, &buf
}

func TestLevelFiltering(t *testing.T) {
	l, buf := newBufferLogger(WarnLevel, &TextFormatter{})
	l.Debug("hidden")
	l.Info("hidden too")
	l.Warn("visible")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("low-level entries leaked: %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Fatalf("warn entry missing: %q", out)
	}
}

func TestTextFormatterFieldsSorted(t *testing.T) {
	l, buf := newBufferLogger(DebugLevel, &TextFormatter{})
	l.Info("msg", Str("b", "2"), Str("a", "1"))
	out := buf.String()
	ai := strings.Index(out, "a=1")
	bi := strings.Index(out, "b=2")
	if ai < 0 || bi < 0 || ai > bi {
		t.Fatalf("fields not sorted: %q", out)
	}
}

func TestJSONFormatter(t *testing.T) {
	l, buf := newBufferLogger(DebugLevel, &JSONFormatter{})
	l.Error("boom", Int("n", 3), Component("chain"))
	var obj map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &obj); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if obj["msg"] != "boom" || obj["level"] != "ERROR" {
		t.Fatalf("unexpected entry: %v", obj)
	}
	if obj["component"] != "chain" {
		t.Fatalf("missing component field: %v", obj)
	}
}

func TestWithCarriesFields(t *testing.T) {
	l, buf := newBufferLogger(DebugLevel, &TextFormatter{})
	child := l.With(Str("ns", "ledger"))
	child.Info("hello")
	if !strings.Contains(buf.String(), "ns=ledger") {
		t.Fatalf("child fields missing: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{"debug": DebugLevel, "info": InfoLevel, "warn": WarnLevel, "error": ErrorLevel} {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q)=%v,%v", in, got, err)
		}
	}
	if _, err := ParseLevel("nope"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
