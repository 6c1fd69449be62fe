package logx

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWriterFieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "info").With(String("comp", "test"))

	log.Debug("hidden")
	log.Info("shown", Int("n", 3), Bool("ok", true), Duration("took", 1500*time.Millisecond), Err(errors.New("boom")), Err(nil))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line must be filtered:\n%s", out)
	}
	for _, want := range []string{`"comp":"test"`, `"n":3`, `"ok":true`, `"took":1500`, "boom", `"message":"shown"`, "logging_test.go:"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %s:\n%s", want, out)
		}
	}
}

func TestWithDoesNotLeak(t *testing.T) {
	var buf bytes.Buffer
	base := NewWriter(&buf, "debug")
	_ = base.With(String("child", "x"))
	base.Info("parent")
	if strings.Contains(buf.String(), "child") {
		t.Fatalf("With mutated parent: %s", buf.String())
	}
}

func TestNewConsoleIsUsable(t *testing.T) {
	log := NewConsole("warn")
	if log.IsZero() {
		t.Fatal("console logger must not be zero")
	}
	if !log.Enabled(LevelWarn) || log.Enabled(LevelInfo) {
		t.Fatal("console level not applied")
	}
}

func TestZeroAndNop(t *testing.T) {
	var zero Logger
	if !zero.IsZero() {
		t.Fatal("zero Logger must report IsZero")
	}
	zero.Info("dropped")
	if Nop().IsZero() {
		t.Fatal("Nop must not be zero")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"debug", LevelDebug, true},
		{" WARNING ", LevelWarn, true},
		{"error", LevelError, true},
		{"loud", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Fatalf("ParseLevel(%q) = %v, %v", tt.in, got, ok)
		}
	}
}

func TestServiceFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dmrelay.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})
	log.Info("to file", String("k", "v"))
	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"k":"v"`) || !strings.Contains(string(b), "to file") {
		t.Fatalf("file sink = %s", b)
	}
	if !log.Enabled(LevelInfo) || log.Enabled(LevelDebug) {
		t.Fatal("level not applied")
	}
}
