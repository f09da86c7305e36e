package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{" WARN ", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew(t *testing.T) {
	for _, format := range []string{"json", "console", ""} {
		logger, err := New(Config{Level: "debug", Format: format})
		if err != nil {
			t.Fatalf("New(%q) error = %v", format, err)
		}
		if !logger.Core().Enabled(zapcore.DebugLevel) {
			t.Errorf("New(%q) debug not enabled", format)
		}
	}

	if _, err := New(Config{Level: "nope"}); err == nil {
		t.Error("New() expected error for invalid level")
	}
}

func TestNewObserved(t *testing.T) {
	logger, logs := NewObserved(zapcore.WarnLevel)

	logger.Info("ignored")
	logger.Warn("backend failed", zap.String("owner", "user"))

	if logs.Len() != 1 {
		t.Fatalf("logs.Len() = %d, want 1", logs.Len())
	}
	entry := logs.All()[0]
	if entry.Message != "backend failed" || entry.ContextMap()["owner"] != "user" {
		t.Errorf("entry = %+v", entry)
	}
}
