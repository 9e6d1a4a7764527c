package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevelFallsBackToInfoOnUnrecognizedValue(t *testing.T) {
	if got := ParseLevel("not-a-level"); got != zapcore.InfoLevel {
		t.Errorf("ParseLevel(%q) = %v, want %v", "not-a-level", got, zapcore.InfoLevel)
	}
	if got := ParseLevel("debug"); got != zapcore.DebugLevel {
		t.Errorf("ParseLevel(%q) = %v, want %v", "debug", got, zapcore.DebugLevel)
	}
}

func TestMustReturnsAnAtomicLevelThatControlsLogging(t *testing.T) {
	logger, level := Must(false, zapcore.InfoLevel)
	defer logger.Sync()

	if !logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatal("expected info level enabled at construction")
	}
	if logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("expected debug level disabled at construction")
	}

	level.SetLevel(zapcore.DebugLevel)
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("expected debug level enabled after SetLevel")
	}
}
