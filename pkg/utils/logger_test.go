package utils

import (
	"testing"

	"go.uber.org/zap"
)

func TestNewLogger(t *testing.T) {
	t.Run("debug mode returns development logger", func(t *testing.T) {
		logger, err := NewLogger(true)
		if err != nil {
			t.Fatalf("NewLogger(true) error: %v", err)
		}
		if logger == nil {
			t.Fatal("NewLogger(true) returned nil logger")
		}
		_ = logger.Sync()
	})

	t.Run("production mode returns production logger", func(t *testing.T) {
		logger, err := NewLogger(false)
		if err != nil {
			t.Fatalf("NewLogger(false) error: %v", err)
		}
		if logger == nil {
			t.Fatal("NewLogger(false) returned nil logger")
		}
		_ = logger.Sync()
	})
}

func TestNewLoggerWithLevel(t *testing.T) {
	logger, err := NewLoggerWithLevel(false, "warn")
	if err != nil {
		t.Fatalf("NewLoggerWithLevel(warn): %v", err)
	}
	if logger.Core().Enabled(zap.InfoLevel) {
		t.Error("info should be disabled at warn level")
	}
	if !logger.Core().Enabled(zap.ErrorLevel) {
		t.Error("error should be enabled at warn level")
	}

	if _, err := NewLoggerWithLevel(false, "loud"); err == nil {
		t.Error("expected error for unknown level")
	}

	dev, err := NewLoggerWithLevel(true, "error")
	if err != nil {
		t.Fatal(err)
	}
	if !dev.Core().Enabled(zap.DebugLevel) {
		t.Error("debug mode should enable debug level")
	}
}
