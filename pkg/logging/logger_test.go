package logging

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger_Configs(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"default", DefaultConfig()},
		{"development", DevelopmentConfig()},
		{"unknown level falls back to info", Config{Level: "verbose", Format: "json"}},
		{"unknown format falls back to json", Config{Level: "warn", Format: "xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.config)
			if err != nil {
				t.Fatalf("NewLogger failed: %v", err)
			}
			if logger == nil {
				t.Fatal("Expected logger")
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "console")

	config := DefaultConfig()
	ApplyEnv(&config)

	if config.Level != "debug" {
		t.Errorf("Expected level debug, got %s", config.Level)
	}
	if config.Format != "console" {
		t.Errorf("Expected console format, got %s", config.Format)
	}
	if config.Development {
		t.Error("Development should stay off without LOG_DEV")
	}
}

func TestApplyEnv_DevMode(t *testing.T) {
	t.Setenv("LOG_DEV", "true")
	t.Setenv("LOG_LEVEL", "error")

	config := DefaultConfig()
	ApplyEnv(&config)

	if !config.Development {
		t.Error("Expected development mode")
	}
	if config.Level != "error" {
		t.Errorf("LOG_LEVEL should still override in dev mode, got %s", config.Level)
	}
}

func TestContextLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := &Logger{zap.New(core)}

	ctx := WithContext(context.Background(), logger.With(zap.String("request_id", "abc")))
	FromContext(ctx).Info("handled")

	if logs.Len() != 1 {
		t.Fatalf("Expected 1 log entry, got %d", logs.Len())
	}
	if got := logs.All()[0].ContextMap()["request_id"]; got != "abc" {
		t.Errorf("Expected request_id field, got %v", got)
	}

	if FromContext(context.Background()) != Global() {
		t.Error("Expected global logger for bare context")
	}
}

func TestSetGlobal(t *testing.T) {
	original := Global()
	defer SetGlobal(original)

	logger := NewNoOpLogger()
	SetGlobal(logger)
	if L() != logger {
		t.Error("Expected L() to return the logger set globally")
	}

	SetGlobal(nil)
	if Global() == nil {
		t.Error("SetGlobal(nil) must keep a usable logger")
	}
}
