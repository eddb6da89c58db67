package cache

import (
	"errors"
	"testing"
)

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"ErrKeyNotFound", ErrKeyNotFound, true},
		{"ErrCacheMiss alias", ErrCacheMiss, true},
		{"wrapped ErrKeyNotFound", WrapError(ErrKeyNotFound, "memory", "get"), true},
		{"other error", ErrInvalidKey, false},
		{"nil error", nil, false},
		{"custom error", errors.New("custom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.expected {
				t.Errorf("IsNotFound(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestErrorPredicates(t *testing.T) {
	if !IsTimeout(WrapError(ErrTimeout, "redis", "get")) {
		t.Error("IsTimeout should match wrapped ErrTimeout")
	}
	if !IsUnavailable(ErrLayerUnavailable) {
		t.Error("IsUnavailable should match ErrLayerUnavailable")
	}
	if !IsCircuitOpen(WrapError(ErrCircuitOpen, "places", "details")) {
		t.Error("IsCircuitOpen should match wrapped ErrCircuitOpen")
	}
	if IsTimeout(nil) || IsCircuitOpen(nil) {
		t.Error("nil must not match")
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{nil, "none"},
		{ErrCircuitOpen, "circuit_breaker_open"},
		{ErrTimeout, "timeout"},
		{ErrKeyNotFound, "key_not_found"},
		{ErrLayerUnavailable, "unavailable"},
		{ErrInvalidKey, "invalid_key"},
		{ErrInvalidTable, "invalid_table"},
		{ErrInvalidValue, "invalid_value"},
		{errors.New("dial tcp: Connection refused"), "connection"},
		{errors.New("failed to Unmarshal payload"), "serialization"},
		{errors.New("postgres upsert failed"), "backend"},
		{errors.New("something else"), "other"},
	}

	for _, tt := range tests {
		if got := ClassifyError(tt.err); got != tt.expected {
			t.Errorf("ClassifyError(%v) = %q, want %q", tt.err, got, tt.expected)
		}
	}
}

func TestWrapError(t *testing.T) {
	if WrapError(nil, "memory", "get") != nil {
		t.Error("WrapError(nil) should return nil")
	}

	err := WrapError(ErrKeyNotFound, "memory", "get")
	if err.Error() != "cache layer memory get: cache: key not found" {
		t.Errorf("Unexpected message: %q", err.Error())
	}
}
