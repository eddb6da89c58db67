package cache

import (
	"errors"
	"testing"
	"time"
)

func TestTTLPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  TTLPolicy
		wantErr error
	}{
		{"valid", TTLPolicy{Table: TableBusiness, DefaultTTL: time.Hour, MaxTTL: 24 * time.Hour}, nil},
		{"valid no max", TTLPolicy{Table: TableRecommendations, DefaultTTL: time.Hour}, nil},
		{"unknown table", TTLPolicy{Table: "nope", DefaultTTL: time.Hour}, ErrInvalidTable},
		{"zero default", TTLPolicy{Table: TableBusiness}, ErrInvalidValue},
		{"negative max", TTLPolicy{Table: TableBusiness, DefaultTTL: time.Hour, MaxTTL: -1}, ErrInvalidValue},
		{"default over max", TTLPolicy{Table: TableBusiness, DefaultTTL: 2 * time.Hour, MaxTTL: time.Hour}, ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTTLPolicy_EffectiveTTL(t *testing.T) {
	p := TTLPolicy{Table: TableBusiness, DefaultTTL: time.Hour, MaxTTL: 24 * time.Hour}

	tests := []struct {
		in   time.Duration
		want time.Duration
	}{
		{0, time.Hour},
		{-time.Minute, time.Hour},
		{2 * time.Hour, 2 * time.Hour},
		{48 * time.Hour, 24 * time.Hour},
	}

	for _, tt := range tests {
		if got := p.EffectiveTTL(tt.in); got != tt.want {
			t.Errorf("EffectiveTTL(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
