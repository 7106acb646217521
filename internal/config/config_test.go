package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func TestDefaults(t *testing.T) {
	cfg, err := fromViper(newTestViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Booking.FarePerSeat != 15 {
		t.Errorf("expected fare 15, got %d", cfg.Booking.FarePerSeat)
	}
	if cfg.Booking.ReserveAttempts != 5 {
		t.Errorf("expected 5 reserve attempts, got %d", cfg.Booking.ReserveAttempts)
	}
	if cfg.Booking.RetryBaseDelay != 10*time.Millisecond {
		t.Errorf("expected 10ms base delay, got %v", cfg.Booking.RetryBaseDelay)
	}
	if cfg.Match.Campus != "IIT Campus" {
		t.Errorf("expected campus IIT Campus, got %q", cfg.Match.Campus)
	}
	if cfg.Match.MinLead != 15*time.Minute || cfg.Match.MaxLead != time.Hour {
		t.Errorf("unexpected lead window %v..%v", cfg.Match.MinLead, cfg.Match.MaxLead)
	}
	if cfg.Store.Driver != "memory" || cfg.Store.LockDriver != "local" {
		t.Errorf("unexpected drivers %q/%q", cfg.Store.Driver, cfg.Store.LockDriver)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		set     map[string]any
		wantErr string
	}{
		{"unknown store", map[string]any{"STORE_DRIVER": "sqlite"}, "STORE_DRIVER"},
		{"redis lock without redis", map[string]any{"LOCK_DRIVER": "redis"}, "REDIS_ENABLED"},
		{"zero fare", map[string]any{"BOOKING_FARE_PER_SEAT": 0}, "BOOKING_FARE_PER_SEAT"},
		{"inverted lead", map[string]any{"MATCH_MIN_LEAD": time.Hour, "MATCH_MAX_LEAD": time.Minute}, "MATCH_MAX_LEAD"},
		{"origin without scheme", map[string]any{"SERVER_ALLOWED_ORIGINS": "app.campus.edu"}, "SERVER_ALLOWED_ORIGINS"},
		{"production without secret", map[string]any{"ENV": "production"}, "JWT_SECRET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestViper()
			for k, val := range tt.set {
				v.Set(k, val)
			}
			_, err := fromViper(v)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error mentioning %s, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" a:9092, b:9092 ,,")
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Errorf("unexpected split %v", got)
	}
}
