package config

import (
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := parse()
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}
	if cfg.HTTPPort != "8081" {
		t.Errorf("HTTPPort = %q, want 8081", cfg.HTTPPort)
	}
	if cfg.DeviceTTL != 4*time.Hour {
		t.Errorf("DeviceTTL = %v, want 4h", cfg.DeviceTTL)
	}
	if cfg.LateThreshold != 15*time.Minute {
		t.Errorf("LateThreshold = %v, want 15m", cfg.LateThreshold)
	}
	if cfg.ExportAbsentAfter != 3*time.Hour {
		t.Errorf("ExportAbsentAfter = %v, want 3h", cfg.ExportAbsentAfter)
	}
	if cfg.DeviceExpiredPolicy != "deny" {
		t.Errorf("DeviceExpiredPolicy = %q, want deny", cfg.DeviceExpiredPolicy)
	}
	if cfg.QRDisplaySeconds != 60 {
		t.Errorf("QRDisplaySeconds = %d, want 60", cfg.QRDisplaySeconds)
	}
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("DEVICE_TTL", "90m")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := parse()
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}
	if cfg.HTTPPort != "9000" {
		t.Errorf("HTTPPort = %q", cfg.HTTPPort)
	}
	if cfg.DeviceTTL != 90*time.Minute {
		t.Errorf("DeviceTTL = %v", cfg.DeviceTTL)
	}
	if got := cfg.AllowedOrigins(); len(got) != 2 || got[1] != "https://b.example" {
		t.Errorf("AllowedOrigins() = %v", got)
	}
}

func TestParseRejectsUnknownBackend(t *testing.T) {
	tests := map[string]string{
		"STORE_BACKEND":         "sqlite",
		"QUEUE_BACKEND":         "kafka",
		"RATE_LIMIT_BACKEND":    "memcached",
		"DEVICE_EXPIRED_POLICY": "maybe",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			if _, err := parse(); err == nil {
				t.Fatalf("parse() with %s=%s: expected error", key, val)
			}
		})
	}
}

func TestParseRejectsBadDuration(t *testing.T) {
	t.Setenv("LATE_THRESHOLD", "soon")
	if _, err := parse(); err == nil {
		t.Fatal("expected error for unparsable duration")
	}
}

func TestLocationFallback(t *testing.T) {
	cfg := App{TimezoneName: "Nowhere/Atlantis"}
	if cfg.Location() != time.Local {
		t.Error("expected time.Local fallback for unknown zone")
	}
	cfg.TimezoneName = "UTC"
	if cfg.Location().String() != "UTC" {
		t.Errorf("Location() = %v", cfg.Location())
	}
}
