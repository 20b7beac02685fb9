package config

import (
	"testing"
	"time"
)

func TestLoad_UsesDefaults(t *testing.T) {
	t.Setenv("ADDR", "")
	t.Setenv("IDLE_TIMEOUT", "")
	t.Setenv("SHUTDOWN_TIMEOUT", "")
	t.Setenv("READ_HEADER_TIMEOUT", "")
	t.Setenv("READ_TIMEOUT", "")
	t.Setenv("WRITE_TIMEOUT", "")
	t.Setenv("AUTHORIZED_DAYS", "")
	t.Setenv("DOWNLOAD_RATE_LIMIT", "")

	cfg := Load()

	if cfg.Addr != ":9999" {
		t.Fatalf("Addr: got %q, want %q", cfg.Addr, ":9999")
	}
	if cfg.IdleTimeout != 60*time.Second {
		t.Fatalf("IdleTimeout: got %v, want %v", cfg.IdleTimeout, 60*time.Second)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("ShutdownTimeout: got %v, want %v", cfg.ShutdownTimeout, 10*time.Second)
	}
	if cfg.ReadHeaderTimeout != 5*time.Second {
		t.Fatalf("ReadHeaderTimeout: got %v, want %v", cfg.ReadHeaderTimeout, 5*time.Second)
	}
	if cfg.ReadTimeout != 10*time.Second {
		t.Fatalf("ReadTimeout: got %v, want %v", cfg.ReadTimeout, 10*time.Second)
	}
	if cfg.WriteTimeout != 10*time.Second {
		t.Fatalf("WriteTimeout: got %v, want %v", cfg.WriteTimeout, 10*time.Second)
	}
	if cfg.AuthorizedDays != 2 {
		t.Fatalf("AuthorizedDays: got %d, want 2", cfg.AuthorizedDays)
	}
	if cfg.DownloadRateLimit != 30 {
		t.Fatalf("DownloadRateLimit: got %d, want 30", cfg.DownloadRateLimit)
	}
}

func TestLoad_ReadsEnv(t *testing.T) {
	t.Setenv("ADDR", ":18080")
	t.Setenv("IDLE_TIMEOUT", "2m")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("READ_HEADER_TIMEOUT", "4s")
	t.Setenv("READ_TIMEOUT", "5s")
	t.Setenv("WRITE_TIMEOUT", "6s")
	t.Setenv("AUTHORIZED_CLICKS", "7")
	t.Setenv("AUTHORIZED_DAYS", "9")
	t.Setenv("DIGITAL_DELIVERY_AMOUNT", "250")
	t.Setenv("DRM_RECORDS_ENABLED", "true")

	cfg := Load()

	if cfg.Addr != ":18080" {
		t.Fatalf("Addr: got %q, want %q", cfg.Addr, ":18080")
	}
	if cfg.IdleTimeout != 2*time.Minute {
		t.Fatalf("IdleTimeout: got %v, want %v", cfg.IdleTimeout, 2*time.Minute)
	}
	if cfg.ShutdownTimeout != 3*time.Second {
		t.Fatalf("ShutdownTimeout: got %v, want %v", cfg.ShutdownTimeout, 3*time.Second)
	}
	if cfg.ReadHeaderTimeout != 4*time.Second {
		t.Fatalf("ReadHeaderTimeout: got %v, want %v", cfg.ReadHeaderTimeout, 4*time.Second)
	}
	if cfg.ReadTimeout != 5*time.Second {
		t.Fatalf("ReadTimeout: got %v, want %v", cfg.ReadTimeout, 5*time.Second)
	}
	if cfg.WriteTimeout != 6*time.Second {
		t.Fatalf("WriteTimeout: got %v, want %v", cfg.WriteTimeout, 6*time.Second)
	}
	if cfg.AuthorizedClicks == nil || *cfg.AuthorizedClicks != 7 {
		t.Fatalf("AuthorizedClicks: got %v, want 7", cfg.AuthorizedClicks)
	}
	if cfg.AuthorizedDays != 9 {
		t.Fatalf("AuthorizedDays: got %d, want 9", cfg.AuthorizedDays)
	}
	if cfg.DigitalDeliveryAmount != 250 {
		t.Fatalf("DigitalDeliveryAmount: got %d, want 250", cfg.DigitalDeliveryAmount)
	}
	if !cfg.DRMRecordsEnabled {
		t.Fatal("DRMRecordsEnabled: got false, want true")
	}
}

func TestLoad_AuthorizedClicks(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  *int
	}{
		{name: "empty means unlimited", value: "", want: nil},
		{name: "unlimited keyword", value: "unlimited", want: nil},
		{name: "zero", value: "0", want: intPtr(0)},
		{name: "invalid keeps default", value: "abc", want: intPtr(3)},
		{name: "negative keeps default", value: "-1", want: intPtr(3)},
		{name: "above int4 keeps default", value: "3000000000", want: intPtr(3)},
		{name: "int4 max", value: "2147483647", want: intPtr(2147483647)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AUTHORIZED_CLICKS", tt.value)
			cfg := Load()
			switch {
			case tt.want == nil && cfg.AuthorizedClicks != nil:
				t.Fatalf("got %d, want unlimited", *cfg.AuthorizedClicks)
			case tt.want != nil && (cfg.AuthorizedClicks == nil || *cfg.AuthorizedClicks != *tt.want):
				t.Fatalf("got %v, want %d", cfg.AuthorizedClicks, *tt.want)
			}
		})
	}
}

func TestLoad_AuthorizedDays(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  int
	}{
		{name: "regular", value: "30", want: 30},
		{name: "largest representable", value: "106751", want: 106751},
		{name: "overflowing duration keeps default", value: "106752", want: 2},
		{name: "negative keeps default", value: "-1", want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AUTHORIZED_DAYS", tt.value)
			cfg := Load()
			if cfg.AuthorizedDays != tt.want {
				t.Fatalf("AuthorizedDays: got %d, want %d", cfg.AuthorizedDays, tt.want)
			}
		})
	}
}

func intPtr(n int) *int { return &n }
