package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"UPI_TIMEOUT_SECONDS", "UPI_POLL_SECONDS", "UPI_CONFIRM_AFTER_SECONDS", "GST_RATE_PERCENT", "PHONE_REGION", "BACKEND_TIMEOUT_SECONDS"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.UPITimeoutSeconds != 180 || cfg.UPIPollSeconds != 3 || cfg.UPIConfirmAfterSeconds != 15 {
		t.Fatalf("unexpected UPI defaults: %+v", cfg)
	}
	if cfg.GSTRatePercent.String() != "12" {
		t.Fatalf("expected default GST 12, got %s", cfg.GSTRatePercent)
	}
	if cfg.PhoneRegion != "IN" {
		t.Fatalf("expected default phone region IN, got %s", cfg.PhoneRegion)
	}
	if cfg.BackendTimeout != 15*time.Second {
		t.Fatalf("expected 15s backend timeout, got %s", cfg.BackendTimeout)
	}
}

func TestLoadRejectsInvalidNumbers(t *testing.T) {
	t.Setenv("UPI_TIMEOUT_SECONDS", "-4")
	t.Setenv("GST_RATE_PERCENT", "abc")

	cfg := Load()
	if cfg.UPITimeoutSeconds != 180 {
		t.Fatalf("expected fallback countdown, got %d", cfg.UPITimeoutSeconds)
	}
	if cfg.GSTRatePercent.String() != "12" {
		t.Fatalf("expected fallback GST, got %s", cfg.GSTRatePercent)
	}
}

func TestNormalizeBaseURL(t *testing.T) {
	cases := []struct {
		raw, prefix, want string
	}{
		{"http://backend:8000", "/api", "http://backend:8000/api"},
		{" http://backend:8000/ ", "/api", "http://backend:8000/api"},
		{"http://backend:8000/api/", "/api", "http://backend:8000/api"},
		{"http://backend:8000/api", "api/", "http://backend:8000/api"},
		{"http://backend:8000", "", "http://backend:8000"},
		{"", "/api", ""},
	}
	for _, tc := range cases {
		if got := NormalizeBaseURL(tc.raw, tc.prefix); got != tc.want {
			t.Fatalf("NormalizeBaseURL(%q, %q) = %q, want %q", tc.raw, tc.prefix, got, tc.want)
		}
	}
}

func TestLoadDotEnvKeepsExistingValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("UPI_PAYEE_VPA=file@upi\nPHARMAPOS_DOTENV_PROBE=loaded\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("UPI_PAYEE_VPA", "env@upi")
	t.Setenv("PHARMAPOS_DOTENV_PROBE", "")
	os.Unsetenv("PHARMAPOS_DOTENV_PROBE")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if got := os.Getenv("UPI_PAYEE_VPA"); got != "env@upi" {
		t.Fatalf("expected env value to win, got %q", got)
	}
	if got := os.Getenv("PHARMAPOS_DOTENV_PROBE"); got != "loaded" {
		t.Fatalf("expected value from file, got %q", got)
	}

	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing file should be ignored, got %v", err)
	}
}
