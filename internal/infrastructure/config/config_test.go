package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("PANEL_CONFIG", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Addr != ":8080" || cfg.Devices.CounterMode != "legacy" || cfg.Display.Timezone != "Asia/Kolkata" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.SettingsTTL() != 5*time.Second || cfg.Generation.MaxBatch != 100 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.RateLimit.TrustForwarded {
		t.Errorf("proxy headers must not be trusted by default")
	}
	if cfg.Credentials.FallbackAPIKey != DefaultFallbackAPIKey || cfg.Credentials.FallbackSecretKey != DefaultFallbackSecretKey || !cfg.UsesBuiltinFallback() {
		t.Errorf("expected the built-in fallback pair, got %+v", cfg.Credentials)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "panel.toml")
	content := `
[server]
addr = ":9090"

[display]
timezone = "UTC"

[credentials]
fallback_api_key = "file-api"
fallback_secret_key = "file-secret"

[devices]
counter_mode = "atomic"

[ratelimit]
rps = 2.5
burst = 5

[cache]
settings_ttl = "30s"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PANEL_CONFIG", path)
	t.Setenv("HTTP_ADDR", ":7070")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("env should override file, got %s", cfg.Server.Addr)
	}
	if cfg.Devices.CounterMode != "atomic" || cfg.RateLimit.RPS != 2.5 || cfg.RateLimit.Burst != 5 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.SettingsTTL() != 30*time.Second {
		t.Errorf("expected 30s ttl, got %v", cfg.SettingsTTL())
	}
	if cfg.Credentials.FallbackAPIKey != "file-api" || cfg.Redis.Addr != "localhost:6379" || cfg.Redis.DB != 3 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if loc, _ := cfg.Location(); loc != time.UTC {
		t.Errorf("expected UTC location, got %v", loc)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := chdirTemp(t)
	t.Setenv("PANEL_CONFIG", "")
	t.Setenv("DEVICE_COUNTER_MODE", "")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("DEVICE_COUNTER_MODE=atomic\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	// .env only fills variables that are unset.
	os.Unsetenv("DEVICE_COUNTER_MODE")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Devices.CounterMode != "atomic" {
		t.Errorf("expected .env value, got %q", cfg.Devices.CounterMode)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"CounterMode", map[string]string{"DEVICE_COUNTER_MODE": "optimistic"}, "counter_mode"},
		{"Timezone", map[string]string{"DISPLAY_TZ": "Mars/Olympus"}, "display.timezone"},
		{"RedisDB", map[string]string{"REDIS_DB": "one"}, "REDIS_DB"},
		{"TrustForwarded", map[string]string{"TRUST_FORWARDED": "maybe"}, "TRUST_FORWARDED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdirTemp(t)
			t.Setenv("PANEL_CONFIG", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoad_TrustForwardedFromEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("PANEL_CONFIG", "")
	t.Setenv("TRUST_FORWARDED", "true")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.RateLimit.TrustForwarded {
		t.Errorf("expected TRUST_FORWARDED to enable proxy headers")
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	chdirTemp(t)
	t.Setenv("PANEL_CONFIG", "does-not-exist.toml")
	if _, err := Load(); err == nil {
		t.Errorf("expected error for missing explicit config file")
	}
}

func TestValidate_RateLimit(t *testing.T) {
	cfg := Default()
	cfg.RateLimit.RPS = 0
	if err := cfg.Validate(); err == nil {
		t.Errorf("expected error for zero rps")
	}
}
