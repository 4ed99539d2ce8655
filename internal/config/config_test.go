package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	// Ensure no env vars interfere
	os.Unsetenv("SERVER_PORT")
	os.Unsetenv("AUTOMATION_TICK_INTERVAL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Server defaults
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 30s", cfg.Server.ReadTimeout)
	}

	// Log defaults
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want json", cfg.Log.Format)
	}

	// Vault defaults
	if cfg.Vault.KDFIterations != 100_000 {
		t.Errorf("Vault.KDFIterations = %d, want 100000", cfg.Vault.KDFIterations)
	}
	if cfg.Vault.RotationThresholdDays != 90 {
		t.Errorf("Vault.RotationThresholdDays = %d, want 90", cfg.Vault.RotationThresholdDays)
	}

	// Automation defaults
	if cfg.Automation.TickInterval != 5*time.Second {
		t.Errorf("Automation.TickInterval = %v, want 5s", cfg.Automation.TickInterval)
	}
	if cfg.Automation.DefaultMaxRetries != 3 {
		t.Errorf("Automation.DefaultMaxRetries = %d, want 3", cfg.Automation.DefaultMaxRetries)
	}
	if cfg.Automation.DefaultTimeout != 60*time.Second {
		t.Errorf("Automation.DefaultTimeout = %v, want 60s", cfg.Automation.DefaultTimeout)
	}
	if cfg.Automation.SessionRetention != 24*time.Hour {
		t.Errorf("Automation.SessionRetention = %v, want 24h", cfg.Automation.SessionRetention)
	}

	// Worker pool defaults
	if cfg.Worker.GeneralPoolSize != 16 {
		t.Errorf("Worker.GeneralPoolSize = %d, want 16", cfg.Worker.GeneralPoolSize)
	}
	if cfg.Worker.PortalPoolSize != 4 {
		t.Errorf("Worker.PortalPoolSize = %d, want 4", cfg.Worker.PortalPoolSize)
	}

	// Portal defaults
	got := cfg.EnabledPortals()
	want := []string{"customs", "dso", "gse", "terna"}
	if len(got) != len(want) {
		t.Fatalf("EnabledPortals() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("EnabledPortals()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("AUTOMATION_TICK_INTERVAL", "250ms")
	t.Setenv("VAULT_PASSPHRASE", "operator-provided-passphrase")
	t.Setenv("PORTALS_CUSTOMS_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Automation.TickInterval != 250*time.Millisecond {
		t.Errorf("Automation.TickInterval = %v, want 250ms", cfg.Automation.TickInterval)
	}
	if cfg.Vault.Passphrase != "operator-provided-passphrase" {
		t.Errorf("Vault.Passphrase was not taken from env")
	}
	for _, name := range cfg.EnabledPortals() {
		if name == "customs" {
			t.Error("customs portal should be disabled by env override")
		}
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte("server:\n  port: 9090\nvault:\n  passphrase_file: /run/secrets/vault\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Chdir(dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Vault.PassphraseFile != "/run/secrets/vault" {
		t.Errorf("Vault.PassphraseFile = %q", cfg.Vault.PassphraseFile)
	}
	if cfg.Vault.Passphrase != "" {
		t.Error("passphrase should not be generated when a passphrase file is configured")
	}
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Security:   SecurityConfig{JWTSigningKey: "0123456789abcdef0123456789abcdef"},
			Vault:      VaultConfig{Passphrase: "p", KDFIterations: 100_000},
			Automation: AutomationConfig{TickInterval: time.Second, DefaultMaxRetries: 3, DefaultTimeout: time.Minute},
			Worker:     WorkerConfig{GeneralPoolSize: 1, PortalPoolSize: 1},
			Portals:    map[string]PortalConfig{"gse": {Enabled: true, BaseURL: "https://example.test"}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"short jwt key", func(c *Config) { c.Security.JWTSigningKey = "short" }, true},
		{"no passphrase source", func(c *Config) { c.Vault.Passphrase = "" }, true},
		{"passphrase file only", func(c *Config) { c.Vault.Passphrase = ""; c.Vault.PassphraseFile = "/k" }, false},
		{"weak kdf", func(c *Config) { c.Vault.KDFIterations = 1000 }, true},
		{"negative rotation threshold", func(c *Config) { c.Vault.RotationThresholdDays = -1 }, true},
		{"zero tick", func(c *Config) { c.Automation.TickInterval = 0 }, true},
		{"negative retries", func(c *Config) { c.Automation.DefaultMaxRetries = -1 }, true},
		{"zero timeout", func(c *Config) { c.Automation.DefaultTimeout = 0 }, true},
		{"empty portal pool", func(c *Config) { c.Worker.PortalPoolSize = 0 }, true},
		{"enabled portal without url", func(c *Config) { c.Portals["gse"] = PortalConfig{Enabled: true} }, true},
		{"disabled portal without url", func(c *Config) { c.Portals["gse"] = PortalConfig{} }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
