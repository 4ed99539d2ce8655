// Package config provides configuration management for the portal automation service.
//
// Configuration is loaded from:
// 1. config.yaml file (optional)
// 2. Environment variables (standard names like SERVER_PORT, VAULT_PASSPHRASE)
// 3. Default values
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// MinKDFIterations mirrors the floor enforced by the cipher.
const MinKDFIterations = 100_000

// Config is the root configuration structure.
type Config struct {
	Server     ServerConfig            `mapstructure:"server"`
	Log        LogConfig               `mapstructure:"log"`
	Security   SecurityConfig          `mapstructure:"security"`
	Vault      VaultConfig             `mapstructure:"vault"`
	Automation AutomationConfig        `mapstructure:"automation"`
	Worker     WorkerConfig            `mapstructure:"worker"`
	Portals    map[string]PortalConfig `mapstructure:"portals"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// SecurityConfig contains admin API authentication settings.
type SecurityConfig struct {
	JWTSigningKey string `mapstructure:"jwt_signing_key"`
	JWTIssuer     string `mapstructure:"jwt_issuer"`
}

// VaultConfig contains credential vault settings.
//
// The passphrase is resolved from PassphraseFile first, then Passphrase. When
// neither is set a random passphrase is generated, which only makes sense
// for throwaway local runs because the snapshot cannot be reopened later.
type VaultConfig struct {
	Passphrase            string `mapstructure:"passphrase"`
	PassphraseFile        string `mapstructure:"passphrase_file"`
	KDFIterations         int    `mapstructure:"kdf_iterations"`
	RotationThresholdDays int    `mapstructure:"rotation_threshold_days"`
	SnapshotPath          string `mapstructure:"snapshot_path"`
}

// AutomationConfig contains task engine settings.
type AutomationConfig struct {
	TickInterval      time.Duration `mapstructure:"tick_interval"`
	DefaultMaxRetries int           `mapstructure:"default_max_retries"`
	DefaultTimeout    time.Duration `mapstructure:"default_timeout"`
	SessionRetention  time.Duration `mapstructure:"session_retention"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	GeneralPoolSize int `mapstructure:"general_pool_size"`
	PortalPoolSize  int `mapstructure:"portal_pool_size"`
}

// PortalConfig contains per-portal executor settings, keyed by system name.
type PortalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
}

// EnabledPortals returns the names of enabled portals in sorted order.
func (c *Config) EnabledPortals() []string {
	names := make([]string, 0, len(c.Portals))
	for name, p := range c.Portals {
		if p.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

var (
	bootstrapLoggerOnce sync.Once
	bootstrapLogger     *zap.Logger
)

// Load reads configuration from file and environment variables.
// Nested keys map to env names by replacing dots: vault.kdf_iterations → VAULT_KDF_ITERATIONS.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/portal-automation")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file is optional, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.ensureSecrets(); err != nil {
		return nil, fmt.Errorf("ensure secrets: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks for critical configuration errors.
func (c *Config) Validate() error {
	if len(c.Security.JWTSigningKey) < 32 {
		return fmt.Errorf("security.jwt_signing_key must be at least 32 characters")
	}
	if c.Vault.PassphraseFile == "" && c.Vault.Passphrase == "" {
		return fmt.Errorf("vault.passphrase or vault.passphrase_file must be set")
	}
	if c.Vault.KDFIterations < MinKDFIterations {
		return fmt.Errorf("vault.kdf_iterations must be at least %d", MinKDFIterations)
	}
	if c.Vault.RotationThresholdDays < 0 {
		return fmt.Errorf("vault.rotation_threshold_days must not be negative")
	}
	if c.Automation.TickInterval <= 0 {
		return fmt.Errorf("automation.tick_interval must be positive")
	}
	if c.Automation.DefaultMaxRetries < 0 {
		return fmt.Errorf("automation.default_max_retries must not be negative")
	}
	if c.Automation.DefaultTimeout <= 0 {
		return fmt.Errorf("automation.default_timeout must be positive")
	}
	if c.Worker.PortalPoolSize < 1 || c.Worker.GeneralPoolSize < 1 {
		return fmt.Errorf("worker pool sizes must be at least 1")
	}
	for name, p := range c.Portals {
		if p.Enabled && p.BaseURL == "" {
			return fmt.Errorf("portals.%s.base_url must be set when the portal is enabled", name)
		}
	}
	return nil
}

// ensureSecrets fills empty secrets with random values. Generated secrets
// live only as long as the process, so each one is reported through
// bootstrapWarn.
func (c *Config) ensureSecrets() error {
	if err := ensureSecret(&c.Security.JWTSigningKey, "jwt signing key",
		"issued tokens stop validating after a restart; set SECURITY_JWT_SIGNING_KEY"); err != nil {
		return err
	}
	if c.Vault.PassphraseFile != "" {
		return nil
	}
	return ensureSecret(&c.Vault.Passphrase, "vault passphrase",
		"stored credentials will not survive a restart; set VAULT_PASSPHRASE or VAULT_PASSPHRASE_FILE")
}

func ensureSecret(field *string, name, consequence string) error {
	if *field != "" {
		return nil
	}
	value, err := generateSecureRandomHex(32)
	if err != nil {
		return fmt.Errorf("auto-generate %s: %w", name, err)
	}
	*field = value
	bootstrapWarn("auto-generated "+name+"; "+consequence, zap.String("secret", name))
	return nil
}

// bootstrapWarn reports config problems before logger.Init has run.
var bootstrapWarn = func(msg string, fields ...zap.Field) {
	bootstrapLoggerOnce.Do(func() {
		l, err := zap.NewProduction(zap.IncreaseLevel(zap.WarnLevel))
		if err != nil {
			l = zap.NewNop()
		}
		bootstrapLogger = l
	})
	bootstrapLogger.Warn(msg, fields...)
}

// generateSecureRandomHex produces a hex-encoded string of n random bytes.
func generateSecureRandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "0s") // SSE streams stay open
	v.SetDefault("server.shutdown_timeout", "30s")

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Security
	v.SetDefault("security.jwt_issuer", "portal-automation")

	// Vault
	v.SetDefault("vault.kdf_iterations", MinKDFIterations)
	v.SetDefault("vault.rotation_threshold_days", 90)
	v.SetDefault("vault.snapshot_path", "")
	v.SetDefault("vault.passphrase", "")
	v.SetDefault("vault.passphrase_file", "")

	// Automation
	v.SetDefault("automation.tick_interval", "5s")
	v.SetDefault("automation.default_max_retries", 3)
	v.SetDefault("automation.default_timeout", "60s")
	v.SetDefault("automation.session_retention", "24h")
	v.SetDefault("automation.cleanup_interval", "1h")

	// Worker Pool
	v.SetDefault("worker.general_pool_size", 16)
	v.SetDefault("worker.portal_pool_size", 4)

	// Portals
	v.SetDefault("portals.gse.enabled", true)
	v.SetDefault("portals.gse.base_url", "https://areaclienti.gse.it")
	v.SetDefault("portals.terna.enabled", true)
	v.SetDefault("portals.terna.base_url", "https://myterna.terna.it")
	v.SetDefault("portals.dso.enabled", true)
	v.SetDefault("portals.dso.base_url", "https://portale.e-distribuzione.it")
	v.SetDefault("portals.customs.enabled", true)
	v.SetDefault("portals.customs.base_url", "https://www.adm.gov.it")
}
