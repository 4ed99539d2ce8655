package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regportal.io/automation/internal/api/middleware"
	"regportal.io/automation/internal/config"
	"regportal.io/automation/internal/domain"
	"regportal.io/automation/internal/pkg/logger"
	"regportal.io/automation/internal/vault"
)

func init() {
	_ = logger.Init("error", "json")
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080},
		Log:    config.LogConfig{Level: "error", Format: "json"},
		Security: config.SecurityConfig{
			JWTSigningKey: strings.Repeat("k", 32),
			JWTIssuer:     "portal-automation-test",
		},
		Vault: config.VaultConfig{
			Passphrase:            "test-passphrase",
			KDFIterations:         config.MinKDFIterations,
			RotationThresholdDays: 90,
		},
		Automation: config.AutomationConfig{
			TickInterval:      time.Hour,
			DefaultMaxRetries: 3,
			DefaultTimeout:    time.Second,
			SessionRetention:  time.Hour,
		},
		Worker: config.WorkerConfig{GeneralPoolSize: 2, PortalPoolSize: 1},
		Portals: map[string]config.PortalConfig{
			"terna": {Enabled: true, BaseURL: "https://terna.test"},
			"gse":   {Enabled: true, BaseURL: "https://gse.test"},
			"dso":   {Enabled: false},
		},
	}
}

func bootstrap(t *testing.T, cfg *config.Config) *Application {
	t.Helper()
	app, err := Bootstrap(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(app.Shutdown)
	return app
}

func token(t *testing.T, cfg *config.Config, scopes ...string) string {
	t.Helper()
	tok, _, err := middleware.GenerateToken(middleware.JWTConfig{
		SigningKey: []byte(cfg.Security.JWTSigningKey),
		Issuer:     cfg.Security.JWTIssuer,
		ExpiresIn:  time.Minute,
	}, "operator", scopes)
	require.NoError(t, err)
	return tok
}

func TestBootstrap_RegistersEnabledPortals(t *testing.T) {
	app := bootstrap(t, testConfig())

	assert.Equal(t, []domain.System{domain.SystemGSE, domain.SystemTerna}, app.Engine.Systems())
	assert.Contains(t, app.Engine.Actions(domain.SystemTerna), "register-plant")
	assert.NotNil(t, app.Router)
	assert.NotNil(t, app.Metrics)
}

func TestBootstrap_UnknownPortal(t *testing.T) {
	cfg := testConfig()
	cfg.Portals["acme"] = config.PortalConfig{Enabled: true, BaseURL: "https://acme.test"}

	app, err := Bootstrap(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, app)
	assert.Contains(t, err.Error(), "acme")
}

func TestBootstrap_ReloadsVaultSnapshot(t *testing.T) {
	cfg := testConfig()
	cfg.Vault.SnapshotPath = filepath.Join(t.TempDir(), "vault", "snapshot.yaml")

	first := bootstrap(t, cfg)
	id, err := first.Vault.Store(domain.SystemGSE, domain.AuthAPIKey, vault.Fields{APIKey: "k-123"})
	require.NoError(t, err)
	first.Shutdown()

	second := bootstrap(t, cfg)
	cred, err := second.Vault.Retrieve(id)
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "k-123", cred.APIKey)
}

func TestBootstrap_WrongPassphraseRejectsSnapshot(t *testing.T) {
	cfg := testConfig()
	cfg.Vault.SnapshotPath = filepath.Join(t.TempDir(), "snapshot.yaml")

	first := bootstrap(t, cfg)
	_, err := first.Vault.Store(domain.SystemGSE, domain.AuthPassword, vault.Fields{Username: "u", Password: "p"})
	require.NoError(t, err)

	cfg.Vault.Passphrase = "another-passphrase"
	app, err := Bootstrap(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, app)
}

func TestRouter_AuthAndScopes(t *testing.T) {
	cfg := testConfig()
	app := bootstrap(t, cfg)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"liveness is public", http.MethodGet, "/health/live", "", http.StatusOK},
		{"readiness is public", http.MethodGet, "/health/ready", "", http.StatusOK},
		{"metrics are public", http.MethodGet, "/metrics", "", http.StatusOK},
		{"api requires token", http.MethodGet, "/api/v1/credentials", "", http.StatusUnauthorized},
		{"wrong scope", http.MethodGet, "/api/v1/credentials", token(t, cfg, middleware.ScopeTasksRead), http.StatusForbidden},
		{"vault read", http.MethodGet, "/api/v1/credentials", token(t, cfg, middleware.ScopeVaultRead), http.StatusOK},
		{"admin grants all", http.MethodGet, "/api/v1/queue", token(t, cfg, middleware.ScopeAdmin), http.StatusOK},
		{"export needs admin", http.MethodGet, "/api/v1/vault/export", token(t, cfg, middleware.ScopeVaultRead), http.StatusForbidden},
		{"log level", http.MethodGet, "/api/v1/log/level", token(t, cfg, middleware.ScopeAdmin), http.StatusOK},
		{"audit needs admin", http.MethodGet, "/api/v1/audit-logs", token(t, cfg, middleware.ScopeVaultWrite), http.StatusForbidden},
		{"audit", http.MethodGet, "/api/v1/audit-logs", token(t, cfg, middleware.ScopeAdmin), http.StatusOK},
		{"portals", http.MethodGet, "/api/v1/portals", token(t, cfg, middleware.ScopeTasksRead), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			app.Router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestHousekeep_PurgesExpiredCredentials(t *testing.T) {
	app := bootstrap(t, testConfig())

	past := time.Now().Add(-time.Hour)
	_, err := app.Vault.Store(domain.SystemGSE, domain.AuthAPIKey, vault.Fields{APIKey: "old", ExpiresAt: &past})
	require.NoError(t, err)
	_, err = app.Vault.Store(domain.SystemGSE, domain.AuthAPIKey, vault.Fields{APIKey: "fresh"})
	require.NoError(t, err)

	app.housekeep(context.Background())
	assert.Equal(t, 1, app.Vault.Len())
}

func TestApplication_StartAndShutdown(t *testing.T) {
	cfg := testConfig()
	cfg.Automation.CleanupInterval = 10 * time.Millisecond
	app := bootstrap(t, cfg)

	require.NoError(t, app.Start(context.Background()))
	time.Sleep(30 * time.Millisecond)
	assert.NotPanics(t, app.Shutdown)
	assert.NotPanics(t, app.Shutdown, "second Shutdown is a no-op")
}

func TestApplication_Shutdown_Nil(t *testing.T) {
	app := &Application{}

	assert.NotPanics(t, func() {
		app.Shutdown()
	}, "Shutdown on empty Application should not panic")
}
