package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// captureWarnings swaps bootstrapWarn for the duration of the test.
// Tests using it must not run in parallel.
func captureWarnings(t *testing.T) *[]string {
	t.Helper()
	var got []string
	prev := bootstrapWarn
	bootstrapWarn = func(msg string, _ ...zap.Field) { got = append(got, msg) }
	t.Cleanup(func() { bootstrapWarn = prev })
	return &got
}

func TestEnsureSecrets(t *testing.T) {
	tests := []struct {
		name           string
		cfg            Config
		wantJWT        string // "" means generated
		wantPassphrase string // "" with generate=false means left empty
		generatePass   bool
		wantWarnings   int
	}{
		{
			name:         "generates both on first boot",
			generatePass: true,
			wantWarnings: 2,
		},
		{
			name: "keeps provided values",
			cfg: Config{
				Security: SecurityConfig{JWTSigningKey: "abcdefghijklmnopqrstuvwxyzABCDEF123456"},
				Vault:    VaultConfig{Passphrase: "keep-existing-passphrase"},
			},
			wantJWT:        "abcdefghijklmnopqrstuvwxyzABCDEF123456",
			wantPassphrase: "keep-existing-passphrase",
		},
		{
			name:         "passphrase file suppresses generation",
			cfg:          Config{Vault: VaultConfig{PassphraseFile: "/run/secrets/vault"}},
			wantWarnings: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warnings := captureWarnings(t)
			cfg := tt.cfg
			require.NoError(t, cfg.ensureSecrets())

			if tt.wantJWT == "" {
				assert.Len(t, cfg.Security.JWTSigningKey, 64)
			} else {
				assert.Equal(t, tt.wantJWT, cfg.Security.JWTSigningKey)
			}

			switch {
			case tt.generatePass:
				assert.Len(t, cfg.Vault.Passphrase, 64)
			default:
				assert.Equal(t, tt.wantPassphrase, cfg.Vault.Passphrase)
			}

			assert.Len(t, *warnings, tt.wantWarnings)
		})
	}
}

func TestEnsureSecrets_GeneratedValuesDiffer(t *testing.T) {
	captureWarnings(t)

	var a, b Config
	require.NoError(t, a.ensureSecrets())
	require.NoError(t, b.ensureSecrets())
	assert.NotEqual(t, a.Vault.Passphrase, b.Vault.Passphrase)
	assert.NotEqual(t, a.Security.JWTSigningKey, a.Vault.Passphrase)
}
