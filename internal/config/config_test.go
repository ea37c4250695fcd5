package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hospadmin/internal/security"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOSPADMIN_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Output)
	assert.True(t, cfg.Security.RateLimit.Enabled)
	assert.Equal(t, "activation.json", cfg.License.StateFile)
	assert.Equal(t, "licenses", cfg.License.OutputDir)
	assert.Equal(t, "5m0s", cfg.License.CacheTTL.String())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HOSPADMIN_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("HOSPADMIN_SERVER_PORT", "9090")
	t.Setenv("HOSPADMIN_LOGGING_LEVEL", "debug")
	t.Setenv("HOSPADMIN_LICENSE_SECRET_KEY", "env-secret")
	t.Setenv("HOSPADMIN_LICENSE_CACHE_TTL", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "env-secret", cfg.License.SecretKey)
	assert.Equal(t, "30s", cfg.License.CacheTTL.String())
}

func TestLoadFileSuppliesSecrets(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	yaml := "license:\n  secret_key: file-secret\n"
	require.NoError(t, os.WriteFile(configFile, []byte(yaml), 0o600))
	t.Setenv("HOSPADMIN_CONFIG_FILE", configFile)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "file-secret", cfg.License.SecretKey)
}

func TestLoadEnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	yaml := "license:\n  secret_key: file-secret\n"
	require.NoError(t, os.WriteFile(configFile, []byte(yaml), 0o600))
	t.Setenv("HOSPADMIN_CONFIG_FILE", configFile)
	t.Setenv("HOSPADMIN_LICENSE_SECRET_KEY", "env-secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.License.SecretKey)
}

func TestLoadValidationFailures(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		wantE string
	}{
		{
			name:  "bad port",
			env:   map[string]string{"HOSPADMIN_SERVER_PORT": "70000"},
			wantE: "invalid server port",
		},
		{
			name:  "bad log level",
			env:   map[string]string{"HOSPADMIN_LOGGING_LEVEL": "verbose"},
			wantE: "invalid log level",
		},
		{
			name:  "bad log output",
			env:   map[string]string{"HOSPADMIN_LOGGING_OUTPUT": "syslog"},
			wantE: "invalid log output",
		},
		{
			name:  "secret file without passphrase",
			env:   map[string]string{"HOSPADMIN_LICENSE_SECRET_FILE": "secret.enc"},
			wantE: "passphrase",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HOSPADMIN_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantE)
		})
	}
}

func TestResolveSecretPlainKey(t *testing.T) {
	cfg := &Config{}
	cfg.License.SecretKey = "plain"

	secret, err := cfg.ResolveSecret()
	require.NoError(t, err)
	assert.Equal(t, "plain", secret)
}

func TestResolveSecretSealedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret.enc")
	require.NoError(t, security.WriteSecretFile(path, "sealed-secret", "pass"))

	cfg := &Config{}
	cfg.License.SecretFile = path
	cfg.License.SecretPassphrase = "pass"

	secret, err := cfg.ResolveSecret()
	require.NoError(t, err)
	assert.Equal(t, "sealed-secret", secret)

	cfg.License.SecretPassphrase = "wrong"
	_, err = cfg.ResolveSecret()
	assert.Error(t, err)
}

func TestResolveSecretUnconfigured(t *testing.T) {
	cfg := &Config{}
	_, err := cfg.ResolveSecret()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no license secret configured")
}
