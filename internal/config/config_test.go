package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromEnvironment(t *testing.T) {
	t.Setenv("MIGRATION_EXECUTOR_SOURCE_ENDPOINT", "https://vcenter.example.com/sdk")
	t.Setenv("MIGRATION_EXECUTOR_SOURCE_USERNAME", "administrator")
	t.Setenv("MIGRATION_EXECUTOR_SOURCE_PASSWORD", "secret")
	t.Setenv("MIGRATION_EXECUTOR_DESTINATION_ENDPOINT", "https://xo.example.com/rest/v0")
	t.Setenv("MIGRATION_EXECUTOR_DESTINATION_STORAGE", "sr-local")

	cfg, err := New("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.Replication.PollInterval)

	endpoint, username, password, tlsVerify := cfg.SourceConnection()
	assert.Equal(t, "https://vcenter.example.com/sdk", endpoint)
	assert.Equal(t, "administrator", username)
	assert.Equal(t, "secret", password)
	assert.True(t, tlsVerify)
}

func TestNewFileOverridesEnvironment(t *testing.T) {
	t.Setenv("MIGRATION_EXECUTOR_LOG_LEVEL", "warn")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logLevel: debug
source:
  endpoint: https://vcenter.example.com/sdk
  username: administrator
  password: secret
destination:
  endpoint: https://xo.example.com/rest/v0
  storageId: sr-local
`), 0o600))

	cfg, err := New(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "sr-local", cfg.Destination.StorageID)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing source endpoint",
			mutate:  func(c *Config) { c.Source.Endpoint = "" },
			wantErr: "source endpoint",
		},
		{
			name:    "missing credentials",
			mutate:  func(c *Config) { c.Source.Password = "" },
			wantErr: "source credentials",
		},
		{
			name:    "missing destination endpoint",
			mutate:  func(c *Config) { c.Destination.Endpoint = "" },
			wantErr: "destination endpoint",
		},
		{
			name:    "missing storage",
			mutate:  func(c *Config) { c.Destination.StorageID = "" },
			wantErr: "destination storage",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Source:      sourceConfig{Endpoint: "https://vc", Username: "u", Password: "p"},
				Destination: destinationConfig{Endpoint: "https://xo", StorageID: "sr"},
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
