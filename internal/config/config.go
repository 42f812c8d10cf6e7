package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"sigs.k8s.io/yaml"
)

type Config struct {
	Source      sourceConfig      `json:"source"`
	Destination destinationConfig `json:"destination"`
	Replication replicationConfig `json:"replication"`

	// LogLevel can be "debug", "info", "warn" or "error"
	LogLevel string `json:"logLevel" envconfig:"MIGRATION_EXECUTOR_LOG_LEVEL" default:"info"`
}

type sourceConfig struct {
	Endpoint  string `json:"endpoint" envconfig:"MIGRATION_EXECUTOR_SOURCE_ENDPOINT" default:""`
	Username  string `json:"username" envconfig:"MIGRATION_EXECUTOR_SOURCE_USERNAME" default:""`
	Password  string `json:"password" envconfig:"MIGRATION_EXECUTOR_SOURCE_PASSWORD" default:""`
	TlsVerify bool   `json:"tlsVerify" envconfig:"MIGRATION_EXECUTOR_SOURCE_TLS_VERIFY" default:"true"`
}

type destinationConfig struct {
	Endpoint  string `json:"endpoint" envconfig:"MIGRATION_EXECUTOR_DESTINATION_ENDPOINT" default:""`
	Token     string `json:"token" envconfig:"MIGRATION_EXECUTOR_DESTINATION_TOKEN" default:""`
	TlsVerify bool   `json:"tlsVerify" envconfig:"MIGRATION_EXECUTOR_DESTINATION_TLS_VERIFY" default:"true"`
	StorageID string `json:"storageId" envconfig:"MIGRATION_EXECUTOR_DESTINATION_STORAGE" default:""`
	NetworkID string `json:"networkId" envconfig:"MIGRATION_EXECUTOR_DESTINATION_NETWORK" default:""`
}

type replicationConfig struct {
	Endpoint     string        `json:"endpoint" envconfig:"MIGRATION_EXECUTOR_REPLICATION_ENDPOINT" default:""`
	Token        string        `json:"token" envconfig:"MIGRATION_EXECUTOR_REPLICATION_TOKEN" default:""`
	PollInterval time.Duration `json:"pollInterval" envconfig:"MIGRATION_EXECUTOR_REPLICATION_POLL_INTERVAL" default:"10s"`
}

// New builds the configuration from the environment, optionally overlaid
// with a YAML file.
func New(configFile string) (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	return cfg, nil
}

// Validate checks that the endpoints a migration needs are set.
func (c *Config) Validate() error {
	if c.Source.Endpoint == "" {
		return errors.New("source endpoint must be set")
	}
	if c.Source.Username == "" || c.Source.Password == "" {
		return errors.New("source credentials must be set")
	}
	if c.Destination.Endpoint == "" {
		return errors.New("destination endpoint must be set")
	}
	if c.Destination.StorageID == "" {
		return errors.New("destination storage must be set")
	}
	return nil
}

// Getters keep the raw credential fields out of the rest of the tree.

func (c *Config) SourceConnection() (endpoint, username, password string, tlsVerify bool) {
	return c.Source.Endpoint, c.Source.Username, c.Source.Password, c.Source.TlsVerify
}

func (c *Config) DestinationConnection() (endpoint, token string, tlsVerify bool) {
	return c.Destination.Endpoint, c.Destination.Token, c.Destination.TlsVerify
}
