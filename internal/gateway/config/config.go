// Package config loads and validates the gateway configuration. Settings come
// from an optional TOML file, with environment variables (optionally loaded
// from a .env file) overriding the listening port and the shared secret.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// ServerConfig holds HTTP server related configuration.
type ServerConfig struct {
	HostName   string `toml:"hostname"`    // hostname for the server
	Port       string `toml:"port"`        // port for the server
	HandleCORS bool   `toml:"handle_cors"` // whether to handle CORS
}

// AuthConfig holds authentication related configuration.
type AuthConfig struct {
	Token string `toml:"token"` // shared secret for privileged operations
}

// StorageConfig holds durable state related configuration.
type StorageConfig struct {
	DataDir string `toml:"data_dir"` // directory for the registry and credential blobs
}

// ReconnectConfig holds the auto-reconnect policy applied after a provider
// connection is lost.
type ReconnectConfig struct {
	Attempts uint   `toml:"attempts"` // max reconnect attempts per disconnect
	Delay    string `toml:"delay"`    // initial backoff delay, e.g. "2s"
}

// GetDelay returns the initial backoff delay as a time.Duration.
func (r *ReconnectConfig) GetDelay() (time.Duration, error) {
	return time.ParseDuration(r.Delay)
}

// ProviderConfig holds provider client related configuration.
type ProviderConfig struct {
	Type string `toml:"type"` // provider client implementation to use
}

// ConfigParam holds all configuration parameters for the gateway.
type ConfigParam struct {
	FormatVersion string `toml:"format_version"` // version of this configuration file format

	Server    ServerConfig    `toml:"server"`
	Auth      AuthConfig      `toml:"auth"`
	Storage   StorageConfig   `toml:"storage"`
	Reconnect ReconnectConfig `toml:"reconnect"`
	Provider  ProviderConfig  `toml:"provider"`
}

// ConfigFormatVersion is the current version of the configuration file format.
const ConfigFormatVersion = "0.1.0"

// DefaultPort is used when neither the config file nor the environment
// selects a listening port.
const DefaultPort = "8000"

var cfg *ConfigParam

// Config returns the current configuration.
func Config() *ConfigParam {
	return cfg
}

// GetURL returns the base URL the server listens on.
func GetURL() string {
	return "http://" + Config().Server.HostName + ":" + Config().Server.Port
}

// LoadConfig loads configuration from a TOML file. An empty filename loads
// defaults with environment overrides only.
func LoadConfig(filename string) error {
	c := &ConfigParam{FormatVersion: ConfigFormatVersion}

	if filename != "" {
		content, err := os.ReadFile(filename)
		if err != nil {
			return fmt.Errorf("error reading config file: %v", err)
		}
		if _, err := toml.Decode(string(content), c); err != nil {
			return fmt.Errorf("error parsing config file: %v", err)
		}
	}

	applyEnvOverrides(c)

	if err := ValidateConfig(c); err != nil {
		return fmt.Errorf("invalid configuration: %v", err)
	}

	cfg = c
	return nil
}

// applyEnvOverrides applies environment variable overrides. Variables may be
// supplied through a .env file in the working directory.
func applyEnvOverrides(c *ConfigParam) {
	_ = godotenv.Load() // absence of a .env file is not an error

	if port := os.Getenv("RELAYGATE_PORT"); port != "" {
		c.Server.Port = port
	} else if port := os.Getenv("PORT"); port != "" {
		c.Server.Port = port
	}
	if token := os.Getenv("RELAYGATE_TOKEN"); token != "" {
		c.Auth.Token = token
	}
	if dir := os.Getenv("RELAYGATE_DATA_DIR"); dir != "" {
		c.Storage.DataDir = dir
	}
}

// ValidateConfig checks that all required configuration values are present
// and valid, filling in defaults where the file and environment are silent.
func ValidateConfig(c *ConfigParam) error {
	if c.FormatVersion != ConfigFormatVersion {
		return fmt.Errorf("unsupported config file format version: %s", c.FormatVersion)
	}

	if c.Server.Port == "" {
		c.Server.Port = DefaultPort
	}
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("invalid server port: %s", c.Server.Port)
	}
	if c.Server.HostName == "" {
		c.Server.HostName = "localhost"
	}

	if c.Auth.Token == "" {
		return fmt.Errorf("auth.token is required")
	}

	if c.Storage.DataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("error getting user home directory: %v", err)
		}
		c.Storage.DataDir = filepath.Join(homeDir, ".relaygate")
	}
	if err := os.MkdirAll(c.Storage.DataDir, 0700); err != nil {
		return fmt.Errorf("error creating data directory: %v", err)
	}

	if c.Reconnect.Attempts == 0 {
		c.Reconnect.Attempts = 5
	}
	if c.Reconnect.Delay == "" {
		c.Reconnect.Delay = "2s"
	}
	if _, err := c.Reconnect.GetDelay(); err != nil {
		return fmt.Errorf("invalid reconnect.delay: %v", err)
	}

	if c.Provider.Type == "" {
		c.Provider.Type = "loopback"
	}

	return nil
}

// TestInit installs a throwaway configuration rooted in a temp directory.
// Intended for package tests only.
func TestInit(t *testing.T) {
	t.Helper()
	c := &ConfigParam{
		FormatVersion: ConfigFormatVersion,
		Server: ServerConfig{
			HostName: "localhost",
			Port:     "0",
		},
		Auth: AuthConfig{
			Token: "test-secret",
		},
		Storage: StorageConfig{
			DataDir: t.TempDir(),
		},
		Reconnect: ReconnectConfig{
			Attempts: 2,
			Delay:    "10ms",
		},
		Provider: ProviderConfig{
			Type: "loopback",
		},
	}
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}
