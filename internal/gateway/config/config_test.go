package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relaygate.conf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	dataDir := t.TempDir()
	path := writeConfigFile(t, `
format_version = "0.1.0"

[auth]
token = "sekrit"

[storage]
data_dir = "`+dataDir+`"
`)

	require.NoError(t, LoadConfig(path))
	c := Config()
	assert.Equal(t, DefaultPort, c.Server.Port)
	assert.Equal(t, "localhost", c.Server.HostName)
	assert.Equal(t, "sekrit", c.Auth.Token)
	assert.Equal(t, uint(5), c.Reconnect.Attempts)
	assert.Equal(t, "loopback", c.Provider.Type)

	delay, err := c.Reconnect.GetDelay()
	require.NoError(t, err)
	assert.Equal(t, "2s", delay.String())
}

func TestLoadConfigPortFromEnv(t *testing.T) {
	dataDir := t.TempDir()
	path := writeConfigFile(t, `
format_version = "0.1.0"

[auth]
token = "sekrit"

[storage]
data_dir = "`+dataDir+`"
`)

	t.Setenv("PORT", "9100")
	require.NoError(t, LoadConfig(path))
	assert.Equal(t, "9100", Config().Server.Port)

	t.Setenv("RELAYGATE_PORT", "9200")
	require.NoError(t, LoadConfig(path))
	assert.Equal(t, "9200", Config().Server.Port)
}

func TestLoadConfigMissingToken(t *testing.T) {
	path := writeConfigFile(t, `
format_version = "0.1.0"
`)
	err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.token")
}

func TestLoadConfigBadVersion(t *testing.T) {
	path := writeConfigFile(t, `
format_version = "9.9.9"

[auth]
token = "sekrit"
`)
	err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "format version")
}

func TestLoadConfigInvalidPort(t *testing.T) {
	path := writeConfigFile(t, `
format_version = "0.1.0"

[server]
port = "not-a-port"

[auth]
token = "sekrit"
`)
	err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid server port")
}
