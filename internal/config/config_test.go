// ABOUTME: Tests for configuration loading
// ABOUTME: Covers env expansion, duration parsing, defaults, and validation

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Complete(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: "/var/lib/chat/chat.db"
auth:
  jwt_secret: "super-secret"
  token_ttl: "12h"
chat:
  max_body_length: 1000
  push_send_timeout: "3s"
logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "/var/lib/chat/chat.db", cfg.Database.Path)
	assert.Equal(t, "super-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 12*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 1000, cfg.Chat.MaxBodyLength)
	assert.Equal(t, 3*time.Second, cfg.Chat.PushSendTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: "chat.db"
auth:
  jwt_secret: "secret"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultMaxBodyLength, cfg.Chat.MaxBodyLength)
	assert.Equal(t, DefaultPushSendTimeout, cfg.Chat.PushSendTimeout)
	assert.Equal(t, DefaultTokenTTL, cfg.Auth.TokenTTL)
	assert.Equal(t, DefaultDedupeTTL, cfg.Chat.DedupeTTL)
	assert.Equal(t, DefaultDedupeMaxSize, cfg.Chat.DedupeMaxSize)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_JWT_SECRET", "from-env")

	path := writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: "chat.db"
auth:
  jwt_secret: "${TEST_JWT_SECRET}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errText string
	}{
		{
			"missing http addr",
			"database: {path: chat.db}\nauth: {jwt_secret: s}\n",
			"server.http_addr",
		},
		{
			"missing database path",
			"server: {http_addr: \":8080\"}\nauth: {jwt_secret: s}\n",
			"database.path",
		},
		{
			"missing jwt secret",
			"server: {http_addr: \":8080\"}\ndatabase: {path: chat.db}\n",
			"auth.jwt_secret",
		},
		{
			"tailscale without hostname",
			"tailscale: {enabled: true}\ndatabase: {path: chat.db}\nauth: {jwt_secret: s}\n",
			"tailscale.hostname",
		},
		{
			"bad duration",
			"server: {http_addr: \":8080\"}\ndatabase: {path: chat.db}\nauth: {jwt_secret: s}\nchat: {push_send_timeout: \"soon\"}\n",
			"push_send_timeout",
		},
		{
			"body limit above protocol cap",
			"server: {http_addr: \":8080\"}\ndatabase: {path: chat.db}\nauth: {jwt_secret: s}\nchat: {max_body_length: 5000}\n",
			"max_body_length",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errText)
		})
	}
}

func TestLoad_TailscaleOnly(t *testing.T) {
	path := writeConfig(t, `
tailscale:
  enabled: true
  hostname: "chat-gateway"
database:
  path: "chat.db"
auth:
  jwt_secret: "secret"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Tailscale.Enabled)
	assert.Equal(t, "chat-gateway", cfg.Tailscale.Hostname)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}
