// ABOUTME: Configuration loading for the chat client CLI
// ABOUTME: Loads TOML config from XDG path with environment variable expansion

package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Gateway GatewayConfig `toml:"gateway"`
	Auth    AuthConfig    `toml:"auth"`
	Chat    ChatConfig    `toml:"chat"`
}

type GatewayConfig struct {
	URL string `toml:"url"`
}

type AuthConfig struct {
	Token     string `toml:"token"`
	TokenFile string `toml:"token_file"`
}

type ChatConfig struct {
	PollInterval   string `toml:"poll_interval"`
	ConfirmTimeout string `toml:"confirm_timeout"`

	pollInterval   time.Duration
	confirmTimeout time.Duration
}

// configPath resolves the client config file location.
// Priority: CHAT_CLIENT_CONFIG env var > XDG_CONFIG_HOME/chat-gateway/client.toml
func configPath() string {
	if envPath := os.Getenv("CHAT_CLIENT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "client.toml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "chat-gateway", "client.toml")
}

// Load reads config from the given path, expanding environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if _, err := toml.Decode(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

// Validate checks required fields and resolves the token.
func (c *Config) Validate() error {
	if c.Gateway.URL == "" {
		return fmt.Errorf("gateway.url is required")
	}
	u, err := url.Parse(c.Gateway.URL)
	if err != nil {
		return fmt.Errorf("gateway.url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("gateway.url must use http or https scheme")
	}

	if c.Auth.Token == "" && c.Auth.TokenFile == "" {
		return fmt.Errorf("auth.token or auth.token_file is required")
	}
	if c.Auth.Token == "" {
		data, err := os.ReadFile(c.Auth.TokenFile)
		if err != nil {
			return fmt.Errorf("reading token file: %w", err)
		}
		c.Auth.Token = strings.TrimSpace(string(data))
	}

	c.Chat.pollInterval = 30 * time.Second
	if c.Chat.PollInterval != "" {
		d, err := time.ParseDuration(c.Chat.PollInterval)
		if err != nil {
			return fmt.Errorf("invalid chat.poll_interval: %w", err)
		}
		c.Chat.pollInterval = d
	}

	c.Chat.confirmTimeout = 5 * time.Second
	if c.Chat.ConfirmTimeout != "" {
		d, err := time.ParseDuration(c.Chat.ConfirmTimeout)
		if err != nil {
			return fmt.Errorf("invalid chat.confirm_timeout: %w", err)
		}
		c.Chat.confirmTimeout = d
	}

	return nil
}
