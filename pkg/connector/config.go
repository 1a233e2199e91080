// Copyright 2024-2026 Aiku AI

package connector

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	up "go.mau.fi/util/configupgrade"
	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

// Environment variables that override secrets from the config file.
const (
	EnvWebhookURL = "SUPERSONIC_DISCORD_WEBHOOK_URL"
	EnvRedisURL   = "SUPERSONIC_REDIS_URL"
	EnvAPIToken   = "SUPERSONIC_API_TOKEN"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds the bridge configuration.
type Config struct {
	Discord   DiscordConfig   `yaml:"discord"`
	Auth      AuthConfig      `yaml:"auth"`
	Storage   StorageConfig   `yaml:"storage"`
	Whitelist WhitelistConfig `yaml:"whitelist"`
	Proxy     ProxyConfig     `yaml:"proxy"`
	// ForcedHosts maps a server name to the hostname players connect with.
	ForcedHosts map[string]string `yaml:"forced_hosts"`
	API         APIConfig         `yaml:"api"`
	Logging     LoggingConfig     `yaml:"logging"`
	Messages    MessagesConfig    `yaml:"messages"`
}

type DiscordConfig struct {
	ChannelID  string `yaml:"channel_id"`
	RoleID     string `yaml:"role_id"`
	WebhookURL string `yaml:"webhook_url"`
}

// AuthConfig durations are in minutes.
type AuthConfig struct {
	CodeTTL       int `yaml:"code_ttl"`
	SweepInterval int `yaml:"sweep_interval"`
	CodeLength    int `yaml:"code_length"`
	MaxAttempts   int `yaml:"max_attempts"`
}

type StorageConfig struct {
	Backend   string `yaml:"backend"`
	RedisURL  string `yaml:"redis_url"`
	KeyPrefix string `yaml:"key_prefix"`
}

type WhitelistConfig struct {
	File string `yaml:"file"`
}

type ProxyConfig struct {
	URL string `yaml:"url"`
}

type APIConfig struct {
	Addr  string `yaml:"addr"`
	Token string `yaml:"token"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MessagesConfig struct {
	Welcome string `yaml:"welcome"`
}

func defaultConfig() Config {
	return Config{
		Auth: AuthConfig{
			CodeTTL:       5,
			SweepInterval: 1,
			CodeLength:    6,
			MaxAttempts:   32,
		},
		Storage:   StorageConfig{Backend: BackendMemory, KeyPrefix: "supersonic:"},
		Whitelist: WhitelistConfig{File: "whitelist.yaml"},
		API:       APIConfig{Addr: ":29330"},
		Logging:   LoggingConfig{Level: "info", Format: "pretty"},
		Messages:  MessagesConfig{Welcome: "the server"},
	}
}

// UnmarshalYAML fills keys missing from node with their defaults.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	raw := rawConfig(defaultConfig())
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*c = Config(raw)
	return nil
}

// ApplyEnv overrides secrets with non-empty environment values.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvWebhookURL); ok && v != "" {
		c.Discord.WebhookURL = v
	}
	if v, ok := lookup(EnvRedisURL); ok && v != "" {
		c.Storage.RedisURL = v
	}
	if v, ok := lookup(EnvAPIToken); ok && v != "" {
		c.API.Token = v
	}
}

// PostProcess normalizes and validates the config. An error here is a
// configuration precondition failure and should stop the process.
func (c *Config) PostProcess() error {
	c.Discord.ChannelID = strings.TrimSpace(c.Discord.ChannelID)
	c.Discord.RoleID = strings.TrimSpace(c.Discord.RoleID)
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	c.Proxy.URL = strings.TrimRight(strings.TrimSpace(c.Proxy.URL), "/")
	c.API.Token = strings.TrimSpace(c.API.Token)
	c.Discord.WebhookURL = strings.TrimSpace(c.Discord.WebhookURL)

	if c.Discord.WebhookURL != "" {
		if _, _, err := ParseWebhookURL(c.Discord.WebhookURL); err != nil {
			return fmt.Errorf("discord.webhook_url: %w", err)
		}
	}
	switch {
	case c.Discord.ChannelID == "":
		return errors.New("discord.channel_id is required")
	case c.Discord.RoleID == "":
		return errors.New("discord.role_id is required")
	case c.Proxy.URL == "":
		return errors.New("proxy.url is required")
	case c.API.Token == "":
		return errors.New("api.token is required")
	case c.Auth.CodeTTL <= 0:
		return fmt.Errorf("auth.code_ttl must be positive, got %d", c.Auth.CodeTTL)
	case c.Auth.CodeLength < 4 || c.Auth.CodeLength > 12:
		return fmt.Errorf("auth.code_length must be between 4 and 12, got %d", c.Auth.CodeLength)
	}
	if c.Auth.SweepInterval <= 0 {
		c.Auth.SweepInterval = 1
	}
	if c.Auth.MaxAttempts <= 0 {
		c.Auth.MaxAttempts = 32
	}

	switch c.Storage.Backend {
	case BackendMemory:
		if c.Whitelist.File == "" {
			return errors.New("whitelist.file is required for the memory backend")
		}
	case BackendRedis:
		if c.Storage.RedisURL == "" {
			return errors.New("storage.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}

	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging.level: %w", err)
	}
	if c.Logging.Format != "pretty" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be pretty or json, got %q", c.Logging.Format)
	}
	return nil
}

// CodeTTL returns how long login codes stay valid.
func (c *Config) CodeTTL() time.Duration {
	return time.Duration(c.Auth.CodeTTL) * time.Minute
}

// SweepInterval returns the period of the expired-code sweep.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Auth.SweepInterval) * time.Minute
}

// NewLogger builds the process logger writing to w.
func (c LoggingConfig) NewLogger(w io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		return zerolog.Nop(), err
	}
	out := w
	if c.Format == "pretty" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Str|up.Int, "discord", "channel_id")
	helper.Copy(up.Str|up.Int, "discord", "role_id")
	helper.Copy(up.Str, "discord", "webhook_url")
	helper.Copy(up.Int, "auth", "code_ttl")
	helper.Copy(up.Int, "auth", "sweep_interval")
	helper.Copy(up.Int, "auth", "code_length")
	helper.Copy(up.Int, "auth", "max_attempts")
	helper.Copy(up.Str, "storage", "backend")
	helper.Copy(up.Str, "storage", "redis_url")
	helper.Copy(up.Str, "storage", "key_prefix")
	helper.Copy(up.Str, "whitelist", "file")
	helper.Copy(up.Str, "proxy", "url")
	helper.Copy(up.Map, "forced_hosts")
	helper.Copy(up.Str, "api", "addr")
	helper.Copy(up.Str, "api", "token")
	helper.Copy(up.Str, "logging", "level")
	helper.Copy(up.Str, "logging", "format")
	helper.Copy(up.Str, "messages", "welcome")
}

// Upgrader copies user values over the embedded example config, so keys
// added in newer versions get their example values.
var Upgrader = &up.StructUpgrader{
	SimpleUpgrader: up.SimpleUpgrader(upgradeConfig),
	Blocks:         nil,
	Base:           ExampleConfig,
}

// LoadConfig reads, upgrades and validates the config file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data, os.LookupEnv)
}

// ParseConfig upgrades data against the example config, applies the
// environment overrides from lookup and validates the result.
func ParseConfig(data []byte, lookup func(string) (string, bool)) (*Config, error) {
	var base, user yaml.Node
	if err := yaml.Unmarshal([]byte(Upgrader.Base), &base); err != nil {
		return nil, fmt.Errorf("parse example config: %w", err)
	}
	if err := yaml.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(user.Content) > 0 {
		if user.Content[0].Kind != yaml.MappingNode {
			return nil, errors.New("parse config: top level must be a mapping")
		}
		Upgrader.DoUpgrade(up.NewHelper(&base, &user))
	}

	var cfg Config
	if err := base.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.ApplyEnv(lookup)
	if err := cfg.PostProcess(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
