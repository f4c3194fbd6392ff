// Package config provides configuration for the chatbot service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. GALLERYBOT_HTTP_PORT.
const EnvPrefix = "GALLERYBOT"

// Version is the build version, overridden with -ldflags at release time.
var Version = "0.1.0"

// Config holds the service configuration.
type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	Database  DatabaseConfig  `mapstructure:"database"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Prompt    PromptConfig    `mapstructure:"prompt"`
	Session   SessionConfig   `mapstructure:"session"`
	Sweep     SweepConfig     `mapstructure:"sweep"`
	Log       LogConfig       `mapstructure:"log"`
	WS        WSConfig        `mapstructure:"ws"`
}

type HTTPConfig struct {
	Port int `mapstructure:"port"`
	// TrustedProxies lists proxy addresses or CIDRs whose X-Forwarded-For is
	// honoured. Empty means the socket peer address is always used.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// DatabaseConfig selects the store driver ("sqlite" or "postgres").
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type LLMConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
	// Mode "MOCK" forces the offline client.
	Mode string `mapstructure:"mode"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	// PolicyFile is an optional rego module replacing the built-in admin policy.
	PolicyFile string `mapstructure:"policy_file"`
}

type RateLimitConfig struct {
	Window time.Duration `mapstructure:"window"`
	Quota  int           `mapstructure:"quota"`
}

type ChatConfig struct {
	// MaxTurnMessages is the stored history length at which a session ends.
	MaxTurnMessages int `mapstructure:"max_turn_messages"`
	// HistoryWindow is how many recent messages are fed to the prompt.
	HistoryWindow   int `mapstructure:"history_window"`
	MaxMessageChars int `mapstructure:"max_message_chars"`
}

type PromptConfig struct {
	MaxChars int `mapstructure:"max_chars"`
}

type SessionConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type SweepConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type WSConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.trusted_proxies", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:gallerybot.db?cache=shared&mode=rwc")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.mode", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.policy_file", "")
	v.SetDefault("ratelimit.window", 15*time.Second)
	v.SetDefault("ratelimit.quota", 8)
	v.SetDefault("chat.max_turn_messages", 12)
	v.SetDefault("chat.history_window", 12)
	v.SetDefault("chat.max_message_chars", 2000)
	v.SetDefault("prompt.max_chars", 16000)
	v.SetDefault("session.ttl", 48*time.Hour)
	v.SetDefault("sweep.interval", 10*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("ws.ping_interval", 30*time.Second)
	v.SetDefault("ws.read_timeout", 60*time.Second)
	v.SetDefault("ws.write_timeout", 10*time.Second)
	v.SetDefault("ws.max_message_size", 65536)
}

// Default returns the configuration with every default applied and nothing
// read from the environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	// Defaults alone always decode.
	_ = v.Unmarshal(cfg)
	return cfg
}

// Load reads configuration from an optional .env file, an optional YAML file
// and GALLERYBOT_* environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.RateLimit.Quota <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("ratelimit window and quota must be positive")
	}
	if c.Chat.MaxTurnMessages <= 0 || c.Chat.HistoryWindow <= 0 {
		return errors.New("chat max_turn_messages and history_window must be positive")
	}
	if c.Session.TTL <= 0 {
		return errors.New("session ttl must be positive")
	}
	return nil
}
