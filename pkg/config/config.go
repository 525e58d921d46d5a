package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all the configuration for the relay.
// The structure tags (mapstructure) tell Viper which YAML field maps to which Go struct field.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Chat      ChatConfig      `mapstructure:"chat"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Pricing   PricingConfig   `mapstructure:"pricing"`
	Tokens    TokensConfig    `mapstructure:"tokens"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

type UpstreamConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float32       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type ChatConfig struct {
	MaxMessages        int `mapstructure:"max_messages"`
	MaxContextMessages int `mapstructure:"max_context_messages"`
	MaxMessageLength   int `mapstructure:"max_message_length"`
}

type RateLimitConfig struct {
	Backend       string        `mapstructure:"backend"`
	Window        time.Duration `mapstructure:"window"`
	MaxPerWindow  int           `mapstructure:"max_per_window"`
	MaxIdentities int           `mapstructure:"max_identities"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	GlobalRPS     float64       `mapstructure:"global_rps"`
	GlobalBurst   int           `mapstructure:"global_burst"`
}

type LedgerConfig struct {
	Capacity int `mapstructure:"capacity"`
}

type PricingConfig struct {
	PromptPer1K     float64 `mapstructure:"prompt_per_1k"`
	CompletionPer1K float64 `mapstructure:"completion_per_1k"`
}

type TokensConfig struct {
	Estimator     string `mapstructure:"estimator"`
	CharsPerToken int    `mapstructure:"chars_per_token"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Enabled  bool   `mapstructure:"enabled"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

const keyDelimiter = "::"

// Store wraps configuration with thread-safe access and hot-reload updates.
type Store struct {
	mu        sync.RWMutex
	cfg       *Config
	listeners []func(*Config)
}

// NewStore returns a Store holding cfg. Mostly useful in tests.
func NewStore(cfg *Config) *Store {
	return &Store{cfg: cfg}
}

func (s *Store) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cfg == nil {
		return nil
	}
	cpy := *s.cfg
	return &cpy
}

// OnChange registers fn to run after every successful reload.
func (s *Store) OnChange(fn func(*Config)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Store) set(cfg *Config) {
	s.mu.Lock()
	s.cfg = cfg
	listeners := append([]func(*Config){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		cpy := *cfg
		fn(&cpy)
	}
}

// LoadAndWatch loads the config from ./configs/config.yaml (if present), the
// environment and .env, then watches the file for changes.
func LoadAndWatch(paths ...string) (*Store, error) {
	v, found, err := newViper(paths)
	if err != nil {
		return nil, err
	}

	store := &Store{}
	if err := refresh(v, store); err != nil {
		return nil, err
	}

	if found {
		v.OnConfigChange(func(e fsnotify.Event) {
			if err := refresh(v, store); err != nil {
				slog.Error("config reload failed", "file", e.Name, "error", err)
			} else {
				slog.Info("config reloaded", "file", e.Name)
			}
		})
		v.WatchConfig()
	}

	return store, nil
}

// Load reads the configuration once without watching.
func Load(paths ...string) (*Config, error) {
	v, _, err := newViper(paths)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

func newViper(paths []string) (*viper.Viper, bool, error) {
	// A missing .env is fine.
	_ = godotenv.Load()

	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	if len(paths) == 0 {
		paths = []string{"./configs"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelimiter, "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("upstream::api_key", "RELAY_UPSTREAM_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, false, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, false, nil
		}
		return nil, false, fmt.Errorf("read config: %w", err)
	}
	return v, true, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server::port", ":3000")
	v.SetDefault("server::log_level", "info")

	v.SetDefault("upstream::base_url", "https://api.openai.com/v1")
	v.SetDefault("upstream::api_key", "")
	v.SetDefault("upstream::model", "gpt-4o-mini")
	v.SetDefault("upstream::max_tokens", 1000)
	v.SetDefault("upstream::temperature", 0.7)
	v.SetDefault("upstream::timeout", 30*time.Second)

	v.SetDefault("chat::max_messages", 25)
	v.SetDefault("chat::max_context_messages", 20)
	v.SetDefault("chat::max_message_length", 3000)

	v.SetDefault("ratelimit::backend", "memory")
	v.SetDefault("ratelimit::window", time.Minute)
	v.SetDefault("ratelimit::max_per_window", 20)
	v.SetDefault("ratelimit::max_identities", 10000)
	v.SetDefault("ratelimit::sweep_interval", time.Minute)
	v.SetDefault("ratelimit::global_rps", 0.0)
	v.SetDefault("ratelimit::global_burst", 0)

	v.SetDefault("ledger::capacity", 1000)

	v.SetDefault("pricing::prompt_per_1k", 0.00015)
	v.SetDefault("pricing::completion_per_1k", 0.0006)

	v.SetDefault("tokens::estimator", "heuristic")
	v.SetDefault("tokens::chars_per_token", 4)

	v.SetDefault("redis::address", "localhost:6379")
	v.SetDefault("redis::password", "")
	v.SetDefault("redis::db", 0)
	v.SetDefault("redis::enabled", false)

	v.SetDefault("telemetry::otlp_endpoint", "")
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func refresh(v *viper.Viper, store *Store) error {
	cfg, err := decode(v)
	if err != nil {
		return err
	}
	store.set(cfg)
	return nil
}

// Validate rejects settings the relay cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Chat.MaxMessages <= 0:
		return errors.New("chat::max_messages must be positive")
	case c.Chat.MaxContextMessages <= 0:
		return errors.New("chat::max_context_messages must be positive")
	case c.Chat.MaxMessageLength <= 0:
		return errors.New("chat::max_message_length must be positive")
	case c.RateLimit.Window <= 0:
		return errors.New("ratelimit::window must be positive")
	case c.RateLimit.MaxPerWindow < 0:
		return errors.New("ratelimit::max_per_window must not be negative")
	case c.Ledger.Capacity <= 0:
		return errors.New("ledger::capacity must be positive")
	case c.Upstream.Timeout <= 0:
		return errors.New("upstream::timeout must be positive")
	}

	switch c.RateLimit.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("ratelimit::backend %q is not supported", c.RateLimit.Backend)
	}
	if c.RateLimit.Backend == "redis" && !c.Redis.Enabled {
		return errors.New("ratelimit::backend redis requires redis::enabled")
	}

	switch c.Tokens.Estimator {
	case "heuristic", "tiktoken":
	default:
		return fmt.Errorf("tokens::estimator %q is not supported", c.Tokens.Estimator)
	}
	return nil
}
