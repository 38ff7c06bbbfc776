package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Env       string          `yaml:"env"`
	Log       LogConfig       `yaml:"log"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	REST      RESTConfig      `yaml:"rest"`
	Typing    TypingConfig    `yaml:"typing"`
	Toasts    ToastsConfig    `yaml:"toasts"`
	Discovery DiscoveryConfig `yaml:"discovery"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type RealtimeConfig struct {
	URL              string        `yaml:"url"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	PongTimeout      time.Duration `yaml:"pong_timeout"`
	BackoffBase      time.Duration `yaml:"backoff_base"`
	BackoffMax       time.Duration `yaml:"backoff_max"`
	MaxRetries       int           `yaml:"max_retries"`
}

type RESTConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
	PageSize int           `yaml:"page_size"`
}

type TypingConfig struct {
	IdleWindow   time.Duration `yaml:"idle_window"`
	RemoteExpiry time.Duration `yaml:"remote_expiry"`
}

type ToastsConfig struct {
	DisplayDuration time.Duration `yaml:"display_duration"`
}

type DiscoveryConfig struct {
	RadiusDefaultKM float64 `yaml:"radius_default_km"`
	RadiusMaxKM     float64 `yaml:"radius_max_km"`
}

func Default() Config {
	return Config{
		Env: "local",
		Log: LogConfig{
			Level: "info",
		},
		Realtime: RealtimeConfig{
			URL:              "wss://localhost:8443/ws",
			HandshakeTimeout: 10 * time.Second,
			WriteTimeout:     10 * time.Second,
			PongTimeout:      60 * time.Second,
			BackoffBase:      time.Second,
			BackoffMax:       30 * time.Second,
			MaxRetries:       5,
		},
		REST: RESTConfig{
			BaseURL:  "https://localhost:8443/api/v1",
			Timeout:  15 * time.Second,
			PageSize: 20,
		},
		Typing: TypingConfig{
			IdleWindow:   1500 * time.Millisecond,
			RemoteExpiry: 5 * time.Second,
		},
		Toasts: ToastsConfig{
			DisplayDuration: 4 * time.Second,
		},
		Discovery: DiscoveryConfig{
			RadiusDefaultKM: 25,
			RadiusMaxKM:     150,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromYAML(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func loadFromYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("unmarshal config yaml: %w", err)
	}

	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.Env = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	if v := os.Getenv("REALTIME_URL"); v != "" {
		cfg.Realtime.URL = v
	}
	if err := overrideDuration("REALTIME_HANDSHAKE_TIMEOUT", &cfg.Realtime.HandshakeTimeout); err != nil {
		return err
	}
	if err := overrideDuration("REALTIME_BACKOFF_BASE", &cfg.Realtime.BackoffBase); err != nil {
		return err
	}
	if err := overrideDuration("REALTIME_BACKOFF_MAX", &cfg.Realtime.BackoffMax); err != nil {
		return err
	}
	if err := overrideInt("REALTIME_MAX_RETRIES", &cfg.Realtime.MaxRetries); err != nil {
		return err
	}

	if v := os.Getenv("REST_BASE_URL"); v != "" {
		cfg.REST.BaseURL = v
	}
	if err := overrideDuration("REST_TIMEOUT", &cfg.REST.Timeout); err != nil {
		return err
	}
	if err := overrideInt("REST_PAGE_SIZE", &cfg.REST.PageSize); err != nil {
		return err
	}

	if err := overrideDuration("TYPING_IDLE_WINDOW", &cfg.Typing.IdleWindow); err != nil {
		return err
	}
	if err := overrideDuration("TYPING_REMOTE_EXPIRY", &cfg.Typing.RemoteExpiry); err != nil {
		return err
	}
	if err := overrideDuration("TOASTS_DISPLAY_DURATION", &cfg.Toasts.DisplayDuration); err != nil {
		return err
	}

	if err := overrideFloat("DISCOVERY_RADIUS_DEFAULT_KM", &cfg.Discovery.RadiusDefaultKM); err != nil {
		return err
	}
	if err := overrideFloat("DISCOVERY_RADIUS_MAX_KM", &cfg.Discovery.RadiusMaxKM); err != nil {
		return err
	}

	return nil
}

func (c Config) validate() error {
	if c.Realtime.URL == "" {
		return fmt.Errorf("realtime url is required")
	}
	if c.REST.BaseURL == "" {
		return fmt.Errorf("rest base url is required")
	}
	if c.Realtime.MaxRetries < 0 {
		return fmt.Errorf("realtime max retries must be non-negative")
	}
	if c.Typing.IdleWindow <= 0 || c.Typing.RemoteExpiry <= 0 {
		return fmt.Errorf("typing windows must be positive")
	}
	if c.Typing.RemoteExpiry <= c.Typing.IdleWindow {
		return fmt.Errorf("typing remote expiry must exceed the idle window")
	}
	if c.Toasts.DisplayDuration <= 0 {
		return fmt.Errorf("toast display duration must be positive")
	}
	if c.Discovery.RadiusDefaultKM <= 0 || c.Discovery.RadiusMaxKM < c.Discovery.RadiusDefaultKM {
		return fmt.Errorf("invalid discovery radius configuration")
	}
	return nil
}

func overrideDuration(name string, target *time.Duration) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	*target = parsed
	return nil
}

func overrideInt(name string, target *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	*target = parsed
	return nil
}

func overrideFloat(name string, target *float64) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	*target = parsed
	return nil
}
