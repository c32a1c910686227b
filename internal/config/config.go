package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	DefaultRequestTimeout = 15 * time.Second
	DefaultPageSize       = 20
)

// LoggingConfig defines runtime logging behavior.
type LoggingConfig struct {
	Level     string `json:"level"`
	LogToFile bool   `json:"log_to_file"`
}

// ServerConfig contains REST and push endpoint parameters.
type ServerConfig struct {
	APIBaseURL       string `json:"api_base_url"`
	PushURL          string `json:"push_url"`
	AuthToken        string `json:"auth_token"`
	RequestTimeoutMS int    `json:"request_timeout_ms"`
	PageSize         int    `json:"page_size"`
}

// NotificationConfig stores desktop notification preferences.
type NotificationConfig struct {
	Enabled bool                     `json:"enabled"`
	Events  NotificationEventsConfig `json:"events"`
}

// NotificationEventsConfig stores per-event notification toggles.
type NotificationEventsConfig struct {
	IncomingMessage  bool `json:"incoming_message"`
	NewNotification  bool `json:"new_notification"`
	ConnectionStatus bool `json:"connection_status"`
}

// CacheConfig controls the in-session sqlite cache.
type CacheConfig struct {
	Disabled bool `json:"disabled"`
}

// AppConfig is the root persisted application configuration.
type AppConfig struct {
	Server        ServerConfig       `json:"server"`
	Logging       LoggingConfig      `json:"logging"`
	Notifications NotificationConfig `json:"notifications"`
	Cache         CacheConfig        `json:"cache"`
}

func Default() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			APIBaseURL:       "",
			PushURL:          "",
			AuthToken:        "",
			RequestTimeoutMS: int(DefaultRequestTimeout / time.Millisecond),
			PageSize:         DefaultPageSize,
		},
		Logging: LoggingConfig{
			Level:     "info",
			LogToFile: false,
		},
		Notifications: NotificationConfig{
			Enabled: true,
			Events: NotificationEventsConfig{
				IncomingMessage:  true,
				NewNotification:  true,
				ConnectionStatus: false,
			},
		},
		Cache: CacheConfig{},
	}
}

func Load(path string) (AppConfig, error) {
	cfg := Default()
	cleanPath := filepath.Clean(path)
	// #nosec G304 -- path is resolved by app runtime and points to user config dir.
	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode config json: %w", err)
	}

	cfg.FillMissingDefaults()

	return cfg, nil
}

func (c *AppConfig) FillMissingDefaults() {
	if c.Server.RequestTimeoutMS <= 0 {
		c.Server.RequestTimeoutMS = int(DefaultRequestTimeout / time.Millisecond)
	}
	if c.Server.PageSize <= 0 {
		c.Server.PageSize = DefaultPageSize
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c AppConfig) RequestTimeout() time.Duration {
	if c.Server.RequestTimeoutMS <= 0 {
		return DefaultRequestTimeout
	}

	return time.Duration(c.Server.RequestTimeoutMS) * time.Millisecond
}

func (c AppConfig) Validate() error {
	api := strings.TrimSpace(c.Server.APIBaseURL)
	if api == "" {
		return errors.New("api base url is required")
	}
	if _, err := url.Parse(api); err != nil {
		return fmt.Errorf("invalid api base url: %w", err)
	}

	push := strings.TrimSpace(c.Server.PushURL)
	if push == "" {
		return errors.New("push url is required")
	}
	pushURL, err := url.Parse(push)
	if err != nil {
		return fmt.Errorf("invalid push url: %w", err)
	}
	switch pushURL.Scheme {
	case "ws", "wss":
	default:
		return fmt.Errorf("push url scheme must be ws or wss: %s", pushURL.Scheme)
	}

	return nil
}

func Save(path string, cfg AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp config: %w", err)
	}

	return nil
}
