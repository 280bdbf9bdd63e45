package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-messaging/webhooks"
)

const (
	defaultConfigPath = "messaging.yaml"
	defaultHTTPAddr   = ":8080"
	appKeyEnv         = "MESSAGING_APP_KEY"
)

// FileConfig is the on-disk configuration for the messaging binary. The
// messaging section is handed to the service config loader as is.
type FileConfig struct {
	Messaging   map[string]any          `yaml:"messaging"`
	Log         LogConfig               `yaml:"log"`
	Database    DatabaseConfig          `yaml:"database"`
	HTTP        HTTPConfig              `yaml:"http"`
	AppKey      string                  `yaml:"app_key"`
	Webhooks    webhooks.CarrierSecrets `yaml:"webhooks"`
	Providers   ProvidersConfig         `yaml:"providers"`
	Cache       CacheConfig             `yaml:"cache"`
	Maintenance MaintenanceConfig       `yaml:"maintenance"`
}

type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	Timestamp bool   `yaml:"timestamp"`
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	PublicURL    string        `yaml:"public_url"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

type MaintenanceConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MaxAttempts int           `yaml:"max_attempts"`
}

type ProvidersConfig struct {
	Twilio   *TwilioConfig   `yaml:"twilio"`
	Telnyx   *TelnyxConfig   `yaml:"telnyx"`
	Mailgun  *MailgunConfig  `yaml:"mailgun"`
	SendGrid *SendGridConfig `yaml:"sendgrid"`
}

type RouteConfig struct {
	Priority int           `yaml:"priority"`
	Tags     []string      `yaml:"tags"`
	Domains  []string      `yaml:"domains"`
	Timeout  time.Duration `yaml:"timeout"`
}

type TwilioConfig struct {
	RouteConfig    `yaml:",inline"`
	AccountSID     string `yaml:"account_sid"`
	AuthToken      string `yaml:"auth_token"`
	From           string `yaml:"from"`
	StatusCallback string `yaml:"status_callback"`
}

type TelnyxConfig struct {
	RouteConfig        `yaml:",inline"`
	APIKey             string `yaml:"api_key"`
	From               string `yaml:"from"`
	MessagingProfileID string `yaml:"messaging_profile_id"`
}

type MailgunConfig struct {
	RouteConfig `yaml:",inline"`
	APIKey      string `yaml:"api_key"`
	Domain      string `yaml:"domain"`
	BaseURL     string `yaml:"base_url"`
	From        string `yaml:"from"`
	Tracking    bool   `yaml:"tracking"`
}

type SendGridConfig struct {
	RouteConfig `yaml:",inline"`
	APIKey      string `yaml:"api_key"`
	From        string `yaml:"from"`
}

func defaultFileConfig() FileConfig {
	return FileConfig{
		Messaging: map[string]any{},
		Log:       LogConfig{Level: "info", Format: "text"},
		Database:  DatabaseConfig{Driver: "sqlite", DSN: "file:messaging.db?_pragma=foreign_keys(1)", PingTimeout: 5 * time.Second},
		HTTP: HTTPConfig{
			Addr:         defaultHTTPAddr,
			MaxBodyBytes: 10 << 20,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Cache:       CacheConfig{TTL: time.Minute},
		Maintenance: MaintenanceConfig{Interval: 5 * time.Minute, MaxAttempts: 3},
	}
}

// loadFileConfig reads path over the defaults. A missing file at the
// default location is not an error.
func loadFileConfig(path string) (FileConfig, error) {
	cfg := defaultFileConfig()
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = defaultConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return FileConfig{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return FileConfig{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if cfg.Messaging == nil {
		cfg.Messaging = map[string]any{}
	}
	if key := strings.TrimSpace(os.Getenv(appKeyEnv)); key != "" {
		cfg.AppKey = key
	}
	return cfg, nil
}
