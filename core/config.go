package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	RateLimitScopeSender       = "sender"
	RateLimitScopeConversation = "conversation"
)

type ConversationConfig struct {
	RecentWindow int  `koanf:"recent_window" mapstructure:"recent_window"`
	DedupePairs  bool `koanf:"dedupe_pairs" mapstructure:"dedupe_pairs"`
}

type RateLimitConfig struct {
	Limit    int    `koanf:"limit" mapstructure:"limit"`
	WindowMS int64  `koanf:"window_ms" mapstructure:"window_ms"`
	Scope    string `koanf:"scope" mapstructure:"scope"`
}

func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowMS) * time.Millisecond
}

type AllowlistConfig struct {
	EnforceEmail bool `koanf:"enforce_email" mapstructure:"enforce_email"`
	EnforceSMS   bool `koanf:"enforce_sms" mapstructure:"enforce_sms"`
}

func (c AllowlistConfig) Enforced(scope AllowlistScope) bool {
	switch scope {
	case AllowlistScopeEmail:
		return c.EnforceEmail
	case AllowlistScopeSMS:
		return c.EnforceSMS
	default:
		return false
	}
}

type ReplyConfig struct {
	Enabled bool   `koanf:"enabled" mapstructure:"enabled"`
	Text    string `koanf:"text" mapstructure:"text"`
}

type Config struct {
	ServiceName  string             `koanf:"service_name" mapstructure:"service_name"`
	Conversation ConversationConfig `koanf:"conversation" mapstructure:"conversation"`
	RateLimit    RateLimitConfig    `koanf:"rate_limit" mapstructure:"rate_limit"`
	Allowlist    AllowlistConfig    `koanf:"allowlist" mapstructure:"allowlist"`
	Reply        ReplyConfig        `koanf:"reply" mapstructure:"reply"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "messaging",
		Conversation: ConversationConfig{
			RecentWindow: 100,
			DedupePairs:  true,
		},
		RateLimit: RateLimitConfig{
			Limit:    10,
			WindowMS: int64(time.Hour / time.Millisecond),
			Scope:    RateLimitScopeSender,
		},
		Allowlist: AllowlistConfig{
			EnforceEmail: true,
			EnforceSMS:   true,
		},
		Reply: ReplyConfig{
			Enabled: true,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Conversation.RecentWindow <= 0 {
		return fmt.Errorf("core: conversation.recent_window must be > 0")
	}
	if c.RateLimit.Limit <= 0 {
		return fmt.Errorf("core: rate_limit.limit must be > 0")
	}
	if c.RateLimit.WindowMS <= 0 {
		return fmt.Errorf("core: rate_limit.window_ms must be > 0")
	}
	switch strings.TrimSpace(strings.ToLower(c.RateLimit.Scope)) {
	case "", RateLimitScopeSender, RateLimitScopeConversation:
	default:
		return fmt.Errorf("core: rate_limit.scope %q is invalid", c.RateLimit.Scope)
	}
	return nil
}
