package telnyx

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-messaging/core"
	"github.com/goliatone/go-messaging/providers"
	"github.com/goliatone/go-messaging/transport"
)

const (
	ProviderName = "telnyx"
	BaseURL      = "https://api.telnyx.com"
)

type Config struct {
	APIKey             string
	BaseURL            string
	From               string
	MessagingProfileID string
	Timeout            time.Duration
	Transport          core.TransportAdapter
}

func DefaultConfig() Config {
	return Config{BaseURL: BaseURL}
}

type messageRequest struct {
	From               string   `json:"from,omitempty"`
	To                 string   `json:"to"`
	Text               string   `json:"text,omitempty"`
	Subject            string   `json:"subject,omitempty"`
	MediaURLs          []string `json:"media_urls,omitempty"`
	MessagingProfileID string   `json:"messaging_profile_id,omitempty"`
}

func New(cfg Config) (*providers.CarrierProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("telnyx: api key is required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	auth := transport.BearerAuth(cfg.APIKey)

	return providers.NewCarrierProvider(providers.CarrierConfig{
		Name:      ProviderName,
		Channels:  []core.Channel{core.ChannelSMS},
		Transport: cfg.Transport,
		Timeout:   cfg.Timeout,
		Encode: func(req core.SendRequest) (core.TransportRequest, error) {
			if len(req.To) != 1 {
				return core.TransportRequest{}, fmt.Errorf("telnyx: exactly one recipient is required, got %d", len(req.To))
			}
			payload := messageRequest{
				From:               strings.TrimSpace(req.From),
				To:                 strings.TrimSpace(req.To[0]),
				Text:               req.Body,
				MediaURLs:          req.MediaURLs,
				MessagingProfileID: strings.TrimSpace(cfg.MessagingProfileID),
			}
			if payload.From == "" {
				payload.From = strings.TrimSpace(cfg.From)
			}
			if payload.From == "" && payload.MessagingProfileID == "" {
				return core.TransportRequest{}, fmt.Errorf("telnyx: sender or messaging profile is required")
			}
			if len(req.MediaURLs) > 0 {
				payload.Subject = req.Subject
			}
			return transport.JSONRequest(transport.JoinURL(cfg.BaseURL, "v2", "messages"), payload, auth)
		},
		Decode: func(res core.TransportResponse) (string, error) {
			return providers.DecodeJSONField(res.Body, "data", "id")
		},
		HealthRequest: &core.TransportRequest{
			Method:  http.MethodGet,
			URL:     transport.JoinURL(cfg.BaseURL, "v2", "balance"),
			Headers: auth,
		},
	})
}
