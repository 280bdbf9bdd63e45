package mailgun

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-messaging/core"
	"github.com/goliatone/go-messaging/providers"
	"github.com/goliatone/go-messaging/transport"
)

const (
	ProviderName = "mailgun"
	BaseURL      = "https://api.mailgun.net"
	EUBaseURL    = "https://api.eu.mailgun.net"
)

type Config struct {
	APIKey    string
	Domain    string
	BaseURL   string
	From      string
	Tracking  bool
	Timeout   time.Duration
	Transport core.TransportAdapter
}

func DefaultConfig() Config {
	return Config{BaseURL: BaseURL}
}

func New(cfg Config) (*providers.CarrierProvider, error) {
	cfg.Domain = strings.TrimSpace(cfg.Domain)
	if strings.TrimSpace(cfg.APIKey) == "" || cfg.Domain == "" {
		return nil, fmt.Errorf("mailgun: api key and domain are required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	auth := transport.BasicAuth("api", strings.TrimSpace(cfg.APIKey))

	return providers.NewCarrierProvider(providers.CarrierConfig{
		Name:      ProviderName,
		Channels:  []core.Channel{core.ChannelEmail},
		Transport: cfg.Transport,
		Timeout:   cfg.Timeout,
		Encode: func(req core.SendRequest) (core.TransportRequest, error) {
			values, err := formValues(cfg, req)
			if err != nil {
				return core.TransportRequest{}, err
			}
			return transport.FormRequest(transport.JoinURL(cfg.BaseURL, "v3", cfg.Domain, "messages"), values, auth), nil
		},
		Decode: func(res core.TransportResponse) (string, error) {
			return providers.DecodeJSONField(res.Body, "id")
		},
		HealthRequest: &core.TransportRequest{
			Method:  http.MethodGet,
			URL:     transport.JoinURL(cfg.BaseURL, "v3", "domains", cfg.Domain),
			Headers: auth,
		},
	})
}

func formValues(cfg Config, req core.SendRequest) (url.Values, error) {
	from := strings.TrimSpace(req.From)
	if from == "" {
		from = strings.TrimSpace(cfg.From)
	}
	if from == "" {
		return nil, fmt.Errorf("mailgun: sender is required")
	}
	if strings.TrimSpace(req.Body) == "" && strings.TrimSpace(req.HTMLBody) == "" {
		return nil, fmt.Errorf("mailgun: text or html body is required")
	}
	values := url.Values{}
	values.Set("from", from)
	for _, recipient := range req.To {
		if recipient = strings.TrimSpace(recipient); recipient != "" {
			values.Add("to", recipient)
		}
	}
	values.Set("subject", req.Subject)
	if req.Body != "" {
		values.Set("text", req.Body)
	}
	if req.HTMLBody != "" {
		values.Set("html", req.HTMLBody)
	}
	if inReplyTo := strings.TrimSpace(req.InReplyTo); inReplyTo != "" {
		values.Set("h:In-Reply-To", inReplyTo)
	}
	if refs := strings.TrimSpace(strings.Join(req.References, " ")); refs != "" {
		values.Set("h:References", refs)
	}
	for _, tag := range req.Tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			values.Add("o:tag", tag)
		}
	}
	if !cfg.Tracking {
		values.Set("o:tracking", "no")
	}
	if req.ConversationID != "" {
		values.Set("v:conversation_id", req.ConversationID)
	}
	return values, nil
}
