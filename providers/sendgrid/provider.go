package sendgrid

import (
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/goliatone/go-messaging/core"
	"github.com/goliatone/go-messaging/providers"
	"github.com/goliatone/go-messaging/transport"
)

const (
	ProviderName    = "sendgrid"
	BaseURL         = "https://api.sendgrid.com"
	MessageIDHeader = "X-Message-Id"
)

type Config struct {
	APIKey    string
	BaseURL   string
	From      string
	Timeout   time.Duration
	Transport core.TransportAdapter
}

func DefaultConfig() Config {
	return Config{BaseURL: BaseURL}
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type personalization struct {
	To         []address         `json:"to"`
	CustomArgs map[string]string `json:"custom_args,omitempty"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type mailSend struct {
	Personalizations []personalization `json:"personalizations"`
	From             address           `json:"from"`
	Subject          string            `json:"subject"`
	Content          []content         `json:"content"`
	Headers          map[string]string `json:"headers,omitempty"`
	Categories       []string          `json:"categories,omitempty"`
}

// New builds the SendGrid v3 mail send provider. The API answers 202 with no
// body so the message id comes from the X-Message-Id response header.
func New(cfg Config) (*providers.CarrierProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("sendgrid: api key is required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	auth := transport.BearerAuth(cfg.APIKey)

	return providers.NewCarrierProvider(providers.CarrierConfig{
		Name:      ProviderName,
		Channels:  []core.Channel{core.ChannelEmail},
		Transport: cfg.Transport,
		Timeout:   cfg.Timeout,
		Encode: func(req core.SendRequest) (core.TransportRequest, error) {
			payload, err := buildMailSend(cfg, req)
			if err != nil {
				return core.TransportRequest{}, err
			}
			return transport.JSONRequest(transport.JoinURL(cfg.BaseURL, "v3", "mail", "send"), payload, auth)
		},
		Decode: func(res core.TransportResponse) (string, error) {
			id := transport.Header(res.Headers, MessageIDHeader)
			if id == "" {
				return "", fmt.Errorf("sendgrid: response missing %s header", MessageIDHeader)
			}
			return id, nil
		},
		HealthRequest: &core.TransportRequest{
			Method:  http.MethodGet,
			URL:     transport.JoinURL(cfg.BaseURL, "v3", "scopes"),
			Headers: auth,
		},
	})
}

func buildMailSend(cfg Config, req core.SendRequest) (mailSend, error) {
	fromRaw := strings.TrimSpace(req.From)
	if fromRaw == "" {
		fromRaw = strings.TrimSpace(cfg.From)
	}
	if fromRaw == "" {
		return mailSend{}, fmt.Errorf("sendgrid: sender is required")
	}
	from := parseAddress(fromRaw)

	recipients := make([]address, 0, len(req.To))
	for _, raw := range req.To {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		recipients = append(recipients, parseAddress(raw))
	}
	if len(recipients) == 0 {
		return mailSend{}, fmt.Errorf("sendgrid: recipient is required")
	}

	payload := mailSend{
		Personalizations: []personalization{{To: recipients}},
		From:             from,
		Subject:          req.Subject,
		Categories:       req.Tags,
	}
	if req.ConversationID != "" {
		payload.Personalizations[0].CustomArgs = map[string]string{"conversation_id": req.ConversationID}
	}
	if req.Body != "" {
		payload.Content = append(payload.Content, content{Type: "text/plain", Value: req.Body})
	}
	if req.HTMLBody != "" {
		payload.Content = append(payload.Content, content{Type: "text/html", Value: req.HTMLBody})
	}
	if len(payload.Content) == 0 {
		return mailSend{}, fmt.Errorf("sendgrid: text or html body is required")
	}
	headers := map[string]string{}
	if inReplyTo := strings.TrimSpace(req.InReplyTo); inReplyTo != "" {
		headers["In-Reply-To"] = inReplyTo
	}
	if refs := strings.TrimSpace(strings.Join(req.References, " ")); refs != "" {
		headers["References"] = refs
	}
	if len(headers) > 0 {
		payload.Headers = headers
	}
	return payload, nil
}

func parseAddress(raw string) address {
	if parsed, err := mail.ParseAddress(raw); err == nil {
		return address{Email: parsed.Address, Name: parsed.Name}
	}
	return address{Email: strings.TrimSpace(raw)}
}
