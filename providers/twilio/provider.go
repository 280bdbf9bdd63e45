package twilio

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
	ProviderName = "twilio"
	BaseURL      = "https://api.twilio.com"
	APIVersion   = "2010-04-01"
)

type Config struct {
	AccountSID     string
	AuthToken      string
	BaseURL        string
	From           string
	StatusCallback string
	Timeout        time.Duration
	Transport      core.TransportAdapter
}

func DefaultConfig() Config {
	return Config{BaseURL: BaseURL}
}

// New builds the Twilio Programmable Messaging provider. Each request is
// sent to exactly one recipient.
func New(cfg Config) (*providers.CarrierProvider, error) {
	cfg.AccountSID = strings.TrimSpace(cfg.AccountSID)
	if cfg.AccountSID == "" || strings.TrimSpace(cfg.AuthToken) == "" {
		return nil, fmt.Errorf("twilio: account sid and auth token are required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	auth := transport.BasicAuth(cfg.AccountSID, strings.TrimSpace(cfg.AuthToken))
	account := transport.JoinURL(cfg.BaseURL, APIVersion, "Accounts", cfg.AccountSID)

	return providers.NewCarrierProvider(providers.CarrierConfig{
		Name:      ProviderName,
		Channels:  []core.Channel{core.ChannelSMS},
		Transport: cfg.Transport,
		Timeout:   cfg.Timeout,
		Encode: func(req core.SendRequest) (core.TransportRequest, error) {
			return encode(cfg, account+"/Messages.json", auth, req)
		},
		Decode: func(res core.TransportResponse) (string, error) {
			return providers.DecodeJSONField(res.Body, "sid")
		},
		HealthRequest: &core.TransportRequest{
			Method:  http.MethodGet,
			URL:     account + ".json",
			Headers: auth,
		},
	})
}

func encode(cfg Config, endpoint string, auth map[string]string, req core.SendRequest) (core.TransportRequest, error) {
	if len(req.To) != 1 {
		return core.TransportRequest{}, fmt.Errorf("twilio: exactly one recipient is required, got %d", len(req.To))
	}
	from := strings.TrimSpace(req.From)
	if from == "" {
		from = strings.TrimSpace(cfg.From)
	}
	if from == "" {
		return core.TransportRequest{}, fmt.Errorf("twilio: sender is required")
	}
	values := url.Values{}
	values.Set("From", from)
	values.Set("To", strings.TrimSpace(req.To[0]))
	if req.Body != "" {
		values.Set("Body", req.Body)
	}
	for _, media := range req.MediaURLs {
		if media = strings.TrimSpace(media); media != "" {
			values.Add("MediaUrl", media)
		}
	}
	if values.Get("Body") == "" && len(values["MediaUrl"]) == 0 {
		return core.TransportRequest{}, fmt.Errorf("twilio: body or media is required")
	}
	if callback := strings.TrimSpace(cfg.StatusCallback); callback != "" {
		values.Set("StatusCallback", callback)
	}
	call := transport.FormRequest(endpoint, values, auth)
	call.Metadata = map[string]any{"conversation_id": req.ConversationID}
	return call, nil
}
