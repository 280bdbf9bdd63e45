package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-messaging/core"
	"github.com/goliatone/go-messaging/transport"
)

const (
	defaultSendTimeout   = 15 * time.Second
	maxErrorDetailLength = 256
)

// RequestEncoder turns a send request into the carrier API call.
type RequestEncoder func(req core.SendRequest) (core.TransportRequest, error)

// ReceiptDecoder extracts the carrier message id from a successful response.
type ReceiptDecoder func(res core.TransportResponse) (string, error)

type CarrierConfig struct {
	Name          string
	Channels      []core.Channel
	Transport     core.TransportAdapter
	Encode        RequestEncoder
	Decode        ReceiptDecoder
	HealthRequest *core.TransportRequest
	Timeout       time.Duration
}

// CarrierProvider is the shared send path for HTTP carrier APIs. Carrier
// packages supply the encoder and decoder.
type CarrierProvider struct {
	cfg CarrierConfig
}

func NewCarrierProvider(cfg CarrierConfig) (*CarrierProvider, error) {
	cfg.Name = strings.TrimSpace(strings.ToLower(cfg.Name))
	if cfg.Name == "" {
		return nil, fmt.Errorf("providers: provider name is required")
	}
	if len(cfg.Channels) == 0 {
		return nil, fmt.Errorf("providers: provider %q serves no channels", cfg.Name)
	}
	if cfg.Encode == nil || cfg.Decode == nil {
		return nil, fmt.Errorf("providers: provider %q requires an encoder and decoder", cfg.Name)
	}
	if cfg.Transport == nil {
		cfg.Transport = transport.NewRESTAdapter(nil)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSendTimeout
	}
	return &CarrierProvider{cfg: cfg}, nil
}

func (p *CarrierProvider) Name() string {
	return p.cfg.Name
}

func (p *CarrierProvider) Channels() []core.Channel {
	return append([]core.Channel(nil), p.cfg.Channels...)
}

func (p *CarrierProvider) Send(ctx context.Context, req core.SendRequest) (core.SendReceipt, error) {
	if !p.serves(req.Channel) {
		return core.SendReceipt{}, &core.ProviderSendError{
			Provider: p.cfg.Name,
			Cause:    fmt.Errorf("providers: channel %q not supported", req.Channel),
		}
	}
	if len(req.To) == 0 {
		return core.SendReceipt{}, &core.ProviderSendError{
			Provider: p.cfg.Name,
			Cause:    fmt.Errorf("providers: recipient is required"),
		}
	}
	call, err := p.cfg.Encode(req)
	if err != nil {
		return core.SendReceipt{}, &core.ProviderSendError{Provider: p.cfg.Name, Cause: err}
	}
	if call.Timeout <= 0 {
		call.Timeout = p.cfg.Timeout
	}
	call.Metadata = p.tag(call.Metadata, req.Channel)

	res, err := p.cfg.Transport.Do(ctx, call)
	if err != nil {
		return core.SendReceipt{}, &core.ProviderSendError{Provider: p.cfg.Name, Cause: err}
	}
	if !transport.Successful(res.StatusCode) {
		retryAfter, _ := res.Metadata[transport.MetadataRetryAfter].(time.Duration)
		return core.SendReceipt{}, &core.ProviderSendError{
			Provider:   p.cfg.Name,
			StatusCode: res.StatusCode,
			Headers:    res.Headers,
			RetryAfter: retryAfter,
			Cause:      fmt.Errorf("providers: %s", ErrorDetail(res.Body)),
		}
	}

	messageID, err := p.cfg.Decode(res)
	if err != nil {
		return core.SendReceipt{}, &core.ProviderSendError{
			Provider:   p.cfg.Name,
			StatusCode: res.StatusCode,
			Headers:    res.Headers,
			Cause:      err,
		}
	}
	return core.SendReceipt{
		MessageID:  messageID,
		StatusCode: res.StatusCode,
		Headers:    res.Headers,
		Metadata:   res.Metadata,
	}, nil
}

// HealthCheck calls the configured health request. Providers without one
// are reported healthy.
func (p *CarrierProvider) HealthCheck(ctx context.Context) error {
	if p.cfg.HealthRequest == nil {
		return nil
	}
	check := *p.cfg.HealthRequest
	if check.Timeout <= 0 {
		check.Timeout = p.cfg.Timeout
	}
	check.Metadata = p.tag(check.Metadata, "")
	res, err := p.cfg.Transport.Do(ctx, check)
	if err != nil {
		return fmt.Errorf("providers: %s health check: %w", p.cfg.Name, err)
	}
	if !transport.Successful(res.StatusCode) {
		return fmt.Errorf("providers: %s health check returned status %d", p.cfg.Name, res.StatusCode)
	}
	return nil
}

// tag copies metadata and adds the carrier and channel of the call.
func (p *CarrierProvider) tag(metadata map[string]any, channel core.Channel) map[string]any {
	out := make(map[string]any, len(metadata)+2)
	for key, value := range metadata {
		out[key] = value
	}
	out[transport.MetadataCarrier] = p.cfg.Name
	if channel != "" {
		out[transport.MetadataChannel] = string(channel)
	}
	return out
}

func (p *CarrierProvider) serves(channel core.Channel) bool {
	for _, candidate := range p.cfg.Channels {
		if candidate == channel {
			return true
		}
	}
	return false
}

// ErrorDetail summarizes a carrier error body. JSON bodies contribute their
// message field; anything else is truncated.
func ErrorDetail(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "empty response body"
	}
	var payload struct {
		Message string `json:"message"`
		Errors  []struct {
			Title   string `json:"title"`
			Detail  string `json:"detail"`
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return truncate(payload.Message)
		}
		for _, item := range payload.Errors {
			for _, candidate := range []string{item.Detail, item.Message, item.Title} {
				if strings.TrimSpace(candidate) != "" {
					return truncate(candidate)
				}
			}
		}
	}
	return truncate(trimmed)
}

// DecodeJSONField reads a dotted path of object keys from a JSON body.
func DecodeJSONField(body []byte, path ...string) (string, error) {
	var current any
	if err := json.Unmarshal(body, &current); err != nil {
		return "", fmt.Errorf("providers: decode response: %w", err)
	}
	for _, key := range path {
		object, ok := current.(map[string]any)
		if !ok {
			return "", fmt.Errorf("providers: response field %q missing", strings.Join(path, "."))
		}
		current = object[key]
	}
	value, ok := current.(string)
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("providers: response field %q missing", strings.Join(path, "."))
	}
	return strings.TrimSpace(value), nil
}

func truncate(value string) string {
	value = strings.TrimSpace(value)
	if len(value) > maxErrorDetailLength {
		return value[:maxErrorDetailLength]
	}
	return value
}

var _ core.ChannelProvider = (*CarrierProvider)(nil)
var _ core.Provider = (*CarrierProvider)(nil)
