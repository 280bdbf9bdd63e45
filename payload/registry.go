package payload

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-messaging/core"
)

type registryKey struct {
	channel core.Channel
	carrier string
}

type Registry struct {
	mu      sync.RWMutex
	parsers map[registryKey]Parser
}

func NewRegistry(parsers ...Parser) (*Registry, error) {
	registry := &Registry{parsers: map[registryKey]Parser{}}
	for _, parser := range parsers {
		if err := registry.Register(parser); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// DefaultRegistry registers every built-in carrier parser.
func DefaultRegistry() *Registry {
	registry, _ := NewRegistry(
		TwilioSMSParser{},
		TwilioVoiceParser{},
		TelnyxSMSParser{},
		MailgunEmailParser{},
		SendGridEmailParser{},
	)
	return registry
}

func (r *Registry) Register(parser Parser) error {
	if parser == nil {
		return fmt.Errorf("payload: parser is nil")
	}
	key := registryKey{channel: parser.Channel(), carrier: normalizeCarrier(parser.Carrier())}
	if !key.channel.Valid() {
		return fmt.Errorf("payload: unsupported channel %q", key.channel)
	}
	if key.carrier == "" {
		return fmt.Errorf("payload: carrier is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.parsers[key]; exists {
		return fmt.Errorf("payload: parser already registered for %s/%s", key.channel, key.carrier)
	}
	r.parsers[key] = parser
	return nil
}

func (r *Registry) Lookup(channel core.Channel, carrier string) (Parser, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	parser, ok := r.parsers[registryKey{channel: channel, carrier: normalizeCarrier(carrier)}]
	return parser, ok
}

// Carriers lists the carriers registered for channel.
func (r *Registry) Carriers(channel core.Channel) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []string{}
	for key := range r.parsers {
		if key.channel == channel {
			out = append(out, key.carrier)
		}
	}
	sort.Strings(out)
	return out
}

// Parse validates and parses raw with the parser registered for the pair.
func (r *Registry) Parse(channel core.Channel, carrier string, raw Raw) (Envelope, error) {
	parser, ok := r.Lookup(channel, carrier)
	if !ok {
		return Envelope{}, fmt.Errorf("payload: unsupported carrier %q for channel %q", carrier, channel)
	}
	if err := parser.Validate(raw); err != nil {
		return Envelope{}, err
	}
	envelope, err := parser.Parse(raw)
	if err != nil {
		return Envelope{}, err
	}
	envelope.Channel = channel
	envelope.Carrier = normalizeCarrier(parser.Carrier())
	return envelope, nil
}

func (r *Registry) Normalize(_ context.Context, channel core.Channel, carrier string, raw core.RawPayload) (core.Message, error) {
	envelope, err := r.Parse(channel, carrier, raw)
	if err != nil {
		return core.Message{}, err
	}
	return envelope.Message(), nil
}

func normalizeCarrier(carrier string) string {
	return strings.TrimSpace(strings.ToLower(carrier))
}

var _ core.PayloadNormalizer = (*Registry)(nil)
