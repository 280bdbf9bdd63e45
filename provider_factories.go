package messaging

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goliatone/go-messaging/allowlist"
	"github.com/goliatone/go-messaging/conversation"
	"github.com/goliatone/go-messaging/core"
	"github.com/goliatone/go-messaging/payload"
	"github.com/goliatone/go-messaging/providers/mailgun"
	"github.com/goliatone/go-messaging/providers/sendgrid"
	"github.com/goliatone/go-messaging/providers/telnyx"
	"github.com/goliatone/go-messaging/providers/twilio"
	"github.com/goliatone/go-messaging/ratelimit"
	"github.com/goliatone/go-messaging/routing"
)

func TwilioProvider(cfg twilio.Config) (core.Provider, error) {
	return twilio.New(cfg)
}

func TelnyxProvider(cfg telnyx.Config) (core.Provider, error) {
	return telnyx.New(cfg)
}

func MailgunProvider(cfg mailgun.Config) (core.Provider, error) {
	return mailgun.New(cfg)
}

func SendGridProvider(cfg sendgrid.Config) (core.Provider, error) {
	return sendgrid.New(cfg)
}

// DefaultComponentFactory fills every component left unset with the in-memory
// or built-in implementation. Routers are created for the SMS and email
// channels and seeded with Providers.
type DefaultComponentFactory struct {
	ThrottleStore   ratelimit.StateStore
	MetricsRecorder core.MetricsRecorder
	Providers       map[core.Channel][]core.ProviderEntry
}

func NewDefaultComponentFactory() *DefaultComponentFactory {
	return &DefaultComponentFactory{Providers: map[core.Channel][]core.ProviderEntry{}}
}

// AddProvider queues an entry for the channel router built by BuildComponents.
func (f *DefaultComponentFactory) AddProvider(channel core.Channel, entry core.ProviderEntry) *DefaultComponentFactory {
	if f.Providers == nil {
		f.Providers = map[core.Channel][]core.ProviderEntry{}
	}
	f.Providers[channel] = append(f.Providers[channel], entry)
	return f
}

func (f *DefaultComponentFactory) BuildComponents(cfg core.Config, logger core.Logger, in core.Components) (core.Components, error) {
	out := in
	if out.Normalizer == nil {
		out.Normalizer = payload.DefaultRegistry()
	}

	if out.AllowlistStore == nil {
		out.AllowlistStore = allowlist.NewMemoryStore()
	}
	if out.EmailAllowlist == nil {
		list, err := allowlist.New(core.AllowlistScopeEmail, out.AllowlistStore)
		if err != nil {
			return core.Components{}, err
		}
		out.EmailAllowlist = list
	}
	if out.SMSAllowlist == nil {
		list, err := allowlist.New(core.AllowlistScopeSMS, out.AllowlistStore)
		if err != nil {
			return core.Components{}, err
		}
		out.SMSAllowlist = list
	}

	if out.RateLimiter == nil {
		out.RateLimiter = ratelimit.NewLimiter(cfg.RateLimit.Limit, cfg.RateLimit.Window())
	}

	if out.MessageStore == nil {
		out.MessageStore = conversation.NewMemoryMessageStore()
	}
	if out.ConversationStore == nil {
		out.ConversationStore = conversation.NewMemoryConversationStore()
	}
	if out.Reconciler == nil {
		reconciler, err := conversation.NewReconciler(out.MessageStore, out.ConversationStore, cfg.Conversation, logger)
		if err != nil {
			return core.Components{}, err
		}
		out.Reconciler = reconciler
	}

	routers := make(map[core.Channel]core.MessageRouter, len(in.Routers)+2)
	for channel, router := range in.Routers {
		routers[channel] = router
	}
	throttle := f.ThrottleStore
	if throttle == nil {
		throttle = ratelimit.NewMemoryStateStore()
	}
	policy := ratelimit.NewAdaptivePolicy(throttle)
	for _, channel := range f.routedChannels() {
		router, ok := routers[channel]
		if !ok || router == nil {
			opts := []routing.Option{routing.WithLogger(logger), routing.WithThrottlePolicy(policy)}
			if f.MetricsRecorder != nil {
				opts = append(opts, routing.WithMetricsRecorder(f.MetricsRecorder))
			}
			router = routing.NewRouter(channel, opts...)
			routers[channel] = router
		}
		for _, entry := range f.Providers[channel] {
			if err := router.Register(entry); err != nil {
				return core.Components{}, fmt.Errorf("messaging: register %s provider %q: %w", channel, strings.TrimSpace(entry.Name), err)
			}
		}
	}
	out.Routers = routers
	return out, nil
}

func (f *DefaultComponentFactory) routedChannels() []core.Channel {
	seen := map[core.Channel]struct{}{core.ChannelSMS: {}, core.ChannelEmail: {}}
	for channel := range f.Providers {
		if channel.Valid() {
			seen[channel] = struct{}{}
		}
	}
	out := make([]core.Channel, 0, len(seen))
	for channel := range seen {
		out = append(out, channel)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var _ core.ComponentFactory = (*DefaultComponentFactory)(nil)
