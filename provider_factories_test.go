package messaging

import (
	"context"
	"testing"

	"github.com/goliatone/go-messaging/allowlist"
	"github.com/goliatone/go-messaging/core"
	"github.com/goliatone/go-messaging/providers/devkit"
	"github.com/goliatone/go-messaging/providers/mailgun"
	"github.com/goliatone/go-messaging/providers/sendgrid"
	"github.com/goliatone/go-messaging/providers/telnyx"
	"github.com/goliatone/go-messaging/providers/twilio"
	"github.com/goliatone/go-messaging/routing"
)

func TestBuiltInProviderFactories(t *testing.T) {
	cases := []struct {
		name string
		id   string
		fn   func() (core.Provider, error)
	}{
		{
			name: "twilio",
			id:   twilio.ProviderName,
			fn: func() (core.Provider, error) {
				return TwilioProvider(twilio.Config{AccountSID: "AC123", AuthToken: "token"})
			},
		},
		{
			name: "telnyx",
			id:   telnyx.ProviderName,
			fn: func() (core.Provider, error) {
				return TelnyxProvider(telnyx.Config{APIKey: "key"})
			},
		},
		{
			name: "mailgun",
			id:   mailgun.ProviderName,
			fn: func() (core.Provider, error) {
				return MailgunProvider(mailgun.Config{APIKey: "key", Domain: "mg.example.com"})
			},
		},
		{
			name: "sendgrid",
			id:   sendgrid.ProviderName,
			fn: func() (core.Provider, error) {
				return SendGridProvider(sendgrid.Config{APIKey: "key"})
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			provider, err := tc.fn()
			if err != nil {
				t.Fatalf("factory error: %v", err)
			}
			if provider.Name() != tc.id {
				t.Fatalf("expected %q, got %q", tc.id, provider.Name())
			}
		})
	}
}

func TestBuiltInProviderFactories_RejectMissingCredentials(t *testing.T) {
	if _, err := TwilioProvider(twilio.Config{AccountSID: "AC123"}); err == nil {
		t.Fatalf("expected twilio auth token error")
	}
	if _, err := MailgunProvider(mailgun.Config{APIKey: "key"}); err == nil {
		t.Fatalf("expected mailgun domain error")
	}
}

func TestDefaultComponentFactory_FillsMissingComponents(t *testing.T) {
	factory := NewDefaultComponentFactory().
		AddProvider(core.ChannelSMS, core.ProviderEntry{
			Name:     "sms-fake",
			Priority: 1,
			Provider: devkit.NewFakeProvider("sms-fake", []core.Channel{core.ChannelSMS}),
		})

	out, err := factory.BuildComponents(core.DefaultConfig(), nil, core.Components{})
	if err != nil {
		t.Fatalf("build components: %v", err)
	}
	if out.Normalizer == nil || out.Reconciler == nil || out.RateLimiter == nil {
		t.Fatalf("expected normalizer, reconciler and limiter, got %#v", out)
	}
	if out.MessageStore == nil || out.ConversationStore == nil || out.AllowlistStore == nil {
		t.Fatalf("expected stores to be filled")
	}
	if out.EmailAllowlist == nil || out.SMSAllowlist == nil {
		t.Fatalf("expected both allowlists")
	}
	if out.EmailAllowlist.Scope() != core.AllowlistScopeEmail || out.SMSAllowlist.Scope() != core.AllowlistScopeSMS {
		t.Fatalf("unexpected allowlist scopes")
	}
	sms, ok := out.Routers[core.ChannelSMS]
	if !ok {
		t.Fatalf("expected sms router")
	}
	if _, ok := out.Routers[core.ChannelEmail]; !ok {
		t.Fatalf("expected email router")
	}
	entries := sms.Entries()
	if len(entries) != 1 || entries[0].Name != "sms-fake" {
		t.Fatalf("expected queued provider on sms router, got %#v", entries)
	}
}

func TestDefaultComponentFactory_KeepsInjectedComponents(t *testing.T) {
	store := allowlist.NewMemoryStore()
	if err := store.Upsert(context.Background(), core.AllowlistEntry{Scope: core.AllowlistScopeSMS, Identifier: "+15551230001"}); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	router := routing.NewRouter(core.ChannelEmail)

	out, err := NewDefaultComponentFactory().BuildComponents(core.DefaultConfig(), nil, core.Components{
		AllowlistStore: store,
		Routers:        map[core.Channel]core.MessageRouter{core.ChannelEmail: router},
	})
	if err != nil {
		t.Fatalf("build components: %v", err)
	}
	if out.AllowlistStore != store {
		t.Fatalf("expected injected allowlist store to be kept")
	}
	if out.Routers[core.ChannelEmail] != router {
		t.Fatalf("expected injected email router to be kept")
	}
	if err := out.SMSAllowlist.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize sms allowlist: %v", err)
	}
	if !out.SMSAllowlist.Has("+15551230001") {
		t.Fatalf("expected sms allowlist to read from the injected store")
	}
}

func TestDefaultComponentFactory_RejectsInvalidProviderEntry(t *testing.T) {
	factory := NewDefaultComponentFactory().AddProvider(core.ChannelSMS, core.ProviderEntry{Name: "broken"})
	if _, err := factory.BuildComponents(core.DefaultConfig(), nil, core.Components{}); err == nil {
		t.Fatalf("expected provider registration error")
	}
}
