package messaging_test

import (
	"context"
	"strings"
	"testing"

	messaging "github.com/goliatone/go-messaging"
	"github.com/goliatone/go-messaging/core"
	"github.com/goliatone/go-messaging/inbound"
	"github.com/goliatone/go-messaging/providers/devkit"
	"github.com/goliatone/go-messaging/providers/twilio"
)

const (
	customerPhone = "+15551230001"
	strangerPhone = "+15559870000"
	businessPhone = "+15550001111"
)

func TestEndToEnd_InboundSMSIsThreadedAndAnswered(t *testing.T) {
	adapter := devkit.NewFakeTransportAdapter("rest", devkit.TransportScript{
		Response: core.TransportResponse{StatusCode: 201, Body: []byte(`{"sid":"SMreply"}`)},
	})
	provider, err := messaging.TwilioProvider(twilio.Config{
		AccountSID: "AC123",
		AuthToken:  "token",
		Transport:  adapter,
	})
	if err != nil {
		t.Fatalf("twilio provider: %v", err)
	}

	cfg := messaging.DefaultConfig()
	cfg.Reply.Text = "Thanks, we received your message."
	svc, err := messaging.SetupDefault(cfg)
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	if err := svc.RegisterProvider(core.ChannelSMS, core.ProviderEntry{Name: "twilio", Priority: 1, Provider: provider}); err != nil {
		t.Fatalf("register provider: %v", err)
	}
	if _, err := svc.AddAllowlistEntry(context.Background(), core.AllowlistScopeSMS, customerPhone, "ops"); err != nil {
		t.Fatalf("allowlist customer: %v", err)
	}

	dispatcher := inbound.NewDispatcher(nil, inbound.NewInMemoryClaimStore())
	for _, handler := range inbound.ChannelHandlers(svc) {
		if err := dispatcher.Register(handler); err != nil {
			t.Fatalf("register handler: %v", err)
		}
	}

	first, err := dispatcher.Dispatch(context.Background(), devkit.TwilioSMSWebhook("SM1", customerPhone, businessPhone, "Is my order ready?"))
	if err != nil {
		t.Fatalf("dispatch first webhook: %v", err)
	}
	if !first.Accepted || !first.Ingest.AutoReplied || first.Ingest.Reason != core.IngestReasonReplied {
		t.Fatalf("expected auto reply, got %#v", first)
	}
	if first.Ingest.ReplyProvider != "twilio" || first.Ingest.ReplyMessageID != "SMreply" {
		t.Fatalf("unexpected reply receipt %#v", first.Ingest)
	}

	call, ok := adapter.LastRequest()
	if !ok {
		t.Fatalf("expected twilio request")
	}
	if !strings.HasSuffix(call.URL, "/Accounts/AC123/Messages.json") {
		t.Fatalf("unexpected twilio url %q", call.URL)
	}
	form, err := devkit.FormBody(call)
	if err != nil {
		t.Fatalf("parse twilio form: %v", err)
	}
	if form.Get("To") != customerPhone || form.Get("From") != businessPhone {
		t.Fatalf("expected reply to swap endpoints, got %v", form)
	}

	second, err := dispatcher.Dispatch(context.Background(), devkit.TwilioSMSWebhook("SM2", businessPhone, customerPhone, "Following up"))
	if err != nil {
		t.Fatalf("dispatch second webhook: %v", err)
	}
	if second.Ingest.ConversationID != first.Ingest.ConversationID {
		t.Fatalf("expected swapped pair to share conversation, got %q and %q", first.Ingest.ConversationID, second.Ingest.ConversationID)
	}

	history, err := svc.SearchMessages(context.Background(), core.MessageFilter{ConversationID: first.Ingest.ConversationID})
	if err != nil {
		t.Fatalf("search conversation: %v", err)
	}
	directions := map[core.Direction]int{}
	for _, msg := range history {
		directions[msg.Direction]++
	}
	if directions[core.DirectionInbound] != 2 || directions[core.DirectionOutbound] != 1 {
		t.Fatalf("expected two inbound and one outbound message, got %v", directions)
	}
}

func TestEndToEnd_RetriedDeliveryIsDeduped(t *testing.T) {
	svc, err := messaging.SetupDefault(messaging.DefaultConfig())
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	dispatcher := inbound.NewDispatcher(nil, inbound.NewInMemoryClaimStore())
	for _, handler := range inbound.ChannelHandlers(svc) {
		if err := dispatcher.Register(handler); err != nil {
			t.Fatalf("register handler: %v", err)
		}
	}

	req := devkit.TwilioSMSWebhook("SM-retry", strangerPhone, businessPhone, "hello")
	first, err := dispatcher.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	if first.Ingest.Reason != core.IngestReasonNotAllowlisted {
		t.Fatalf("expected gate to suppress reply for stranger, got %q", first.Ingest.Reason)
	}
	retry, err := dispatcher.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("retry dispatch: %v", err)
	}
	if deduped, _ := retry.Metadata["deduped"].(bool); !deduped {
		t.Fatalf("expected retry to be deduped, got %#v", retry.Metadata)
	}

	stored, err := svc.SearchMessages(context.Background(), core.MessageFilter{Channel: core.ChannelSMS})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected exactly one stored message, got %d", len(stored))
	}
}

func TestEndToEnd_ReplyWithoutProviderIsRecorded(t *testing.T) {
	cfg := messaging.DefaultConfig()
	cfg.Reply.Text = "auto"
	loader := core.StaticRawConfigLoader{Values: map[string]any{
		"allowlist": map[string]any{"enforce_sms": false},
	}}
	svc, err := messaging.SetupDefault(cfg, messaging.WithConfigProvider(core.NewCfgxConfigProvider(loader)))
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	result, err := svc.IngestSMS(context.Background(), "twilio", devkit.TwilioSMSWebhook("SM9", strangerPhone, businessPhone, "hi").Payload)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.AutoReplied || result.Reason != core.IngestReasonNoReplyProvider {
		t.Fatalf("expected no_provider outcome, got %#v", result)
	}
	if result.MessageID == "" || result.ConversationID == "" {
		t.Fatalf("expected inbound message to be stored, got %#v", result)
	}
}
