package devkit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-messaging/core"
	"github.com/goliatone/go-messaging/inbound"
	"github.com/goliatone/go-messaging/payload"
	"github.com/goliatone/go-messaging/providers/mailgun"
	"github.com/goliatone/go-messaging/providers/telnyx"
	"github.com/goliatone/go-messaging/providers/twilio"
)

func TestFakeTransportAdapter_ScriptsAndCapturesRequests(t *testing.T) {
	adapter := NewFakeTransportAdapter("rest",
		TransportScript{Response: core.TransportResponse{StatusCode: 429}},
		TransportScript{Response: core.TransportResponse{StatusCode: 200}},
	)

	first, err := adapter.Do(context.Background(), core.TransportRequest{
		Method: "POST",
		URL:    "https://api.example.test/messages",
	})
	if err != nil {
		t.Fatalf("first fake call: %v", err)
	}
	if first.StatusCode != 429 {
		t.Fatalf("expected first scripted status 429, got %d", first.StatusCode)
	}

	second, err := adapter.Do(context.Background(), core.TransportRequest{
		Method: "POST",
		URL:    "https://api.example.test/messages",
	})
	if err != nil {
		t.Fatalf("second fake call: %v", err)
	}
	if second.StatusCode != 200 {
		t.Fatalf("expected second scripted status 200, got %d", second.StatusCode)
	}

	if requests := adapter.Requests(); len(requests) != 2 {
		t.Fatalf("expected two captured requests, got %d", len(requests))
	}
}

func TestFakeTransportAdapter_ScriptsPerCarrier(t *testing.T) {
	adapter := NewFakeTransportAdapter("rest").
		ScriptCarrier("twilio", Throttled(9*time.Second)).
		ScriptCarrier("telnyx", Accepted(http.StatusOK, `{"data":{"id":"tx-1"}}`))

	sms, err := twilio.New(twilio.Config{AccountSID: "AC1", AuthToken: "t", From: "+15550000000", Transport: adapter})
	if err != nil {
		t.Fatalf("twilio provider: %v", err)
	}
	backup, err := telnyx.New(telnyx.Config{APIKey: "k", From: "+15550000000", Transport: adapter})
	if err != nil {
		t.Fatalf("telnyx provider: %v", err)
	}
	req := core.SendRequest{Channel: core.ChannelSMS, To: []string{"+15551234567"}, Body: "hi"}

	_, err = sms.Send(context.Background(), req)
	var sendErr *core.ProviderSendError
	if !errors.As(err, &sendErr) || sendErr.StatusCode != http.StatusTooManyRequests || sendErr.RetryAfter != 9*time.Second {
		t.Fatalf("expected throttled twilio send, got %v", err)
	}
	receipt, err := backup.Send(context.Background(), req)
	if err != nil || receipt.MessageID != "tx-1" {
		t.Fatalf("expected telnyx receipt, got %#v %v", receipt, err)
	}

	if got := len(adapter.RequestsFor("twilio")); got != 1 {
		t.Fatalf("expected one twilio call, got %d", got)
	}
	telnyxCalls := adapter.RequestsFor("Telnyx")
	if len(telnyxCalls) != 1 || telnyxCalls[0].Metadata["channel"] != "sms" {
		t.Fatalf("expected one tagged telnyx call, got %#v", telnyxCalls)
	}
	form, err := FormBody(adapter.RequestsFor("twilio")[0])
	if err != nil || form.Get("Body") != "hi" {
		t.Fatalf("expected twilio form body, got %v %v", form, err)
	}
}

func TestValidateTransportAdapterConformance(t *testing.T) {
	adapter := NewFakeTransportAdapter("rest")
	if err := ValidateTransportAdapterConformance(context.Background(), adapter, core.TransportRequest{
		Method: "GET",
		URL:    "https://api.example.test/health",
	}); err != nil {
		t.Fatalf("validate transport adapter conformance: %v", err)
	}
	if err := ValidateTransportAdapterConformance(context.Background(), NewFakeTransportAdapter(""), core.TransportRequest{}); err == nil {
		t.Fatalf("expected missing kind to fail conformance")
	}
}

func TestIdempotencyClaimStoreConformance(t *testing.T) {
	if err := ValidateIdempotencyClaimStoreConformance(context.Background(), inbound.NewInMemoryClaimStore(), "twilio:sms:SM1"); err != nil {
		t.Fatalf("validate idempotency claim store conformance: %v", err)
	}
}

func TestFakeProvider_ScriptsAndConformance(t *testing.T) {
	provider := NewFakeProvider("Primary", []core.Channel{core.ChannelSMS},
		SendScript{Err: errors.New("boom")},
		SendScript{Receipt: core.SendReceipt{MessageID: "m-2", StatusCode: 201}},
	)
	if provider.Name() != "primary" {
		t.Fatalf("expected lowercase name, got %q", provider.Name())
	}
	req := core.SendRequest{Channel: core.ChannelSMS, To: []string{"+15551234567"}, Body: "hi"}
	if _, err := provider.Send(context.Background(), req); err == nil {
		t.Fatalf("expected first scripted failure")
	}
	if err := ValidateProviderConformance(context.Background(), provider, req); err != nil {
		t.Fatalf("validate provider conformance: %v", err)
	}
	if provider.Calls() != 2 {
		t.Fatalf("expected two recorded calls, got %d", provider.Calls())
	}
	if err := ValidateProviderConformance(context.Background(), provider, core.SendRequest{Channel: core.ChannelEmail}); err == nil {
		t.Fatalf("expected unsupported channel to fail conformance")
	}
}

func TestCarrierProvidersOverFakeTransport(t *testing.T) {
	smsTransport := NewFakeTransportAdapter("rest", TransportScript{Response: core.TransportResponse{
		StatusCode: http.StatusCreated,
		Body:       []byte(`{"sid":"SM42"}`),
	}})
	sms, err := twilio.New(twilio.Config{AccountSID: "AC1", AuthToken: "t", From: "+15550000000", Transport: smsTransport})
	if err != nil {
		t.Fatalf("twilio provider: %v", err)
	}
	if err := ValidateProviderConformance(context.Background(), sms, core.SendRequest{
		Channel: core.ChannelSMS,
		To:      []string{"+15551234567"},
		Body:    "hi",
	}); err != nil {
		t.Fatalf("twilio conformance: %v", err)
	}
	last, ok := smsTransport.LastRequest()
	if !ok || last.Method != http.MethodPost || last.Headers["Content-Type"] != "application/x-www-form-urlencoded" {
		t.Fatalf("unexpected twilio request: %#v", last)
	}

	emailTransport := NewFakeTransportAdapter("rest", TransportScript{Response: core.TransportResponse{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"id":"<m@mg.example.com>"}`),
	}})
	email, err := mailgun.New(mailgun.Config{APIKey: "k", Domain: "mg.example.com", From: "support@mg.example.com", Transport: emailTransport})
	if err != nil {
		t.Fatalf("mailgun provider: %v", err)
	}
	if err := ValidateProviderConformance(context.Background(), email, core.SendRequest{
		Channel: core.ChannelEmail,
		To:      []string{"alice@example.com"},
		Subject: "hello",
		Body:    "hi",
	}); err != nil {
		t.Fatalf("mailgun conformance: %v", err)
	}
}

func TestWebhookFixturesNormalize(t *testing.T) {
	registry := payload.DefaultRegistry()
	fixtures := []core.InboundRequest{
		TwilioSMSWebhook("SM1", "+15551234567", "+15550000000", "hello", "https://example.com/a.jpg"),
		TwilioVoiceWebhook("CA1", "+15551234567", "+15550000000"),
		TelnyxSMSWebhook("msg-1", "+15551234567", "+15550000000", "hello"),
		MailgunEmailWebhook(EmailFixture{MessageID: "<a@example.com>", From: "alice@example.com", To: "support@example.com", Subject: "Hi", Body: "hello"}),
		SendGridEmailWebhook(EmailFixture{MessageID: "<b@example.com>", From: "alice@example.com", To: "support@example.com", Subject: "Hi", Body: "hello"}),
	}
	for _, fixture := range fixtures {
		msg, err := registry.Normalize(context.Background(), fixture.Channel, fixture.Carrier, fixture.Payload)
		if err != nil {
			t.Fatalf("normalize %s/%s fixture: %v", fixture.Carrier, fixture.Channel, err)
		}
		if msg.ExternalID == "" {
			t.Fatalf("expected external id for %s/%s fixture", fixture.Carrier, fixture.Channel)
		}
		if _, err := inbound.DefaultIdempotencyKeyExtractor(fixture); err != nil {
			t.Fatalf("expected idempotency key for %s/%s fixture: %v", fixture.Carrier, fixture.Channel, err)
		}
	}
}
