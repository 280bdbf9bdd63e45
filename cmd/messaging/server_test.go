package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	messaging "github.com/goliatone/go-messaging"
	"github.com/goliatone/go-messaging/core"
	"github.com/goliatone/go-messaging/inbound"
	"github.com/goliatone/go-messaging/providers/devkit"
	"github.com/goliatone/go-messaging/webhooks"
)

const (
	testCustomer = "+15551230001"
	testBusiness = "+15550001111"
)

func newTestServer(t *testing.T) (*httptest.Server, *devkit.FakeProvider) {
	t.Helper()

	cfg := messaging.DefaultConfig()
	cfg.Reply.Text = "Thanks, we got it."
	svc, err := messaging.SetupDefault(cfg)
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	provider := devkit.NewFakeProvider("twilio", []core.Channel{core.ChannelSMS})
	if err := svc.RegisterProvider(core.ChannelSMS, core.ProviderEntry{Name: "twilio", Priority: 1, Provider: provider}); err != nil {
		t.Fatalf("register provider: %v", err)
	}
	if _, err := svc.AddAllowlistEntry(context.Background(), core.AllowlistScopeSMS, testCustomer, "test"); err != nil {
		t.Fatalf("allowlist: %v", err)
	}

	verifier := webhooks.NewCarrierVerifierFromSecrets(webhooks.CarrierSecrets{TwilioAuthToken: "token"})
	dispatcher := inbound.NewDispatcher(verifier, inbound.NewInMemoryClaimStore())
	for _, handler := range inbound.ChannelHandlers(svc) {
		if err := dispatcher.Register(handler); err != nil {
			t.Fatalf("register handler: %v", err)
		}
	}
	server := &webhookServer{dispatcher: dispatcher, health: svc, logger: newLogger(LogConfig{Level: "error"})}
	ts := httptest.NewServer(server.routes())
	t.Cleanup(ts.Close)
	return ts, provider
}

func postTwilio(t *testing.T, ts *httptest.Server, form url.Values, signature string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/webhooks/sms/twilio", strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(webhooks.TwilioSignatureHeader, signature)
	res, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("post webhook: %v", err)
	}
	t.Cleanup(func() { _ = res.Body.Close() })
	return res
}

func twilioForm(sid string) url.Values {
	return url.Values{
		"MessageSid": {sid},
		"From":       {testCustomer},
		"To":         {testBusiness},
		"Body":       {"Where is my order?"},
	}
}

func sign(ts *httptest.Server, form url.Values) string {
	return base64.StdEncoding.EncodeToString(webhooks.TwilioSignature("token", ts.URL+"/webhooks/sms/twilio", form))
}

func TestWebhookServer_SignedTwilioSMSIsAnswered(t *testing.T) {
	ts, provider := newTestServer(t)
	form := twilioForm("SM1")

	res := postTwilio(t, ts, form, sign(ts, form))
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(res.Body)
		t.Fatalf("expected 200, got %d: %s", res.StatusCode, body)
	}
	var body webhookResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !body.AutoReplied || body.ConversationID == "" || body.MessageID == "" {
		t.Fatalf("unexpected response %+v", body)
	}
	requests := provider.Requests()
	if len(requests) != 1 || len(requests[0].To) != 1 || requests[0].To[0] != testCustomer {
		t.Fatalf("expected one reply to the customer, got %+v", requests)
	}

	retry := postTwilio(t, ts, form, sign(ts, form))
	var retried webhookResponse
	if err := json.NewDecoder(retry.Body).Decode(&retried); err != nil {
		t.Fatalf("decode retry: %v", err)
	}
	if retry.StatusCode != http.StatusOK || !retried.Deduped {
		t.Fatalf("expected deduped retry, got %d %+v", retry.StatusCode, retried)
	}
	if provider.Calls() != 1 {
		t.Fatalf("expected retry to skip the reply, got %d calls", provider.Calls())
	}
}

func TestWebhookServer_RejectsBadSignature(t *testing.T) {
	ts, provider := newTestServer(t)

	res := postTwilio(t, ts, twilioForm("SM2"), base64.StdEncoding.EncodeToString([]byte("forged")))
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}
	var body errorResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if body.Code != core.ServiceErrorUnauthorized {
		t.Fatalf("expected unauthorized code, got %+v", body)
	}
	if provider.Calls() != 0 {
		t.Fatalf("expected no reply for rejected webhook")
	}
}

func TestWebhookServer_UnknownChannelIsBadRequest(t *testing.T) {
	ts, _ := newTestServer(t)

	res, err := ts.Client().Post(ts.URL+"/webhooks/fax/twilio", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.StatusCode)
	}
}

func TestWebhookServer_Health(t *testing.T) {
	ts, provider := newTestServer(t)

	res, err := ts.Client().Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected healthy, got %d", res.StatusCode)
	}

	provider.HealthErr = io.ErrUnexpectedEOF
	degraded, err := ts.Client().Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	defer degraded.Body.Close()
	if degraded.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", degraded.StatusCode)
	}
}
