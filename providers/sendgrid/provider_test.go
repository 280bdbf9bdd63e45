package sendgrid

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goliatone/go-messaging/core"
)

func TestProvider_SendReadsMessageIDHeader(t *testing.T) {
	var gotBody mailSend
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/v3/mail/send" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.Header().Set(MessageIDHeader, "sg-abc")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	provider, err := New(Config{APIKey: "SG.key", BaseURL: server.URL, From: "Support <support@example.com>"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	receipt, err := provider.Send(context.Background(), core.SendRequest{
		Channel:   core.ChannelEmail,
		To:        []string{"Alice <alice@example.com>"},
		Subject:   "Re: Hello",
		Body:      "plain",
		HTMLBody:  "<p>html</p>",
		InReplyTo: "<orig@example.com>",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if receipt.MessageID != "sg-abc" || receipt.StatusCode != http.StatusAccepted {
		t.Fatalf("unexpected receipt: %#v", receipt)
	}
	if gotAuth != "Bearer SG.key" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotBody.From.Email != "support@example.com" || gotBody.From.Name != "Support" {
		t.Fatalf("unexpected from: %#v", gotBody.From)
	}
	if len(gotBody.Personalizations) != 1 || gotBody.Personalizations[0].To[0].Email != "alice@example.com" {
		t.Fatalf("unexpected personalizations: %#v", gotBody.Personalizations)
	}
	if len(gotBody.Content) != 2 || gotBody.Content[0].Type != "text/plain" {
		t.Fatalf("unexpected content: %#v", gotBody.Content)
	}
	if gotBody.Headers["In-Reply-To"] != "<orig@example.com>" {
		t.Fatalf("unexpected headers: %#v", gotBody.Headers)
	}
}

func TestProvider_MissingHeaderFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	provider, err := New(Config{APIKey: "SG.key", BaseURL: server.URL, From: "support@example.com"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	_, err = provider.Send(context.Background(), core.SendRequest{
		Channel: core.ChannelEmail,
		To:      []string{"alice@example.com"},
		Body:    "plain",
	})
	var sendErr *core.ProviderSendError
	if !errors.As(err, &sendErr) || sendErr.StatusCode != http.StatusAccepted {
		t.Fatalf("expected provider send error with status, got %v", err)
	}
}

func TestProvider_RateLimitedResponseKeepsHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"errors":[{"message":"too many requests"}]}`))
	}))
	defer server.Close()

	provider, err := New(Config{APIKey: "SG.key", BaseURL: server.URL, From: "support@example.com"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	_, err = provider.Send(context.Background(), core.SendRequest{
		Channel: core.ChannelEmail,
		To:      []string{"alice@example.com"},
		Body:    "plain",
	})
	var sendErr *core.ProviderSendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("expected provider send error, got %v", err)
	}
	if sendErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("unexpected status %d", sendErr.StatusCode)
	}
	if got := sendErr.Headers["Retry-After"]; got != "3" {
		t.Fatalf("expected retry-after header, got %#v", sendErr.Headers)
	}
}
