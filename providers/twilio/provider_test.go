package twilio

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goliatone/go-messaging/core"
)

func TestProvider_SendPostsFormWithBasicAuth(t *testing.T) {
	var gotPath, gotUser, gotPass string
	var gotForm map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM123","status":"queued"}`))
	}))
	defer server.Close()

	provider, err := New(Config{AccountSID: "AC1", AuthToken: "secret", BaseURL: server.URL, From: "+15550000000"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	receipt, err := provider.Send(context.Background(), core.SendRequest{
		Channel:   core.ChannelSMS,
		To:        []string{"+15551234567"},
		Body:      "hello",
		MediaURLs: []string{"https://example.com/a.png"},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if receipt.MessageID != "SM123" || receipt.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected receipt: %#v", receipt)
	}
	if gotPath != "/2010-04-01/Accounts/AC1/Messages.json" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotUser != "AC1" || gotPass != "secret" {
		t.Fatalf("unexpected basic auth %q/%q", gotUser, gotPass)
	}
	if gotForm["From"][0] != "+15550000000" || gotForm["To"][0] != "+15551234567" || gotForm["Body"][0] != "hello" {
		t.Fatalf("unexpected form: %#v", gotForm)
	}
	if len(gotForm["MediaUrl"]) != 1 {
		t.Fatalf("expected media url in form: %#v", gotForm)
	}
}

func TestProvider_ErrorStatusBecomesProviderSendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"The 'To' number is not a valid phone number."}`))
	}))
	defer server.Close()

	provider, err := New(Config{AccountSID: "AC1", AuthToken: "secret", BaseURL: server.URL, From: "+15550000000"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	_, err = provider.Send(context.Background(), core.SendRequest{
		Channel: core.ChannelSMS,
		To:      []string{"bogus"},
		Body:    "hello",
	})
	var sendErr *core.ProviderSendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("expected provider send error, got %v", err)
	}
	if sendErr.StatusCode != http.StatusBadRequest || sendErr.Provider != ProviderName {
		t.Fatalf("unexpected send error: %#v", sendErr)
	}
}

func TestProvider_ThrottledSendCarriesRetryAfter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"code":20429,"message":"Too Many Requests"}`))
	}))
	defer server.Close()

	provider, err := New(Config{AccountSID: "AC1", AuthToken: "secret", BaseURL: server.URL, From: "+15550000000"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	_, err = provider.Send(context.Background(), core.SendRequest{
		Channel: core.ChannelSMS,
		To:      []string{"+15551234567"},
		Body:    "hello",
	})
	var sendErr *core.ProviderSendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("expected provider send error, got %v", err)
	}
	if sendErr.RetryAfter != 7*time.Second {
		t.Fatalf("expected 7s retry hint, got %s", sendErr.RetryAfter)
	}
	if got := sendErr.ToServiceError().Metadata["retry_after_ms"]; got != int64(7000) {
		t.Fatalf("expected retry hint in service error metadata, got %#v", got)
	}
}

func TestProvider_RejectsMultipleRecipients(t *testing.T) {
	provider, err := New(Config{AccountSID: "AC1", AuthToken: "secret", From: "+15550000000"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	_, err = provider.Send(context.Background(), core.SendRequest{
		Channel: core.ChannelSMS,
		To:      []string{"+15551111111", "+15552222222"},
		Body:    "hello",
	})
	if err == nil {
		t.Fatalf("expected error for multiple recipients")
	}
}

func TestProvider_HealthCheckFetchesAccount(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	provider, err := New(Config{AccountSID: "AC1", AuthToken: "secret", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if err := provider.HealthCheck(context.Background()); err != nil {
		t.Fatalf("health check: %v", err)
	}
	if gotPath != "/2010-04-01/Accounts/AC1.json" {
		t.Fatalf("unexpected health path %q", gotPath)
	}
}

func TestNew_RequiresCredentials(t *testing.T) {
	if _, err := New(Config{AccountSID: "AC1"}); err == nil {
		t.Fatalf("expected error without auth token")
	}
}
