package security

import (
	"context"
	"strings"
	"testing"
)

func TestAppKeySecretProvider_SealOpenRoundTrip(t *testing.T) {
	provider, err := NewAppKeySecretProviderFromString("super-secret-test-key", WithKeyID("messaging-v1"), WithVersion(3))
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	sealed, err := provider.Seal(context.Background(), "AC-auth-token")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if strings.Contains(sealed, "AC-auth-token") {
		t.Fatalf("expected sealed value to hide plaintext")
	}
	if !IsSealed(sealed) {
		t.Fatalf("expected envelope prefix")
	}

	meta, err := ParseEnvelopeMetadata(sealed)
	if err != nil {
		t.Fatalf("parse metadata: %v", err)
	}
	if meta.KeyID != "messaging-v1" || meta.Version != 3 || meta.Algorithm != "aes-256-gcm" {
		t.Fatalf("unexpected metadata %+v", meta)
	}

	opened, err := provider.Open(context.Background(), sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if opened != "AC-auth-token" {
		t.Fatalf("expected roundtrip plaintext; got %q", opened)
	}
}

func TestAppKeySecretProvider_RejectsMetadataMismatch(t *testing.T) {
	issuer, err := NewAppKeySecretProviderFromString("super-secret-test-key", WithKeyID("messaging-v1"), WithVersion(1))
	if err != nil {
		t.Fatalf("new issuer provider: %v", err)
	}
	receiver, err := NewAppKeySecretProviderFromString("super-secret-test-key", WithKeyID("messaging-v2"), WithVersion(2))
	if err != nil {
		t.Fatalf("new receiver provider: %v", err)
	}

	sealed, err := issuer.Seal(context.Background(), "payload")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := receiver.Open(context.Background(), sealed); err == nil {
		t.Fatalf("expected metadata mismatch error")
	}
}

func TestAppKeySecretProvider_RejectsWrongKey(t *testing.T) {
	issuer, _ := NewAppKeySecretProviderFromString("key-one")
	receiver, _ := NewAppKeySecretProviderFromString("key-two")

	sealed, err := issuer.Seal(context.Background(), "payload")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := receiver.Open(context.Background(), sealed); err == nil {
		t.Fatalf("expected decrypt failure with wrong key")
	}
}

func TestNewAppKeySecretProvider_RequiresKey(t *testing.T) {
	if _, err := NewAppKeySecretProviderFromString("   "); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestResolveAll(t *testing.T) {
	provider, _ := NewAppKeySecretProviderFromString("resolver-key")
	sealed, err := provider.Seal(context.Background(), "sg-api-key")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	values := map[string]string{"sendgrid.api_key": sealed, "sendgrid.from": "support@example.com"}
	if err := ResolveAll(context.Background(), provider, values); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if values["sendgrid.api_key"] != "sg-api-key" || values["sendgrid.from"] != "support@example.com" {
		t.Fatalf("unexpected resolved values %+v", values)
	}

	if _, err := Resolve(context.Background(), nil, sealed); err == nil {
		t.Fatalf("expected sealed value without provider to fail")
	}
	if _, err := ParseEnvelopeMetadata("plain"); err == nil {
		t.Fatalf("expected missing prefix error")
	}
}
