package webhooks

import (
	"context"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"testing"
	"time"

	"github.com/goliatone/go-messaging/core"
)

func TestHeaderHMACVerifier(t *testing.T) {
	body := []byte(`{"data":{"id":"evt_1"}}`)
	mac := hmac.New(sha256.New, []byte("secret"))
	_, _ = mac.Write(body)
	signature := hex.EncodeToString(mac.Sum(nil))

	verifier := HeaderHMACVerifier{Header: "X-Signature", Prefix: "sha256=", Secret: "secret"}
	req := core.InboundRequest{
		Headers: map[string]string{"x-signature": "sha256=" + signature},
		Payload: core.RawPayload{JSON: body},
	}
	if err := verifier.Verify(context.Background(), req); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}

	req.Payload.JSON = []byte(`{"data":{"id":"evt_2"}}`)
	if err := verifier.Verify(context.Background(), req); err == nil {
		t.Fatalf("expected tampered body to fail")
	}
}

func TestHeaderTokenVerifier(t *testing.T) {
	verifier := HeaderTokenVerifier{Header: SendGridTokenHeader, Token: "tok"}
	ok := core.InboundRequest{Headers: map[string]string{SendGridTokenHeader: "tok"}}
	if err := verifier.Verify(context.Background(), ok); err != nil {
		t.Fatalf("expected token match, got %v", err)
	}
	bad := core.InboundRequest{Headers: map[string]string{SendGridTokenHeader: "nope"}}
	if err := verifier.Verify(context.Background(), bad); err == nil {
		t.Fatalf("expected token mismatch")
	}
	if err := verifier.Verify(context.Background(), core.InboundRequest{}); err == nil {
		t.Fatalf("expected missing header error")
	}
}

func TestTwilioSignatureVerifier(t *testing.T) {
	fields := map[string][]string{
		"To":         {"+15550000001"},
		"From":       {"+15550000002"},
		"Body":       {"hello"},
		"MessageSid": {"SM1"},
	}
	requestURL := "https://example.com/webhooks/sms/twilio"
	signature := base64.StdEncoding.EncodeToString(TwilioSignature("token", requestURL, fields))

	req := core.InboundRequest{
		Carrier:  "twilio",
		Headers:  map[string]string{TwilioSignatureHeader: signature},
		Payload:  core.RawPayload{Fields: fields},
		Metadata: map[string]any{MetadataRequestURL: requestURL},
	}
	verifier := TwilioSignatureVerifier{AuthToken: "token"}
	if err := verifier.Verify(context.Background(), req); err != nil {
		t.Fatalf("expected valid twilio signature, got %v", err)
	}

	req.Metadata = map[string]any{MetadataRequestURL: "https://example.com/other"}
	if err := verifier.Verify(context.Background(), req); err == nil {
		t.Fatalf("expected url mismatch to fail")
	}

	req.Metadata = nil
	if err := verifier.Verify(context.Background(), req); err == nil {
		t.Fatalf("expected missing request url to fail")
	}
}

func TestMailgunSignatureVerifier(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	timestamp := strconv.FormatInt(now.Unix(), 10)
	mac := hmac.New(sha256.New, []byte("key"))
	_, _ = mac.Write([]byte(timestamp + "tok"))
	signature := hex.EncodeToString(mac.Sum(nil))

	verifier := MailgunSignatureVerifier{SigningKey: "key", Now: func() time.Time { return now }}
	form := core.InboundRequest{Payload: core.RawPayload{Fields: map[string][]string{
		"timestamp": {timestamp},
		"token":     {"tok"},
		"signature": {signature},
	}}}
	if err := verifier.Verify(context.Background(), form); err != nil {
		t.Fatalf("expected form signature valid, got %v", err)
	}

	event := core.InboundRequest{Payload: core.RawPayload{JSON: []byte(
		`{"signature":{"timestamp":"` + timestamp + `","token":"tok","signature":"` + signature + `"}}`,
	)}}
	if err := verifier.Verify(context.Background(), event); err != nil {
		t.Fatalf("expected json signature valid, got %v", err)
	}

	stale := MailgunSignatureVerifier{SigningKey: "key", Now: func() time.Time { return now.Add(time.Hour) }}
	if err := stale.Verify(context.Background(), form); err == nil {
		t.Fatalf("expected stale timestamp to fail")
	}
}

func TestTelnyxSignatureVerifier(t *testing.T) {
	public, private, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	now := time.Unix(1_700_000_000, 0)
	timestamp := strconv.FormatInt(now.Unix(), 10)
	body := []byte(`{"data":{"id":"evt_1","event_type":"message.received"}}`)
	signature := ed25519.Sign(private, append([]byte(timestamp+"|"), body...))

	verifier := TelnyxSignatureVerifier{
		PublicKey: base64.StdEncoding.EncodeToString(public),
		Now:       func() time.Time { return now },
	}
	req := core.InboundRequest{
		Headers: map[string]string{
			"telnyx-signature-ed25519": base64.StdEncoding.EncodeToString(signature),
			"telnyx-timestamp":         timestamp,
		},
		Payload: core.RawPayload{JSON: body},
	}
	if err := verifier.Verify(context.Background(), req); err != nil {
		t.Fatalf("expected valid telnyx signature, got %v", err)
	}

	req.Payload.JSON = []byte(`{"data":{"id":"evt_2"}}`)
	if err := verifier.Verify(context.Background(), req); err == nil {
		t.Fatalf("expected tampered body to fail")
	}

	if err := (TelnyxSignatureVerifier{PublicKey: "short"}).Verify(context.Background(), req); err == nil {
		t.Fatalf("expected invalid public key to fail")
	}
}

func TestCarrierVerifierSelectsByCarrier(t *testing.T) {
	verifier := NewCarrierVerifierFromSecrets(CarrierSecrets{SendGridToken: "tok"})
	if got := verifier.Carriers(); len(got) != 1 || got[0] != "sendgrid" {
		t.Fatalf("expected only sendgrid registered, got %v", got)
	}

	signed := core.InboundRequest{Carrier: "SendGrid", Headers: map[string]string{SendGridTokenHeader: "tok"}}
	if err := verifier.Verify(context.Background(), signed); err != nil {
		t.Fatalf("expected sendgrid request accepted, got %v", err)
	}
	if err := verifier.Verify(context.Background(), core.InboundRequest{Carrier: "twilio"}); err == nil {
		t.Fatalf("expected unknown carrier rejected")
	}

	verifier.AllowUnsigned = true
	if err := verifier.Verify(context.Background(), core.InboundRequest{Carrier: "twilio"}); err != nil {
		t.Fatalf("expected unsigned carrier allowed, got %v", err)
	}
	if err := verifier.Register("", HeaderTokenVerifier{}); err == nil {
		t.Fatalf("expected empty carrier rejected")
	}
	if err := verifier.Register("twilio", nil); err == nil {
		t.Fatalf("expected nil verifier rejected")
	}
}
