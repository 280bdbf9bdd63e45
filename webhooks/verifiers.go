package webhooks

import (
	"context"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-messaging/core"
)

const (
	MetadataRequestURL = "request_url"

	TwilioSignatureHeader = "X-Twilio-Signature"
	TelnyxSignatureHeader = "Telnyx-Signature-Ed25519"
	TelnyxTimestampHeader = "Telnyx-Timestamp"

	DefaultTolerance = 5 * time.Minute
)

type Verifier interface {
	Verify(ctx context.Context, req core.InboundRequest) error
}

// HeaderHMACVerifier checks an HMAC-SHA256 of the raw JSON body carried in a
// header.
type HeaderHMACVerifier struct {
	Header   string
	Prefix   string
	Secret   string
	Encoding string // hex | base64
}

func (v HeaderHMACVerifier) Verify(_ context.Context, req core.InboundRequest) error {
	header := strings.TrimSpace(headerValue(req.Headers, v.Header))
	if header == "" {
		return fmt.Errorf("webhooks: %s signature header is required", strings.TrimSpace(v.Header))
	}
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return fmt.Errorf("webhooks: signature secret is required")
	}
	signature := strings.TrimSpace(strings.TrimPrefix(header, strings.TrimSpace(v.Prefix)))
	if signature == "" {
		return fmt.Errorf("webhooks: signature value is required")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(req.Payload.JSON)
	expected := mac.Sum(nil)

	decoded, err := decodeSignature(signature, v.Encoding)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(decoded, expected) != 1 {
		return fmt.Errorf("webhooks: signature verification failed")
	}
	return nil
}

type HeaderTokenVerifier struct {
	Header string
	Token  string
}

func (v HeaderTokenVerifier) Verify(_ context.Context, req core.InboundRequest) error {
	expected := strings.TrimSpace(v.Token)
	if expected == "" {
		return fmt.Errorf("webhooks: verification token is required")
	}
	actual := strings.TrimSpace(headerValue(req.Headers, v.Header))
	if actual == "" {
		return fmt.Errorf("webhooks: %s verification header is required", strings.TrimSpace(v.Header))
	}
	if subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) != 1 {
		return fmt.Errorf("webhooks: verification token mismatch")
	}
	return nil
}

// TwilioSignatureVerifier validates X-Twilio-Signature. The public URL
// Twilio called must be supplied in the request_url metadata entry.
type TwilioSignatureVerifier struct {
	AuthToken string
}

func (v TwilioSignatureVerifier) Verify(_ context.Context, req core.InboundRequest) error {
	token := strings.TrimSpace(v.AuthToken)
	if token == "" {
		return fmt.Errorf("webhooks: twilio auth token is required")
	}
	signature := strings.TrimSpace(headerValue(req.Headers, TwilioSignatureHeader))
	if signature == "" {
		return fmt.Errorf("webhooks: %s header is required", TwilioSignatureHeader)
	}
	requestURL := metadataString(req.Metadata, MetadataRequestURL)
	if requestURL == "" {
		return fmt.Errorf("webhooks: request url is required for twilio signatures")
	}
	decoded, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("webhooks: decode twilio signature: %w", err)
	}
	if !hmac.Equal(decoded, TwilioSignature(token, requestURL, req.Payload.Fields)) {
		return fmt.Errorf("webhooks: twilio signature verification failed")
	}
	return nil
}

// TwilioSignature computes the raw HMAC-SHA1 Twilio sends for a form POST.
func TwilioSignature(authToken string, requestURL string, fields map[string][]string) []byte {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var data strings.Builder
	data.WriteString(requestURL)
	for _, key := range keys {
		for _, value := range fields[key] {
			data.WriteString(key)
			data.WriteString(value)
		}
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	_, _ = mac.Write([]byte(data.String()))
	return mac.Sum(nil)
}

// MailgunSignatureVerifier validates the timestamp, token and signature
// fields Mailgun adds to routes and event webhooks.
type MailgunSignatureVerifier struct {
	SigningKey string
	Tolerance  time.Duration
	Now        func() time.Time
}

type mailgunSignature struct {
	Timestamp string `json:"timestamp"`
	Token     string `json:"token"`
	Signature string `json:"signature"`
}

func (v MailgunSignatureVerifier) Verify(_ context.Context, req core.InboundRequest) error {
	key := strings.TrimSpace(v.SigningKey)
	if key == "" {
		return fmt.Errorf("webhooks: mailgun signing key is required")
	}
	sig := mailgunSignature{
		Timestamp: req.Payload.Field("timestamp"),
		Token:     req.Payload.Field("token"),
		Signature: req.Payload.Field("signature"),
	}
	if sig.Signature == "" && len(req.Payload.JSON) > 0 {
		var body struct {
			Signature mailgunSignature `json:"signature"`
		}
		if err := json.Unmarshal(req.Payload.JSON, &body); err == nil {
			sig = body.Signature
		}
	}
	if sig.Timestamp == "" || sig.Token == "" || sig.Signature == "" {
		return fmt.Errorf("webhooks: mailgun timestamp, token and signature are required")
	}
	if err := checkTimestamp(sig.Timestamp, v.Tolerance, v.Now); err != nil {
		return err
	}

	mac := hmac.New(sha256.New, []byte(key))
	_, _ = mac.Write([]byte(sig.Timestamp + sig.Token))
	decoded, err := hex.DecodeString(strings.TrimSpace(sig.Signature))
	if err != nil {
		return fmt.Errorf("webhooks: decode mailgun signature: %w", err)
	}
	if !hmac.Equal(decoded, mac.Sum(nil)) {
		return fmt.Errorf("webhooks: mailgun signature verification failed")
	}
	return nil
}

// TelnyxSignatureVerifier validates the Ed25519 signature Telnyx computes
// over "timestamp|body" with the account public key.
type TelnyxSignatureVerifier struct {
	PublicKey string // base64
	Tolerance time.Duration
	Now       func() time.Time
}

func (v TelnyxSignatureVerifier) Verify(_ context.Context, req core.InboundRequest) error {
	publicKey, err := base64.StdEncoding.DecodeString(strings.TrimSpace(v.PublicKey))
	if err != nil || len(publicKey) != ed25519.PublicKeySize {
		return fmt.Errorf("webhooks: telnyx public key must be a base64 ed25519 key")
	}
	signature := strings.TrimSpace(headerValue(req.Headers, TelnyxSignatureHeader))
	timestamp := strings.TrimSpace(headerValue(req.Headers, TelnyxTimestampHeader))
	if signature == "" || timestamp == "" {
		return fmt.Errorf("webhooks: %s and %s headers are required", TelnyxSignatureHeader, TelnyxTimestampHeader)
	}
	if err := checkTimestamp(timestamp, v.Tolerance, v.Now); err != nil {
		return err
	}
	decoded, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("webhooks: decode telnyx signature: %w", err)
	}
	message := append([]byte(timestamp+"|"), req.Payload.JSON...)
	if !ed25519.Verify(ed25519.PublicKey(publicKey), message, decoded) {
		return fmt.Errorf("webhooks: telnyx signature verification failed")
	}
	return nil
}

// CarrierVerifier dispatches to the verifier registered for req.Carrier.
// Carriers without a verifier are rejected unless AllowUnsigned is set.
type CarrierVerifier struct {
	AllowUnsigned bool

	mu        sync.RWMutex
	verifiers map[string]Verifier
}

func NewCarrierVerifier() *CarrierVerifier {
	return &CarrierVerifier{verifiers: map[string]Verifier{}}
}

func (v *CarrierVerifier) Register(carrier string, verifier Verifier) error {
	carrier = strings.TrimSpace(strings.ToLower(carrier))
	if carrier == "" {
		return fmt.Errorf("webhooks: carrier is required")
	}
	if verifier == nil {
		return fmt.Errorf("webhooks: verifier for %q is required", carrier)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.verifiers == nil {
		v.verifiers = map[string]Verifier{}
	}
	v.verifiers[carrier] = verifier
	return nil
}

func (v *CarrierVerifier) Carriers() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]string, 0, len(v.verifiers))
	for carrier := range v.verifiers {
		out = append(out, carrier)
	}
	sort.Strings(out)
	return out
}

func (v *CarrierVerifier) Verify(ctx context.Context, req core.InboundRequest) error {
	carrier := strings.TrimSpace(strings.ToLower(req.Carrier))
	v.mu.RLock()
	verifier, ok := v.verifiers[carrier]
	v.mu.RUnlock()
	if !ok {
		if v.AllowUnsigned {
			return nil
		}
		return fmt.Errorf("webhooks: no verifier registered for carrier %q", carrier)
	}
	return verifier.Verify(ctx, req)
}

func checkTimestamp(raw string, tolerance time.Duration, now func() time.Time) error {
	seconds, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("webhooks: invalid signature timestamp %q", raw)
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	current := time.Now().UTC()
	if now != nil {
		current = now().UTC()
	}
	delta := current.Sub(time.Unix(seconds, 0).UTC())
	if delta < 0 {
		delta = -delta
	}
	if delta > tolerance {
		return fmt.Errorf("webhooks: signature timestamp outside tolerance")
	}
	return nil
}

func decodeSignature(signature string, encoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		decoded, err := base64.StdEncoding.DecodeString(signature)
		if err != nil {
			return nil, fmt.Errorf("webhooks: decode base64 signature: %w", err)
		}
		return decoded, nil
	default:
		decoded, err := hex.DecodeString(signature)
		if err != nil {
			return nil, fmt.Errorf("webhooks: decode hex signature: %w", err)
		}
		return decoded, nil
	}
}

func metadataString(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, ok := metadata[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

var (
	_ Verifier = HeaderHMACVerifier{}
	_ Verifier = HeaderTokenVerifier{}
	_ Verifier = TwilioSignatureVerifier{}
	_ Verifier = MailgunSignatureVerifier{}
	_ Verifier = TelnyxSignatureVerifier{}
	_ Verifier = (*CarrierVerifier)(nil)
)
