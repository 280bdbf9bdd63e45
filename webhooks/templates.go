package webhooks

import "strings"

const SendGridTokenHeader = "X-Messaging-Webhook-Token"

// CarrierSecrets holds the per-carrier webhook credentials. Empty values
// leave that carrier without a verifier.
type CarrierSecrets struct {
	TwilioAuthToken    string `koanf:"twilio_auth_token" json:"twilio_auth_token" yaml:"twilio_auth_token"`
	TelnyxPublicKey    string `koanf:"telnyx_public_key" json:"telnyx_public_key" yaml:"telnyx_public_key"`
	MailgunSigningKey  string `koanf:"mailgun_signing_key" json:"mailgun_signing_key" yaml:"mailgun_signing_key"`
	SendGridToken      string `koanf:"sendgrid_token" json:"sendgrid_token" yaml:"sendgrid_token"`
	AllowUnsignedHooks bool   `koanf:"allow_unsigned" json:"allow_unsigned" yaml:"allow_unsigned"`
}

func NewTwilioTemplate(authToken string) Verifier {
	return TwilioSignatureVerifier{AuthToken: authToken}
}

func NewTelnyxTemplate(publicKey string) Verifier {
	return TelnyxSignatureVerifier{PublicKey: publicKey, Tolerance: DefaultTolerance}
}

func NewMailgunTemplate(signingKey string) Verifier {
	return MailgunSignatureVerifier{SigningKey: signingKey, Tolerance: DefaultTolerance}
}

// NewSendGridTemplate verifies Inbound Parse posts by a shared token. The
// token is injected by the reverse proxy or configured as a custom header.
func NewSendGridTemplate(token string) Verifier {
	return HeaderTokenVerifier{Header: SendGridTokenHeader, Token: token}
}

func NewCarrierVerifierFromSecrets(secrets CarrierSecrets) *CarrierVerifier {
	verifier := NewCarrierVerifier()
	verifier.AllowUnsigned = secrets.AllowUnsignedHooks
	if value := strings.TrimSpace(secrets.TwilioAuthToken); value != "" {
		_ = verifier.Register("twilio", NewTwilioTemplate(value))
	}
	if value := strings.TrimSpace(secrets.TelnyxPublicKey); value != "" {
		_ = verifier.Register("telnyx", NewTelnyxTemplate(value))
	}
	if value := strings.TrimSpace(secrets.MailgunSigningKey); value != "" {
		_ = verifier.Register("mailgun", NewMailgunTemplate(value))
	}
	if value := strings.TrimSpace(secrets.SendGridToken); value != "" {
		_ = verifier.Register("sendgrid", NewSendGridTemplate(value))
	}
	return verifier
}
