// Package webhooks authenticates carrier webhooks before they reach the
// inbound dispatcher.
//
// Each carrier signs its callbacks differently: Twilio with HMAC-SHA1 over
// the request URL and sorted form fields, Mailgun with HMAC-SHA256 over a
// timestamp and token, Telnyx with an Ed25519 signature over the timestamp
// and body. CarrierVerifier selects the verifier registered for the carrier
// of each request.
package webhooks
