package devkit

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-messaging/core"
)

// TwilioSMSWebhook builds the form a Twilio Messaging webhook posts.
func TwilioSMSWebhook(messageSid, from, to, body string, media ...string) core.InboundRequest {
	fields := map[string][]string{
		"MessageSid": {messageSid},
		"SmsSid":     {messageSid},
		"AccountSid": {"AC00000000000000000000000000000000"},
		"From":       {from},
		"To":         {to},
		"Body":       {body},
		"NumMedia":   {strconv.Itoa(len(media))},
		"ApiVersion": {"2010-04-01"},
	}
	for i, url := range media {
		fields["MediaUrl"+strconv.Itoa(i)] = []string{url}
		fields["MediaContentType"+strconv.Itoa(i)] = []string{"image/jpeg"}
	}
	return core.InboundRequest{
		Carrier: "twilio",
		Channel: core.ChannelSMS,
		Payload: core.RawPayload{Fields: fields},
	}
}

// TwilioVoiceWebhook builds an incoming call status callback.
func TwilioVoiceWebhook(callSid, from, to string) core.InboundRequest {
	return core.InboundRequest{
		Carrier: "twilio",
		Channel: core.ChannelVoice,
		Payload: core.RawPayload{Fields: map[string][]string{
			"CallSid":    {callSid},
			"From":       {from},
			"To":         {to},
			"CallStatus": {"ringing"},
			"Direction":  {"inbound"},
		}},
	}
}

// TelnyxSMSWebhook builds a message.received event.
func TelnyxSMSWebhook(messageID, from, to, text string) core.InboundRequest {
	event := map[string]any{
		"data": map[string]any{
			"id":          "evt-" + messageID,
			"event_type":  "message.received",
			"occurred_at": time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Format(time.RFC3339),
			"payload": map[string]any{
				"id":        messageID,
				"direction": "inbound",
				"type":      "SMS",
				"text":      text,
				"parts":     1,
				"from":      map[string]any{"phone_number": from},
				"to":        []map[string]any{{"phone_number": to}},
			},
		},
	}
	body, _ := json.Marshal(event)
	return core.InboundRequest{
		Carrier: "telnyx",
		Channel: core.ChannelSMS,
		Payload: core.RawPayload{JSON: body},
	}
}

type EmailFixture struct {
	MessageID  string
	From       string
	To         string
	Cc         string
	Subject    string
	Body       string
	InReplyTo  string
	References []string
}

// MailgunEmailWebhook builds a Mailgun route forward.
func MailgunEmailWebhook(email EmailFixture) core.InboundRequest {
	fields := map[string][]string{
		"Message-Id": {email.MessageID},
		"recipient":  {email.To},
		"To":         {email.To},
		"sender":     {email.From},
		"from":       {email.From},
		"subject":    {email.Subject},
		"body-plain": {email.Body},
		"timestamp":  {"1772366400"},
	}
	if email.Cc != "" {
		fields["Cc"] = []string{email.Cc}
	}
	if email.InReplyTo != "" {
		fields["In-Reply-To"] = []string{email.InReplyTo}
	}
	if len(email.References) > 0 {
		fields["References"] = []string{strings.Join(email.References, " ")}
	}
	return core.InboundRequest{
		Carrier: "mailgun",
		Channel: core.ChannelEmail,
		Payload: core.RawPayload{Fields: fields},
	}
}

// SendGridEmailWebhook builds an Inbound Parse post.
func SendGridEmailWebhook(email EmailFixture) core.InboundRequest {
	headers := []string{
		"Message-ID: " + email.MessageID,
		"From: " + email.From,
		"To: " + email.To,
		"Subject: " + email.Subject,
	}
	if email.InReplyTo != "" {
		headers = append(headers, "In-Reply-To: "+email.InReplyTo)
	}
	if len(email.References) > 0 {
		headers = append(headers, "References: "+strings.Join(email.References, " "))
	}
	fields := map[string][]string{
		"headers": {strings.Join(headers, "\n")},
		"from":    {email.From},
		"to":      {email.To},
		"subject": {email.Subject},
		"text":    {email.Body},
	}
	if email.Cc != "" {
		fields["cc"] = []string{email.Cc}
	}
	return core.InboundRequest{
		Carrier: "sendgrid",
		Channel: core.ChannelEmail,
		Payload: core.RawPayload{Fields: fields},
	}
}
