package payload

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-messaging/core"
)

const CarrierMailgun = "mailgun"

var mailgunHeaderFields = map[string]string{
	"Message-Id":  "message-id",
	"From":        "from",
	"To":          "to",
	"Cc":          "cc",
	"Subject":     "subject",
	"Date":        "date",
	"In-Reply-To": "in-reply-to",
	"References":  "references",
}

// MailgunEmailParser reads the form payload Mailgun routes post.
type MailgunEmailParser struct{}

func (MailgunEmailParser) Carrier() string { return CarrierMailgun }

func (MailgunEmailParser) Channel() core.Channel { return core.ChannelEmail }

func (MailgunEmailParser) Validate(raw Raw) error {
	if err := requireFields(CarrierMailgun, core.ChannelEmail, raw, "recipient"); err != nil {
		return err
	}
	if firstField(raw, "from", "sender") == "" {
		return core.NewMalformedPayloadError(CarrierMailgun, core.ChannelEmail, "sender")
	}
	if firstField(raw, "Message-Id", "message-headers") == "" {
		return core.NewMalformedPayloadError(CarrierMailgun, core.ChannelEmail, "Message-Id")
	}
	return nil
}

func (p MailgunEmailParser) Parse(raw Raw) (Envelope, error) {
	if err := p.Validate(raw); err != nil {
		return Envelope{}, err
	}
	headers := mailgunHeaders(raw.Field("message-headers"))
	for field, key := range mailgunHeaderFields {
		if _, ok := headers[key]; ok {
			continue
		}
		if value := strings.TrimSpace(raw.Field(field)); value != "" {
			headers[key] = value
		}
	}

	parts := emailParts{
		headers:      headers,
		trackingID:   firstNonEmpty(raw.Field("X-Mailgun-Sid"), headers["x-mailgun-sid"]),
		from:         firstField(raw, "from", "sender"),
		to:           firstField(raw, "recipient", "To"),
		cc:           raw.Field("Cc"),
		subject:      raw.Field("subject"),
		textBody:     raw.Field("body-plain"),
		strippedText: raw.Field("stripped-text"),
		htmlBody:     raw.Field("body-html"),
		inReplyTo:    raw.Field("In-Reply-To"),
		references:   raw.Field("References"),
		attachments:  fileAttachments(raw, "attachment-", boundedCount(raw.Field("attachment-count"), MaxEmailAttachments)),
		extra:        extraFields(raw, "sender", "X-Envelope-From", "X-Mailgun-Variables"),
	}
	envelope, err := parts.build(CarrierMailgun)
	if err != nil {
		return Envelope{}, err
	}
	if ts, err := strconv.ParseInt(strings.TrimSpace(raw.Field("timestamp")), 10, 64); err == nil && ts > 0 {
		envelope.Email.ReceivedAt = time.Unix(ts, 0).UTC()
	}
	return envelope, nil
}

// mailgunHeaders decodes the JSON list of [name, value] pairs.
func mailgunHeaders(encoded string) map[string]string {
	headers := map[string]string{}
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return headers
	}
	var pairs [][]string
	if err := json.Unmarshal([]byte(encoded), &pairs); err != nil {
		return headers
	}
	for _, pair := range pairs {
		if len(pair) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(pair[0]))
		if key == "" {
			continue
		}
		if existing, ok := headers[key]; ok {
			headers[key] = existing + "\n" + strings.TrimSpace(pair[1])
			continue
		}
		headers[key] = strings.TrimSpace(pair[1])
	}
	return headers
}
