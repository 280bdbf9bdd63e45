package payload

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/goliatone/go-messaging/core"
	"github.com/goliatone/go-messaging/identity"
)

// emailParts is the carrier independent view both email parsers fill in.
type emailParts struct {
	headers      map[string]string
	trackingID   string
	from         string
	to           string
	cc           string
	subject      string
	textBody     string
	strippedText string
	htmlBody     string
	inReplyTo    string
	references   string
	attachments  []core.EmailAttachment
	extra        map[string]string
}

// build resolves the message id, preferring the Message-Id in the header
// block since that is what mail clients thread against.
func (p emailParts) build(carrier string) (Envelope, error) {
	messageID := strings.TrimSpace(p.headers["message-id"])
	if messageID == "" {
		messageID = strings.TrimSpace(p.trackingID)
	}
	if messageID == "" {
		return Envelope{}, core.NewMalformedPayloadError(carrier, core.ChannelEmail, "Message-Id")
	}
	from := identity.NormalizeEmail(firstNonEmpty(p.from, p.headers["from"]))
	if from == "" {
		return Envelope{}, core.NewMalformedPayloadError(carrier, core.ChannelEmail, "from")
	}
	recipients := identity.NormalizeEmailList(firstNonEmpty(p.to, p.headers["to"]))
	if len(recipients) == 0 {
		return Envelope{}, core.NewMalformedPayloadError(carrier, core.ChannelEmail, "to")
	}

	cc := identity.NormalizeEmailList(firstNonEmpty(p.cc, p.headers["cc"]))
	// additional To recipients are third parties just like CC
	cc = append(cc, recipients[1:]...)

	body := strings.TrimSpace(p.strippedText)
	if body == "" {
		body = strings.TrimSpace(p.textBody)
	}

	email := &Email{
		MessageID:  messageID,
		From:       from,
		To:         recipients[0],
		Body:       body,
		ReceivedAt: headerDate(p.headers["date"]),
		Metadata: core.EmailMetadata{
			TrackingID:  strings.TrimSpace(p.trackingID),
			Subject:     strings.TrimSpace(firstNonEmpty(p.subject, p.headers["subject"])),
			Headers:     p.headers,
			TextBody:    p.textBody,
			HTMLBody:    p.htmlBody,
			CC:          compact(cc),
			InReplyTo:   strings.TrimSpace(firstNonEmpty(p.inReplyTo, p.headers["in-reply-to"])),
			References:  splitReferences(firstNonEmpty(p.references, p.headers["references"])),
			Attachments: p.attachments,
		},
		Extra: p.extra,
	}
	return Envelope{Channel: core.ChannelEmail, Carrier: carrier, Email: email}, nil
}

// parseHeaderBlock reads a raw RFC 5322 header block into lower-cased keys.
func parseHeaderBlock(block string) map[string]string {
	block = strings.TrimSpace(block)
	if block == "" {
		return map[string]string{}
	}
	block = strings.ReplaceAll(block, "\r\n", "\n")
	msg, err := mail.ReadMessage(strings.NewReader(strings.ReplaceAll(block, "\n", "\r\n") + "\r\n\r\n"))
	if err != nil {
		return parseHeaderLines(block)
	}
	headers := make(map[string]string, len(msg.Header))
	for key, values := range msg.Header {
		headers[strings.ToLower(key)] = strings.Join(values, "\n")
	}
	return headers
}

// parseHeaderLines is the lenient fallback for blocks net/mail rejects.
func parseHeaderLines(block string) map[string]string {
	headers := map[string]string{}
	last := ""
	for _, line := range strings.Split(block, "\n") {
		if line == "" {
			continue
		}
		if (line[0] == ' ' || line[0] == '\t') && last != "" {
			headers[last] += " " + strings.TrimSpace(line)
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		last = strings.ToLower(strings.TrimSpace(key))
		if existing, found := headers[last]; found {
			headers[last] = existing + "\n" + strings.TrimSpace(value)
			continue
		}
		headers[last] = strings.TrimSpace(value)
	}
	return headers
}

func headerDate(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	date, err := mail.ParseDate(value)
	if err != nil {
		return time.Time{}
	}
	return date.UTC()
}

// fileAttachments reads declared attachment parts named prefix1..prefixN.
func fileAttachments(raw Raw, prefix string, count int) []core.EmailAttachment {
	if count <= 0 {
		return nil
	}
	if count > MaxEmailAttachments {
		count = MaxEmailAttachments
	}
	var out []core.EmailAttachment
	for i := 1; i <= count; i++ {
		file, ok := raw.Files[fmt.Sprintf("%s%d", prefix, i)]
		if !ok {
			continue
		}
		out = append(out, core.EmailAttachment{
			Filename:    file.Filename,
			ContentType: file.ContentType,
			Size:        file.Size,
		})
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	seen := map[string]struct{}{}
	for _, value := range values {
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
