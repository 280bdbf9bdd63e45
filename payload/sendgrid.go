package payload

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/goliatone/go-messaging/core"
)

const CarrierSendGrid = "sendgrid"

type sendgridAttachmentInfo struct {
	Filename string `json:"filename"`
	Name     string `json:"name"`
	Type     string `json:"type"`
}

// SendGridEmailParser reads the Inbound Parse multipart form, which carries
// the raw header block in the headers field.
type SendGridEmailParser struct{}

func (SendGridEmailParser) Carrier() string { return CarrierSendGrid }

func (SendGridEmailParser) Channel() core.Channel { return core.ChannelEmail }

func (SendGridEmailParser) Validate(raw Raw) error {
	return requireFields(CarrierSendGrid, core.ChannelEmail, raw, "headers", "from", "to")
}

func (p SendGridEmailParser) Parse(raw Raw) (Envelope, error) {
	if err := p.Validate(raw); err != nil {
		return Envelope{}, err
	}
	headers := parseHeaderBlock(raw.Field("headers"))
	parts := emailParts{
		headers:     headers,
		trackingID:  firstNonEmpty(raw.Headers["X-Message-Id"], raw.Field("message_id")),
		from:        raw.Field("from"),
		to:          raw.Field("to"),
		cc:          raw.Field("cc"),
		subject:     raw.Field("subject"),
		textBody:    raw.Field("text"),
		htmlBody:    raw.Field("html"),
		attachments: sendgridAttachments(raw),
		extra:       extraFields(raw, "envelope", "SPF", "dkim", "spam_score"),
	}
	return parts.build(CarrierSendGrid)
}

// sendgridAttachments prefers attachment-info metadata and falls back to
// the multipart file parts.
func sendgridAttachments(raw Raw) []core.EmailAttachment {
	count := boundedCount(raw.Field("attachments"), MaxEmailAttachments)
	info := map[string]sendgridAttachmentInfo{}
	if encoded := strings.TrimSpace(raw.Field("attachment-info")); encoded != "" {
		_ = json.Unmarshal([]byte(encoded), &info)
	}
	if len(info) == 0 {
		return fileAttachments(raw, "attachment", count)
	}
	keys := make([]string, 0, len(info))
	for key := range info {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	if len(keys) > MaxEmailAttachments {
		keys = keys[:MaxEmailAttachments]
	}
	out := make([]core.EmailAttachment, 0, len(keys))
	for _, key := range keys {
		item := info[key]
		attachment := core.EmailAttachment{
			Filename:    firstNonEmpty(item.Filename, item.Name),
			ContentType: item.Type,
		}
		if file, ok := raw.Files[key]; ok {
			attachment.Size = file.Size
			if attachment.ContentType == "" {
				attachment.ContentType = file.ContentType
			}
		}
		out = append(out, attachment)
	}
	return out
}
