package payload

import (
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-messaging/core"
)

type Raw = core.RawPayload

// Parser handles one carrier payload shape for one channel. Validate is a
// cheap field presence check the boundary runs before Parse.
type Parser interface {
	Carrier() string
	Channel() core.Channel
	Validate(raw Raw) error
	Parse(raw Raw) (Envelope, error)
}

type SMS struct {
	MessageID  string
	From       string
	To         string
	Body       string
	ReceivedAt time.Time
	Metadata   core.SMSMetadata
	Extra      map[string]string
}

type Voice struct {
	CallID     string
	From       string
	To         string
	ReceivedAt time.Time
	Metadata   core.VoiceMetadata
	Extra      map[string]string
}

type Email struct {
	MessageID  string
	From       string
	To         string
	Body       string
	ReceivedAt time.Time
	Metadata   core.EmailMetadata
	Extra      map[string]string
}

// Envelope holds exactly one parsed channel payload.
type Envelope struct {
	Channel core.Channel
	Carrier string
	SMS     *SMS
	Voice   *Voice
	Email   *Email
}

func (e Envelope) Message() core.Message {
	switch {
	case e.SMS != nil:
		metadata := e.SMS.Metadata
		metadata.Carrier = e.Carrier
		metadata.Media = append([]core.MediaAttachment(nil), metadata.Media...)
		return core.Message{
			ExternalID: e.SMS.MessageID,
			Channel:    core.ChannelSMS,
			Direction:  core.DirectionInbound,
			From:       e.SMS.From,
			To:         e.SMS.To,
			Body:       e.SMS.Body,
			ReceivedAt: e.SMS.ReceivedAt,
			Metadata:   core.ChannelMetadata{SMS: &metadata, Extra: copyStrings(e.SMS.Extra)},
		}
	case e.Voice != nil:
		metadata := e.Voice.Metadata
		metadata.Carrier = e.Carrier
		return core.Message{
			ExternalID: e.Voice.CallID,
			Channel:    core.ChannelVoice,
			Direction:  core.DirectionInbound,
			From:       e.Voice.From,
			To:         e.Voice.To,
			Body:       metadata.CallStatus,
			ReceivedAt: e.Voice.ReceivedAt,
			Metadata:   core.ChannelMetadata{Voice: &metadata, Extra: copyStrings(e.Voice.Extra)},
		}
	case e.Email != nil:
		metadata := e.Email.Metadata
		metadata.Carrier = e.Carrier
		metadata.Headers = copyStrings(metadata.Headers)
		metadata.CC = append([]string(nil), metadata.CC...)
		metadata.References = append([]string(nil), metadata.References...)
		metadata.Attachments = append([]core.EmailAttachment(nil), metadata.Attachments...)
		return core.Message{
			ExternalID: e.Email.MessageID,
			Channel:    core.ChannelEmail,
			Direction:  core.DirectionInbound,
			From:       e.Email.From,
			To:         e.Email.To,
			Body:       e.Email.Body,
			ReceivedAt: e.Email.ReceivedAt,
			Metadata:   core.ChannelMetadata{Email: &metadata, Extra: copyStrings(e.Email.Extra)},
		}
	default:
		return core.Message{Channel: e.Channel}
	}
}

func requireFields(carrier string, channel core.Channel, raw Raw, fields ...string) error {
	for _, field := range fields {
		if strings.TrimSpace(raw.Field(field)) == "" {
			return core.NewMalformedPayloadError(carrier, channel, field)
		}
	}
	return nil
}

// firstField returns the first non-empty value among names.
func firstField(raw Raw, names ...string) string {
	for _, name := range names {
		if value := strings.TrimSpace(raw.Field(name)); value != "" {
			return value
		}
	}
	return ""
}

func extraFields(raw Raw, names ...string) map[string]string {
	out := map[string]string{}
	for _, name := range names {
		if value := strings.TrimSpace(raw.Field(name)); value != "" {
			out[name] = value
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Carriers declare media and attachment counts in the payload. Counts are
// clamped to these limits before any part is read.
const (
	MaxMediaAttachments = 10
	MaxEmailAttachments = 100
)

// boundedCount parses a declared part count and clamps it to limit.
func boundedCount(value string, limit int) int {
	count := atoi(value)
	if count > limit {
		return limit
	}
	return count
}

func atoi(value string) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || parsed < 0 {
		return 0
	}
	return parsed
}

func copyStrings(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

// splitReferences splits a References header into message ids.
func splitReferences(value string) []string {
	fields := strings.Fields(strings.ReplaceAll(value, ",", " "))
	if len(fields) == 0 {
		return nil
	}
	return fields
}
