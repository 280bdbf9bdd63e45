package payload

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/goliatone/go-messaging/core"
	"github.com/goliatone/go-messaging/identity"
)

const (
	CarrierTelnyx = "telnyx"

	telnyxEventReceived    = "message.received"
	telnyxDirectionInbound = "inbound"
)

type telnyxEndpoint struct {
	PhoneNumber string `json:"phone_number"`
	Carrier     string `json:"carrier"`
	LineType    string `json:"line_type"`
}

type telnyxMedia struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
}

type telnyxMessage struct {
	ID         string           `json:"id"`
	From       telnyxEndpoint   `json:"from"`
	To         []telnyxEndpoint `json:"to"`
	Text       string           `json:"text"`
	Media      []telnyxMedia    `json:"media"`
	Parts      int              `json:"parts"`
	Direction  string           `json:"direction"`
	ReceivedAt string           `json:"received_at"`
	Type       string           `json:"type"`
}

type telnyxEvent struct {
	Data struct {
		ID         string        `json:"id"`
		EventType  string        `json:"event_type"`
		OccurredAt string        `json:"occurred_at"`
		Payload    telnyxMessage `json:"payload"`
	} `json:"data"`
}

// TelnyxSMSParser reads the JSON message.received webhook. Delivery events
// for outbound messages are rejected.
type TelnyxSMSParser struct{}

func (TelnyxSMSParser) Carrier() string { return CarrierTelnyx }

func (TelnyxSMSParser) Channel() core.Channel { return core.ChannelSMS }

func (p TelnyxSMSParser) Validate(raw Raw) error {
	_, err := p.decode(raw)
	return err
}

func (p TelnyxSMSParser) Parse(raw Raw) (Envelope, error) {
	event, err := p.decode(raw)
	if err != nil {
		return Envelope{}, err
	}
	msg := event.Data.Payload
	media := make([]core.MediaAttachment, 0, len(msg.Media))
	for _, item := range msg.Media {
		if strings.TrimSpace(item.URL) == "" {
			continue
		}
		media = append(media, core.MediaAttachment{URL: strings.TrimSpace(item.URL), ContentType: strings.TrimSpace(item.ContentType)})
	}
	if len(media) == 0 {
		media = nil
	}
	extra := map[string]string{}
	if event.Data.EventType != "" {
		extra["event_type"] = event.Data.EventType
	}
	if msg.From.Carrier != "" {
		extra["from_carrier"] = msg.From.Carrier
	}
	if msg.Type != "" {
		extra["type"] = msg.Type
	}
	if len(extra) == 0 {
		extra = nil
	}

	sms := &SMS{
		MessageID:  msg.ID,
		From:       identity.NormalizePhone(msg.From.PhoneNumber),
		To:         identity.NormalizePhone(msg.To[0].PhoneNumber),
		Body:       msg.Text,
		ReceivedAt: parseRFC3339(msg.ReceivedAt, event.Data.OccurredAt),
		Metadata: core.SMSMetadata{
			Media:    media,
			Segments: msg.Parts,
		},
		Extra: extra,
	}
	return Envelope{Channel: core.ChannelSMS, Carrier: CarrierTelnyx, SMS: sms}, nil
}

func (TelnyxSMSParser) decode(raw Raw) (telnyxEvent, error) {
	if len(raw.JSON) == 0 {
		return telnyxEvent{}, core.NewMalformedPayloadError(CarrierTelnyx, core.ChannelSMS, "data")
	}
	var event telnyxEvent
	if err := json.Unmarshal(raw.JSON, &event); err != nil {
		return telnyxEvent{}, core.NewMalformedPayloadError(CarrierTelnyx, core.ChannelSMS, "data")
	}
	msg := event.Data.Payload
	eventType := strings.ToLower(strings.TrimSpace(event.Data.EventType))
	direction := strings.ToLower(strings.TrimSpace(msg.Direction))
	switch {
	case eventType != "" && eventType != telnyxEventReceived:
		// message.sent and message.finalized report our own outbound sends.
		return telnyxEvent{}, core.NewMalformedPayloadError(CarrierTelnyx, core.ChannelSMS, "data.event_type")
	case direction != "" && direction != telnyxDirectionInbound:
		return telnyxEvent{}, core.NewMalformedPayloadError(CarrierTelnyx, core.ChannelSMS, "data.payload.direction")
	case strings.TrimSpace(msg.ID) == "":
		return telnyxEvent{}, core.NewMalformedPayloadError(CarrierTelnyx, core.ChannelSMS, "data.payload.id")
	case strings.TrimSpace(msg.From.PhoneNumber) == "":
		return telnyxEvent{}, core.NewMalformedPayloadError(CarrierTelnyx, core.ChannelSMS, "data.payload.from.phone_number")
	case len(msg.To) == 0 || strings.TrimSpace(msg.To[0].PhoneNumber) == "":
		return telnyxEvent{}, core.NewMalformedPayloadError(CarrierTelnyx, core.ChannelSMS, "data.payload.to")
	}
	return event, nil
}

func parseRFC3339(values ...string) time.Time {
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if parsed, err := time.Parse(time.RFC3339Nano, value); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}
