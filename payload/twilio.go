package payload

import (
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-messaging/core"
	"github.com/goliatone/go-messaging/identity"
)

const CarrierTwilio = "twilio"

var twilioSMSExtra = []string{"AccountSid", "MessagingServiceSid", "SmsStatus", "ApiVersion", "OptOutType"}

var twilioVoiceExtra = []string{"AccountSid", "ApiVersion", "ForwardedFrom", "CallerName", "AnsweredBy"}

// TwilioSMSParser reads the form-encoded Messaging webhook, MMS included.
type TwilioSMSParser struct{}

func (TwilioSMSParser) Carrier() string { return CarrierTwilio }

func (TwilioSMSParser) Channel() core.Channel { return core.ChannelSMS }

func (TwilioSMSParser) Validate(raw Raw) error {
	if firstField(raw, "MessageSid", "SmsSid") == "" {
		return core.NewMalformedPayloadError(CarrierTwilio, core.ChannelSMS, "MessageSid")
	}
	return requireFields(CarrierTwilio, core.ChannelSMS, raw, "From", "To")
}

func (p TwilioSMSParser) Parse(raw Raw) (Envelope, error) {
	if err := p.Validate(raw); err != nil {
		return Envelope{}, err
	}
	sms := &SMS{
		MessageID: firstField(raw, "MessageSid", "SmsSid"),
		From:      identity.NormalizePhone(raw.Field("From")),
		To:        identity.NormalizePhone(raw.Field("To")),
		Body:      raw.Field("Body"),
		Metadata: core.SMSMetadata{
			Media:    twilioMedia(raw),
			FromGeo:  twilioGeo(raw, "From"),
			ToGeo:    twilioGeo(raw, "To"),
			Segments: atoi(raw.Field("NumSegments")),
		},
		Extra: extraFields(raw, twilioSMSExtra...),
	}
	return Envelope{Channel: core.ChannelSMS, Carrier: CarrierTwilio, SMS: sms}, nil
}

// TwilioVoiceParser reads the Voice status and incoming call webhooks.
type TwilioVoiceParser struct{}

func (TwilioVoiceParser) Carrier() string { return CarrierTwilio }

func (TwilioVoiceParser) Channel() core.Channel { return core.ChannelVoice }

func (TwilioVoiceParser) Validate(raw Raw) error {
	return requireFields(CarrierTwilio, core.ChannelVoice, raw, "CallSid", "From", "To")
}

func (p TwilioVoiceParser) Parse(raw Raw) (Envelope, error) {
	if err := p.Validate(raw); err != nil {
		return Envelope{}, err
	}
	voice := &Voice{
		CallID: raw.Field("CallSid"),
		From:   identity.NormalizePhone(raw.Field("From")),
		To:     identity.NormalizePhone(raw.Field("To")),
		Metadata: core.VoiceMetadata{
			CallStatus:    strings.ToLower(strings.TrimSpace(raw.Field("CallStatus"))),
			Duration:      time.Duration(atoi(firstField(raw, "CallDuration", "DialCallDuration"))) * time.Second,
			CallDirection: strings.TrimSpace(raw.Field("Direction")),
			RecordingURL:  strings.TrimSpace(raw.Field("RecordingUrl")),
			FromGeo:       twilioGeo(raw, "From"),
		},
		Extra: extraFields(raw, twilioVoiceExtra...),
	}
	return Envelope{Channel: core.ChannelVoice, Carrier: CarrierTwilio, Voice: voice}, nil
}

// twilioMedia walks MediaUrlN/MediaContentTypeN for the declared NumMedia.
func twilioMedia(raw Raw) []core.MediaAttachment {
	count := boundedCount(raw.Field("NumMedia"), MaxMediaAttachments)
	if count == 0 {
		return nil
	}
	var media []core.MediaAttachment
	for i := 0; i < count; i++ {
		url := strings.TrimSpace(raw.Field(fmt.Sprintf("MediaUrl%d", i)))
		if url == "" {
			continue
		}
		media = append(media, core.MediaAttachment{
			URL:         url,
			ContentType: strings.TrimSpace(raw.Field(fmt.Sprintf("MediaContentType%d", i))),
		})
	}
	return media
}

func twilioGeo(raw Raw, prefix string) core.GeoInfo {
	return core.GeoInfo{
		City:    strings.TrimSpace(raw.Field(prefix + "City")),
		State:   strings.TrimSpace(raw.Field(prefix + "State")),
		Zip:     strings.TrimSpace(raw.Field(prefix + "Zip")),
		Country: strings.TrimSpace(raw.Field(prefix + "Country")),
	}
}
