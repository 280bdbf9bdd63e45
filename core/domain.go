package core

import (
	"fmt"
	"strings"
	"time"
)

type Channel string

const (
	ChannelVoice Channel = "voice"
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelVoice, ChannelSMS, ChannelEmail:
		return true
	default:
		return false
	}
}

// ReplyChannel is the channel used to answer an inbound message. Calls
// cannot be answered in-band so voice is answered over SMS.
func (c Channel) ReplyChannel() Channel {
	if c == ChannelVoice {
		return ChannelSMS
	}
	return c
}

func ParseChannel(raw string) (Channel, error) {
	channel := Channel(strings.TrimSpace(strings.ToLower(raw)))
	if !channel.Valid() {
		return "", fmt.Errorf("core: unsupported channel %q", raw)
	}
	return channel, nil
}

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type MediaAttachment struct {
	URL         string
	ContentType string
}

type GeoInfo struct {
	City    string
	State   string
	Zip     string
	Country string
}

func (g GeoInfo) IsZero() bool {
	return g.City == "" && g.State == "" && g.Zip == "" && g.Country == ""
}

type SMSMetadata struct {
	Carrier  string
	Media    []MediaAttachment
	FromGeo  GeoInfo
	ToGeo    GeoInfo
	Segments int
}

type VoiceMetadata struct {
	Carrier       string
	CallStatus    string
	Duration      time.Duration
	CallDirection string
	RecordingURL  string
	FromGeo       GeoInfo
}

type EmailAttachment struct {
	Filename    string
	ContentType string
	Size        int64
}

type EmailMetadata struct {
	Carrier     string
	TrackingID  string
	Subject     string
	Headers     map[string]string
	TextBody    string
	HTMLBody    string
	CC          []string
	InReplyTo   string
	References  []string
	Attachments []EmailAttachment
}

// ChannelMetadata carries exactly one channel specific block. Extra holds
// carrier fields the normalized shapes do not model.
type ChannelMetadata struct {
	SMS   *SMSMetadata
	Voice *VoiceMetadata
	Email *EmailMetadata
	Extra map[string]string
}

func (m ChannelMetadata) Carrier() string {
	switch {
	case m.SMS != nil:
		return m.SMS.Carrier
	case m.Voice != nil:
		return m.Voice.Carrier
	case m.Email != nil:
		return m.Email.Carrier
	default:
		return ""
	}
}

type Message struct {
	ID             string
	ExternalID     string
	ConversationID string
	Channel        Channel
	Direction      Direction
	From           string
	To             string
	Body           string
	ReceivedAt     time.Time
	Metadata       ChannelMetadata
}

func (m Message) WithConversation(conversationID string) Message {
	m.ConversationID = strings.TrimSpace(conversationID)
	return m
}

func (m Message) Subject() string {
	if m.Metadata.Email == nil {
		return ""
	}
	return m.Metadata.Email.Subject
}

// ThreadReferences returns the message ids an email points back to, the
// In-Reply-To value first.
func (m Message) ThreadReferences() []string {
	if m.Metadata.Email == nil {
		return nil
	}
	refs := make([]string, 0, len(m.Metadata.Email.References)+1)
	seen := map[string]struct{}{}
	add := func(value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		if _, ok := seen[value]; ok {
			return
		}
		seen[value] = struct{}{}
		refs = append(refs, value)
	}
	add(m.Metadata.Email.InReplyTo)
	for i := len(m.Metadata.Email.References) - 1; i >= 0; i-- {
		add(m.Metadata.Email.References[i])
	}
	return refs
}

// Participants returns every endpoint on the message, including CC.
func (m Message) Participants() []string {
	out := []string{m.From, m.To}
	if m.Metadata.Email != nil {
		out = append(out, m.Metadata.Email.CC...)
	}
	return compactStrings(out)
}

type Conversation struct {
	ID            string
	Channel       Channel
	Participants  [2]string
	PairKey       string
	Subject       string
	CreatedAt     time.Time
	LastMessageAt time.Time
}

// ParticipantPair orders two endpoints so (a,b) and (b,a) produce the same pair.
func ParticipantPair(a, b string) [2]string {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if b < a {
		return [2]string{b, a}
	}
	return [2]string{a, b}
}

func PairKey(channel Channel, a, b string) string {
	pair := ParticipantPair(a, b)
	return string(channel) + ":" + pair[0] + "|" + pair[1]
}

func (c Conversation) HasParticipant(identifier string) bool {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return false
	}
	return c.Participants[0] == identifier || c.Participants[1] == identifier
}

type SendRequest struct {
	Channel        Channel
	From           string
	To             []string
	Subject        string
	Body           string
	HTMLBody       string
	MediaURLs      []string
	Tags           []string
	InReplyTo      string
	References     []string
	ConversationID string
	Metadata       map[string]string
}

// RecipientDomain returns the domain of a single email style recipient.
func (r SendRequest) RecipientDomain() (string, bool) {
	if len(r.To) != 1 {
		return "", false
	}
	recipient := strings.TrimSpace(r.To[0])
	at := strings.LastIndex(recipient, "@")
	if at < 0 || at == len(recipient)-1 {
		return "", false
	}
	return strings.ToLower(strings.TrimSuffix(recipient[at+1:], ">")), true
}

type SendReceipt struct {
	MessageID  string
	StatusCode int
	Headers    map[string]string
	Metadata   map[string]any
}

type SendResult struct {
	Success   bool
	MessageID string
	Provider  string
	Attempts  int
	Err       error
}

type ProviderEntry struct {
	Name     string
	Priority int
	Tags     []string
	Domains  []string
	Provider Provider
}

type AllowlistScope string

const (
	AllowlistScopeEmail AllowlistScope = "email"
	AllowlistScopeSMS   AllowlistScope = "sms"
)

func (s AllowlistScope) Valid() bool {
	return s == AllowlistScopeEmail || s == AllowlistScopeSMS
}

func ParseAllowlistScope(raw string) (AllowlistScope, error) {
	scope := AllowlistScope(strings.TrimSpace(strings.ToLower(raw)))
	if !scope.Valid() {
		return "", fmt.Errorf("core: unsupported allowlist scope %q", raw)
	}
	return scope, nil
}

// AllowlistScopeFor maps a channel to the allowlist it is gated by.
func AllowlistScopeFor(channel Channel) AllowlistScope {
	if channel == ChannelEmail {
		return AllowlistScopeEmail
	}
	return AllowlistScopeSMS
}

type AllowlistEntry struct {
	Identifier string
	Scope      AllowlistScope
	AddedBy    string
	AddedAt    time.Time
}

type MessageFilter struct {
	Channel        Channel
	Direction      Direction
	ConversationID string
	Participant    string
	Keyword        string
	ExternalIDs    []string
	Since          *time.Time
	Until          *time.Time
	Limit          int
}

type IngestResult struct {
	ConversationID string
	MessageID      string
	AutoReplied    bool
	Reason         string
	ReplyProvider  string
	ReplyMessageID string
}

const (
	IngestReasonReplied         = "replied"
	IngestReasonNotAllowlisted  = "not_allowlisted"
	IngestReasonRateLimited     = "rate_limited"
	IngestReasonReplyDisabled   = "reply_disabled"
	IngestReasonEmptyReply      = "empty_reply"
	IngestReasonReplyFailed     = "reply_generation_failed"
	IngestReasonSendFailed      = "send_failed"
	IngestReasonNoReplyProvider = "no_provider"
)

// RawFile describes a multipart file part. Contents stay at the boundary.
type RawFile struct {
	Filename    string
	ContentType string
	Size        int64
}

// RawPayload is a carrier webhook body as received at the boundary.
type RawPayload struct {
	Fields  map[string][]string
	JSON    []byte
	Headers map[string]string
	Files   map[string]RawFile
}

func (p RawPayload) Field(name string) string {
	values := p.Fields[name]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func (p RawPayload) Has(name string) bool {
	_, ok := p.Fields[name]
	return ok
}

type ThrottleKey struct {
	Provider string
	Channel  Channel
	Bucket   string
}

type ProviderResponseMeta struct {
	StatusCode int
	Headers    map[string]string
	RetryAfter *time.Duration
	Metadata   map[string]any
}

type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Metadata             map[string]any
	Timeout              time.Duration
	MaxResponseBodyBytes int64
	Idempotency          string
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type InboundRequest struct {
	Carrier  string
	Channel  Channel
	Headers  map[string]string
	Payload  RawPayload
	Metadata map[string]any
}

type InboundResult struct {
	Accepted   bool
	StatusCode int
	Ingest     IngestResult
	Metadata   map[string]any
}

type MaintenanceReport struct {
	ExpiredWindows   int
	AllowlistEntries map[AllowlistScope]int
	ProviderHealth   map[Channel]map[string]error
	CompletedAt      time.Time
}

func compactStrings(values []string) []string {
	out := make([]string, 0, len(values))
	seen := map[string]struct{}{}
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
