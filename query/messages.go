package query

import (
	"strings"

	"github.com/goliatone/go-messaging/core"
)

const (
	TypeSearchMessages  = "messaging.query.message.search"
	TypeGetMessage      = "messaging.query.message.get"
	TypeGetConversation = "messaging.query.conversation.get"
	TypeListAllowlist   = "messaging.query.allowlist.list"
	TypeListProviders   = "messaging.query.provider.list"
	TypeProviderHealth  = "messaging.query.provider.health"
)

const maxSearchLimit = 500

type SearchMessagesMessage struct {
	Filter core.MessageFilter
}

func (SearchMessagesMessage) Type() string { return TypeSearchMessages }

func (m SearchMessagesMessage) Validate() error {
	if m.Filter.Channel != "" && !m.Filter.Channel.Valid() {
		return queryValidationError("channel", "channel must be sms, voice or email")
	}
	switch m.Filter.Direction {
	case "", core.DirectionInbound, core.DirectionOutbound:
	default:
		return queryValidationError("direction", "direction must be inbound or outbound")
	}
	if m.Filter.Limit < 0 || m.Filter.Limit > maxSearchLimit {
		return queryValidationError("limit", "limit must be between 0 and 500")
	}
	if m.Filter.Since != nil && m.Filter.Until != nil && m.Filter.Until.Before(*m.Filter.Since) {
		return queryValidationError("until", "until must not be before since")
	}
	return nil
}

type GetMessageMessage struct {
	MessageID string
}

func (GetMessageMessage) Type() string { return TypeGetMessage }

func (m GetMessageMessage) Validate() error {
	if strings.TrimSpace(m.MessageID) == "" {
		return queryValidationError("message_id", "message id is required")
	}
	return nil
}

type GetConversationMessage struct {
	ConversationID string
}

func (GetConversationMessage) Type() string { return TypeGetConversation }

func (m GetConversationMessage) Validate() error {
	if strings.TrimSpace(m.ConversationID) == "" {
		return queryValidationError("conversation_id", "conversation id is required")
	}
	return nil
}

type ListAllowlistMessage struct {
	Scope core.AllowlistScope
}

func (ListAllowlistMessage) Type() string { return TypeListAllowlist }

func (m ListAllowlistMessage) Validate() error {
	if !m.Scope.Valid() {
		return queryValidationError("scope", "scope must be email or sms")
	}
	return nil
}

type ListProvidersMessage struct {
	Channel core.Channel
}

func (ListProvidersMessage) Type() string { return TypeListProviders }

func (m ListProvidersMessage) Validate() error {
	if !m.Channel.Valid() {
		return queryValidationError("channel", "channel must be sms, voice or email")
	}
	return nil
}

type ProviderHealthMessage struct{}

func (ProviderHealthMessage) Type() string { return TypeProviderHealth }

func (ProviderHealthMessage) Validate() error { return nil }
