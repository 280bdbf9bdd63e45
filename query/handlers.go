package query

import (
	"context"

	"github.com/goliatone/go-messaging/core"
)

type MessageReader interface {
	SearchMessages(ctx context.Context, filter core.MessageFilter) ([]core.Message, error)
	GetMessage(ctx context.Context, id string) (core.Message, error)
}

type ConversationReader interface {
	GetConversation(ctx context.Context, id string) (core.Conversation, error)
}

type AllowlistReader interface {
	ListAllowlist(scope core.AllowlistScope) ([]core.AllowlistEntry, error)
}

type ProviderReader interface {
	Providers(channel core.Channel) []core.ProviderEntry
	ProviderHealth(ctx context.Context) map[core.Channel]map[string]error
}

type SearchMessagesQuery struct {
	reader MessageReader
}

func NewSearchMessagesQuery(reader MessageReader) *SearchMessagesQuery {
	return &SearchMessagesQuery{reader: reader}
}

func (q *SearchMessagesQuery) Query(ctx context.Context, msg SearchMessagesMessage) ([]core.Message, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: message reader is required")
	}
	return q.reader.SearchMessages(ctx, msg.Filter)
}

type GetMessageQuery struct {
	reader MessageReader
}

func NewGetMessageQuery(reader MessageReader) *GetMessageQuery {
	return &GetMessageQuery{reader: reader}
}

func (q *GetMessageQuery) Query(ctx context.Context, msg GetMessageMessage) (core.Message, error) {
	if q == nil || q.reader == nil {
		return core.Message{}, queryDependencyError("query: message reader is required")
	}
	return q.reader.GetMessage(ctx, msg.MessageID)
}

type GetConversationQuery struct {
	reader ConversationReader
}

func NewGetConversationQuery(reader ConversationReader) *GetConversationQuery {
	return &GetConversationQuery{reader: reader}
}

func (q *GetConversationQuery) Query(ctx context.Context, msg GetConversationMessage) (core.Conversation, error) {
	if q == nil || q.reader == nil {
		return core.Conversation{}, queryDependencyError("query: conversation reader is required")
	}
	return q.reader.GetConversation(ctx, msg.ConversationID)
}

type ListAllowlistQuery struct {
	reader AllowlistReader
}

func NewListAllowlistQuery(reader AllowlistReader) *ListAllowlistQuery {
	return &ListAllowlistQuery{reader: reader}
}

func (q *ListAllowlistQuery) Query(_ context.Context, msg ListAllowlistMessage) ([]core.AllowlistEntry, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: allowlist reader is required")
	}
	return q.reader.ListAllowlist(msg.Scope)
}

type ListProvidersQuery struct {
	reader ProviderReader
}

func NewListProvidersQuery(reader ProviderReader) *ListProvidersQuery {
	return &ListProvidersQuery{reader: reader}
}

func (q *ListProvidersQuery) Query(_ context.Context, msg ListProvidersMessage) ([]core.ProviderEntry, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: provider reader is required")
	}
	return q.reader.Providers(msg.Channel), nil
}

type ProviderHealthQuery struct {
	reader ProviderReader
}

func NewProviderHealthQuery(reader ProviderReader) *ProviderHealthQuery {
	return &ProviderHealthQuery{reader: reader}
}

func (q *ProviderHealthQuery) Query(ctx context.Context, _ ProviderHealthMessage) (map[core.Channel]map[string]error, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: provider reader is required")
	}
	return q.reader.ProviderHealth(ctx), nil
}
