package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-messaging/core"
)

var (
	_ gocmd.Querier[SearchMessagesMessage, []core.Message]                    = (*SearchMessagesQuery)(nil)
	_ gocmd.Querier[GetMessageMessage, core.Message]                          = (*GetMessageQuery)(nil)
	_ gocmd.Querier[GetConversationMessage, core.Conversation]                = (*GetConversationQuery)(nil)
	_ gocmd.Querier[ListAllowlistMessage, []core.AllowlistEntry]              = (*ListAllowlistQuery)(nil)
	_ gocmd.Querier[ListProvidersMessage, []core.ProviderEntry]               = (*ListProvidersQuery)(nil)
	_ gocmd.Querier[ProviderHealthMessage, map[core.Channel]map[string]error] = (*ProviderHealthQuery)(nil)
)
