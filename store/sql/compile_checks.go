package sqlstore

import "github.com/goliatone/go-messaging/core"

var (
	_ core.MessageStore           = (*MessageStore)(nil)
	_ core.ConversationStore      = (*ConversationStore)(nil)
	_ core.AllowlistStore         = (*AllowlistStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
