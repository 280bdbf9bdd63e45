package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-messaging/core"
	"github.com/goliatone/go-messaging/ratelimit"
)

type RepositoryFactory struct {
	db *bun.DB

	messageStore       *MessageStore
	conversationStore  *ConversationStore
	allowlistStore     *AllowlistStore
	throttleStateStore *ThrottleStateStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

// BuildStores accepts a *bun.DB or anything exposing DB() *bun.DB, such as
// a go-persistence-bun client.
func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.messageStore != nil && f.conversationStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) MessageStore() core.MessageStore {
	if f == nil {
		return nil
	}
	return f.messageStore
}

func (f *RepositoryFactory) ConversationStore() core.ConversationStore {
	if f == nil {
		return nil
	}
	return f.conversationStore
}

func (f *RepositoryFactory) AllowlistStore() core.AllowlistStore {
	if f == nil {
		return nil
	}
	return f.allowlistStore
}

func (f *RepositoryFactory) ThrottleStateStore() *ThrottleStateStore {
	if f == nil {
		return nil
	}
	return f.throttleStateStore
}

// CachedThrottleStateStore wraps the SQL throttle store with cacheService.
func (f *RepositoryFactory) CachedThrottleStateStore(cacheService repositorycache.CacheService) (ratelimit.StateStore, error) {
	if f == nil || f.throttleStateStore == nil {
		return nil, fmt.Errorf("sqlstore: repository factory stores are not built")
	}
	return NewCachedThrottleStateStore(f.throttleStateStore, cacheService)
}

func (f *RepositoryFactory) initStores() error {
	messageStore, err := NewMessageStore(f.db)
	if err != nil {
		return err
	}
	conversationStore, err := NewConversationStore(f.db)
	if err != nil {
		return err
	}
	allowlistStore, err := NewAllowlistStore(f.db)
	if err != nil {
		return err
	}
	throttleStateStore, err := NewThrottleStateStore(f.db)
	if err != nil {
		return err
	}
	f.messageStore = messageStore
	f.conversationStore = conversationStore
	f.allowlistStore = allowlistStore
	f.throttleStateStore = throttleStateStore
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
