package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Provider interface {
	Name() string
	Send(ctx context.Context, req SendRequest) (SendReceipt, error)
	HealthCheck(ctx context.Context) error
}

// ChannelProvider is implemented by providers that only serve some channels.
type ChannelProvider interface {
	Channels() []Channel
}

type MessageStore interface {
	Store(ctx context.Context, msg Message) (Message, error)
	Get(ctx context.Context, id string) (Message, error)
	Search(ctx context.Context, filter MessageFilter) ([]Message, error)
}

// ConversationStore persists conversation identities. CreateOrGet returns the
// existing conversation when conv.PairKey is set and already claimed on the
// same channel.
type ConversationStore interface {
	CreateOrGet(ctx context.Context, conv Conversation) (Conversation, bool, error)
	Get(ctx context.Context, id string) (Conversation, error)
	ListRecent(ctx context.Context, channel Channel, limit int) ([]Conversation, error)
	Touch(ctx context.Context, id string, at time.Time) error
}

type AllowlistStore interface {
	Load(ctx context.Context, scope AllowlistScope) ([]AllowlistEntry, error)
	Upsert(ctx context.Context, entry AllowlistEntry) error
	Delete(ctx context.Context, scope AllowlistScope, identifier string) error
	Clear(ctx context.Context, scope AllowlistScope) error
}

type StoreProvider interface {
	MessageStore() MessageStore
	ConversationStore() ConversationStore
	AllowlistStore() AllowlistStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type PayloadNormalizer interface {
	Normalize(ctx context.Context, channel Channel, carrier string, raw RawPayload) (Message, error)
}

type Allowlist interface {
	Scope() AllowlistScope
	Initialize(ctx context.Context) error
	Add(ctx context.Context, identifier string, addedBy string) (AllowlistEntry, error)
	Has(identifier string) bool
	Remove(ctx context.Context, identifier string) error
	Clear(ctx context.Context) error
	List() []AllowlistEntry
}

type RateLimiter interface {
	CheckLimit(key string) bool
	Remaining(key string) int
	Cleanup() int
	Configure(limit int, window time.Duration) error
}

type ConversationReconciler interface {
	Reconcile(ctx context.Context, msg Message) (Conversation, error)
}

type MessageRouter interface {
	Register(entry ProviderEntry) error
	Unregister(name string) bool
	Entries() []ProviderEntry
	Select(req SendRequest, forcedName string) (ProviderEntry, bool)
	Send(ctx context.Context, req SendRequest, forcedName string) SendResult
	HealthCheck(ctx context.Context) map[string]error
}

type ReplyGenerator interface {
	Generate(ctx context.Context, msg Message, conversationID string) (string, error)
}

type ThrottlePolicy interface {
	BeforeCall(ctx context.Context, key ThrottleKey) error
	AfterCall(ctx context.Context, key ThrottleKey, res ProviderResponseMeta) error
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

type InboundHandler interface {
	Channel() Channel
	Handle(ctx context.Context, req InboundRequest) (InboundResult, error)
}

type IdempotencyClaimStore interface {
	Claim(ctx context.Context, key string, lease time.Duration) (claimID string, accepted bool, err error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause error, retryAt time.Time) error
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}
