package messaging

import "github.com/goliatone/go-messaging/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type Components = core.Components
type ComponentFactory = core.ComponentFactory
type MessageStore = core.MessageStore
type ConversationStore = core.ConversationStore
type AllowlistStore = core.AllowlistStore
type MessageRouter = core.MessageRouter
type ReplyGenerator = core.ReplyGenerator

type Channel = core.Channel
type Message = core.Message
type Conversation = core.Conversation
type RawPayload = core.RawPayload

type SendRequest = core.SendRequest
type SendResult = core.SendResult

type IngestResult = core.IngestResult

type ProviderEntry = core.ProviderEntry

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithComponentFactory  = core.WithComponentFactory
	WithPayloadNormalizer = core.WithPayloadNormalizer
	WithAllowlist         = core.WithAllowlist
	WithRateLimiter       = core.WithRateLimiter
	WithReconciler        = core.WithReconciler
	WithRouter            = core.WithRouter
	WithMessageStore      = core.WithMessageStore
	WithConversationStore = core.WithConversationStore
	WithAllowlistStore    = core.WithAllowlistStore
	WithReplyGenerator    = core.WithReplyGenerator
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}

// SetupDefault builds a service whose missing components are filled by
// DefaultComponentFactory.
func SetupDefault(cfg Config, opts ...Option) (*Service, error) {
	all := make([]Option, 0, len(opts)+1)
	all = append(all, WithComponentFactory(NewDefaultComponentFactory()))
	all = append(all, opts...)
	return core.Setup(cfg, all...)
}
