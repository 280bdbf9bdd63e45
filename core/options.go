package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

// ComponentFactory fills the components a caller did not inject. It runs
// after configuration has been resolved.
type ComponentFactory interface {
	BuildComponents(cfg Config, logger Logger, in Components) (Components, error)
}

type Components struct {
	Normalizer        PayloadNormalizer
	EmailAllowlist    Allowlist
	SMSAllowlist      Allowlist
	RateLimiter       RateLimiter
	Reconciler        ConversationReconciler
	Routers           map[Channel]MessageRouter
	MessageStore      MessageStore
	ConversationStore ConversationStore
	AllowlistStore    AllowlistStore
	ReplyGenerator    ReplyGenerator
}

type serviceBuilder struct {
	runtimeConfig     Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	componentFactory  ComponentFactory
	components        Components
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithComponentFactory(factory ComponentFactory) Option {
	return func(b *serviceBuilder) {
		b.componentFactory = factory
	}
}

func WithPayloadNormalizer(normalizer PayloadNormalizer) Option {
	return func(b *serviceBuilder) {
		b.components.Normalizer = normalizer
	}
}

func WithAllowlist(list Allowlist) Option {
	return func(b *serviceBuilder) {
		if list == nil {
			return
		}
		switch list.Scope() {
		case AllowlistScopeEmail:
			b.components.EmailAllowlist = list
		case AllowlistScopeSMS:
			b.components.SMSAllowlist = list
		}
	}
}

func WithRateLimiter(limiter RateLimiter) Option {
	return func(b *serviceBuilder) {
		b.components.RateLimiter = limiter
	}
}

func WithReconciler(reconciler ConversationReconciler) Option {
	return func(b *serviceBuilder) {
		b.components.Reconciler = reconciler
	}
}

func WithRouter(channel Channel, router MessageRouter) Option {
	return func(b *serviceBuilder) {
		if b.components.Routers == nil {
			b.components.Routers = map[Channel]MessageRouter{}
		}
		b.components.Routers[channel] = router
	}
}

func WithMessageStore(store MessageStore) Option {
	return func(b *serviceBuilder) {
		b.components.MessageStore = store
	}
}

func WithConversationStore(store ConversationStore) Option {
	return func(b *serviceBuilder) {
		b.components.ConversationStore = store
	}
}

func WithAllowlistStore(store AllowlistStore) Option {
	return func(b *serviceBuilder) {
		b.components.AllowlistStore = store
	}
}

func WithReplyGenerator(generator ReplyGenerator) Option {
	return func(b *serviceBuilder) {
		b.components.ReplyGenerator = generator
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("messaging", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return serviceErrorMapper(err)
}

type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver merges defaults < loaded < runtime. The loaded layer is
// built on top of defaults so it is taken whole; the runtime layer only
// contributes non-zero values.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, true)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	conversation := map[string]any{}
	if includeZero || cfg.Conversation.RecentWindow > 0 {
		conversation["recent_window"] = cfg.Conversation.RecentWindow
	}
	if includeZero || cfg.Conversation.DedupePairs {
		conversation["dedupe_pairs"] = cfg.Conversation.DedupePairs
	}
	if len(conversation) > 0 {
		layer["conversation"] = conversation
	}

	rateLimit := map[string]any{}
	if includeZero || cfg.RateLimit.Limit > 0 {
		rateLimit["limit"] = cfg.RateLimit.Limit
	}
	if includeZero || cfg.RateLimit.WindowMS > 0 {
		rateLimit["window_ms"] = cfg.RateLimit.WindowMS
	}
	if includeZero || strings.TrimSpace(cfg.RateLimit.Scope) != "" {
		rateLimit["scope"] = strings.TrimSpace(strings.ToLower(cfg.RateLimit.Scope))
	}
	if len(rateLimit) > 0 {
		layer["rate_limit"] = rateLimit
	}

	allowlist := map[string]any{}
	if includeZero || cfg.Allowlist.EnforceEmail {
		allowlist["enforce_email"] = cfg.Allowlist.EnforceEmail
	}
	if includeZero || cfg.Allowlist.EnforceSMS {
		allowlist["enforce_sms"] = cfg.Allowlist.EnforceSMS
	}
	if len(allowlist) > 0 {
		layer["allowlist"] = allowlist
	}

	reply := map[string]any{}
	if includeZero || cfg.Reply.Enabled {
		reply["enabled"] = cfg.Reply.Enabled
	}
	if includeZero || strings.TrimSpace(cfg.Reply.Text) != "" {
		reply["text"] = cfg.Reply.Text
	}
	if len(reply) > 0 {
		layer["reply"] = reply
	}
	return layer
}
