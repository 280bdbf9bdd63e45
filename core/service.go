package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	normalizer        PayloadNormalizer
	allowlists        map[AllowlistScope]Allowlist
	rateLimiter       RateLimiter
	reconciler        ConversationReconciler
	messageStore      MessageStore
	conversationStore ConversationStore
	allowlistStore    AllowlistStore
	replyGenerator    ReplyGenerator

	routersMu sync.RWMutex
	routers   map[Channel]MessageRouter

	Now func() time.Time
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	Components        Components
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("messaging", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("messaging"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	components := builder.components
	if builder.repositoryFactory != nil {
		var stores StoreProvider
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			built, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			stores = built
		} else if provided, ok := builder.repositoryFactory.(StoreProvider); ok {
			stores = provided
		}
		if stores != nil {
			if components.MessageStore == nil {
				components.MessageStore = stores.MessageStore()
			}
			if components.ConversationStore == nil {
				components.ConversationStore = stores.ConversationStore()
			}
			if components.AllowlistStore == nil {
				components.AllowlistStore = stores.AllowlistStore()
			}
		}
	}
	if builder.componentFactory != nil {
		components, err = builder.componentFactory.BuildComponents(finalConfig, logger, components)
		if err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
	}
	if components.ReplyGenerator == nil && strings.TrimSpace(finalConfig.Reply.Text) != "" {
		components.ReplyGenerator = StaticReplyGenerator{Text: finalConfig.Reply.Text}
	}
	if components.RateLimiter != nil {
		if err := components.RateLimiter.Configure(finalConfig.RateLimit.Limit, finalConfig.RateLimit.Window()); err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
	}

	allowlists := map[AllowlistScope]Allowlist{}
	if components.EmailAllowlist != nil {
		allowlists[AllowlistScopeEmail] = components.EmailAllowlist
	}
	if components.SMSAllowlist != nil {
		allowlists[AllowlistScopeSMS] = components.SMSAllowlist
	}
	routers := map[Channel]MessageRouter{}
	for channel, router := range components.Routers {
		if router != nil {
			routers[channel] = router
		}
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		normalizer:        components.Normalizer,
		allowlists:        allowlists,
		rateLimiter:       components.RateLimiter,
		reconciler:        components.Reconciler,
		messageStore:      components.MessageStore,
		conversationStore: components.ConversationStore,
		allowlistStore:    components.AllowlistStore,
		replyGenerator:    components.ReplyGenerator,
		routers:           routers,
		Now:               func() time.Time { return time.Now().UTC() },
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	s.routersMu.RLock()
	routers := make(map[Channel]MessageRouter, len(s.routers))
	for channel, router := range s.routers {
		routers[channel] = router
	}
	s.routersMu.RUnlock()
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		Components: Components{
			Normalizer:        s.normalizer,
			EmailAllowlist:    s.allowlists[AllowlistScopeEmail],
			SMSAllowlist:      s.allowlists[AllowlistScopeSMS],
			RateLimiter:       s.rateLimiter,
			Reconciler:        s.reconciler,
			Routers:           routers,
			MessageStore:      s.messageStore,
			ConversationStore: s.conversationStore,
			AllowlistStore:    s.allowlistStore,
			ReplyGenerator:    s.replyGenerator,
		},
	}
}

// Initialize loads every allowlist mirror from its store.
func (s *Service) Initialize(ctx context.Context) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		s.observeOperation(ctx, startedAt, "initialize", err, fields)
	}()
	for _, scope := range []AllowlistScope{AllowlistScopeEmail, AllowlistScopeSMS} {
		list, ok := s.allowlists[scope]
		if !ok {
			continue
		}
		if err = list.Initialize(ctx); err != nil {
			err = s.mapError(err)
			return err
		}
		fields["allowlist_"+string(scope)] = len(list.List())
	}
	return nil
}

func (s *Service) IngestSMS(ctx context.Context, carrier string, raw RawPayload) (IngestResult, error) {
	return s.Ingest(ctx, ChannelSMS, carrier, raw)
}

func (s *Service) IngestVoice(ctx context.Context, carrier string, raw RawPayload) (IngestResult, error) {
	return s.Ingest(ctx, ChannelVoice, carrier, raw)
}

func (s *Service) IngestEmail(ctx context.Context, carrier string, raw RawPayload) (IngestResult, error) {
	return s.Ingest(ctx, ChannelEmail, carrier, raw)
}

// Ingest normalizes a carrier payload, threads it into a conversation, stores
// it and, when the gate allows, sends an automated reply.
func (s *Service) Ingest(ctx context.Context, channel Channel, carrier string, raw RawPayload) (result IngestResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"channel": string(channel),
		"carrier": strings.TrimSpace(carrier),
	}
	defer func() {
		fields["reason"] = result.Reason
		fields["auto_replied"] = result.AutoReplied
		if result.ConversationID != "" {
			fields["conversation_id"] = result.ConversationID
		}
		s.observeOperation(ctx, startedAt, "ingest", err, fields)
	}()

	if s == nil {
		return IngestResult{}, fmt.Errorf("core: service is nil")
	}
	if !channel.Valid() {
		err = s.mapError(fmt.Errorf("core: unsupported channel %q", channel))
		return IngestResult{}, err
	}
	if s.normalizer == nil || s.reconciler == nil || s.messageStore == nil {
		err = s.mapError(fmt.Errorf("core: ingest requires a normalizer, reconciler and message store"))
		return IngestResult{}, err
	}

	msg, err := s.normalizer.Normalize(ctx, channel, carrier, raw)
	if err != nil {
		err = s.mapError(err)
		return IngestResult{}, err
	}
	msg.Direction = DirectionInbound
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = s.now()
	}
	fields["external_id"] = msg.ExternalID
	fields["from"] = msg.From

	conversation, err := s.reconciler.Reconcile(ctx, msg)
	if err != nil {
		err = s.mapError(err)
		return IngestResult{}, err
	}
	stored, err := s.messageStore.Store(ctx, msg.WithConversation(conversation.ID))
	if err != nil {
		err = s.mapError(err)
		return IngestResult{}, err
	}
	result = IngestResult{
		ConversationID: conversation.ID,
		MessageID:      stored.ID,
	}

	if reason, allowed := s.gate(stored); !allowed {
		result.Reason = reason
		return result, nil
	}
	if !s.config.Reply.Enabled || s.replyGenerator == nil {
		result.Reason = IngestReasonReplyDisabled
		return result, nil
	}

	reply, genErr := s.replyGenerator.Generate(ctx, stored, conversation.ID)
	if genErr != nil {
		s.logWarn(ctx, "reply generation failed", map[string]any{
			"conversation_id": conversation.ID,
			"message_id":      stored.ID,
			"error":           genErr.Error(),
		})
		result.Reason = IngestReasonReplyFailed
		return result, nil
	}
	if strings.TrimSpace(reply) == "" {
		result.Reason = IngestReasonEmptyReply
		return result, nil
	}

	req := buildReplyRequest(stored, conversation, reply)
	router, ok := s.router(req.Channel)
	if !ok {
		result.Reason = IngestReasonNoReplyProvider
		return result, nil
	}
	sent := router.Send(ctx, req, "")
	result.ReplyProvider = sent.Provider
	if !sent.Success {
		result.Reason = IngestReasonSendFailed
		if errors.Is(sent.Err, ErrNoProviderConfigured) {
			result.Reason = IngestReasonNoReplyProvider
		}
		fields["provider"] = sent.Provider
		s.logWarn(ctx, "reply send failed", map[string]any{
			"conversation_id": conversation.ID,
			"channel":         string(req.Channel),
			"provider":        sent.Provider,
			"attempts":        sent.Attempts,
			"error":           errorString(sent.Err),
		})
		return result, nil
	}

	result.AutoReplied = true
	result.Reason = IngestReasonReplied
	result.ReplyMessageID = sent.MessageID
	fields["provider"] = sent.Provider
	s.recordOutbound(ctx, req, sent)
	return result, nil
}

// gate decides whether an automated reply may be produced for msg.
func (s *Service) gate(msg Message) (string, bool) {
	scope := AllowlistScopeFor(msg.Channel)
	if s.config.Allowlist.Enforced(scope) {
		list, ok := s.allowlists[scope]
		if !ok || !list.Has(msg.From) {
			return IngestReasonNotAllowlisted, false
		}
	}
	if s.rateLimiter != nil && !s.rateLimiter.CheckLimit(s.rateLimitKey(msg)) {
		return IngestReasonRateLimited, false
	}
	return "", true
}

func (s *Service) rateLimitKey(msg Message) string {
	if strings.EqualFold(strings.TrimSpace(s.config.RateLimit.Scope), RateLimitScopeConversation) && msg.ConversationID != "" {
		return string(msg.Channel) + ":" + msg.ConversationID
	}
	return string(msg.Channel) + ":" + msg.From
}

func buildReplyRequest(inbound Message, conversation Conversation, reply string) SendRequest {
	req := SendRequest{
		Channel:        inbound.Channel.ReplyChannel(),
		From:           inbound.To,
		To:             []string{inbound.From},
		Body:           reply,
		ConversationID: conversation.ID,
		Metadata: map[string]string{
			"in_response_to": inbound.ID,
		},
	}
	if inbound.Channel == ChannelEmail {
		subject := strings.TrimSpace(inbound.Subject())
		if subject == "" {
			subject = conversation.Subject
		}
		if subject != "" && !strings.HasPrefix(strings.ToLower(subject), "re:") {
			subject = "Re: " + subject
		}
		req.Subject = subject
		req.InReplyTo = inbound.ExternalID
		if inbound.Metadata.Email != nil {
			req.References = append(req.References, inbound.Metadata.Email.References...)
		}
		if inbound.ExternalID != "" {
			req.References = append(req.References, inbound.ExternalID)
		}
	}
	return req
}

// recordOutbound stores a sent message and touches its conversation. Failures
// are logged only; the message already left through the provider.
func (s *Service) recordOutbound(ctx context.Context, req SendRequest, sent SendResult) {
	if s.messageStore == nil {
		return
	}
	now := s.now()
	msg := Message{
		ExternalID:     sent.MessageID,
		ConversationID: req.ConversationID,
		Channel:        req.Channel,
		Direction:      DirectionOutbound,
		From:           req.From,
		To:             strings.Join(req.To, ","),
		Body:           req.Body,
		ReceivedAt:     now,
		Metadata:       outboundMetadata(req, sent.Provider),
	}
	if _, err := s.messageStore.Store(ctx, msg); err != nil {
		s.logError(ctx, "outbound message store failed", map[string]any{
			"conversation_id": req.ConversationID,
			"provider":        sent.Provider,
			"error":           err.Error(),
		})
		return
	}
	if req.ConversationID == "" || s.conversationStore == nil {
		return
	}
	if err := s.conversationStore.Touch(ctx, req.ConversationID, now); err != nil {
		s.logWarn(ctx, "conversation touch failed", map[string]any{
			"conversation_id": req.ConversationID,
			"error":           err.Error(),
		})
	}
}

func outboundMetadata(req SendRequest, provider string) ChannelMetadata {
	switch req.Channel {
	case ChannelEmail:
		return ChannelMetadata{Email: &EmailMetadata{
			Carrier:    provider,
			Subject:    req.Subject,
			TextBody:   req.Body,
			HTMLBody:   req.HTMLBody,
			InReplyTo:  req.InReplyTo,
			References: append([]string(nil), req.References...),
		}}
	case ChannelVoice:
		return ChannelMetadata{Voice: &VoiceMetadata{Carrier: provider}}
	default:
		media := make([]MediaAttachment, 0, len(req.MediaURLs))
		for _, url := range req.MediaURLs {
			media = append(media, MediaAttachment{URL: url})
		}
		return ChannelMetadata{SMS: &SMSMetadata{Carrier: provider, Media: media}}
	}
}

// Send dispatches an explicit outbound request. A forced provider bypasses
// selection and disables fallback.
func (s *Service) Send(ctx context.Context, req SendRequest, forcedProvider string) (result SendResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"channel":    string(req.Channel),
		"recipients": len(req.To),
		"forced":     strings.TrimSpace(forcedProvider) != "",
	}
	defer func() {
		fields["provider"] = result.Provider
		fields["attempts"] = result.Attempts
		fields["success"] = result.Success
		s.observeOperation(ctx, startedAt, "send", err, fields)
	}()

	if s == nil {
		return SendResult{}, fmt.Errorf("core: service is nil")
	}
	if !req.Channel.Valid() {
		err = s.mapError(fmt.Errorf("core: unsupported channel %q", req.Channel))
		return SendResult{}, err
	}
	if len(compactStrings(req.To)) == 0 {
		err = s.mapError(fmt.Errorf("core: recipient is required"))
		return SendResult{}, err
	}
	router, ok := s.router(req.Channel)
	if !ok {
		return SendResult{Err: NoProviderConfiguredError(req.Channel)}, nil
	}
	result = router.Send(ctx, req, strings.TrimSpace(forcedProvider))
	if result.Success {
		s.recordOutbound(ctx, req, result)
	}
	return result, nil
}

func (s *Service) router(channel Channel) (MessageRouter, bool) {
	if s == nil {
		return nil, false
	}
	s.routersMu.RLock()
	defer s.routersMu.RUnlock()
	router, ok := s.routers[channel]
	return router, ok && router != nil
}

// RegisterProvider adds or replaces a provider on the router of channel.
func (s *Service) RegisterProvider(channel Channel, entry ProviderEntry) (err error) {
	ctx := context.Background()
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"channel":  string(channel),
		"provider": entry.Name,
		"priority": entry.Priority,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "register_provider", err, fields)
	}()

	if !channel.Valid() {
		err = s.mapError(fmt.Errorf("core: unsupported channel %q", channel))
		return err
	}
	if entry.Provider == nil {
		err = s.mapError(fmt.Errorf("core: provider is required"))
		return err
	}
	if scoped, ok := entry.Provider.(ChannelProvider); ok && !supportsChannel(scoped, channel) {
		err = s.mapError(fmt.Errorf("core: provider %q does not support channel %q", entry.Name, channel))
		return err
	}
	router, ok := s.router(channel)
	if !ok {
		err = s.mapError(fmt.Errorf("core: no router configured for channel %q", channel))
		return err
	}
	if err = router.Register(entry); err != nil {
		err = s.mapError(err)
		return err
	}
	return nil
}

func (s *Service) UnregisterProvider(channel Channel, name string) bool {
	router, ok := s.router(channel)
	if !ok {
		return false
	}
	return router.Unregister(name)
}

func (s *Service) Providers(channel Channel) []ProviderEntry {
	router, ok := s.router(channel)
	if !ok {
		return nil
	}
	return router.Entries()
}

func (s *Service) ProviderHealth(ctx context.Context) map[Channel]map[string]error {
	out := map[Channel]map[string]error{}
	for _, channel := range []Channel{ChannelSMS, ChannelVoice, ChannelEmail} {
		router, ok := s.router(channel)
		if !ok {
			continue
		}
		out[channel] = router.HealthCheck(ctx)
	}
	return out
}

func supportsChannel(provider ChannelProvider, channel Channel) bool {
	for _, supported := range provider.Channels() {
		if supported == channel {
			return true
		}
	}
	return false
}

func (s *Service) allowlist(scope AllowlistScope) (Allowlist, error) {
	if !scope.Valid() {
		return nil, fmt.Errorf("core: invalid allowlist scope %q", scope)
	}
	list, ok := s.allowlists[scope]
	if !ok || list == nil {
		return nil, fmt.Errorf("core: allowlist %q not configured", scope)
	}
	return list, nil
}

func (s *Service) AddAllowlistEntry(ctx context.Context, scope AllowlistScope, identifier string, addedBy string) (entry AllowlistEntry, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"scope": string(scope), "added_by": addedBy, "identifier": identifier}
	defer func() {
		s.observeOperation(ctx, startedAt, "allowlist_add", err, fields)
	}()

	list, err := s.allowlist(scope)
	if err != nil {
		err = s.mapError(err)
		return AllowlistEntry{}, err
	}
	entry, err = list.Add(ctx, identifier, addedBy)
	if err != nil {
		err = s.mapError(err)
		return AllowlistEntry{}, err
	}
	return entry, nil
}

func (s *Service) RemoveAllowlistEntry(ctx context.Context, scope AllowlistScope, identifier string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"scope": string(scope), "identifier": identifier}
	defer func() {
		s.observeOperation(ctx, startedAt, "allowlist_remove", err, fields)
	}()

	list, err := s.allowlist(scope)
	if err != nil {
		err = s.mapError(err)
		return err
	}
	if err = list.Remove(ctx, identifier); err != nil {
		err = s.mapError(err)
		return err
	}
	return nil
}

func (s *Service) ClearAllowlist(ctx context.Context, scope AllowlistScope) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"scope": string(scope)}
	defer func() {
		s.observeOperation(ctx, startedAt, "allowlist_clear", err, fields)
	}()

	list, err := s.allowlist(scope)
	if err != nil {
		err = s.mapError(err)
		return err
	}
	if err = list.Clear(ctx); err != nil {
		err = s.mapError(err)
		return err
	}
	return nil
}

func (s *Service) ListAllowlist(scope AllowlistScope) ([]AllowlistEntry, error) {
	list, err := s.allowlist(scope)
	if err != nil {
		return nil, s.mapError(err)
	}
	return list.List(), nil
}

func (s *Service) IsAllowlisted(scope AllowlistScope, identifier string) bool {
	list, err := s.allowlist(scope)
	if err != nil {
		return false
	}
	return list.Has(identifier)
}

func (s *Service) ConfigureRateLimit(limit int, window time.Duration) error {
	if s == nil || s.rateLimiter == nil {
		return s.mapError(fmt.Errorf("core: rate limiter not configured"))
	}
	if err := s.rateLimiter.Configure(limit, window); err != nil {
		return s.mapError(err)
	}
	s.logInfo(context.Background(), "rate limit configured", map[string]any{
		"limit":     limit,
		"window_ms": window.Milliseconds(),
	})
	return nil
}

func (s *Service) RateLimitRemaining(key string) int {
	if s == nil || s.rateLimiter == nil {
		return 0
	}
	return s.rateLimiter.Remaining(key)
}

func (s *Service) SearchMessages(ctx context.Context, filter MessageFilter) ([]Message, error) {
	if s == nil || s.messageStore == nil {
		return nil, s.mapError(fmt.Errorf("core: message store not configured"))
	}
	messages, err := s.messageStore.Search(ctx, filter)
	if err != nil {
		return nil, s.mapError(err)
	}
	return messages, nil
}

func (s *Service) GetMessage(ctx context.Context, id string) (Message, error) {
	if s == nil || s.messageStore == nil {
		return Message{}, s.mapError(fmt.Errorf("core: message store not configured"))
	}
	msg, err := s.messageStore.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return Message{}, s.mapError(err)
	}
	return msg, nil
}

func (s *Service) GetConversation(ctx context.Context, id string) (Conversation, error) {
	if s == nil || s.conversationStore == nil {
		return Conversation{}, s.mapError(fmt.Errorf("core: conversation store not configured"))
	}
	conversation, err := s.conversationStore.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return Conversation{}, s.mapError(err)
	}
	return conversation, nil
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
