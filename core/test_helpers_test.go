package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

// stubNormalizer returns a fixed message or error.
type stubNormalizer struct {
	msg Message
	err error
}

func (n stubNormalizer) Normalize(_ context.Context, channel Channel, _ string, _ RawPayload) (Message, error) {
	if n.err != nil {
		return Message{}, n.err
	}
	msg := n.msg
	if msg.Channel == "" {
		msg.Channel = channel
	}
	return msg, nil
}

type stubReconciler struct {
	conversation Conversation
	err          error
	calls        int
}

func (r *stubReconciler) Reconcile(_ context.Context, msg Message) (Conversation, error) {
	r.calls++
	if r.err != nil {
		return Conversation{}, r.err
	}
	conv := r.conversation
	if conv.Channel == "" {
		conv.Channel = msg.Channel
	}
	return conv, nil
}

type memoryMessageStore struct {
	mu       sync.Mutex
	messages []Message
	seq      int
}

func (s *memoryMessageStore) Store(_ context.Context, msg Message) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if msg.ID == "" {
		msg.ID = fmt.Sprintf("msg-%d", s.seq)
	}
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *memoryMessageStore) Get(_ context.Context, id string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.messages {
		if msg.ID == id {
			return msg, nil
		}
	}
	return Message{}, ErrNotFound
}

func (s *memoryMessageStore) Search(_ context.Context, filter MessageFilter) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Message{}
	for _, msg := range s.messages {
		if filter.Channel != "" && msg.Channel != filter.Channel {
			continue
		}
		if filter.Direction != "" && msg.Direction != filter.Direction {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *memoryMessageStore) byDirection(direction Direction) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Message{}
	for _, msg := range s.messages {
		if msg.Direction == direction {
			out = append(out, msg)
		}
	}
	return out
}

type memoryConversationStore struct {
	mu      sync.Mutex
	touched map[string]time.Time
	items   map[string]Conversation
}

func (s *memoryConversationStore) CreateOrGet(_ context.Context, conv Conversation) (Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.items == nil {
		s.items = map[string]Conversation{}
	}
	s.items[conv.ID] = conv
	return conv, true, nil
}

func (s *memoryConversationStore) Get(_ context.Context, id string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.items[id]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	return conv, nil
}

func (s *memoryConversationStore) ListRecent(context.Context, Channel, int) ([]Conversation, error) {
	return nil, nil
}

func (s *memoryConversationStore) Touch(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.touched == nil {
		s.touched = map[string]time.Time{}
	}
	s.touched[id] = at
	return nil
}

type stubAllowlist struct {
	mu          sync.Mutex
	scope       AllowlistScope
	entries     map[string]AllowlistEntry
	initialized int
}

func newStubAllowlist(scope AllowlistScope, identifiers ...string) *stubAllowlist {
	list := &stubAllowlist{scope: scope, entries: map[string]AllowlistEntry{}}
	for _, identifier := range identifiers {
		list.entries[strings.ToLower(identifier)] = AllowlistEntry{Identifier: strings.ToLower(identifier), Scope: scope}
	}
	return list
}

func (l *stubAllowlist) Scope() AllowlistScope { return l.scope }

func (l *stubAllowlist) Initialize(context.Context) error {
	l.mu.Lock()
	l.initialized++
	l.mu.Unlock()
	return nil
}

func (l *stubAllowlist) Add(_ context.Context, identifier string, addedBy string) (AllowlistEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry := AllowlistEntry{Identifier: strings.ToLower(identifier), Scope: l.scope, AddedBy: addedBy}
	l.entries[entry.Identifier] = entry
	return entry, nil
}

func (l *stubAllowlist) Has(identifier string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[strings.ToLower(identifier)]
	return ok
}

func (l *stubAllowlist) Remove(_ context.Context, identifier string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, strings.ToLower(identifier))
	return nil
}

func (l *stubAllowlist) Clear(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = map[string]AllowlistEntry{}
	return nil
}

func (l *stubAllowlist) List() []AllowlistEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AllowlistEntry, 0, len(l.entries))
	for _, entry := range l.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out
}

type stubRateLimiter struct {
	allow      bool
	keys       []string
	limit      int
	window     time.Duration
	cleanupHit int
}

func (l *stubRateLimiter) CheckLimit(key string) bool {
	l.keys = append(l.keys, key)
	return l.allow
}

func (l *stubRateLimiter) Remaining(string) int { return 0 }

func (l *stubRateLimiter) Cleanup() int {
	l.cleanupHit++
	return 2
}

func (l *stubRateLimiter) Configure(limit int, window time.Duration) error {
	if limit <= 0 || window <= 0 {
		return fmt.Errorf("ratelimit: limit and window must be positive")
	}
	l.limit = limit
	l.window = window
	return nil
}

type stubRouter struct {
	mu       sync.Mutex
	entries  []ProviderEntry
	result   SendResult
	requests []SendRequest
	forced   []string
	health   map[string]error
}

func (r *stubRouter) Register(entry ProviderEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *stubRouter) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, entry := range r.entries {
		if entry.Name == name {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (r *stubRouter) Entries() []ProviderEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ProviderEntry(nil), r.entries...)
}

func (r *stubRouter) Select(SendRequest, string) (ProviderEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return ProviderEntry{}, false
	}
	return r.entries[0], true
}

func (r *stubRouter) Send(_ context.Context, req SendRequest, forced string) SendResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	r.forced = append(r.forced, forced)
	return r.result
}

func (r *stubRouter) HealthCheck(context.Context) map[string]error {
	return r.health
}

type stubProvider struct {
	name     string
	channels []Channel
}

func (p stubProvider) Name() string { return p.name }

func (p stubProvider) Send(context.Context, SendRequest) (SendReceipt, error) {
	return SendReceipt{MessageID: p.name + "-1"}, nil
}

func (p stubProvider) HealthCheck(context.Context) error { return nil }

func (p stubProvider) Channels() []Channel { return p.channels }

type stubDelivery struct {
	msg   *JobExecutionMessage
	acked bool
	nacks []JobNackOptions
}

func (d *stubDelivery) Message() *JobExecutionMessage { return d.msg }

func (d *stubDelivery) Ack(context.Context) error {
	d.acked = true
	return nil
}

func (d *stubDelivery) Nack(_ context.Context, opts JobNackOptions) error {
	d.nacks = append(d.nacks, opts)
	return nil
}

type stubDequeuer struct {
	delivery JobDelivery
	err      error
}

func (d stubDequeuer) Dequeue(context.Context) (JobDelivery, error) {
	return d.delivery, d.err
}

type recordingEnqueuer struct {
	messages []*JobExecutionMessage
}

func (e *recordingEnqueuer) Enqueue(_ context.Context, msg *JobExecutionMessage) error {
	e.messages = append(e.messages, msg)
	return nil
}

type ingestFixture struct {
	svc           *Service
	messages      *memoryMessageStore
	conversations *memoryConversationStore
	reconciler    *stubReconciler
	limiter       *stubRateLimiter
	smsRouter     *stubRouter
	emailRouter   *stubRouter
	smsAllowlist  *stubAllowlist
}

func newIngestFixture(msg Message, cfg Config, opts ...Option) (*ingestFixture, error) {
	fixture := &ingestFixture{
		messages:      &memoryMessageStore{},
		conversations: &memoryConversationStore{},
		reconciler:    &stubReconciler{conversation: Conversation{ID: "conv-1", Subject: "Quote"}},
		limiter:       &stubRateLimiter{allow: true},
		smsRouter:     &stubRouter{result: SendResult{Success: true, MessageID: "SM-out", Provider: "twilio", Attempts: 1}},
		emailRouter:   &stubRouter{result: SendResult{Success: true, MessageID: "<out@mail>", Provider: "mailgun", Attempts: 1}},
		smsAllowlist:  newStubAllowlist(AllowlistScopeSMS, "+12345678900"),
	}
	base := []Option{
		WithLogger(stubLogger{}),
		WithPayloadNormalizer(stubNormalizer{msg: msg}),
		WithReconciler(fixture.reconciler),
		WithMessageStore(fixture.messages),
		WithConversationStore(fixture.conversations),
		WithRateLimiter(fixture.limiter),
		WithAllowlist(fixture.smsAllowlist),
		WithAllowlist(newStubAllowlist(AllowlistScopeEmail, "jane@example.com")),
		WithRouter(ChannelSMS, fixture.smsRouter),
		WithRouter(ChannelEmail, fixture.emailRouter),
		WithReplyGenerator(StaticReplyGenerator{Text: "thanks"}),
	}
	svc, err := NewService(cfg, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	svc.Now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	fixture.svc = svc
	return fixture, nil
}

func inboundSMS() Message {
	return Message{
		ExternalID: "SM123",
		Channel:    ChannelSMS,
		From:       "+12345678900",
		To:         "+19998887777",
		Body:       "hi",
		ReceivedAt: time.Date(2026, 3, 1, 11, 59, 0, 0, time.UTC),
		Metadata:   ChannelMetadata{SMS: &SMSMetadata{Carrier: "twilio"}},
	}
}
