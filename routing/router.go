package routing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-messaging/core"
	"github.com/goliatone/go-messaging/ratelimit"
)

// Entry is a provider registered under a name with routing hints.
type Entry = core.ProviderEntry

// Attempt outcomes reported in logs and metrics.
const (
	OutcomeSent      = "sent"
	OutcomeFailed    = "failed"
	OutcomeThrottled = "throttled"
)

type Option func(*Router)

func WithLogger(logger core.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithThrottlePolicy makes every attempt consult policy before and after the
// provider call.
func WithThrottlePolicy(policy core.ThrottlePolicy) Option {
	return func(r *Router) {
		r.policy = policy
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(r *Router) {
		if recorder != nil {
			r.metrics = recorder
		}
	}
}

// Router picks a provider for a send request and falls back through the
// remaining providers in priority order when an attempt fails.
type Router struct {
	channel core.Channel
	logger  core.Logger
	policy  core.ThrottlePolicy
	metrics core.MetricsRecorder

	mu      sync.RWMutex
	entries map[string]Entry
	ordered []Entry
}

func NewRouter(channel core.Channel, opts ...Option) *Router {
	router := &Router{
		channel: channel,
		logger:  glog.Nop(),
		metrics: core.NopMetricsRecorder{},
		entries: map[string]Entry{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(router)
		}
	}
	return router
}

func (r *Router) Channel() core.Channel {
	return r.channel
}

// Register adds entry or replaces the entry with the same name.
func (r *Router) Register(entry Entry) error {
	entry.Name = strings.TrimSpace(entry.Name)
	if entry.Name == "" {
		return fmt.Errorf("routing: provider name is required")
	}
	if entry.Provider == nil {
		return fmt.Errorf("routing: provider %q has no implementation", entry.Name)
	}
	entry.Tags = lowerSet(entry.Tags)
	entry.Domains = lowerSet(entry.Domains)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.Name] = entry
	r.rebuild()
	return nil
}

func (r *Router) Unregister(name string) bool {
	name = strings.TrimSpace(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; !ok {
		return false
	}
	delete(r.entries, name)
	r.rebuild()
	return true
}

// Entries returns a copy of the registry in routing order.
func (r *Router) Entries() []Entry {
	return r.snapshot()
}

// Select applies the routing rules in order: a registered forced name, the
// first entry sharing a request tag, the first entry serving the single
// recipient's domain, then the primary entry.
func (r *Router) Select(req core.SendRequest, forcedName string) (Entry, bool) {
	return selectEntry(r.snapshot(), req, forcedName)
}

func (r *Router) Send(ctx context.Context, req core.SendRequest, forcedName string) core.SendResult {
	if req.Channel == "" {
		req.Channel = r.channel
	}
	entries := r.snapshot()
	first, ok := selectEntry(entries, req, forcedName)
	if !ok {
		return core.SendResult{Err: core.NoProviderConfiguredError(req.Channel)}
	}

	candidates := []Entry{first}
	forced := isForced(entries, forcedName)
	if !forced {
		for _, entry := range entries {
			if entry.Name != first.Name {
				candidates = append(candidates, entry)
			}
		}
	}

	var (
		last    Entry
		lastErr error
		lastRes core.SendReceipt
	)
	attempts := 0
	for _, entry := range candidates {
		if attempts > 0 && ctx.Err() != nil {
			break
		}
		attempts++
		last = entry
		receipt, outcome, err := r.attempt(ctx, entry, req)
		r.logAttempt(ctx, entry, req, attempts, outcome, err)
		if err == nil {
			return core.SendResult{
				Success:   true,
				MessageID: receipt.MessageID,
				Provider:  entry.Name,
				Attempts:  attempts,
			}
		}
		lastErr = err
		lastRes = receipt
	}

	return core.SendResult{
		Provider: last.Name,
		Attempts: attempts,
		Err:      sendError(last.Name, lastRes, lastErr),
	}
}

func (r *Router) attempt(ctx context.Context, entry Entry, req core.SendRequest) (core.SendReceipt, string, error) {
	key := ratelimit.KeyFor(entry.Name, req)
	if r.policy != nil {
		if err := r.policy.BeforeCall(ctx, key); err != nil {
			return core.SendReceipt{}, OutcomeThrottled, err
		}
	}

	receipt, err := entry.Provider.Send(ctx, req)
	if err == nil && receipt.StatusCode >= 400 {
		err = fmt.Errorf("routing: provider returned status %d", receipt.StatusCode)
	}

	if r.policy != nil {
		meta := responseMeta(receipt, err)
		if meta.StatusCode > 0 || len(meta.Headers) > 0 {
			if policyErr := r.policy.AfterCall(ctx, key, meta); policyErr != nil {
				r.logger.Warn("throttle state update failed",
					"provider", entry.Name,
					"channel", string(req.Channel),
					"error", policyErr.Error(),
				)
			}
		}
	}
	if err != nil {
		return receipt, OutcomeFailed, err
	}
	return receipt, OutcomeSent, nil
}

func (r *Router) logAttempt(ctx context.Context, entry Entry, req core.SendRequest, attempt int, outcome string, err error) {
	args := []any{
		"provider", entry.Name,
		"attempt", attempt,
		"channel", string(req.Channel),
		"recipients", len(req.To),
		"outcome", outcome,
	}
	if err != nil {
		args = append(args, "error", err.Error())
		r.logger.Warn("provider send attempt failed", args...)
	} else {
		r.logger.Info("provider send attempt succeeded", args...)
	}
	r.metrics.IncCounter(ctx, "messaging.router.attempt.total", 1, map[string]string{
		"provider": entry.Name,
		"channel":  string(req.Channel),
		"outcome":  outcome,
	})
}

// HealthCheck runs every registered provider's check concurrently.
func (r *Router) HealthCheck(ctx context.Context) map[string]error {
	entries := r.snapshot()
	out := make(map[string]error, len(entries))
	if len(entries) == 0 {
		return out
	}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, entry := range entries {
		wg.Add(1)
		go func(entry Entry) {
			defer wg.Done()
			err := entry.Provider.HealthCheck(ctx)
			mu.Lock()
			out[entry.Name] = err
			mu.Unlock()
		}(entry)
	}
	wg.Wait()
	return out
}

func (r *Router) snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// rebuild refreshes the ordered view. Callers hold the write lock.
func (r *Router) rebuild() {
	ordered := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		ordered = append(ordered, entry)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Priority == ordered[j].Priority {
			return ordered[i].Name < ordered[j].Name
		}
		return ordered[i].Priority < ordered[j].Priority
	})
	r.ordered = ordered
}

func selectEntry(entries []Entry, req core.SendRequest, forcedName string) (Entry, bool) {
	if len(entries) == 0 {
		return Entry{}, false
	}
	if forcedName = strings.TrimSpace(forcedName); forcedName != "" {
		for _, entry := range entries {
			if entry.Name == forcedName {
				return entry, true
			}
		}
	}
	if tags := lowerSet(req.Tags); len(tags) > 0 {
		for _, entry := range entries {
			if intersects(entry.Tags, tags) {
				return entry, true
			}
		}
	}
	if domain, ok := req.RecipientDomain(); ok {
		for _, entry := range entries {
			if contains(entry.Domains, domain) {
				return entry, true
			}
		}
	}
	return entries[0], true
}

func isForced(entries []Entry, forcedName string) bool {
	forcedName = strings.TrimSpace(forcedName)
	if forcedName == "" {
		return false
	}
	for _, entry := range entries {
		if entry.Name == forcedName {
			return true
		}
	}
	return false
}

func responseMeta(receipt core.SendReceipt, err error) core.ProviderResponseMeta {
	meta := core.ProviderResponseMeta{
		StatusCode: receipt.StatusCode,
		Headers:    receipt.Headers,
	}
	var sendErr *core.ProviderSendError
	if errors.As(err, &sendErr) {
		if sendErr.StatusCode > 0 {
			meta.StatusCode = sendErr.StatusCode
		}
		if len(sendErr.Headers) > 0 {
			meta.Headers = sendErr.Headers
		}
		if sendErr.RetryAfter > 0 {
			retryAfter := sendErr.RetryAfter
			meta.RetryAfter = &retryAfter
		}
	}
	if meta.StatusCode == 0 && err == nil {
		meta.StatusCode = 200
	}
	return meta
}

func sendError(provider string, receipt core.SendReceipt, err error) error {
	var sendErr *core.ProviderSendError
	if errors.As(err, &sendErr) {
		return sendErr
	}
	return &core.ProviderSendError{
		Provider:   provider,
		StatusCode: receipt.StatusCode,
		Headers:    receipt.Headers,
		Cause:      err,
	}
}

func lowerSet(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := map[string]struct{}{}
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func intersects(a, b []string) bool {
	for _, left := range a {
		if contains(b, left) {
			return true
		}
	}
	return false
}

func contains(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

var _ core.MessageRouter = (*Router)(nil)
