package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-messaging/core"
)

const DefaultKeyTTL = 24 * time.Hour

// Verifier authenticates a carrier webhook before any work is done.
type Verifier interface {
	Verify(ctx context.Context, req core.InboundRequest) error
}

type IdempotencyKeyExtractor func(req core.InboundRequest) (string, error)

// Dispatcher routes carrier webhooks to the handler registered for their
// channel. Carrier retries of a delivery that already completed are
// acknowledged without running the handler again.
type Dispatcher struct {
	Verifier   Verifier
	Store      core.IdempotencyClaimStore
	ExtractKey IdempotencyKeyExtractor
	KeyTTL     time.Duration
	Logger     core.Logger

	mu       sync.RWMutex
	handlers map[core.Channel]core.InboundHandler
}

func NewDispatcher(verifier Verifier, store core.IdempotencyClaimStore) *Dispatcher {
	return &Dispatcher{
		Verifier:   verifier,
		Store:      store,
		ExtractKey: DefaultIdempotencyKeyExtractor,
		KeyTTL:     DefaultKeyTTL,
		handlers:   map[core.Channel]core.InboundHandler{},
	}
}

func (d *Dispatcher) Register(handler core.InboundHandler) error {
	if d == nil {
		return inboundInternal("inbound: dispatcher is nil", nil)
	}
	if handler == nil {
		return inboundBadInput("inbound: handler is nil", nil)
	}
	channel := handler.Channel()
	if !channel.Valid() {
		return inboundBadInput(
			fmt.Sprintf("inbound: unsupported channel %q", channel),
			map[string]any{"channel": string(channel)},
		)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handlers == nil {
		d.handlers = map[core.Channel]core.InboundHandler{}
	}
	if _, exists := d.handlers[channel]; exists {
		return inboundError(
			fmt.Sprintf("inbound: handler already registered for channel %q", channel),
			goerrors.CategoryConflict,
			http.StatusConflict,
			core.ServiceErrorConflict,
			map[string]any{"channel": string(channel)},
		)
	}
	d.handlers[channel] = handler
	return nil
}

func (d *Dispatcher) Dispatch(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if d == nil {
		return core.InboundResult{}, inboundInternal("inbound: dispatcher is nil", nil)
	}
	req.Carrier = strings.TrimSpace(strings.ToLower(req.Carrier))
	req.Channel = core.Channel(strings.TrimSpace(strings.ToLower(string(req.Channel))))
	fields := map[string]any{"carrier": req.Carrier, "channel": string(req.Channel)}
	if req.Carrier == "" {
		return core.InboundResult{}, inboundBadInput("inbound: carrier is required", fields)
	}
	if !req.Channel.Valid() {
		return core.InboundResult{}, inboundBadInput(
			fmt.Sprintf("inbound: unsupported channel %q", req.Channel),
			fields,
		)
	}
	if d.Verifier != nil {
		if err := d.Verifier.Verify(ctx, req); err != nil {
			return core.InboundResult{
					Accepted:   false,
					StatusCode: http.StatusUnauthorized,
					Metadata:   mergeMetadata(fields, map[string]any{"rejected": true}),
				}, inboundWrapError(
					err,
					goerrors.CategoryAuth,
					"inbound: request verification failed",
					http.StatusUnauthorized,
					core.ServiceErrorUnauthorized,
					fields,
				)
		}
	}

	handler := d.handlerFor(req.Channel)
	if handler == nil {
		return core.InboundResult{}, inboundError(
			fmt.Sprintf("inbound: no handler registered for channel %q", req.Channel),
			goerrors.CategoryNotFound,
			http.StatusNotFound,
			core.ServiceErrorNotFound,
			fields,
		)
	}

	claimID := ""
	if d.Store != nil {
		extractor := d.ExtractKey
		if extractor == nil {
			extractor = DefaultIdempotencyKeyExtractor
		}
		key, err := extractor(req)
		if err != nil {
			return core.InboundResult{}, inboundWrapError(
				err,
				goerrors.CategoryBadInput,
				"inbound: resolve idempotency key",
				http.StatusBadRequest,
				core.ServiceErrorBadInput,
				fields,
			)
		}
		var accepted bool
		claimID, accepted, err = d.Store.Claim(ctx, ClaimKey(req.Carrier, req.Channel, key), d.keyTTL())
		if err != nil {
			return core.InboundResult{}, inboundWrapError(
				err,
				goerrors.CategoryOperation,
				"inbound: idempotency claim failed",
				http.StatusInternalServerError,
				core.ServiceErrorOperationFailed,
				mergeMetadata(fields, map[string]any{"idempotency": key}),
			)
		}
		if !accepted {
			d.logDebug("inbound delivery deduped", "carrier", req.Carrier, "channel", req.Channel, "idempotency", key)
			return core.InboundResult{
				Accepted:   true,
				StatusCode: http.StatusOK,
				Metadata:   mergeMetadata(fields, map[string]any{"deduped": true}),
			}, nil
		}
	}

	result, err := handler.Handle(ctx, req)
	if err != nil {
		if isPermanent(err) {
			// A payload the carrier will resend unchanged is never retried.
			if completeErr := d.complete(ctx, claimID, fields); completeErr != nil {
				return core.InboundResult{}, errors.Join(err, completeErr)
			}
			return core.InboundResult{Accepted: false, StatusCode: http.StatusBadRequest, Metadata: fields}, err
		}
		handlerErr := inboundWrapError(
			err,
			goerrors.CategoryOperation,
			"inbound: handler execution failed",
			http.StatusBadGateway,
			core.ServiceErrorOperationFailed,
			fields,
		)
		if failErr := d.fail(ctx, claimID, err, fields); failErr != nil {
			return core.InboundResult{}, errors.Join(handlerErr, failErr)
		}
		return core.InboundResult{}, handlerErr
	}
	if !result.Accepted || result.StatusCode >= http.StatusInternalServerError {
		retryErr := inboundError(
			fmt.Sprintf("inbound: handler returned retryable status %d", result.StatusCode),
			goerrors.CategoryOperation,
			http.StatusBadGateway,
			core.ServiceErrorOperationFailed,
			mergeMetadata(fields, map[string]any{"status_code": result.StatusCode}),
		)
		if failErr := d.fail(ctx, claimID, retryErr, fields); failErr != nil {
			return result, errors.Join(retryErr, failErr)
		}
		return result, retryErr
	}
	if err := d.complete(ctx, claimID, fields); err != nil {
		return core.InboundResult{}, err
	}
	result.Metadata = mergeMetadata(result.Metadata, fields)
	return result, nil
}

// ClaimKey scopes a carrier delivery id so two carriers cannot collide.
func ClaimKey(carrier string, channel core.Channel, key string) string {
	return strings.TrimSpace(strings.ToLower(carrier)) + ":" + string(channel) + ":" + strings.TrimSpace(key)
}

var payloadIDFields = []string{
	"MessageSid",
	"SmsSid",
	"CallSid",
	"Message-Id",
	"message-id",
	"Message-ID",
}

// DefaultIdempotencyKeyExtractor resolves the carrier's delivery id from
// request metadata, delivery headers, then the payload itself.
func DefaultIdempotencyKeyExtractor(req core.InboundRequest) (string, error) {
	if req.Metadata != nil {
		for _, name := range []string{"idempotency_key", "delivery_id", "message_id"} {
			if value := trimAny(req.Metadata[name]); value != "" {
				return value, nil
			}
		}
	}
	for _, name := range []string{"idempotency-key", "i-twilio-idempotency-token", "x-message-id"} {
		if value := headerValue(req.Headers, name); value != "" {
			return value, nil
		}
	}
	for _, name := range payloadIDFields {
		if value := strings.TrimSpace(req.Payload.Field(name)); value != "" {
			return value, nil
		}
	}
	if value := headerValue(req.Payload.Headers, "message-id"); value != "" {
		return value, nil
	}
	if value := headerBlockValue(req.Payload.Field("headers"), "message-id"); value != "" {
		return value, nil
	}
	if len(req.Payload.JSON) > 0 {
		var envelope struct {
			Data struct {
				ID      string `json:"id"`
				Payload struct {
					ID string `json:"id"`
				} `json:"payload"`
			} `json:"data"`
		}
		if err := json.Unmarshal(req.Payload.JSON, &envelope); err == nil {
			if id := strings.TrimSpace(envelope.Data.Payload.ID); id != "" {
				return id, nil
			}
			if id := strings.TrimSpace(envelope.Data.ID); id != "" {
				return id, nil
			}
		}
	}
	return "", inboundBadInput("inbound: idempotency key is required", map[string]any{
		"carrier": req.Carrier,
		"channel": string(req.Channel),
	})
}

func (d *Dispatcher) complete(ctx context.Context, claimID string, fields map[string]any) error {
	if d.Store == nil || claimID == "" {
		return nil
	}
	if err := d.Store.Complete(ctx, claimID); err != nil {
		return inboundWrapError(
			err,
			goerrors.CategoryOperation,
			"inbound: complete idempotency claim",
			http.StatusInternalServerError,
			core.ServiceErrorOperationFailed,
			mergeMetadata(fields, map[string]any{"claim_id": claimID}),
		)
	}
	return nil
}

func (d *Dispatcher) fail(ctx context.Context, claimID string, cause error, fields map[string]any) error {
	if d.Store == nil || claimID == "" {
		return nil
	}
	if err := d.Store.Fail(ctx, claimID, cause, time.Time{}); err != nil {
		return inboundWrapError(
			err,
			goerrors.CategoryOperation,
			"inbound: mark idempotency claim failed",
			http.StatusInternalServerError,
			core.ServiceErrorInternal,
			mergeMetadata(fields, map[string]any{"claim_id": claimID}),
		)
	}
	return nil
}

func (d *Dispatcher) keyTTL() time.Duration {
	if d != nil && d.KeyTTL > 0 {
		return d.KeyTTL
	}
	return DefaultKeyTTL
}

func (d *Dispatcher) handlerFor(channel core.Channel) core.InboundHandler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handlers[channel]
}

func (d *Dispatcher) logDebug(msg string, args ...any) {
	if d.Logger != nil {
		d.Logger.Debug(msg, args...)
	}
}

func isPermanent(err error) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		var malformed *core.MalformedPayloadError
		return errors.As(err, &malformed)
	}
	return rich.Category == goerrors.CategoryBadInput
}

func trimAny(value any) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func mergeMetadata(base map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for key, value := range base {
		out[key] = value
	}
	for key, value := range extra {
		out[key] = value
	}
	return out
}

// headerBlockValue reads one header from a raw RFC 5322 header block.
func headerBlockValue(block string, key string) string {
	for _, line := range strings.Split(block, "\n") {
		name, value, ok := strings.Cut(line, ":")
		if ok && strings.EqualFold(strings.TrimSpace(name), key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func headerValue(headers map[string]string, key string) string {
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
