package inbound

import (
	"context"
	"net/http"

	"github.com/goliatone/go-messaging/core"
)

// Ingester is the part of core.Service the channel handlers need.
type Ingester interface {
	Ingest(ctx context.Context, channel core.Channel, carrier string, raw core.RawPayload) (core.IngestResult, error)
}

// IngestHandler feeds one channel's webhooks into the ingest pipeline.
type IngestHandler struct {
	channel  core.Channel
	ingester Ingester
}

func NewIngestHandler(channel core.Channel, ingester Ingester) *IngestHandler {
	return &IngestHandler{channel: channel, ingester: ingester}
}

// ChannelHandlers builds one handler for every supported channel.
func ChannelHandlers(ingester Ingester) []core.InboundHandler {
	return []core.InboundHandler{
		NewIngestHandler(core.ChannelSMS, ingester),
		NewIngestHandler(core.ChannelVoice, ingester),
		NewIngestHandler(core.ChannelEmail, ingester),
	}
}

func (h *IngestHandler) Channel() core.Channel {
	return h.channel
}

func (h *IngestHandler) Handle(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if h.ingester == nil {
		return core.InboundResult{}, inboundInternal("inbound: ingest handler has no ingester", nil)
	}
	if req.Payload.Headers == nil && len(req.Headers) > 0 {
		req.Payload.Headers = req.Headers
	}
	result, err := h.ingester.Ingest(ctx, h.channel, req.Carrier, req.Payload)
	if err != nil {
		return core.InboundResult{}, err
	}
	return core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Ingest:     result,
		Metadata: map[string]any{
			"conversation_id": result.ConversationID,
			"message_id":      result.MessageID,
			"auto_replied":    result.AutoReplied,
		},
	}, nil
}

var _ core.InboundHandler = (*IngestHandler)(nil)
var _ core.IdempotencyClaimStore = (*InMemoryClaimStore)(nil)
