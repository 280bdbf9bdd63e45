package core

import (
	"context"
	"strings"
)

// StaticReplyGenerator answers every inbound message with the same text.
type StaticReplyGenerator struct {
	Text string
}

func (g StaticReplyGenerator) Generate(context.Context, Message, string) (string, error) {
	return strings.TrimSpace(g.Text), nil
}

// ReplyGeneratorFunc adapts a function to ReplyGenerator.
type ReplyGeneratorFunc func(ctx context.Context, msg Message, conversationID string) (string, error)

func (f ReplyGeneratorFunc) Generate(ctx context.Context, msg Message, conversationID string) (string, error) {
	if f == nil {
		return "", nil
	}
	return f(ctx, msg, conversationID)
}
