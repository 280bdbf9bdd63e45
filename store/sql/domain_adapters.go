package sqlstore

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/goliatone/go-messaging/core"
)

// participantsColumn stores every endpoint as "|a|b|c|" so a single LIKE
// finds a participant in from, to or cc.
func participantsColumn(msg core.Message) string {
	parts := msg.Participants()
	if len(parts) == 0 {
		return ""
	}
	lowered := make([]string, 0, len(parts))
	for _, part := range parts {
		lowered = append(lowered, strings.ToLower(part))
	}
	return "|" + strings.Join(lowered, "|") + "|"
}

func newMessageRecord(msg core.Message) (*messageRecord, error) {
	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return nil, err
	}
	return &messageRecord{
		ID:             msg.ID,
		ExternalID:     strings.TrimSpace(msg.ExternalID),
		ConversationID: strings.TrimSpace(msg.ConversationID),
		Channel:        string(msg.Channel),
		Direction:      string(msg.Direction),
		FromAddr:       msg.From,
		ToAddr:         msg.To,
		Participants:   participantsColumn(msg),
		Subject:        msg.Subject(),
		Body:           msg.Body,
		Metadata:       string(metadata),
		ReceivedAt:     msg.ReceivedAt.UTC(),
	}, nil
}

func (r *messageRecord) toDomain() (core.Message, error) {
	msg := core.Message{
		ID:             r.ID,
		ExternalID:     r.ExternalID,
		ConversationID: r.ConversationID,
		Channel:        core.Channel(r.Channel),
		Direction:      core.Direction(r.Direction),
		From:           r.FromAddr,
		To:             r.ToAddr,
		Body:           r.Body,
		ReceivedAt:     r.ReceivedAt.UTC(),
	}
	if strings.TrimSpace(r.Metadata) != "" {
		if err := json.Unmarshal([]byte(r.Metadata), &msg.Metadata); err != nil {
			return core.Message{}, err
		}
	}
	return msg, nil
}

func newConversationRecord(conv core.Conversation) *conversationRecord {
	record := &conversationRecord{
		ID:            conv.ID,
		Channel:       string(conv.Channel),
		ParticipantA:  conv.Participants[0],
		ParticipantB:  conv.Participants[1],
		Subject:       conv.Subject,
		CreatedAt:     conv.CreatedAt.UTC(),
		LastMessageAt: conv.LastMessageAt.UTC(),
	}
	if key := strings.TrimSpace(conv.PairKey); key != "" {
		record.PairKey = &key
	}
	return record
}

func (r *conversationRecord) toDomain() core.Conversation {
	conv := core.Conversation{
		ID:            r.ID,
		Channel:       core.Channel(r.Channel),
		Participants:  [2]string{r.ParticipantA, r.ParticipantB},
		Subject:       r.Subject,
		CreatedAt:     r.CreatedAt.UTC(),
		LastMessageAt: r.LastMessageAt.UTC(),
	}
	if r.PairKey != nil {
		conv.PairKey = *r.PairKey
	}
	return conv
}

func (r *allowlistEntryRecord) toDomain() core.AllowlistEntry {
	return core.AllowlistEntry{
		Identifier: r.Identifier,
		Scope:      core.AllowlistScope(r.Scope),
		AddedBy:    r.AddedBy,
		AddedAt:    r.AddedAt.UTC(),
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func copyTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}

func copyDurationPointer(input *time.Duration) *time.Duration {
	if input == nil {
		return nil
	}
	value := *input
	return &value
}
