package conversation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-messaging/core"
)

// MemoryMessageStore keeps messages in insertion order.
type MemoryMessageStore struct {
	mu       sync.RWMutex
	messages []core.Message
	byID     map[string]int
}

func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{byID: map[string]int{}}
}

func (s *MemoryMessageStore) Store(_ context.Context, msg core.Message) (core.Message, error) {
	if !msg.Channel.Valid() {
		return core.Message{}, fmt.Errorf("conversation: unsupported channel %q", msg.Channel)
	}
	if strings.TrimSpace(msg.ID) == "" {
		msg.ID = uuid.NewString()
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if index, ok := s.byID[msg.ID]; ok {
		s.messages[index] = msg
		return msg, nil
	}
	s.byID[msg.ID] = len(s.messages)
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *MemoryMessageStore) Get(_ context.Context, id string) (core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	index, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return core.Message{}, fmt.Errorf("conversation: message %s: %w", id, core.ErrNotFound)
	}
	return s.messages[index], nil
}

// Search returns matches newest first. Messages received at the same instant
// keep reverse insertion order.
func (s *MemoryMessageStore) Search(_ context.Context, filter core.MessageFilter) ([]core.Message, error) {
	s.mu.RLock()
	matches := make([]core.Message, 0)
	for index := len(s.messages) - 1; index >= 0; index-- {
		if MatchesFilter(s.messages[index], filter) {
			matches = append(matches, s.messages[index])
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].ReceivedAt.After(matches[j].ReceivedAt)
	})
	if filter.Limit > 0 && len(matches) > filter.Limit {
		matches = matches[:filter.Limit]
	}
	return matches, nil
}

// MatchesFilter applies every set field of filter to msg.
func MatchesFilter(msg core.Message, filter core.MessageFilter) bool {
	if filter.Channel != "" && msg.Channel != filter.Channel {
		return false
	}
	if filter.Direction != "" && msg.Direction != filter.Direction {
		return false
	}
	if filter.ConversationID != "" && msg.ConversationID != filter.ConversationID {
		return false
	}
	if participant := strings.TrimSpace(filter.Participant); participant != "" {
		found := false
		for _, candidate := range msg.Participants() {
			if strings.EqualFold(candidate, participant) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if keyword := strings.ToLower(strings.TrimSpace(filter.Keyword)); keyword != "" {
		if !strings.Contains(strings.ToLower(msg.Body), keyword) &&
			!strings.Contains(strings.ToLower(msg.Subject()), keyword) {
			return false
		}
	}
	if len(filter.ExternalIDs) > 0 {
		found := false
		for _, externalID := range filter.ExternalIDs {
			if msg.ExternalID == strings.TrimSpace(externalID) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.Since != nil && msg.ReceivedAt.Before(*filter.Since) {
		return false
	}
	if filter.Until != nil && msg.ReceivedAt.After(*filter.Until) {
		return false
	}
	return true
}

// MemoryConversationStore enforces pair key uniqueness per channel.
type MemoryConversationStore struct {
	mu            sync.RWMutex
	conversations map[string]core.Conversation
	pairs         map[string]string
}

func NewMemoryConversationStore() *MemoryConversationStore {
	return &MemoryConversationStore{
		conversations: map[string]core.Conversation{},
		pairs:         map[string]string{},
	}
}

func (s *MemoryConversationStore) CreateOrGet(_ context.Context, conv core.Conversation) (core.Conversation, bool, error) {
	if !conv.Channel.Valid() {
		return core.Conversation{}, false, fmt.Errorf("conversation: unsupported channel %q", conv.Channel)
	}
	if strings.TrimSpace(conv.ID) == "" {
		conv.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.LastMessageAt.IsZero() {
		conv.LastMessageAt = conv.CreatedAt
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	pairKey := strings.TrimSpace(conv.PairKey)
	if pairKey != "" {
		if existingID, ok := s.pairs[pairKey]; ok {
			return s.conversations[existingID], false, nil
		}
	}
	if _, ok := s.conversations[conv.ID]; ok {
		return core.Conversation{}, false, fmt.Errorf("conversation: id %s already exists", conv.ID)
	}
	s.conversations[conv.ID] = conv
	if pairKey != "" {
		s.pairs[pairKey] = conv.ID
	}
	return conv, true, nil
}

func (s *MemoryConversationStore) Get(_ context.Context, id string) (core.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[strings.TrimSpace(id)]
	if !ok {
		return core.Conversation{}, fmt.Errorf("conversation: %s: %w", id, core.ErrNotFound)
	}
	return conv, nil
}

// ListRecent orders by last activity, newest first.
func (s *MemoryConversationStore) ListRecent(_ context.Context, channel core.Channel, limit int) ([]core.Conversation, error) {
	s.mu.RLock()
	out := make([]core.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		if channel != "" && conv.Channel != channel {
			continue
		}
		out = append(out, conv)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Touch moves LastMessageAt forward. Older timestamps are ignored.
func (s *MemoryConversationStore) Touch(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[strings.TrimSpace(id)]
	if !ok {
		return fmt.Errorf("conversation: %s: %w", id, core.ErrNotFound)
	}
	if at.After(conv.LastMessageAt) {
		conv.LastMessageAt = at.UTC()
		s.conversations[conv.ID] = conv
	}
	return nil
}

var (
	_ core.MessageStore      = (*MemoryMessageStore)(nil)
	_ core.ConversationStore = (*MemoryConversationStore)(nil)
)
