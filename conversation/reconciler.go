package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"

	"github.com/goliatone/go-messaging/core"
	"github.com/goliatone/go-messaging/identity"
)

const DefaultRecentWindow = 100

// Match strategies reported in reconcile logs.
const (
	StrategyPair      = "pair"
	StrategyThread    = "thread"
	StrategySubject   = "subject"
	StrategyOverlap   = "participants"
	StrategyCreated   = "created"
	StrategyConverged = "converged"
)

// Reconciler maps an inbound message to an existing conversation or opens a
// new one. Only the most recent RecentWindow messages or conversations of the
// channel are considered.
type Reconciler struct {
	Now   func() time.Time
	NewID func() string

	messages      core.MessageStore
	conversations core.ConversationStore
	recentWindow  int
	dedupePairs   bool
	logger        core.Logger
}

func NewReconciler(
	messages core.MessageStore,
	conversations core.ConversationStore,
	cfg core.ConversationConfig,
	logger core.Logger,
) (*Reconciler, error) {
	if messages == nil {
		return nil, fmt.Errorf("conversation: message store is required")
	}
	if conversations == nil {
		return nil, fmt.Errorf("conversation: conversation store is required")
	}
	window := cfg.RecentWindow
	if window <= 0 {
		window = DefaultRecentWindow
	}
	return &Reconciler{
		Now:           func() time.Time { return time.Now().UTC() },
		NewID:         uuid.NewString,
		messages:      messages,
		conversations: conversations,
		recentWindow:  window,
		dedupePairs:   cfg.DedupePairs,
		logger:        glog.Ensure(logger),
	}, nil
}

func (r *Reconciler) Reconcile(ctx context.Context, msg core.Message) (core.Conversation, error) {
	if !msg.Channel.Valid() {
		return core.Conversation{}, fmt.Errorf("conversation: unsupported channel %q", msg.Channel)
	}
	from := identity.NormalizeIdentifier(msg.Channel, msg.From)
	to := identity.NormalizeIdentifier(msg.Channel, msg.To)
	if from == "" || to == "" {
		return core.Conversation{}, fmt.Errorf("conversation: message participants are required")
	}
	msg.From = from
	msg.To = to
	pair := core.ParticipantPair(from, to)

	var (
		found    core.Conversation
		strategy string
		err      error
	)
	if msg.Channel == core.ChannelEmail {
		found, strategy, err = r.matchEmail(ctx, msg, pair)
	} else {
		found, strategy, err = r.matchPair(ctx, msg.Channel, pair)
	}
	if err != nil {
		return core.Conversation{}, err
	}
	if found.ID != "" {
		return r.touch(ctx, found, msg, strategy)
	}
	return r.create(ctx, msg, pair)
}

// Record reconciles msg and stores it under the resolved conversation.
func (r *Reconciler) Record(ctx context.Context, msg core.Message) (core.Conversation, core.Message, error) {
	conv, err := r.Reconcile(ctx, msg)
	if err != nil {
		return core.Conversation{}, core.Message{}, err
	}
	msg.From = identity.NormalizeIdentifier(msg.Channel, msg.From)
	msg.To = identity.NormalizeIdentifier(msg.Channel, msg.To)
	stored, err := r.messages.Store(ctx, msg.WithConversation(conv.ID))
	if err != nil {
		return core.Conversation{}, core.Message{}, fmt.Errorf("conversation: store message: %w", err)
	}
	return conv, stored, nil
}

// matchPair scans recent messages newest first for the unordered pair.
func (r *Reconciler) matchPair(ctx context.Context, channel core.Channel, pair [2]string) (core.Conversation, string, error) {
	recent, err := r.messages.Search(ctx, core.MessageFilter{Channel: channel, Limit: r.recentWindow})
	if err != nil {
		return core.Conversation{}, "", fmt.Errorf("conversation: search recent %s messages: %w", channel, err)
	}
	checked := map[string]struct{}{}
	for _, candidate := range recent {
		if candidate.ConversationID == "" {
			continue
		}
		if core.ParticipantPair(
			identity.NormalizeIdentifier(channel, candidate.From),
			identity.NormalizeIdentifier(channel, candidate.To),
		) != pair {
			continue
		}
		if _, ok := checked[candidate.ConversationID]; ok {
			continue
		}
		checked[candidate.ConversationID] = struct{}{}
		conv, ok, err := r.conversation(ctx, candidate.ConversationID, channel)
		if err != nil {
			return core.Conversation{}, "", err
		}
		if ok {
			return conv, StrategyPair, nil
		}
	}
	return core.Conversation{}, "", nil
}

func (r *Reconciler) matchEmail(ctx context.Context, msg core.Message, pair [2]string) (core.Conversation, string, error) {
	if refs := msg.ThreadReferences(); len(refs) > 0 {
		conv, ok, err := r.matchThread(ctx, refs)
		if err != nil {
			return core.Conversation{}, "", err
		}
		if ok {
			return conv, StrategyThread, nil
		}
	}

	recent, err := r.conversations.ListRecent(ctx, core.ChannelEmail, r.recentWindow)
	if err != nil {
		return core.Conversation{}, "", fmt.Errorf("conversation: list recent email conversations: %w", err)
	}

	if subject := NormalizeSubject(msg.Subject()); subject != "" {
		for _, conv := range recent {
			if NormalizeSubject(conv.Subject) == subject {
				return conv, StrategySubject, nil
			}
		}
	}

	participants := map[string]struct{}{}
	for _, participant := range msg.Participants() {
		participants[identity.NormalizeEmail(participant)] = struct{}{}
	}
	for _, conv := range recent {
		if conv.Participants == pair {
			return conv, StrategyOverlap, nil
		}
	}
	for _, conv := range recent {
		_, first := participants[conv.Participants[0]]
		_, second := participants[conv.Participants[1]]
		if first && second {
			return conv, StrategyOverlap, nil
		}
	}
	return core.Conversation{}, "", nil
}

// matchThread resolves the first reference that points at a stored message.
// References are checked in the order returned by ThreadReferences.
func (r *Reconciler) matchThread(ctx context.Context, refs []string) (core.Conversation, bool, error) {
	stored, err := r.messages.Search(ctx, core.MessageFilter{
		Channel:     core.ChannelEmail,
		ExternalIDs: refs,
		Limit:       r.recentWindow,
	})
	if err != nil {
		return core.Conversation{}, false, fmt.Errorf("conversation: search thread references: %w", err)
	}
	byExternalID := make(map[string]string, len(stored))
	for _, candidate := range stored {
		if candidate.ConversationID == "" {
			continue
		}
		if _, ok := byExternalID[candidate.ExternalID]; !ok {
			byExternalID[candidate.ExternalID] = candidate.ConversationID
		}
	}
	for _, ref := range refs {
		conversationID, ok := byExternalID[ref]
		if !ok {
			continue
		}
		conv, ok, err := r.conversation(ctx, conversationID, core.ChannelEmail)
		if err != nil {
			return core.Conversation{}, false, err
		}
		if ok {
			return conv, true, nil
		}
	}
	return core.Conversation{}, false, nil
}

// conversation loads id and reports whether it belongs to channel. Replies to
// calls are stored as SMS under the voice conversation so a channel mismatch
// is skipped rather than returned.
func (r *Reconciler) conversation(ctx context.Context, id string, channel core.Channel) (core.Conversation, bool, error) {
	conv, err := r.conversations.Get(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.Conversation{}, false, nil
		}
		return core.Conversation{}, false, fmt.Errorf("conversation: get %s: %w", id, err)
	}
	return conv, conv.Channel == channel, nil
}

func (r *Reconciler) create(ctx context.Context, msg core.Message, pair [2]string) (core.Conversation, error) {
	at := r.messageTime(msg)
	conv := core.Conversation{
		ID:            r.NewID(),
		Channel:       msg.Channel,
		Participants:  pair,
		Subject:       DisplaySubject(msg.Subject()),
		CreatedAt:     at,
		LastMessageAt: at,
	}
	if r.dedupePairs {
		conv.PairKey = core.PairKey(msg.Channel, pair[0], pair[1])
	}
	stored, created, err := r.conversations.CreateOrGet(ctx, conv)
	if err != nil {
		return core.Conversation{}, fmt.Errorf("conversation: create %s conversation: %w", msg.Channel, err)
	}
	if !created {
		return r.touch(ctx, stored, msg, StrategyConverged)
	}
	r.logger.Debug("conversation created",
		"conversation_id", stored.ID,
		"channel", string(stored.Channel),
		"strategy", StrategyCreated,
	)
	return stored, nil
}

func (r *Reconciler) touch(ctx context.Context, conv core.Conversation, msg core.Message, strategy string) (core.Conversation, error) {
	at := r.messageTime(msg)
	if err := r.conversations.Touch(ctx, conv.ID, at); err != nil {
		return core.Conversation{}, fmt.Errorf("conversation: touch %s: %w", conv.ID, err)
	}
	if at.After(conv.LastMessageAt) {
		conv.LastMessageAt = at
	}
	r.logger.Debug("conversation matched",
		"conversation_id", conv.ID,
		"channel", string(conv.Channel),
		"strategy", strategy,
	)
	return conv, nil
}

func (r *Reconciler) messageTime(msg core.Message) time.Time {
	if !msg.ReceivedAt.IsZero() {
		return msg.ReceivedAt.UTC()
	}
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

var _ core.ConversationReconciler = (*Reconciler)(nil)
