package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-messaging/core"
)

type ConversationStore struct {
	db   *bun.DB
	repo repository.Repository[*conversationRecord]
}

func NewConversationStore(db *bun.DB) (*ConversationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo, err := newValidatedRepository(db, "conversation", func() *conversationRecord { return &conversationRecord{} })
	if err != nil {
		return nil, err
	}
	return &ConversationStore{db: db, repo: repo}, nil
}

// CreateOrGet inserts conv unless a conversation with the same pair key
// exists. A concurrent insert that loses the unique pair key race re-reads
// the winner.
func (s *ConversationStore) CreateOrGet(ctx context.Context, conv core.Conversation) (core.Conversation, bool, error) {
	if s == nil || s.repo == nil {
		return core.Conversation{}, false, fmt.Errorf("sqlstore: conversation store is not configured")
	}
	if !conv.Channel.Valid() {
		return core.Conversation{}, false, fmt.Errorf("sqlstore: unsupported channel %q", conv.Channel)
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
	pairKey := strings.TrimSpace(conv.PairKey)

	if pairKey != "" {
		existing, err := s.findByPairKey(ctx, pairKey)
		if err != nil {
			return core.Conversation{}, false, err
		}
		if existing != nil {
			return existing.toDomain(), false, nil
		}
	}

	record := newConversationRecord(conv)
	if _, err := s.repo.Create(ctx, record); err != nil {
		if pairKey == "" || !isUniqueViolation(err) {
			return core.Conversation{}, false, err
		}
		winner, findErr := s.findByPairKey(ctx, pairKey)
		if findErr != nil {
			return core.Conversation{}, false, findErr
		}
		if winner == nil {
			return core.Conversation{}, false, err
		}
		return winner.toDomain(), false, nil
	}
	return record.toDomain(), true, nil
}

func (s *ConversationStore) Get(ctx context.Context, id string) (core.Conversation, error) {
	if s == nil || s.db == nil {
		return core.Conversation{}, fmt.Errorf("sqlstore: conversation store is not configured")
	}
	record := &conversationRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Conversation{}, fmt.Errorf("sqlstore: conversation %q: %w", id, core.ErrNotFound)
		}
		return core.Conversation{}, err
	}
	return record.toDomain(), nil
}

// ListRecent returns the channel's conversations by most recent activity.
func (s *ConversationStore) ListRecent(ctx context.Context, channel core.Channel, limit int) ([]core.Conversation, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: conversation store is not configured")
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("channel", "=", string(channel)),
		repository.OrderBy("last_message_at DESC"),
		repository.OrderBy("id ASC"),
		repository.SelectPaginate(limit, 0),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Conversation, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// Touch moves last_message_at forward. Older timestamps are ignored.
func (s *ConversationStore) Touch(ctx context.Context, id string, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: conversation store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: conversation id is required")
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	res, err := s.db.NewUpdate().
		Model((*conversationRecord)(nil)).
		Set("last_message_at = ?", at.UTC()).
		Where("id = ?", id).
		Where("last_message_at < ?", at.UTC()).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, affErr := res.RowsAffected(); affErr == nil && affected == 0 {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return getErr
		}
	}
	return nil
}

func (s *ConversationStore) findByPairKey(ctx context.Context, pairKey string) (*conversationRecord, error) {
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("pair_key", "=", pairKey),
		repository.OrderBy("created_at ASC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}
