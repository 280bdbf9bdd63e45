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

const defaultSearchLimit = 100

type MessageStore struct {
	db   *bun.DB
	repo repository.Repository[*messageRecord]
}

func NewMessageStore(db *bun.DB) (*MessageStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo, err := newValidatedRepository(db, "message", func() *messageRecord { return &messageRecord{} })
	if err != nil {
		return nil, err
	}
	return &MessageStore{db: db, repo: repo}, nil
}

func (s *MessageStore) Store(ctx context.Context, msg core.Message) (core.Message, error) {
	if s == nil || s.repo == nil {
		return core.Message{}, fmt.Errorf("sqlstore: message store is not configured")
	}
	if !msg.Channel.Valid() {
		return core.Message{}, fmt.Errorf("sqlstore: unsupported channel %q", msg.Channel)
	}
	if strings.TrimSpace(msg.ID) == "" {
		msg.ID = uuid.NewString()
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}
	record, err := newMessageRecord(msg)
	if err != nil {
		return core.Message{}, fmt.Errorf("sqlstore: encode message metadata: %w", err)
	}
	record.CreatedAt = time.Now().UTC()
	if _, err := s.repo.Create(ctx, record); err != nil {
		return core.Message{}, err
	}
	msg.ReceivedAt = record.ReceivedAt
	return msg, nil
}

func (s *MessageStore) Get(ctx context.Context, id string) (core.Message, error) {
	if s == nil || s.db == nil {
		return core.Message{}, fmt.Errorf("sqlstore: message store is not configured")
	}
	record := &messageRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Message{}, fmt.Errorf("sqlstore: message %q: %w", id, core.ErrNotFound)
		}
		return core.Message{}, err
	}
	return record.toDomain()
}

// Search returns matching messages newest first.
func (s *MessageStore) Search(ctx context.Context, filter core.MessageFilter) ([]core.Message, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: message store is not configured")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	selectors := []repository.SelectCriteria{
		repository.OrderBy("received_at DESC"),
		repository.OrderBy("id DESC"),
		repository.SelectPaginate(limit, 0),
	}
	if filter.Channel != "" {
		selectors = append(selectors, repository.SelectBy("channel", "=", string(filter.Channel)))
	}
	if filter.Direction != "" {
		selectors = append(selectors, repository.SelectBy("direction", "=", string(filter.Direction)))
	}
	if id := strings.TrimSpace(filter.ConversationID); id != "" {
		selectors = append(selectors, repository.SelectBy("conversation_id", "=", id))
	}
	participant := strings.ToLower(strings.TrimSpace(filter.Participant))
	keyword := strings.ToLower(strings.TrimSpace(filter.Keyword))
	externalIDs := compactIDs(filter.ExternalIDs)
	since, until := filter.Since, filter.Until
	if participant != "" || keyword != "" || len(externalIDs) > 0 || since != nil || until != nil {
		selectors = append(selectors, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			if since != nil {
				q = q.Where("?TableAlias.received_at >= ?", since.UTC())
			}
			if until != nil {
				q = q.Where("?TableAlias.received_at <= ?", until.UTC())
			}
			if participant != "" {
				q = q.Where("?TableAlias.participants"+likeClause, "%|"+escapeLike(participant)+"|%")
			}
			if keyword != "" {
				pattern := "%" + escapeLike(keyword) + "%"
				q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
					return q.Where("LOWER(?TableAlias.body)"+likeClause, pattern).
						WhereOr("LOWER(?TableAlias.subject)"+likeClause, pattern)
				})
			}
			if len(externalIDs) > 0 {
				q = q.Where("?TableAlias.external_id IN (?)", bun.In(externalIDs))
			}
			return q
		}))
	}

	records, _, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, err
	}
	out := make([]core.Message, 0, len(records))
	for _, record := range records {
		msg, err := record.toDomain()
		if err != nil {
			return nil, fmt.Errorf("sqlstore: decode message %s: %w", record.ID, err)
		}
		out = append(out, msg)
	}
	return out, nil
}

func compactIDs(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			out = append(out, value)
		}
	}
	return out
}

const (
	likeEscape = "!"
	likeClause = " LIKE ? ESCAPE '" + likeEscape + "'"
)

var likeEscaper = strings.NewReplacer(
	likeEscape, likeEscape+likeEscape,
	"%", likeEscape+"%",
	"_", likeEscape+"_",
)

// escapeLike makes user input match literally inside a LIKE pattern.
func escapeLike(value string) string {
	return likeEscaper.Replace(value)
}
