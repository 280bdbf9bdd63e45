package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-messaging/core"
	"github.com/goliatone/go-messaging/ratelimit"
)

// ThrottleStateStore persists adaptive throttle state so provider cooldowns
// survive a restart and are shared between instances.
type ThrottleStateStore struct {
	db   *bun.DB
	repo repository.Repository[*throttleStateRecord]
}

func NewThrottleStateStore(db *bun.DB) (*ThrottleStateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo, err := newValidatedRepository(db, "throttle state", func() *throttleStateRecord { return &throttleStateRecord{} })
	if err != nil {
		return nil, err
	}
	return &ThrottleStateStore{db: db, repo: repo}, nil
}

func (s *ThrottleStateStore) Get(ctx context.Context, key core.ThrottleKey) (ratelimit.State, error) {
	if s == nil || s.db == nil {
		return ratelimit.State{}, fmt.Errorf("sqlstore: throttle state store is not configured")
	}
	key = ratelimit.NormalizeKey(key)
	if err := validateThrottleKey(key); err != nil {
		return ratelimit.State{}, err
	}
	record, err := findThrottleState(ctx, s.db, key)
	if err != nil {
		return ratelimit.State{}, err
	}
	if record == nil {
		return ratelimit.State{}, ratelimit.ErrStateNotFound
	}
	return record.toDomain()
}

func (s *ThrottleStateStore) Upsert(ctx context.Context, state ratelimit.State) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: throttle state store is not configured")
	}
	state.Key = ratelimit.NormalizeKey(state.Key)
	if err := validateThrottleKey(state.Key); err != nil {
		return err
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}
	metadata, err := json.Marshal(copyAnyMap(state.Metadata))
	if err != nil {
		return fmt.Errorf("sqlstore: encode throttle metadata: %w", err)
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findThrottleState(ctx, tx, state.Key)
		if err != nil {
			return err
		}
		created := record == nil
		if created {
			record = &throttleStateRecord{
				ID:        uuid.NewString(),
				Provider:  state.Key.Provider,
				Channel:   string(state.Key.Channel),
				Bucket:    state.Key.Bucket,
				CreatedAt: state.UpdatedAt.UTC(),
			}
		}
		record.LimitValue = state.Limit
		record.Remaining = state.Remaining
		record.ResetAt = copyTimePointer(state.ResetAt)
		record.RetryAfterSeconds = durationToSecondsPointer(state.RetryAfter)
		record.ThrottledUntil = copyTimePointer(state.ThrottledUntil)
		record.LastStatus = state.LastStatus
		record.Attempts = state.Attempts
		record.Metadata = string(metadata)
		record.UpdatedAt = state.UpdatedAt.UTC()

		if created {
			_, err = s.repo.CreateTx(ctx, tx, record)
			return err
		}
		_, err = tx.NewUpdate().
			Model(record).
			Where("id = ?", record.ID).
			Exec(ctx)
		return err
	})
}

func (r *throttleStateRecord) toDomain() (ratelimit.State, error) {
	state := ratelimit.State{
		Key: core.ThrottleKey{
			Provider: r.Provider,
			Channel:  core.Channel(r.Channel),
			Bucket:   r.Bucket,
		},
		Limit:          r.LimitValue,
		Remaining:      r.Remaining,
		ResetAt:        copyTimePointer(r.ResetAt),
		ThrottledUntil: copyTimePointer(r.ThrottledUntil),
		LastStatus:     r.LastStatus,
		Attempts:       r.Attempts,
		UpdatedAt:      r.UpdatedAt.UTC(),
		Metadata:       map[string]any{},
	}
	if r.RetryAfterSeconds != nil && *r.RetryAfterSeconds > 0 {
		value := time.Duration(*r.RetryAfterSeconds) * time.Second
		state.RetryAfter = &value
	}
	if strings.TrimSpace(r.Metadata) != "" {
		if err := json.Unmarshal([]byte(r.Metadata), &state.Metadata); err != nil {
			return ratelimit.State{}, fmt.Errorf("sqlstore: decode throttle metadata: %w", err)
		}
	}
	return state, nil
}

func findThrottleState(ctx context.Context, db bun.IDB, key core.ThrottleKey) (*throttleStateRecord, error) {
	record := &throttleStateRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.provider = ?", key.Provider).
		Where("?TableAlias.channel = ?", string(key.Channel)).
		Where("?TableAlias.bucket = ?", key.Bucket).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func validateThrottleKey(key core.ThrottleKey) error {
	if strings.TrimSpace(key.Provider) == "" {
		return fmt.Errorf("sqlstore: throttle provider is required")
	}
	if !key.Channel.Valid() {
		return fmt.Errorf("sqlstore: throttle channel %q is not supported", key.Channel)
	}
	return nil
}

func durationToSecondsPointer(input *time.Duration) *int {
	if input == nil || *input <= 0 {
		return nil
	}
	seconds := int(input.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return &seconds
}

var _ ratelimit.StateStore = (*ThrottleStateStore)(nil)
