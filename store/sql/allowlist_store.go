package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-messaging/core"
)

type AllowlistStore struct {
	db   *bun.DB
	repo repository.Repository[*allowlistEntryRecord]
}

func NewAllowlistStore(db *bun.DB) (*AllowlistStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo, err := newValidatedRepository(db, "allowlist", func() *allowlistEntryRecord { return &allowlistEntryRecord{} })
	if err != nil {
		return nil, err
	}
	return &AllowlistStore{db: db, repo: repo}, nil
}

func (s *AllowlistStore) Load(ctx context.Context, scope core.AllowlistScope) ([]core.AllowlistEntry, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: allowlist store is not configured")
	}
	if !scope.Valid() {
		return nil, fmt.Errorf("sqlstore: unsupported allowlist scope %q", scope)
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("scope", "=", string(scope)),
		repository.OrderBy("identifier ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.AllowlistEntry, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// Upsert keeps the first stored entry for a (scope, identifier) pair.
func (s *AllowlistStore) Upsert(ctx context.Context, entry core.AllowlistEntry) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: allowlist store is not configured")
	}
	if !entry.Scope.Valid() {
		return fmt.Errorf("sqlstore: unsupported allowlist scope %q", entry.Scope)
	}
	identifier := strings.TrimSpace(entry.Identifier)
	if identifier == "" {
		return fmt.Errorf("sqlstore: allowlist identifier is required")
	}
	if entry.AddedAt.IsZero() {
		entry.AddedAt = time.Now().UTC()
	}
	record := &allowlistEntryRecord{
		ID:         uuid.NewString(),
		Scope:      string(entry.Scope),
		Identifier: identifier,
		AddedBy:    strings.TrimSpace(entry.AddedBy),
		AddedAt:    entry.AddedAt.UTC(),
	}
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (scope, identifier) DO NOTHING").
		Exec(ctx)
	return err
}

func (s *AllowlistStore) Delete(ctx context.Context, scope core.AllowlistScope, identifier string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: allowlist store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*allowlistEntryRecord)(nil)).
		Where("scope = ?", string(scope)).
		Where("identifier = ?", strings.TrimSpace(identifier)).
		Exec(ctx)
	return err
}

func (s *AllowlistStore) Clear(ctx context.Context, scope core.AllowlistScope) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: allowlist store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*allowlistEntryRecord)(nil)).
		Where("scope = ?", string(scope)).
		Exec(ctx)
	return err
}
