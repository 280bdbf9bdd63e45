package sqlstore

import (
	"fmt"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type identified interface {
	recordID() string
	setRecordID(id string)
}

func (r *messageRecord) recordID() string { return r.ID }

func (r *messageRecord) setRecordID(id string) { r.ID = id }

func (r *conversationRecord) recordID() string { return r.ID }

func (r *conversationRecord) setRecordID(id string) { r.ID = id }

func (r *allowlistEntryRecord) recordID() string { return r.ID }

func (r *allowlistEntryRecord) setRecordID(id string) { r.ID = id }

func (r *throttleStateRecord) recordID() string { return r.ID }

func (r *throttleStateRecord) setRecordID(id string) { r.ID = id }

// recordHandlers wires a record type with a text uuid primary key.
func recordHandlers[T identified](newRecord func() T) repository.ModelHandlers[T] {
	return repository.ModelHandlers[T]{
		NewRecord: newRecord,
		GetID: func(record T) uuid.UUID {
			return parseUUID(record.recordID())
		},
		SetID: func(record T, id uuid.UUID) {
			record.setRecordID(id.String())
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record T) string {
			return strings.TrimSpace(record.recordID())
		},
	}
}

func newValidatedRepository[T identified](db *bun.DB, name string, newRecord func() T) (repository.Repository[T], error) {
	repo := repository.NewRepository[T](db, recordHandlers(newRecord))
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid %s repository wiring: %w", name, err)
		}
	}
	return repo, nil
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
