package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type messageRecord struct {
	bun.BaseModel `bun:"table:messaging_messages,alias:mm"`

	ID             string    `bun:"id,pk"`
	ExternalID     string    `bun:"external_id,notnull"`
	ConversationID string    `bun:"conversation_id,notnull"`
	Channel        string    `bun:"channel,notnull"`
	Direction      string    `bun:"direction,notnull"`
	FromAddr       string    `bun:"from_addr,notnull"`
	ToAddr         string    `bun:"to_addr,notnull"`
	Participants   string    `bun:"participants,notnull"`
	Subject        string    `bun:"subject,notnull"`
	Body           string    `bun:"body,notnull"`
	Metadata       string    `bun:"metadata,notnull"`
	ReceivedAt     time.Time `bun:"received_at,notnull"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type conversationRecord struct {
	bun.BaseModel `bun:"table:messaging_conversations,alias:mc"`

	ID            string    `bun:"id,pk"`
	Channel       string    `bun:"channel,notnull"`
	ParticipantA  string    `bun:"participant_a,notnull"`
	ParticipantB  string    `bun:"participant_b,notnull"`
	PairKey       *string   `bun:"pair_key"`
	Subject       string    `bun:"subject,notnull"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	LastMessageAt time.Time `bun:"last_message_at,notnull"`
}

type allowlistEntryRecord struct {
	bun.BaseModel `bun:"table:messaging_allowlist_entries,alias:mae"`

	ID         string    `bun:"id,pk"`
	Scope      string    `bun:"scope,notnull"`
	Identifier string    `bun:"identifier,notnull"`
	AddedBy    string    `bun:"added_by,notnull"`
	AddedAt    time.Time `bun:"added_at,notnull"`
}

type throttleStateRecord struct {
	bun.BaseModel `bun:"table:messaging_throttle_states,alias:mts"`

	ID                string     `bun:"id,pk"`
	Provider          string     `bun:"provider,notnull"`
	Channel           string     `bun:"channel,notnull"`
	Bucket            string     `bun:"bucket,notnull"`
	LimitValue        int        `bun:"limit_value,notnull"`
	Remaining         int        `bun:"remaining,notnull"`
	ResetAt           *time.Time `bun:"reset_at,nullzero"`
	RetryAfterSeconds *int       `bun:"retry_after_seconds"`
	ThrottledUntil    *time.Time `bun:"throttled_until,nullzero"`
	LastStatus        int        `bun:"last_status,notnull"`
	Attempts          int        `bun:"attempts,notnull"`
	Metadata          string     `bun:"metadata,notnull"`
	CreatedAt         time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
