// Package sqlstore persists messages, conversations, allowlist entries and
// provider throttle state with bun through go-repository-bun repositories.
// Schemas ship in the migrations package for postgres and sqlite.
package sqlstore
