package inbound

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type ClaimStatus string

const (
	ClaimStatusProcessing ClaimStatus = "processing"
	ClaimStatusRetryReady ClaimStatus = "retry_ready"
	ClaimStatusComplete   ClaimStatus = "complete"
)

type claimEntry struct {
	Status         ClaimStatus
	ClaimID        string
	Attempts       int
	KeyTTL         time.Duration
	LeaseExpiresAt time.Time
	RetryAt        time.Time
}

// InMemoryClaimStore tracks delivery claims for a single process. Completed
// keys are remembered for their ttl and then evicted.
type InMemoryClaimStore struct {
	Now func() time.Time

	mu      sync.Mutex
	entries map[string]claimEntry
	claims  map[string]string
}

func NewInMemoryClaimStore() *InMemoryClaimStore {
	return &InMemoryClaimStore{
		entries: map[string]claimEntry{},
		claims:  map[string]string{},
	}
}

func (s *InMemoryClaimStore) Claim(_ context.Context, key string, lease time.Duration) (string, bool, error) {
	if s == nil {
		return "", false, inboundInternal("inbound: claim store is nil", nil)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, inboundBadInput("inbound: idempotency key is required", nil)
	}
	if lease <= 0 {
		lease = DefaultKeyTTL
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictExpiredLocked(now)

	entry, exists := s.entries[key]
	if exists {
		switch entry.Status {
		case ClaimStatusComplete, ClaimStatusProcessing:
			if now.Before(entry.LeaseExpiresAt) {
				return "", false, nil
			}
		case ClaimStatusRetryReady:
			if now.Before(entry.RetryAt) {
				return "", false, nil
			}
		}
		delete(s.claims, entry.ClaimID)
	}

	claimID := uuid.NewString()
	entry.Status = ClaimStatusProcessing
	entry.ClaimID = claimID
	entry.Attempts++
	entry.KeyTTL = lease
	entry.LeaseExpiresAt = now.Add(lease)
	entry.RetryAt = time.Time{}
	s.entries[key] = entry
	s.claims[claimID] = key
	return claimID, true, nil
}

func (s *InMemoryClaimStore) Complete(_ context.Context, claimID string) error {
	return s.settle(claimID, func(entry *claimEntry, now time.Time) {
		entry.Status = ClaimStatusComplete
		entry.LeaseExpiresAt = now.Add(entry.KeyTTL)
		entry.RetryAt = time.Time{}
	})
}

// Fail releases a claim. A zero retryAt makes the key claimable immediately.
func (s *InMemoryClaimStore) Fail(_ context.Context, claimID string, _ error, retryAt time.Time) error {
	return s.settle(claimID, func(entry *claimEntry, now time.Time) {
		if retryAt.IsZero() {
			retryAt = now
		}
		entry.Status = ClaimStatusRetryReady
		entry.RetryAt = retryAt.UTC()
		entry.LeaseExpiresAt = time.Time{}
	})
}

// Status reports the claim state recorded for key.
func (s *InMemoryClaimStore) Status(key string) (ClaimStatus, int, bool) {
	if s == nil {
		return "", 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[strings.TrimSpace(key)]
	return entry.Status, entry.Attempts, ok
}

func (s *InMemoryClaimStore) settle(claimID string, apply func(entry *claimEntry, now time.Time)) error {
	if s == nil {
		return inboundInternal("inbound: claim store is nil", nil)
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return inboundBadInput("inbound: claim id is required", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.claims[claimID]
	if !ok {
		return nil
	}
	delete(s.claims, claimID)
	entry, exists := s.entries[key]
	if !exists || entry.ClaimID != claimID || entry.Status != ClaimStatusProcessing {
		return nil
	}
	if entry.KeyTTL <= 0 {
		entry.KeyTTL = DefaultKeyTTL
	}
	apply(&entry, s.now())
	s.entries[key] = entry
	return nil
}

func (s *InMemoryClaimStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *InMemoryClaimStore) evictExpiredLocked(now time.Time) {
	for key, entry := range s.entries {
		if entry.Status == ClaimStatusComplete && !now.Before(entry.LeaseExpiresAt) {
			delete(s.claims, entry.ClaimID)
			delete(s.entries, key)
		}
	}
}
