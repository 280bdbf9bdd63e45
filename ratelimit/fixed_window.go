package ratelimit

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/goliatone/go-messaging/core"
)

const shardCount = 32

const (
	DefaultLimit  = 10
	DefaultWindow = time.Hour
)

// Window is the counter state for one key.
type Window struct {
	Key     string
	Count   int
	ResetAt time.Time
}

type shard struct {
	mu      sync.Mutex
	windows map[string]Window
}

// Limiter is a fixed-window counter keyed by an opaque string. Keys hash onto
// a fixed set of shards so unrelated keys do not contend on one mutex.
type Limiter struct {
	Now func() time.Time

	mu     sync.RWMutex
	limit  int
	window time.Duration
	shards [shardCount]*shard
}

func NewLimiter(limit int, window time.Duration) *Limiter {
	limiter := &Limiter{
		Now:    func() time.Time { return time.Now().UTC() },
		limit:  DefaultLimit,
		window: DefaultWindow,
	}
	for i := range limiter.shards {
		limiter.shards[i] = &shard{windows: map[string]Window{}}
	}
	if limit > 0 {
		limiter.limit = limit
	}
	if window > 0 {
		limiter.window = window
	}
	return limiter
}

// Configure replaces the limit and window length. Open windows keep their
// reset time and are judged against the new limit.
func (l *Limiter) Configure(limit int, window time.Duration) error {
	if limit <= 0 {
		return fmt.Errorf("ratelimit: limit must be > 0")
	}
	if window <= 0 {
		return fmt.Errorf("ratelimit: window must be > 0")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limit = limit
	l.window = window
	return nil
}

func (l *Limiter) Limit() int {
	limit, _ := l.settings()
	return limit
}

// CheckLimit counts one event for key and reports whether it is within the
// limit. A denied event does not consume a slot.
func (l *Limiter) CheckLimit(key string) bool {
	limit, window := l.settings()
	now := l.now()
	s := l.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.windows[key]
	if !ok || !now.Before(current.ResetAt) {
		s.windows[key] = Window{Key: key, Count: 1, ResetAt: now.Add(window)}
		return true
	}
	if current.Count < limit {
		current.Count++
		s.windows[key] = current
		return true
	}
	return false
}

func (l *Limiter) Remaining(key string) int {
	limit, _ := l.settings()
	current, ok := l.Window(key)
	if !ok {
		return limit
	}
	if remaining := limit - current.Count; remaining > 0 {
		return remaining
	}
	return 0
}

// Window returns the live window for key. Expired windows are reported as absent.
func (l *Limiter) Window(key string) (Window, bool) {
	now := l.now()
	s := l.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.windows[key]
	if !ok || !now.Before(current.ResetAt) {
		return Window{}, false
	}
	return current, true
}

// Cleanup drops expired windows and returns how many were removed.
func (l *Limiter) Cleanup() int {
	now := l.now()
	removed := 0
	for _, s := range l.shards {
		s.mu.Lock()
		for key, current := range s.windows {
			if !now.Before(current.ResetAt) {
				delete(s.windows, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked windows, expired or not.
func (l *Limiter) Len() int {
	total := 0
	for _, s := range l.shards {
		s.mu.Lock()
		total += len(s.windows)
		s.mu.Unlock()
	}
	return total
}

func (l *Limiter) settings() (int, time.Duration) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limit, l.window
}

func (l *Limiter) shardFor(key string) *shard {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(key))
	return l.shards[hasher.Sum32()%shardCount]
}

func (l *Limiter) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

var _ core.RateLimiter = (*Limiter)(nil)
