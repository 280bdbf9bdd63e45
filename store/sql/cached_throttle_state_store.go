package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-messaging/core"
	"github.com/goliatone/go-messaging/ratelimit"
)

const throttleStateCacheKeyPrefix = "go-messaging::throttle_state::v1"

// CachedThrottleStateStore serves BeforeCall reads from cache. Writes go to
// the base store and drop the cached entry.
type CachedThrottleStateStore struct {
	base  ratelimit.StateStore
	cache repositorycache.CacheService
}

func NewCachedThrottleStateStore(
	base ratelimit.StateStore,
	cacheService repositorycache.CacheService,
) (*CachedThrottleStateStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base throttle state store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: throttle state cache service is required")
	}
	return &CachedThrottleStateStore{base: base, cache: cacheService}, nil
}

// ThrottleStateCacheKey is go-messaging::throttle_state::v1::<provider>::<channel>::<bucket>
// with each segment path escaped after normalization.
func ThrottleStateCacheKey(key core.ThrottleKey) (string, error) {
	normalized := ratelimit.NormalizeKey(key)
	if err := validateThrottleKey(normalized); err != nil {
		return "", err
	}
	segments := []string{
		throttleStateCacheKeyPrefix,
		url.PathEscape(normalized.Provider),
		url.PathEscape(string(normalized.Channel)),
		url.PathEscape(normalized.Bucket),
	}
	return strings.Join(segments, "::"), nil
}

func (s *CachedThrottleStateStore) Get(ctx context.Context, key core.ThrottleKey) (ratelimit.State, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return ratelimit.State{}, fmt.Errorf("sqlstore: cached throttle state store is not configured")
	}
	normalized := ratelimit.NormalizeKey(key)
	cacheKey, err := ThrottleStateCacheKey(normalized)
	if err != nil {
		return ratelimit.State{}, err
	}
	state, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (ratelimit.State, error) {
		fetched, fetchErr := s.base.Get(ctx, normalized)
		if fetchErr != nil {
			return ratelimit.State{}, fetchErr
		}
		return cloneThrottleState(fetched), nil
	})
	if err != nil {
		return ratelimit.State{}, err
	}
	return cloneThrottleState(state), nil
}

func (s *CachedThrottleStateStore) Upsert(ctx context.Context, state ratelimit.State) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached throttle state store is not configured")
	}
	state.Key = ratelimit.NormalizeKey(state.Key)
	cacheKey, err := ThrottleStateCacheKey(state.Key)
	if err != nil {
		return err
	}
	if err := s.base.Upsert(ctx, cloneThrottleState(state)); err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func cloneThrottleState(state ratelimit.State) ratelimit.State {
	cloned := state
	cloned.Key = ratelimit.NormalizeKey(state.Key)
	cloned.Metadata = copyAnyMap(state.Metadata)
	cloned.ResetAt = copyTimePointer(state.ResetAt)
	cloned.ThrottledUntil = copyTimePointer(state.ThrottledUntil)
	cloned.RetryAfter = copyDurationPointer(state.RetryAfter)
	return cloned
}

var _ ratelimit.StateStore = (*CachedThrottleStateStore)(nil)
