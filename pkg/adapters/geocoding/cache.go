package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/nemaec/nemaec-engine/pkg/metrics"
	"github.com/nemaec/nemaec-engine/pkg/models"
)

// Store holds encoded lookup results.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// ============================================================================
// Redis store
// ============================================================================

type redisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore keeps entries in Redis under prefix, expiring after ttl.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) Store {
	return &redisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, s.prefix+key, value, s.ttl).Err()
}

// ============================================================================
// In-process store
// ============================================================================

type lruStore struct {
	cache *expirable.LRU[string, []byte]
}

// NewLRUStore keeps up to size entries in process, expiring after ttl.
func NewLRUStore(size int, ttl time.Duration) Store {
	return &lruStore{cache: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (s *lruStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, ok := s.cache.Get(key)
	return b, ok, nil
}

func (s *lruStore) Set(_ context.Context, key string, value []byte) error {
	s.cache.Add(key, value)
	return nil
}

// ============================================================================
// Cached provider
// ============================================================================

// CachedProvider memoizes successful lookups of the wrapped provider.
// Concurrent identical lookups share one upstream call. Store failures
// degrade to uncached lookups.
type CachedProvider struct {
	inner  Provider
	store  Store
	group  singleflight.Group
	logger *zap.Logger
}

func NewCachedProvider(inner Provider, store Store, logger *zap.Logger) *CachedProvider {
	return &CachedProvider{
		inner:  inner,
		store:  store,
		logger: logger.Named("geocoding-cache"),
	}
}

var _ Provider = (*CachedProvider)(nil)

func (p *CachedProvider) Name() string { return p.inner.Name() }

func (p *CachedProvider) Search(ctx context.Context, query string) ([]models.Place, error) {
	key := opSearch + ":" + fold(query)
	return cachedLookup(ctx, p, opSearch, key, func() ([]models.Place, error) {
		return p.inner.Search(ctx, query)
	})
}

func (p *CachedProvider) Details(ctx context.Context, placeID string) (*models.Place, error) {
	key := opDetails + ":" + placeID
	return cachedLookup(ctx, p, opDetails, key, func() (*models.Place, error) {
		return p.inner.Details(ctx, placeID)
	})
}

func cachedLookup[T any](ctx context.Context, p *CachedProvider, op, key string, fetch func() (T, error)) (T, error) {
	var zero T

	if b, ok, err := p.store.Get(ctx, key); err != nil {
		p.logger.Warn("Geocoding cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		var v T
		if err := json.Unmarshal(b, &v); err == nil {
			metrics.GeocodingLookups.WithLabelValues(p.inner.Name(), op, metrics.LookupResultHit).Inc()
			return v, nil
		}
		p.logger.Warn("Discarding undecodable cache entry", zap.String("key", key))
	}

	res, err, _ := p.group.Do(key, func() (any, error) {
		v, err := fetch()
		if err != nil {
			return nil, err
		}
		if b, err := json.Marshal(v); err == nil {
			if err := p.store.Set(context.WithoutCancel(ctx), key, b); err != nil {
				p.logger.Warn("Geocoding cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
		return v, nil
	})
	if err != nil {
		return zero, err
	}
	return res.(T), nil
}
