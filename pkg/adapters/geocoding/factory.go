package geocoding

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nemaec/nemaec-engine/pkg/config"
)

// NewProvider builds the configured provider chain. With a Google key the
// result is a cached Google client that falls back to the local dataset;
// without one it is the local dataset alone. Fallback answers are never
// cached, so the real provider is retried once it recovers. redisClient may
// be nil, in which case results are cached in process.
func NewProvider(cfg *config.GeocodingConfig, redisClient *redis.Client, cachePrefix string, logger *zap.Logger) Provider {
	local := NewLocalProvider()

	useGoogle := cfg.Provider == config.GeocodingGoogle ||
		(cfg.Provider == config.GeocodingAuto && cfg.APIKey != "")
	if !useGoogle {
		logger.Info("Geocoding uses the local dataset", zap.String("provider", cfg.Provider))
		return local
	}

	google := NewGoogleClient(GoogleConfig{
		APIKey:            cfg.APIKey,
		BaseURL:           cfg.BaseURL,
		Region:            cfg.Region,
		Language:          cfg.Language,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Timeout:           cfg.Timeout,
	}, logger)

	var store Store
	if redisClient != nil {
		store = NewRedisStore(redisClient, cachePrefix, cfg.CacheTTL)
	} else {
		store = NewLRUStore(cfg.CacheSize, cfg.CacheTTL)
	}

	logger.Info("Geocoding uses Google Places",
		zap.Bool("redis_cache", redisClient != nil),
		zap.Duration("cache_ttl", cfg.CacheTTL))
	return NewFallbackProvider(NewCachedProvider(google, store, logger), local, logger)
}
