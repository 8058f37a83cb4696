// Package sessions provides the session key-value store: Redis when a URL
// is configured and reachable, otherwise a process-local map. The fallback
// is a policy, not a cache — without Redis, sessions simply do not survive
// a restart, which is acceptable for local/dev/test profiles.
package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/medcert/internal/logging"
	"github.com/redis/go-redis/v9"
)

// Store maps session identifiers to subject identities with a TTL.
// Get returns common.ErrorNotFound for missing or expired keys.
type Store interface {
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, key string) error
}

// SessionKey is the namespace for live session records (jti -> subject id).
func SessionKey(jti string) string {
	return "session:" + jti
}

// UserSessionKey points at the subject's most recent session identifier and
// is what makes single-session-per-subject eviction possible.
func UserSessionKey(email string) string {
	return "user-session:" + email
}

// New connects to Redis when redisURL is set, falling back to the in-memory
// store when it is empty or unreachable.
func New(ctx context.Context, redisURL string, logger logging.Logger) Store {
	if redisURL == "" {
		logger.Warn(ctx, "no redis url configured, using in-memory session store")
		return NewMemoryStore()
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Error(ctx, "invalid redis url, using in-memory session store", "error", err)
		return NewMemoryStore()
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Error(ctx, "redis unreachable, using in-memory session store", "error", err)
		return NewMemoryStore()
	}

	return NewRedisStore(client)
}
