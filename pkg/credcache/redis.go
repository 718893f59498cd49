package credcache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "idbroker:creds:"

// Redis is a Cache backed by a shared Redis instance, for deployments
// where multiple service replicas should share the exchange results.
// Failures degrade to cache misses; the exchange path stays correct
// without the cache, just slower.
type Redis struct {
	rdb *redis.Client
	log *zap.SugaredLogger
}

func NewRedis(rdb *redis.Client, log *zap.SugaredLogger) *Redis {
	return &Redis{rdb: rdb, log: log}
}

func (r *Redis) Get(ctx context.Context, token string) (Credentials, bool) {
	b, err := r.rdb.Get(ctx, redisKeyPrefix+token).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.log.Debugw("credcache get", "err", err)
		}
		return Credentials{}, false
	}
	var c Credentials
	if err := json.Unmarshal(b, &c); err != nil {
		return Credentials{}, false
	}
	return c, true
}

func (r *Redis) Put(ctx context.Context, token string, creds Credentials, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	b, err := json.Marshal(creds)
	if err != nil {
		return
	}
	if err := r.rdb.Set(ctx, redisKeyPrefix+token, b, ttl).Err(); err != nil {
		r.log.Debugw("credcache put", "err", err)
	}
}
