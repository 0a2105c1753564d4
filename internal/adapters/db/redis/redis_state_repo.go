package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const statePrefix = "oauth:state:"

type RedisStateRepo struct {
	client *redis.Client
}

func NewRedisStateRepo(client *redis.Client) *RedisStateRepo {
	return &RedisStateRepo{
		client: client,
	}
}

func (r *RedisStateRepo) Save(ctx context.Context, state string, ttl time.Duration) error {
	return r.client.Set(ctx, statePrefix+state, "1", safeTTL(ttl)).Err()
}

// Consume атомарно удаляет ключ: из двух одновременных колбэков с одним state
// успешен только один.
func (r *RedisStateRepo) Consume(ctx context.Context, state string) (bool, error) {
	n, err := r.client.Del(ctx, statePrefix+state).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *RedisStateRepo) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func safeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		// задаём минимальный TTL, чтобы ключ всё-таки исчез
		return time.Minute
	}
	return ttl
}
