package cache

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const productSyncKey = "erp:product_sync:last"

type RedisSyncThrottle struct {
	client *redis.Client
}

func NewRedisSyncThrottle(addr string, password string, db int) *RedisSyncThrottle {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisSyncThrottle{client: client}
}

func (t *RedisSyncThrottle) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

func (t *RedisSyncThrottle) Close() error {
	return t.client.Close()
}

func (t *RedisSyncThrottle) LastProductSync(ctx context.Context) (time.Time, bool, error) {
	val, err := t.client.Get(ctx, productSyncKey).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}

	at, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false, err
	}
	return at, true, nil
}

func (t *RedisSyncThrottle) MarkProductSync(ctx context.Context, at time.Time) error {
	return t.client.Set(ctx, productSyncKey, at.UTC().Format(time.RFC3339Nano), 0).Err()
}
