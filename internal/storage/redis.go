package storage

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Redis stores documents as plain string keys. A zero TTL keeps keys forever.
type Redis struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
}

func (r *Redis) key(key string) string {
	return r.Prefix + key
}

func (r *Redis) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := r.Client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

func (r *Redis) Save(ctx context.Context, key string, value []byte) error {
	return r.Client.Set(ctx, r.key(key), value, r.TTL).Err()
}

func (r *Redis) Remove(ctx context.Context, key string) error {
	return r.Client.Del(ctx, r.key(key)).Err()
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}
