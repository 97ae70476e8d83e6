package core

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisSlotPrefix = "expense:mirror"

// NewRedisClient returns a configured go-redis client from URL (e.g., redis://localhost:6379/0).
func NewRedisClient(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, errors.New("empty redis url")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}

// RedisSlots stores the three session slots as plain keys under one namespace,
// e.g. expense:mirror:<browser-id>:token. Every client sharing the namespace
// sees the same session, the way browser tabs of one origin do. There is no
// locking across clients; concurrent transitions interleave key by key.
type RedisSlots struct {
	client    redis.Cmdable
	namespace string
}

// NewRedisSlots scopes slots to namespace (a browser id or a terminal profile).
func NewRedisSlots(client redis.Cmdable, namespace string) *RedisSlots {
	return &RedisSlots{client: client, namespace: namespace}
}

func (s *RedisSlots) key(slot string) string {
	return redisSlotPrefix + ":" + s.namespace + ":" + slot
}

func (s *RedisSlots) Get(ctx context.Context, slot string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.key(slot)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisSlots) Set(ctx context.Context, slot, value string) error {
	return s.client.Set(ctx, s.key(slot), value, 0).Err()
}

func (s *RedisSlots) Delete(ctx context.Context, slot string) error {
	return s.client.Del(ctx, s.key(slot)).Err()
}
