package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisStorage shares the cache between instances. Every change is also
// published on "<prefix>:changes" so other instances can react to it.
type RedisStorage struct {
	rdb    *redis.Client
	prefix string
	log    *zerolog.Logger
}

func NewRedisStorage(rdb *redis.Client, prefix string, log *zerolog.Logger) *RedisStorage {
	if prefix == "" {
		prefix = "eventdesk"
	}
	return &RedisStorage{rdb: rdb, prefix: prefix, log: log}
}

// NewRedisClient returns nil when redis is unreachable so callers can
// fall back to a local storage.
func NewRedisClient(addr, password string, db int, log *zerolog.Logger) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", addr).Msg("redis unavailable")
		_ = rdb.Close()
		return nil
	}
	log.Info().Str("addr", addr).Msg("redis connected")
	return rdb
}

func (r *RedisStorage) key(k string) string { return r.prefix + ":" + k }

func (r *RedisStorage) channel() string { return r.prefix + ":changes" }

func (r *RedisStorage) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (r *RedisStorage) Set(ctx context.Context, key, value string) error {
	if err := r.rdb.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	r.publish(ctx, key)
	return nil
}

func (r *RedisStorage) Remove(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	r.publish(ctx, key)
	return nil
}

func (r *RedisStorage) publish(ctx context.Context, key string) {
	if err := r.rdb.Publish(ctx, r.channel(), key).Err(); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("failed to publish storage change")
	}
}

func (r *RedisStorage) Watch(ctx context.Context) (<-chan string, error) {
	sub := r.rdb.Subscribe(ctx, r.channel())
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan string, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				default:
				}
			}
		}
	}()
	return out, nil
}
