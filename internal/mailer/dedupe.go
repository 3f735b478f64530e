package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultDedupeTTL = 24 * time.Hour

// Deduper отмечает уже отправленные письма.
type Deduper interface {
	// Acquire ставит отметку. false — отметка уже стоит, письмо пропускается.
	Acquire(ctx context.Context, key string) (bool, error)
	// Release снимает отметку после неудачной отправки.
	Release(ctx context.Context, key string) error
}

// RedisDeduper хранит отметки в Redis (SET NX с TTL).
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper создаёт дедупликатор. ttl <= 0 — 24 часа.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = defaultDedupeTTL
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

// Acquire реализует Deduper.
func (d *RedisDeduper) Acquire(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.key(key), "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Release реализует Deduper.
func (d *RedisDeduper) Release(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, d.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (d *RedisDeduper) key(k string) string {
	return "quizflow:email:sent:" + k
}

// NewRedisClient открывает клиент Redis и проверяет соединение.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}
