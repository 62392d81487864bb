package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

type Redis struct {
	client *redis.Client
	ctx    context.Context
}

func New(redisURL string) (*Redis, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	opt.PoolSize = 10
	opt.MinIdleConns = 3

	client := redis.NewClient(opt)
	ctx := context.Background()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &Redis{client: client, ctx: ctx}, nil
}

// Get retrieves a JSON-encoded value from cache.
func (r *Redis) Get(key string, dest interface{}) bool {
	val, err := r.client.Get(r.ctx, key).Result()
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(val), dest) == nil
}

// Set stores a JSON-encoded value in cache.
func (r *Redis) Set(key string, value interface{}, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	r.client.Set(r.ctx, key, data, ttl)
}

func (r *Redis) Del(keys ...string) {
	r.client.Del(r.ctx, keys...)
}

// DelPattern deletes keys matching a pattern in batches to go easy on
// memory.
func (r *Redis) DelPattern(pattern string) {
	iter := r.client.Scan(r.ctx, 0, pattern, 0).Iterator()
	const batchSize = 100

	pipe := r.client.Pipeline()
	count := 0

	for iter.Next(r.ctx) {
		pipe.Del(r.ctx, iter.Val())
		count++

		if count >= batchSize {
			pipe.Exec(r.ctx)
			count = 0
		}
	}

	if count > 0 {
		pipe.Exec(r.ctx)
	}
}

func (r *Redis) Close() {
	r.client.Close()
}
