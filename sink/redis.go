package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arloliu/framepipe/types"
)

// DefaultRedisTTL is how long progress fields live in Redis.
const DefaultRedisTTL = time.Hour

// RedisOptions holds the connection settings of a Redis sink.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisOptionsFromEnv reads REDIS_ADDR, REDIS_PASSWORD and REDIS_DB,
// defaulting to localhost:6379 and database 0.
func RedisOptionsFromEnv() RedisOptions {
	opts := RedisOptions{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
		TTL:      DefaultRedisTTL,
	}
	if opts.Addr == "" {
		opts.Addr = "localhost:6379"
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			opts.DB = db
		}
	}

	return opts
}

// Redis is a ProgressSink backed by Redis string keys.
type Redis struct {
	client redis.Cmdable
	ttl    time.Duration
}

var _ types.ProgressSink = (*Redis)(nil)

// NewRedis wraps an existing client. A non-positive ttl selects DefaultRedisTTL.
func NewRedis(client redis.Cmdable, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}

	return &Redis{client: client, ttl: ttl}
}

// DialRedis creates a client from opts and wraps it.
//
// The returned client is owned by the caller and must be closed.
func DialRedis(opts RedisOptions) (*Redis, *redis.Client) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	return NewRedis(client, opts.TTL), client
}

// RedisKey returns the Redis key of a progress field.
func RedisKey(sessionID, field string) string {
	return "session:" + sessionID + ":" + field
}

// Set stores one progress field with the sink TTL.
func (s *Redis) Set(ctx context.Context, sessionID, field, value string) error {
	if err := s.client.Set(ctx, RedisKey(sessionID, field), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", field, err)
	}

	return nil
}

// Get returns one progress field; the bool is false when the key is absent.
func (s *Redis) Get(ctx context.Context, sessionID, field string) (string, bool, error) {
	v, err := s.client.Get(ctx, RedisKey(sessionID, field)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}

		return "", false, err
	}

	return v, true, nil
}
