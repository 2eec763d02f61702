package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ytdl-web/internal/model"
)

const DefaultKeyPrefix = "ytdl:progress:"

type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

var ErrEmptyAddress = errors.New("redis address is required")

const connectionTimeout = 5 * time.Second

// NewRedisClient connects and pings the server.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Redis stores each record as one JSON string value, so a reader always sees
// a whole record. Use it when the pollers run in another process than the
// jobs.
type Redis struct {
	client redis.Cmdable
	prefix string
}

func NewRedis(client redis.Cmdable, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Get(ctx context.Context, key string) (model.Progress, bool, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Progress{}, false, nil
	}
	if err != nil {
		return model.Progress{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	var p model.Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return model.Progress{}, false, fmt.Errorf("decode progress %s: %w", key, err)
	}
	return p, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, p model.Progress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode progress %s: %w", key, err)
	}
	if err := r.client.Set(ctx, r.prefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
