// Package redisvault keeps sensitive values in Redis.
package redisvault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/leech/pkg/sensitive"

	goredis "github.com/redis/go-redis/v9"
)

const DefaultPrefix = "leech:sensitive:"

type Options struct {
	URL    string
	Prefix string
	// TTL bounds how long a value is kept. Zero keeps it forever.
	TTL time.Duration
}

type Vault struct {
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

// New connects to the Redis server at opts.URL and pings it.
func New(ctx context.Context, opts Options) (*Vault, error) {
	parsed, err := goredis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := goredis.NewClient(parsed)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewWithClient(rdb, opts), nil
}

func NewWithClient(rdb goredis.UniversalClient, opts Options) *Vault {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Vault{rdb: rdb, prefix: prefix, ttl: opts.TTL}
}

func (v *Vault) PutIfAbsent(ctx context.Context, token, value string) error {
	if err := v.rdb.SetNX(ctx, v.prefix+token, value, v.ttl).Err(); err != nil {
		return fmt.Errorf("store sensitive value: %w", err)
	}
	return nil
}

func (v *Vault) Get(ctx context.Context, token string) (string, error) {
	value, err := v.rdb.Get(ctx, v.prefix+token).Result()
	if errors.Is(err, goredis.Nil) {
		return "", fmt.Errorf("%w: %s", sensitive.ErrTokenNotFound, token)
	}
	if err != nil {
		return "", fmt.Errorf("read sensitive value: %w", err)
	}
	return value, nil
}

func (v *Vault) Close() error {
	return v.rdb.Close()
}
