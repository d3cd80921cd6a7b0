// Package redisstore is a sessionstore.Store backed by Redis, for execution
// contexts spread across machines.
package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/sessionkit/pkg/sessionstore"
	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb    redis.Cmdable
	prefix string
}

var _ sessionstore.Store = (*Store)(nil)

// New returns a Store that namespaces every key with prefix (e.g. "sess:").
func New(rdb redis.Cmdable, prefix string) *Store {
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", sessionstore.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.rdb.Set(ctx, s.prefix+key, value, ttl).Err()
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.prefix + k
	}
	return s.rdb.Del(ctx, full...).Err()
}
