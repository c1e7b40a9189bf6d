// Package redisstore provides a Redis-backed auth.TokenStore so refresh-token
// and OAuth state survive restarts and are shared across API instances.
package redisstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/auth"
)

type tokenStore struct {
	client *redis.Client
}

var _ auth.TokenStore = (*tokenStore)(nil)

func Open(conf *core.Config) (auth.TokenStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "pinging redis")
	}
	return &tokenStore{client: client}, nil
}

func (s *tokenStore) Save(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return errors.Wrap(err, "saving key")
	}
	return nil
}

func (s *tokenStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", auth.ErrKeyNotFound
		}
		return "", errors.Wrap(err, "getting key")
	}
	return val, nil
}

func (s *tokenStore) Consume(ctx context.Context, key string) (string, error) {
	val, err := s.client.GetDel(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", auth.ErrKeyNotFound
		}
		return "", errors.Wrap(err, "consuming key")
	}
	return val, nil
}

func (s *tokenStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return errors.Wrap(err, "deleting key")
	}
	return nil
}
