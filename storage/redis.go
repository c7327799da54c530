package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BaSui01/browserflow/internal/tlsutil"
)

// RedisStore is a Redis-based Store for distributed deployments.
// Objects live under keyPrefix+"obj:"+path; a sorted set with equal scores
// indexes the paths so List can use lexical range queries.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ownClient bool
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(config RedisStoreConfig) (*RedisStore, error) {
	opts := &redis.Options{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	}
	if config.TLS {
		tlsConfig, err := tlsutil.NewClientConfig(tlsutil.ClientOptions{
			ServerName: config.Host,
			CAFile:     config.CAFile,
		})
		if err != nil {
			return nil, fmt.Errorf("redis TLS: %w", err)
		}
		opts.TLSConfig = tlsConfig
	}
	client := redis.NewClient(opts)

	timeout := config.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	s := NewRedisStoreWithClient(client, config.KeyPrefix)
	s.ownClient = true
	return s, nil
}

// NewRedisStoreWithClient wraps an existing client. Close leaves the client open.
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "browserflow:"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStore) objectKey(key string) string { return s.keyPrefix + "obj:" + key }

func (s *RedisStore) indexKey() string { return s.keyPrefix + "paths" }

func (s *RedisStore) Read(ctx context.Context, p string) ([]byte, error) {
	key, err := CleanPath(p)
	if err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, s.objectKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return data, err
}

func (s *RedisStore) Write(ctx context.Context, p string, data []byte) error {
	key, err := CleanPath(p)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.objectKey(key), data, 0)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: 0, Member: key})
		return nil
	})
	return err
}

func (s *RedisStore) Delete(ctx context.Context, p string) error {
	key, err := CleanPath(p)
	if err != nil {
		return err
	}
	var del *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.objectKey(key))
		pipe.ZRem(ctx, s.indexKey(), key)
		return nil
	})
	if err != nil {
		return err
	}
	if del.Val() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, prefix string) ([]string, error) {
	rng := &redis.ZRangeBy{Min: "-", Max: "+"}
	if prefix != "" {
		rng = &redis.ZRangeBy{Min: "[" + prefix, Max: "[" + prefix + "\xff"}
	}
	paths, err := s.client.ZRangeByLex(ctx, s.indexKey(), rng).Result()
	if err != nil {
		return nil, err
	}
	if paths == nil {
		paths = []string{}
	}
	return paths, nil
}

// Close closes the client when the store created it.
func (s *RedisStore) Close() error {
	if s.ownClient {
		return s.client.Close()
	}
	return nil
}

// Ping checks if the store is healthy
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
