package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/luxfi/fhevm"
)

// RedisStorage implements Storage on Redis. Entries expire after ttl when
// ttl is positive.
type RedisStorage struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStorage connects to Redis and verifies the connection.
func NewRedisStorage(cfg RedisConfig, prefix string, ttl time.Duration) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connect: %w", err)
	}

	return NewRedisStorageFromClient(client, prefix, ttl), nil
}

// NewRedisStorageFromClient wraps an existing client.
func NewRedisStorageFromClient(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStorage {
	if prefix == "" {
		prefix = "fhevm:ct:"
	}
	return &RedisStorage{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStorage) key(handle Handle) string {
	return s.prefix + handle.key()
}

func (s *RedisStorage) Store(ctx context.Context, ev *fhevm.EncryptedValue, owner common.Address) (Handle, error) {
	handle := ComputeHandle(ev.Type, ev.Data)
	// SETNX keeps the first copy and with it the first owner.
	ok, err := s.client.SetNX(ctx, s.key(handle), encodeRecord(ev, owner), s.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("redis store: %w", err)
	}
	if ok {
		return handle, nil
	}
	rec, err := s.get(ctx, handle)
	if err != nil {
		return "", err
	}
	return sameOwner(handle, rec, owner)
}

func (s *RedisStorage) Load(ctx context.Context, handle Handle) (*fhevm.EncryptedValue, error) {
	handle, err := ParseHandle(string(handle))
	if err != nil {
		return nil, err
	}
	rec, err := s.get(ctx, handle)
	if err != nil {
		return nil, err
	}
	ev, _, err := decodeRecord(rec)
	return ev, err
}

func (s *RedisStorage) Owner(ctx context.Context, handle Handle) (common.Address, error) {
	handle, err := ParseHandle(string(handle))
	if err != nil {
		return common.Address{}, err
	}
	rec, err := s.get(ctx, handle)
	if err != nil {
		return common.Address{}, err
	}
	_, owner, err := decodeRecord(rec)
	return owner, err
}

func (s *RedisStorage) get(ctx context.Context, handle Handle) ([]byte, error) {
	rec, err := s.client.Get(ctx, s.key(handle)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis load: %w", err)
	}
	return rec, nil
}

func (s *RedisStorage) Delete(ctx context.Context, handle Handle) error {
	handle, err := ParseHandle(string(handle))
	if err != nil {
		return err
	}
	n, err := s.client.Del(ctx, s.key(handle)).Result()
	if err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStorage) Exists(ctx context.Context, handle Handle) (bool, error) {
	handle, err := ParseHandle(string(handle))
	if err != nil {
		return false, err
	}
	n, err := s.client.Exists(ctx, s.key(handle)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStorage) Close() error {
	return s.client.Close()
}
