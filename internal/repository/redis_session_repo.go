package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix はセッションハッシュのキー接頭辞。
const redisKeyPrefix = "portal:session:"

// RedisSessionStore はRedisを使用したセッションストア。
// 1セッションを1つのハッシュとして保持し、フィールドがエントリのキーになる。
// 有効期限はハッシュ単位でEXPIREにより管理する。
type RedisSessionStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisSessionStore はRedisSessionStoreを生成する。
func NewRedisSessionStore(client redis.Cmdable, config StoreConfig) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: config.TTL}
}

// NewRedisClient はREDIS_URL形式のURLからクライアントを生成する。
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// sessionKey はセッションIDからRedisキーを組み立てる。
func sessionKey(sessionID string) string {
	return redisKeyPrefix + sessionID
}

// Get は指定キーの値を取得する。存在しない場合はnilを返す。
func (s *RedisSessionStore) Get(ctx context.Context, sessionID, key string) ([]byte, error) {
	b, err := s.client.HGet(ctx, sessionKey(sessionID), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session entry: %w", err)
	}
	return b, nil
}

// Set は値を保存し、ハッシュの有効期限を延長する。
func (s *RedisSessionStore) Set(ctx context.Context, sessionID, key string, value []byte) error {
	k := sessionKey(sessionID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, k, key, value)
	pipe.Expire(ctx, k, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set session entry: %w", err)
	}
	return nil
}

// Delete は指定キーのフィールドを削除する。
func (s *RedisSessionStore) Delete(ctx context.Context, sessionID string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.HDel(ctx, sessionKey(sessionID), keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete session entries: %w", err)
	}
	return nil
}

// DeleteAll はセッションのハッシュごと削除する。
func (s *RedisSessionStore) DeleteAll(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Ping はRedisへの疎通を確認する。
func (s *RedisSessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// compile-time interface check
var _ SessionStore = (*RedisSessionStore)(nil)
