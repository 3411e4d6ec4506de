package repository

import (
	"context"
	"sync"
	"time"
)

// memorySession は1セッション分のエントリと有効期限。
type memorySession struct {
	entries   map[string][]byte
	expiresAt time.Time
}

// MemorySessionStore はプロセス内メモリを使用したセッションストア。
// ローカル開発とテスト用。プロセス再起動で内容は失われる。
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*memorySession
	ttl      time.Duration
	now      func() time.Time
}

// NewMemorySessionStore はMemorySessionStoreを生成する。
func NewMemorySessionStore(config StoreConfig) *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*memorySession),
		ttl:      config.TTL,
		now:      time.Now,
	}
}

// lookup は有効なセッションを返す。期限切れのものはその場で削除する。
// 呼び出し側でロックを保持していること。
func (s *MemorySessionStore) lookup(sessionID string) *memorySession {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	if !s.now().Before(sess.expiresAt) {
		delete(s.sessions, sessionID)
		return nil
	}
	return sess
}

// Get は指定キーの値のコピーを返す。
func (s *MemorySessionStore) Get(_ context.Context, sessionID, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.lookup(sessionID)
	if sess == nil {
		return nil, nil
	}
	v, ok := sess.entries[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

// Set は値を保存し、有効期限を延長する。
func (s *MemorySessionStore) Set(_ context.Context, sessionID, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.lookup(sessionID)
	if sess == nil {
		sess = &memorySession{entries: make(map[string][]byte)}
		s.sessions[sessionID] = sess
	}
	sess.entries[key] = append([]byte(nil), value...)
	sess.expiresAt = s.now().Add(s.ttl)
	return nil
}

// Delete は指定キーを削除する。
func (s *MemorySessionStore) Delete(_ context.Context, sessionID string, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.lookup(sessionID)
	if sess == nil {
		return nil
	}
	for _, k := range keys {
		delete(sess.entries, k)
	}
	return nil
}

// DeleteAll はセッションを削除する。
func (s *MemorySessionStore) DeleteAll(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// Ping は常に成功する。
func (s *MemorySessionStore) Ping(_ context.Context) error {
	return nil
}

// compile-time interface check
var _ SessionStore = (*MemorySessionStore)(nil)
