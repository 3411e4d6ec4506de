package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresSessionStore はPostgreSQLを使用したセッションストア。
// session_entriesテーブルに(session_id, key)単位で値を保存する。
type PostgresSessionStore struct {
	db  *sql.DB
	ttl time.Duration
}

// NewPostgresSessionStore はPostgresSessionStoreを生成する。
func NewPostgresSessionStore(db *sql.DB, config StoreConfig) *PostgresSessionStore {
	return &PostgresSessionStore{db: db, ttl: config.TTL}
}

// Get は指定キーの値を取得する。期限切れの場合はnilを返す。
func (r *PostgresSessionStore) Get(ctx context.Context, sessionID, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT value
		 FROM session_entries
		 WHERE session_id = $1 AND key = $2 AND expires_at > now()`,
		sessionID, key,
	).Scan(&value)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session entry: %w", err)
	}

	return value, nil
}

// Set は値をupsertし、同一セッションの全エントリの有効期限を延長する。
// 2つの更新は同一トランザクションで実行する。
func (r *PostgresSessionStore) Set(ctx context.Context, sessionID, key string, value []byte) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	expiresAt := now.Add(r.ttl)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO session_entries (session_id, key, value, expires_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (session_id, key)
		 DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at`,
		sessionID, key, value, expiresAt, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session entry: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE session_entries SET expires_at = $2 WHERE session_id = $1 AND expires_at > now()`,
		sessionID, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to extend session expiry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Delete は指定キーのエントリを削除する。
func (r *PostgresSessionStore) Delete(ctx context.Context, sessionID string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM session_entries WHERE session_id = $1 AND key = ANY($2)`,
		sessionID, pq.Array(keys),
	)
	if err != nil {
		return fmt.Errorf("failed to delete session entries: %w", err)
	}
	return nil
}

// DeleteAll はセッションの全エントリを削除する。
func (r *PostgresSessionStore) DeleteAll(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM session_entries WHERE session_id = $1`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Ping はDB接続を確認する。
func (r *PostgresSessionStore) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// compile-time interface check
var _ SessionStore = (*PostgresSessionStore)(nil)
