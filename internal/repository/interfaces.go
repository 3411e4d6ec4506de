// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"
)

// SessionStore はセッションスコープのキー値ストアのインターフェース。
// 1つのセッションIDに対して固定キーごとに独立したエントリを保持する。
// ブラウザのsessionStorageに相当し、エントリ同士の整合性は検証しない。
type SessionStore interface {
	// Get は指定キーの値を取得する。存在しない・期限切れの場合はnilを返す。
	Get(ctx context.Context, sessionID, key string) ([]byte, error)

	// Set は指定キーに値を保存する。セッション全体の有効期限を延長する。
	Set(ctx context.Context, sessionID, key string, value []byte) error

	// Delete は指定キーのエントリを削除する。存在しないキーはエラーにしない。
	Delete(ctx context.Context, sessionID string, keys ...string) error

	// DeleteAll はセッションの全エントリを削除する。
	DeleteAll(ctx context.Context, sessionID string) error

	// Ping はストアへの疎通を確認する。ヘルスチェック用。
	Ping(ctx context.Context) error
}

// StoreConfig はセッションストア共通の設定。
type StoreConfig struct {
	TTL time.Duration // セッションエントリの有効期間
}
