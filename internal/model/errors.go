// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, feed, document, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredential = "INVALID_CREDENTIAL"
	ErrCodeGrantFailed       = "GRANT_FAILED"
	ErrCodeFeedFetchFailed   = "FEED_FETCH_FAILED"
	ErrCodeNotAuthenticated  = "NOT_AUTHENTICATED"
	ErrCodeNotGranted        = "NOT_GRANTED"
	ErrCodeInvalidGrantMode  = "INVALID_GRANT_MODE"
	ErrCodeDocumentNotFound  = "DOCUMENT_NOT_FOUND"
	ErrCodeDocumentForbidden = "DOCUMENT_FORBIDDEN"
	ErrCodeSessionExpired    = "SESSION_EXPIRED"
	ErrCodeInternal          = "INTERNAL_ERROR"
	ErrCodeRateLimitExceeded = "rate_limit_exceeded"
)

// NewInvalidCredentialError は認証情報のデコード失敗エラーを生成する。
func NewInvalidCredentialError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredential,
		Message:  fmt.Sprintf("サインイン情報を確認できませんでした: %s", reason),
		Category: "auth",
		Action:   "もう一度Googleでサインインしてください。",
	}
}

// NewGrantFailedError はアクセス許可の取得失敗エラーを生成する。
func NewGrantFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeGrantFailed,
		Message:  fmt.Sprintf("Googleデータへのアクセス許可を取得できませんでした: %s", reason),
		Category: "auth",
		Action:   "「再接続」からアクセスを許可し直してください。",
	}
}

// NewFeedFetchFailedError は外部データ取得失敗エラーを生成する。
func NewFeedFetchFailedError(source, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeFeedFetchFailed,
		Message:  fmt.Sprintf("%s の取得に失敗しました: %s", source, reason),
		Category: "feed",
		Action:   "しばらく待ってから同期し直してください。",
	}
}

// NewNotAuthenticatedError は未サインインエラーを生成する。
func NewNotAuthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotAuthenticated,
		Message:  "サインインしていません。",
		Category: "auth",
		Action:   "Googleでサインインしてください。",
	}
}

// NewNotGrantedError はアクセス許可がない場合のエラーを生成する。
func NewNotGrantedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotGranted,
		Message:  "メール・カレンダーへのアクセスが許可されていません。",
		Category: "auth",
		Action:   "ダッシュボードの「接続」からアクセスを許可してください。",
	}
}

// NewSessionExpiredError は集計中にセッションが無効化された場合のエラーを生成する。
func NewSessionExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionExpired,
		Message:  "セッションが終了しました。",
		Category: "auth",
		Action:   "再度サインインしてください。",
	}
}

// NewInvalidGrantModeError は無効な同意モードエラーを生成する。
func NewInvalidGrantModeError(mode string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidGrantMode,
		Message:  fmt.Sprintf("無効な同意モードです: %s", mode),
		Category: "validation",
		Action:   "mode には silent または interactive を指定してください。",
	}
}

// NewDocumentNotFoundError は資料未検出エラーを生成する。
func NewDocumentNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeDocumentNotFound,
		Message:  fmt.Sprintf("指定された資料が見つかりません: %s", id),
		Category: "document",
		Action:   "資料IDを確認してください。",
	}
}

// NewDocumentForbiddenError は権限不足で資料を参照できない場合のエラーを生成する。
func NewDocumentForbiddenError(required Role) *APIError {
	return &APIError{
		Code:     ErrCodeDocumentForbidden,
		Message:  fmt.Sprintf("この資料の閲覧には %s 以上の権限が必要です。", required),
		Category: "document",
		Action:   "必要に応じてIT部門に権限を申請してください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
