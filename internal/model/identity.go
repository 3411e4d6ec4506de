package model

import "time"

// Role はポータル利用者のロールを表す。
type Role string

const (
	RoleUser    Role = "USER"
	RoleManager Role = "MANAGER"
	RoleITAdmin Role = "IT_ADMIN"
)

// Rank はロールの序列を返す。未知のロールは0。
func (r Role) Rank() int {
	switch r {
	case RoleUser:
		return 1
	case RoleManager:
		return 2
	case RoleITAdmin:
		return 3
	default:
		return 0
	}
}

// Allows はロールrがrequired以上の権限を持つかを判定する。
func (r Role) Allows(required Role) bool {
	return r.Rank() > 0 && r.Rank() >= required.Rank()
}

// Identity はサインイン済み利用者の情報を表す。
// 再ログイン時に丸ごと置き換えられ、部分更新はしない。
type Identity struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	AvatarURL string `json:"avatarUrl"`
}

// AccessGrant は外部APIを呼び出すためのベアラートークンを表す。
// Identityとは独立したライフサイクルを持つ。
type AccessGrant struct {
	BearerToken string    `json:"bearerToken"`
	TokenType   string    `json:"tokenType,omitempty"`
	Scopes      []string  `json:"scopes"`
	ObtainedAt  time.Time `json:"obtainedAt"`
	Expiry      time.Time `json:"expiry,omitempty"`
}

// GrantMode はアクセス許可要求時の同意モード。
type GrantMode string

const (
	// GrantModeSilent は同意画面を出さずに再取得を試みる（prompt=none）。
	GrantModeSilent GrantMode = "silent"
	// GrantModeInteractive は同意画面を表示する（prompt=consent）。
	GrantModeInteractive GrantMode = "interactive"
)

// ParseGrantMode は文字列をGrantModeに変換する。空文字はsilentとして扱う。
func ParseGrantMode(s string) (GrantMode, bool) {
	switch GrantMode(s) {
	case "", GrantModeSilent:
		return GrantModeSilent, true
	case GrantModeInteractive:
		return GrantModeInteractive, true
	default:
		return "", false
	}
}

// PendingGrant は進行中の認可リクエストを表す。
type PendingGrant struct {
	State     string    `json:"state"`
	Verifier  string    `json:"verifier"`
	Mode      GrantMode `json:"mode"`
	StartedAt time.Time `json:"startedAt"`
}

// GrantFailure は直近のアクセス許可取得失敗を表す。UIの再試行導線に使う。
type GrantFailure struct {
	Code     string    `json:"code"`
	Reason   string    `json:"reason"`
	Mode     GrantMode `json:"mode"`
	FailedAt time.Time `json:"failedAt"`
}

// IdentityState はサインイン状態。
type IdentityState string

const (
	IdentityAnonymous     IdentityState = "ANONYMOUS"
	IdentityResolving     IdentityState = "RESOLVING"
	IdentityAuthenticated IdentityState = "AUTHENTICATED"
)

// GrantState はアクセス許可の状態。
type GrantState string

const (
	GrantUngranted   GrantState = "UNGRANTED"
	GrantAuthorizing GrantState = "AUTHORIZING"
	GrantGranted     GrantState = "GRANTED"
)

// SessionStatus はセッションの2軸の状態をまとめたもの。
type SessionStatus struct {
	IdentityState IdentityState `json:"identityState"`
	GrantState    GrantState    `json:"grantState"`
	Identity      *Identity     `json:"identity"`
	GrantError    *GrantFailure `json:"grantError"`
	// HasGrant は保存済みのアクセス許可があるか。再認可中（AUTHORIZING）でも真になりうる。
	HasGrant bool `json:"-"`
}
