// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/portal/internal/model"
)

// SessionCookieName はセッションIDを保持するHttpOnly Cookieの名前。
const SessionCookieName = "session_id"

type contextKey string

var (
	sessionIDContextKey = contextKey("session_id")
	identityContextKey  = contextKey("identity")
)

// SessionRestorer はセッションIDからサインイン情報を復元する。
// auth.Serviceが実装する。
type SessionRestorer interface {
	RestoreSession(ctx context.Context, sessionID string) (*model.Identity, *model.AccessGrant, error)
}

// NewSessionMiddleware はCookieのセッションIDとIdentityをリクエストコンテキストに注入する。
// 未サインインでも拒否しない。拒否はRequireIdentityで行う。
// ストアの読み取りに失敗した場合は500を返す。
func NewSessionMiddleware(restorer SessionRestorer) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			identity, _, err := restorer.RestoreSession(r.Context(), cookie.Value)
			if err != nil {
				slog.Error("failed to restore session",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			ctx := ContextWithSession(r.Context(), cookie.Value, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireIdentity はサインイン済みでないリクエストに401 NOT_AUTHENTICATEDを返す。
// NewSessionMiddlewareの後に配置する。
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IdentityFromContext(r.Context()) == nil {
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewNotAuthenticatedError())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SessionIDFromContext はリクエストのセッションIDを返す。Cookieがなければ空文字。
func SessionIDFromContext(ctx context.Context) string {
	sid, _ := ctx.Value(sessionIDContextKey).(string)
	return sid
}

// IdentityFromContext はサインイン済みのIdentityを返す。未サインインならnil。
func IdentityFromContext(ctx context.Context) *model.Identity {
	identity, _ := ctx.Value(identityContextKey).(*model.Identity)
	return identity
}

// ContextWithSession はコンテキストにセッションIDとIdentityを注入する。
// identityはnilでもよい。
func ContextWithSession(ctx context.Context, sessionID string, identity *model.Identity) context.Context {
	ctx = context.WithValue(ctx, sessionIDContextKey, sessionID)
	if identity != nil {
		ctx = context.WithValue(ctx, identityContextKey, identity)
	}
	return ctx
}
