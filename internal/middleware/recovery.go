package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/hitoshi/portal/internal/audit"
)

// NewRecoveryMiddleware はハンドラー内のpanicを500 INTERNAL_ERRORに変換する。
// http.ErrAbortHandlerはnet/httpに処理させるため投げ直す。
func NewRecoveryMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				attrs := []any{
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				}
				if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
					attrs = append(attrs, slog.String("session_ref", audit.SessionRef(c.Value)))
				}
				attrs = append(attrs, slog.String("stack", string(debug.Stack())))
				logger.Error("panic recovered", attrs...)

				WriteInternalServerError(w)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
