package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// HealthChecker はセッションストアの疎通確認インターフェース。
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// NewHealthHandler はGET /healthのハンドラーを返す。
// ストアに到達できない場合は503を返す。
func NewHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		if err := checker.Ping(ctx); err != nil {
			slog.Error("health check failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
