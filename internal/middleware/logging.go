package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/portal/internal/audit"
	"github.com/hitoshi/portal/internal/metrics"
)

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードを記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// Flush は下位のResponseWriterがFlusherなら委譲する。
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// NewLoggingMiddleware はリクエストごとにJSON構造化ログを出力し、ステータスコードを記録する。
// セッションIDはそのまま出さず、session_ref（ハッシュの先頭）として出力する。
// collectorはnilでもよい。
func NewLoggingMiddleware(logger *slog.Logger, collector metrics.MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rec, r)

			duration := time.Since(start)
			args := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", float64(duration.Nanoseconds())/float64(time.Millisecond)),
			}

			// セッションミドルウェアより外側で動くため、Cookieから直接参照する。
			if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
				args = append(args, slog.String("session_ref", audit.SessionRef(c.Value)))
			}

			level := slog.LevelInfo
			if rec.statusCode >= 500 {
				level = slog.LevelError
			} else if rec.statusCode >= 400 {
				level = slog.LevelWarn
			}

			if collector != nil {
				collector.RecordHTTPStatus(rec.statusCode)
			}
			logger.Log(r.Context(), level, "http_request", args...)
		})
	}
}
