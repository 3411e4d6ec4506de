package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/portal/internal/audit"
	"github.com/hitoshi/portal/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）
	GeneralBurst    int           // API全般のバーストサイズ
	SyncRate        rate.Limit    // 手動同期のレート（req/sec）
	SyncBurst       int           // 手動同期のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min/session、手動同期 6 req/min/session。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return NewRateLimiterConfig(120, 6)
}

// NewRateLimiterConfig は1分あたりのリクエスト数からRateLimiterConfigを作る。
// バーストは1分あたりの上限と同じにする。
func NewRateLimiterConfig(generalPerMinute, syncPerMinute int) RateLimiterConfig {
	if generalPerMinute <= 0 {
		generalPerMinute = 120
	}
	if syncPerMinute <= 0 {
		syncPerMinute = 6
	}
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(generalPerMinute) / 60.0),
		GeneralBurst:    generalPerMinute,
		SyncRate:        rate.Limit(float64(syncPerMinute) / 60.0),
		SyncBurst:       syncPerMinute,
		CleanupInterval: 5 * time.Minute,
	}
}

type sessionLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet はキーごとのリミッターを保持する。
type limiterSet struct {
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	limiters map[string]*sessionLimiter
}

func newLimiterSet(r rate.Limit, burst int) *limiterSet {
	return &limiterSet{rate: r, burst: burst, limiters: make(map[string]*sessionLimiter)}
}

func (s *limiterSet) get(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sl, ok := s.limiters[key]; ok {
		sl.lastAccess = now
		return sl.limiter
	}
	l := rate.NewLimiter(s.rate, s.burst)
	s.limiters[key] = &sessionLimiter{limiter: l, lastAccess: now}
	return l
}

func (s *limiterSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

func (s *limiterSet) evict(olderThan time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, sl := range s.limiters {
		if sl.lastAccess.Before(olderThan) {
			delete(s.limiters, key)
		}
	}
}

// RateLimiter はセッションごとのレート制限を管理する。
// API全般と手動同期の2種類を独立に持つ。
type RateLimiter struct {
	config  RateLimiterConfig
	general *limiterSet
	manual  *limiterSet
	stopCh  chan struct{}
	once    sync.Once
}

// NewRateLimiter は新しいRateLimiterを生成し、期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	rl := &RateLimiter{
		config:  config,
		general: newLimiterSet(config.GeneralRate, config.GeneralBurst),
		manual:  newLimiterSet(config.SyncRate, config.SyncBurst),
		stopCh:  make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Stop はクリーンアップのゴルーチンを停止する。複数回呼んでもよい。
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stopCh) })
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.general, "general")
}

// SyncMiddleware は手動同期専用のレート制限ミドルウェアを返す。
// API全般のレート制限とは独立に動作する。
func (rl *RateLimiter) SyncMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.manual, "sync")
}

func (rl *RateLimiter) middleware(set *limiterSet, limitType string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := limiterKey(r)
			if !set.get(key, time.Now()).Allow() {
				slog.Warn("rate limit exceeded",
					slog.String("limiter_key", audit.SessionRef(key)),
					slog.String("limit_type", limitType),
				)
				writeRateLimitResponse(w, set.rate)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は管理中のAPI全般リミッター数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int { return rl.general.size() }

// SyncLimiterCount は管理中の手動同期リミッター数を返す。
func (rl *RateLimiter) SyncLimiterCount() int { return rl.manual.size() }

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセスからCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup(now time.Time) {
	cutoff := now.Add(-2 * rl.config.CleanupInterval)
	rl.general.evict(cutoff)
	rl.manual.evict(cutoff)
}

// limiterKey はセッションID、なければ接続元IPをキーにする。
func limiterKey(r *http.Request) string {
	if sid := SessionIDFromContext(r.Context()); sid != "" {
		return "sid:" + sid
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// writeRateLimitResponse は429を書き込む。
// Retry-Afterには1トークンが補充されるまでの秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := 1
	if r > 0 {
		retryAfterSec = max(1, int(math.Ceil(1.0/float64(r))))
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, &model.APIError{
		Code:     model.ErrCodeRateLimitExceeded,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterの秒数だけ待ってから再度お試しください。",
	})
}
