package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// 対応するセッションストア
const (
	SessionStorePostgres = "postgres"
	SessionStoreRedis    = "redis"
	SessionStoreMemory   = "memory"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Session store
	SessionStore string
	DatabaseURL  string
	RedisURL     string

	// OAuth
	GoogleClientID      string
	GoogleClientSecret  string
	GoogleRedirectURL   string
	GoogleAuthURL       string
	GoogleTokenURL      string
	GoogleAPIEndpoint   string
	GoogleVerifyIDToken bool

	// Role
	RoleAdminAllowlist []string
	AllowedEmailDomain string

	// Session
	SessionMaxAge int

	// Feed aggregation
	FeedLimit              int
	FeedCandidates         int
	FeedMaxConcurrent      int
	FeedTimeout            time.Duration
	FeedStrictMessageDedup bool
	DisplayTimezone        string

	// News
	NewsFeedURL      string
	NewsLimit        int
	NewsCacheTTL     time.Duration
	NewsFetchTimeout time.Duration
	NewsFetchMaxSize int64

	// Audit
	KafkaBrokers []string
	KafkaTopic   string

	// Rate Limit
	RateLimitGeneral int
	RateLimitSync    int

	// Worker
	CleanupInterval time.Duration

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込むが、既存の環境変数は上書きしない。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.SessionStore = getEnvString("SESSION_STORE", SessionStorePostgres)
	switch cfg.SessionStore {
	case SessionStorePostgres:
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case SessionStoreRedis:
		cfg.RedisURL = os.Getenv("REDIS_URL")
		if cfg.RedisURL == "" {
			missing = append(missing, "REDIS_URL")
		}
	case SessionStoreMemory:
	default:
		return nil, fmt.Errorf("unsupported SESSION_STORE: %q", cfg.SessionStore)
	}

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	if cfg.GoogleClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}

	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	if cfg.GoogleClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}

	cfg.GoogleRedirectURL = os.Getenv("GOOGLE_REDIRECT_URL")
	if cfg.GoogleRedirectURL == "" {
		missing = append(missing, "GOOGLE_REDIRECT_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.GoogleAuthURL = getEnvString("GOOGLE_AUTH_URL", "")
	cfg.GoogleTokenURL = getEnvString("GOOGLE_TOKEN_URL", "")
	cfg.GoogleAPIEndpoint = getEnvString("GOOGLE_API_ENDPOINT", "")
	cfg.GoogleVerifyIDToken = getEnvBool("GOOGLE_VERIFY_ID_TOKEN", false)
	cfg.RoleAdminAllowlist = getEnvList("ROLE_ADMIN_ALLOWLIST", nil)
	cfg.AllowedEmailDomain = getEnvString("ALLOWED_EMAIL_DOMAIN", "")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 28800)
	cfg.FeedLimit = getEnvInt("FEED_LIMIT", 5)
	cfg.FeedCandidates = getEnvInt("FEED_CANDIDATES", 12)
	cfg.FeedMaxConcurrent = getEnvInt("FEED_MAX_CONCURRENT", 6)
	cfg.FeedTimeout = getEnvDuration("FEED_TIMEOUT", 15*time.Second)
	cfg.FeedStrictMessageDedup = getEnvBool("FEED_STRICT_MESSAGE_DEDUP", false)
	cfg.DisplayTimezone = getEnvString("DISPLAY_TIMEZONE", "Asia/Karachi")
	cfg.NewsFeedURL = getEnvString("NEWS_FEED_URL", "")
	cfg.NewsLimit = getEnvInt("NEWS_LIMIT", 6)
	cfg.NewsCacheTTL = getEnvDuration("NEWS_CACHE_TTL", 10*time.Minute)
	cfg.NewsFetchTimeout = getEnvDuration("NEWS_FETCH_TIMEOUT", 10*time.Second)
	cfg.NewsFetchMaxSize = getEnvInt64("NEWS_FETCH_MAX_SIZE", 5242880)
	cfg.KafkaBrokers = getEnvList("KAFKA_BROKERS", nil)
	cfg.KafkaTopic = getEnvString("KAFKA_TOPIC", "portal.session-events")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitSync = getEnvInt("RATE_LIMIT_SYNC", 6)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", time.Hour)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	if cfg.SessionMaxAge <= 0 {
		return nil, fmt.Errorf("SESSION_MAX_AGE must be positive: %d", cfg.SessionMaxAge)
	}

	if cfg.FeedCandidates < cfg.FeedLimit {
		cfg.FeedCandidates = cfg.FeedLimit
	}

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvList はカンマ区切りの環境変数を空要素を除いたスライスとして返す。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
