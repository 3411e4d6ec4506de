package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"
	// distrolessイメージでもDISPLAY_TIMEZONEを解決できるようにする
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/portal/internal/audit"
	"github.com/hitoshi/portal/internal/auth"
	"github.com/hitoshi/portal/internal/config"
	"github.com/hitoshi/portal/internal/database"
	"github.com/hitoshi/portal/internal/document"
	"github.com/hitoshi/portal/internal/feed"
	"github.com/hitoshi/portal/internal/handler"
	"github.com/hitoshi/portal/internal/logger"
	"github.com/hitoshi/portal/internal/metrics"
	"github.com/hitoshi/portal/internal/middleware"
	"github.com/hitoshi/portal/internal/news"
	"github.com/hitoshi/portal/internal/repository"
	"github.com/hitoshi/portal/internal/security"
	"github.com/hitoshi/portal/internal/worker/cleanup"
)

// Init はログを初期化してから環境変数の設定を読み込む。
// 設定読み込み後はLOG_LEVELに合わせてグローバルロガーを作り直す。
func Init(w io.Writer) (*config.Config, error) {
	if w == nil {
		w = os.Stdout
	}
	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	slog.SetDefault(logger.Setup(w, logger.ParseLevel(cfg.LogLevel)))
	return cfg, nil
}

// Run はサブコマンドに応じたモードで起動する。argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheckは設定全体を必要としない
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("session_store", cfg.SessionStore),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// openSessionStore は設定されたバックエンドのセッションストアを開き、疎通を確認する。
// 戻り値のcloseは接続を解放する。
func openSessionStore(ctx context.Context, cfg *config.Config) (repository.SessionStore, func() error, error) {
	storeCfg := repository.StoreConfig{TTL: time.Duration(cfg.SessionMaxAge) * time.Second}

	switch cfg.SessionStore {
	case config.SessionStoreRedis:
		client, err := repository.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		store := repository.NewRedisSessionStore(client, storeCfg)
		if err := store.Ping(ctx); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return store, client.Close, nil

	case config.SessionStoreMemory:
		return repository.NewMemorySessionStore(storeCfg), func() error { return nil }, nil

	default:
		db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig())
		if err != nil {
			return nil, nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return repository.NewPostgresSessionStore(db, storeCfg), db.Close, nil
	}
}

// buildHandler はセッションストアを起点に全依存関係を組み立て、ルーターを返す。
// 戻り値のshutdownはレートリミッターと監査ログの送信を停止する。
func buildHandler(cfg *config.Config, store repository.SessionStore, log *slog.Logger) (http.Handler, func(), error) {
	location, err := time.LoadLocation(cfg.DisplayTimezone)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid DISPLAY_TIMEZONE %q: %w", cfg.DisplayTimezone, err)
	}

	// 1. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 2. 認証
	publisher := audit.New(cfg.KafkaBrokers, cfg.KafkaTopic, log)
	idpClient := auth.NewIdPHTTPClient(log, 10*time.Second)

	var verifier auth.IDTokenVerifier
	if cfg.GoogleVerifyIDToken {
		verifier = auth.NewGoogleIDTokenVerifier(cfg.GoogleClientID, idpClient)
	}
	decoder := auth.NewCredentialDecoder(auth.CredentialDecoderConfig{
		Verifier:      verifier,
		AllowedDomain: cfg.AllowedEmailDomain,
	})
	grants := auth.NewGoogleGrantProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		AuthURL:      cfg.GoogleAuthURL,
		TokenURL:     cfg.GoogleTokenURL,
		HTTPClient:   idpClient,
	})
	authService := auth.NewService(
		store, decoder, auth.NewRoleMapper(cfg.RoleAdminAllowlist), grants,
		publisher, collector, auth.ServiceConfig{},
	)

	// 3. ダッシュボード集計
	source := feed.NewGoogleSource(feed.GoogleSourceConfig{
		Endpoint:   cfg.GoogleAPIEndpoint,
		HTTPClient: &http.Client{Timeout: cfg.FeedTimeout},
	})
	aggregator := feed.NewAggregator(source, source, source, collector, log, feed.AggregatorConfig{
		Limit:              cfg.FeedLimit,
		Candidates:         cfg.FeedCandidates,
		MaxConcurrent:      cfg.FeedMaxConcurrent,
		Timeout:            cfg.FeedTimeout,
		StrictMessageDedup: cfg.FeedStrictMessageDedup,
		Location:           location,
	})

	// 4. ニュースと資料
	fetcher := news.NewHTTPFeedFetcher(security.NewSSRFGuard(), cfg.NewsFetchTimeout, cfg.NewsFetchMaxSize)
	newsService := news.NewService(fetcher, security.NewContentSanitizer(), log, news.Config{
		FeedURL:  cfg.NewsFeedURL,
		Limit:    cfg.NewsLimit,
		CacheTTL: cfg.NewsCacheTTL,
	})

	// 5. ルーター
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitSync))
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		Metrics:           collector,
		Gatherer:          reg,
		HealthChecker:     store,
		SessionRestorer:   authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: rateLimiter,
		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},
		Aggregator: aggregator,
		News:       newsService,
		Documents:  document.NewCatalog(nil),
	})

	shutdown := func() {
		rateLimiter.Stop()
		if err := publisher.Close(); err != nil {
			log.Warn("failed to close audit publisher", slog.String("error", err.Error()))
		}
	}
	return router, shutdown, nil
}

// runServe はHTTPサーバーを起動し、ctxがキャンセルされたらグレースフルシャットダウンする。
func runServe(ctx context.Context, cfg *config.Config) error {
	store, closeStore, err := openSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	slog.Info("session store ready", slog.String("backend", cfg.SessionStore))

	router, shutdownDeps, err := buildHandler(cfg, store, slog.Default())
	if err != nil {
		return err
	}
	defer shutdownDeps()

	// WriteTimeoutは集計のタイムアウトより長くする
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.FeedTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker は期限切れセッションの定期削除を実行する。
// PostgreSQL以外のストアは自前で期限切れを処理するため、何もせずに終了する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	if cfg.SessionStore != config.SessionStorePostgres {
		slog.Info("cleanup worker is not required for this session store",
			slog.String("backend", cfg.SessionStore),
		)
		return nil
	}

	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("worker starting", slog.Duration("cleanup_interval", cfg.CleanupInterval))

	cleanup.NewCleanupJob(db, slog.Default()).Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はセッションテーブルのマイグレーションを適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.SessionStore != config.SessionStorePostgres {
		return fmt.Errorf("migrate requires SESSION_STORE=%s, got %q", config.SessionStorePostgres, cfg.SessionStore)
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はローカルの/healthを呼び出し、200以外ならエラーを返す。
func runHealthcheck(port string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(fmt.Sprintf("http://localhost:%s/health", port))
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// maskDatabaseURL はログ出力用にパスワードを伏せたURLを返す。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
