package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/hitoshi/laptrack/internal/auth"
	"github.com/hitoshi/laptrack/internal/config"
	"github.com/hitoshi/laptrack/internal/database"
	"github.com/hitoshi/laptrack/internal/handler"
	"github.com/hitoshi/laptrack/internal/identity"
	"github.com/hitoshi/laptrack/internal/identity/gotrue"
	"github.com/hitoshi/laptrack/internal/identity/local"
	"github.com/hitoshi/laptrack/internal/logger"
	"github.com/hitoshi/laptrack/internal/metrics"
	"github.com/hitoshi/laptrack/internal/middleware"
	"github.com/hitoshi/laptrack/internal/reconcile"
	"github.com/hitoshi/laptrack/internal/repository"
	"github.com/hitoshi/laptrack/internal/security"
	"github.com/hitoshi/laptrack/internal/stats"
	"github.com/hitoshi/laptrack/internal/team"
	"github.com/hitoshi/laptrack/internal/token"
	"github.com/hitoshi/laptrack/internal/training"
	"github.com/hitoshi/laptrack/internal/user"
)

// サーバーのタイムアウト設定。
const (
	serverReadTimeout     = 15 * time.Second
	serverWriteTimeout    = 15 * time.Second
	serverIdleTimeout     = 60 * time.Second
	serverShutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. .envがあれば読み込む
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 4. 設定されたログレベルで再初期化
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
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
		slog.String("port", cfg.ServerPort),
		slog.String("idp_mode", cfg.IDPMode),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg, args[1:])
	case CommandReconcile:
		return runReconcile(ctx, cfg, os.Stdout)
	default:
		return runServe(ctx, cfg)
	}
}

// openDB はコネクションプールを設定してDB接続を開き、疎通を確認する。
func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")
	return db, nil
}

// newIdentityProvider はIDP_MODEに応じたIdPアダプタを生成する。
func newIdentityProvider(cfg *config.Config, db *sql.DB) (identity.Provider, error) {
	switch cfg.IDPMode {
	case config.IDPModeLocal:
		// Googleのユーザー情報取得は外部URLへのアクセスのため、SSRF対策済みクライアントを使う
		client := security.NewURLGuard().NewSafeClient(cfg.IDPTimeout)
		google := local.NewGoogleVerifier(cfg.GoogleUserInfoURL, client)
		return local.NewProvider(repository.NewPostgresCredentialRepo(db), google), nil
	default:
		client, err := gotrue.NewClient(gotrue.Config{
			BaseURL:    cfg.IDPURL,
			ServiceKey: cfg.IDPServiceKey,
			Timeout:    cfg.IDPTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create identity provider client: %w", err)
		}
		return client, nil
	}
}

// rateLimiterConfig はreq/min単位の設定値をreq/sec単位のリミッター設定に変換する。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rlc := middleware.DefaultRateLimiterConfig()
	rlc.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rlc.GeneralBurst = cfg.RateLimitGeneral
	rlc.AuthRate = rate.Limit(float64(cfg.RateLimitAuth) / 60.0)
	rlc.AuthBurst = cfg.RateLimitAuth
	return rlc
}

// newAPIHandler は全依存関係をワイヤリングしてHTTPハンドラーを構築する。
// 返り値のcleanupはレートリミッターのバックグラウンド処理を停止する。
func newAPIHandler(cfg *config.Config, db *sql.DB, provider identity.Provider, reg *prometheus.Registry) (http.Handler, func(), error) {
	// 1. メトリクス
	collector := metrics.NewCollector(reg)

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	teamRepo := repository.NewPostgresTeamRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	statsRepo := repository.NewPostgresStatsRepo(db)

	// 3. セキュリティサービスの初期化
	urlGuard := security.NewURLGuard()
	sanitizer := security.NewTextSanitizer()

	// 4. トークン管理
	tokens, err := token.NewManager(token.Config{
		Secret: cfg.TokenSecret,
		TTL:    cfg.TokenTTL,
		Issuer: cfg.TokenIssuer,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create token manager: %w", err)
	}

	// 5. ドメインサービスの初期化
	authService := auth.NewService(provider, userRepo, tokens, collector)
	userService := user.NewService(userRepo, urlGuard, provider)
	trainingService := training.NewService(sessionRepo, userRepo, sanitizer)
	teamService := team.NewService(teamRepo, userRepo, sanitizer, urlGuard)
	statsEngine := stats.NewEngine(statsRepo, userRepo, collector)

	// 6. ルーターの構築
	limiter := middleware.NewRateLimiter(rateLimiterConfig(cfg))
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:             slog.Default(),
		TokenVerifier:      tokens,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        limiter,
		HTTPMetrics:        collector,

		DB:             db,
		MetricsHandler: metrics.Handler(reg),

		AuthService:     authService,
		ProfileService:  userService,
		TrainingService: trainingService,
		TeamService:     teamService,
		Stats:           statsEngine,
	})

	return router, limiter.Stop, nil
}

// newRegistry はプロセス・ランタイムのメトリクスを含むレジストリを生成する。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	provider, err := newIdentityProvider(cfg, db)
	if err != nil {
		return err
	}

	router, cleanup, err := newAPIHandler(cfg, db, provider, newRegistry())
	if err != nil {
		return err
	}
	defer cleanup()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
//
//	migrate [up]      未適用のマイグレーションをすべて適用する
//	migrate down [N]  N（既定1）ステップ巻き戻す
//	migrate version   適用済みのバージョンを表示する
func runMigrate(cfg *config.Config, args []string) error {
	action := "up"
	if len(args) > 0 {
		action = args[0]
	}

	slog.Info("running database migrations",
		slog.String("action", action),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch action {
	case "up":
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	case "down":
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid rollback steps: %q", args[1])
			}
			steps = n
		}
		if err := database.RollbackMigrations(cfg.DatabaseURL, steps); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
	case "version":
		version, dirty, err := database.SchemaVersion(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		slog.Info("schema version",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
		return nil
	default:
		return fmt.Errorf("unknown migrate action: %q (want up, down or version)", action)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runReconcile はIdPとローカルユーザーの差分レポートをoutにJSONで出力する。
// データの変更は行わない。
func runReconcile(ctx context.Context, cfg *config.Config, out io.Writer) error {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	provider, err := newIdentityProvider(cfg, db)
	if err != nil {
		return err
	}

	job := reconcile.NewJob(provider, repository.NewPostgresUserRepo(db), slog.Default())
	report, err := job.Run(ctx)
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}

	if !report.Clean() {
		slog.Warn("identity differences found",
			slog.Int("missing_local", len(report.MissingLocal)),
			slog.Int("missing_provider", len(report.MissingProvider)),
			slog.Int("id_mismatches", len(report.IDMismatches)),
		)
	}
	return reconcile.WriteJSON(out, report)
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.Redacted()
}
