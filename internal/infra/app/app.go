package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/jsantic/authgate/internal/core/port"
	"github.com/jsantic/authgate/internal/infra/config"
	"github.com/jsantic/authgate/internal/infra/database"
	kafkainfra "github.com/jsantic/authgate/internal/infra/kafka"
	"github.com/jsantic/authgate/internal/infra/logger"
	oauthinfra "github.com/jsantic/authgate/internal/infra/oauth"
	redisinfra "github.com/jsantic/authgate/internal/infra/redis"
	"github.com/jsantic/authgate/internal/infra/security"
	"github.com/jsantic/authgate/internal/infra/telemetry"
	postgresrepo "github.com/jsantic/authgate/internal/repository/postgres"
	redisrepo "github.com/jsantic/authgate/internal/repository/redis"
	"github.com/jsantic/authgate/internal/transport/http/routes"
	"github.com/jsantic/authgate/internal/usecase"
)

// Application wires configuration, storage, services, and the HTTP engine.
type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
	tracing  *telemetry.TracerProvider
}

// New builds the application graph from configuration.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	tracing, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)
	cache := redisrepo.NewAuthCache(redisClient.Client(), cfg.Redis.KeyPrefix)

	var mailer port.EmailSender
	var producer *kafkainfra.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub mailer", zap.Error(err))
			mailer = kafkainfra.NewStubMailer(log)
		} else {
			mailer = kafkainfra.NewMailer(producer, cfg.App, log)
			log.Info("kafka mailer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub mailer")
		mailer = kafkainfra.NewStubMailer(log)
	}

	hasher := security.NewHasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	validator := security.DefaultPasswordValidator()

	registry := prometheus.NewRegistry()
	authMetrics, err := telemetry.NewAuthMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	guard := usecase.NewGuard(cache, log)
	sessionService := usecase.NewSessionService(repos.Sessions, cache, cfg.Session, log).
		WithMetrics(authMetrics)
	authService := usecase.NewAuthService(repos.Users, cache, mailer, sessionService, guard, hasher, validator, cfg, log).
		WithMetrics(authMetrics)

	var oauthService *usecase.OAuthService
	clients := make([]port.OAuthClient, 0, 2)
	if cfg.OAuth.GitHub.ClientID != "" {
		clients = append(clients, oauthinfra.NewGitHubClient(cfg.OAuth.GitHub))
	}
	if cfg.OAuth.Google.ClientID != "" {
		clients = append(clients, oauthinfra.NewGoogleClient(cfg.OAuth.Google))
	}
	if len(clients) > 0 {
		oauthService = usecase.NewOAuthService(repos.OAuth, sessionService, log, clients...)
	} else {
		log.Info("no oauth providers configured")
	}

	engine := routes.Register(routes.Dependencies{
		Config:   cfg,
		Logger:   log,
		Registry: registry,
		Database: pool,
		Cache:    redisClient,
		Services: routes.ServiceSet{
			Auth:     authService,
			OAuth:    oauthService,
			Sessions: sessionService,
		},
	})

	return &Application{
		cfg:      cfg,
		engine:   engine,
		logger:   log,
		pool:     pool,
		redis:    redisClient,
		producer: producer,
		tracing:  tracing,
	}, nil
}

// Run serves HTTP until the context is cancelled, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.pool.Close()
	defer func() {
		_ = a.redis.Close()
	}()
	defer func() {
		if a.producer != nil {
			_ = a.producer.Close()
		}
	}()
	defer func() {
		if a.tracing != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = a.tracing.Shutdown(shutdownCtx)
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting auth API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
