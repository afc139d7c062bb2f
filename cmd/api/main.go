package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/medicare-assistant/cmd/mainconfig"
	"github.com/wolfman30/medicare-assistant/internal/api/router"
	"github.com/wolfman30/medicare-assistant/internal/app/bootstrap"
	"github.com/wolfman30/medicare-assistant/internal/appointments"
	"github.com/wolfman30/medicare-assistant/internal/attachments"
	appconfig "github.com/wolfman30/medicare-assistant/internal/config"
	"github.com/wolfman30/medicare-assistant/internal/conversation"
	"github.com/wolfman30/medicare-assistant/internal/events"
	httpmiddleware "github.com/wolfman30/medicare-assistant/internal/http/middleware"
	"github.com/wolfman30/medicare-assistant/internal/notify"
	"github.com/wolfman30/medicare-assistant/internal/observability/metrics"
	"github.com/wolfman30/medicare-assistant/internal/webchat"
	"github.com/wolfman30/medicare-assistant/pkg/logging"
)

func main() {
	// .env is optional; real deployments inject the environment directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting medicare-assistant API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"session_backend", cfg.SessionBackend,
		"capacity_backend", cfg.CapacityBackend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	fmt.Println("Server exited gracefully")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool != nil {
		defer pool.Close()
	}
	sqlDB := openSQLDB(cfg.DatabaseURL, logger)
	if sqlDB != nil {
		defer func() { _ = sqlDB.Close() }()
	}

	var redisClient *redis.Client
	if bootstrap.UsesRedis(cfg) {
		redisClient = bootstrap.BuildRedisClient(ctx, cfg, logger, true)
		if redisClient != nil {
			defer func() { _ = redisClient.Close() }()
		}
	}

	var clients mainconfig.AWSClients
	if mainconfig.NeedsAWS(cfg) {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return fmt.Errorf("load AWS config: %w", err)
		}
		clients = mainconfig.BuildAWSClients(awsCfg, cfg)
	}

	metricsHandler, convMetrics := setupMetrics()

	ledger, err := bootstrap.BuildCapacityLedger(cfg, redisClient, clients.DynamoDB, logger)
	if err != nil {
		return err
	}
	sessions, err := bootstrap.BuildSessionStore(cfg, redisClient, logger)
	if err != nil {
		return err
	}

	var ses notify.SESAPI
	if clients.SES != nil {
		ses = clients.SES
	}
	email, err := bootstrap.BuildEmailSender(cfg, ses, logger)
	if err != nil {
		return err
	}

	service := appointments.NewService(appointmentStore(pool, logger), ledger,
		appointments.WithLogger(logger),
		appointments.WithMetrics(convMetrics),
		appointments.WithTimeout(cfg.StoreTimeout),
		appointments.WithNotifier(notify.NewAppointmentNotifier(email, logger)),
		appointments.WithEvents(setupEvents(cfg, clients, logger)),
	)

	machine := conversation.NewMachine(service, bootstrap.MachineOptions(cfg, logger)...)
	engineOpts := []conversation.EngineOption{
		conversation.WithEngineLogger(logger),
		conversation.WithEngineMetrics(convMetrics),
		conversation.WithTypingDelay(cfg.TypingDelay),
	}
	if lease := bootstrap.BuildSessionLease(cfg, redisClient, logger); lease != nil {
		engineOpts = append(engineOpts, conversation.WithSessionLease(lease))
	}
	transcripts := bootstrap.BuildTranscriptStore(sqlDB, logger)
	var transcriptReader conversation.TranscriptReader
	if transcripts != nil {
		engineOpts = append(engineOpts, conversation.WithTranscripts(transcripts))
		transcriptReader = transcripts
	}
	if uploader := setupAttachments(cfg, clients, logger); uploader != nil {
		engineOpts = append(engineOpts, conversation.WithUploader(uploader))
	}
	engine := conversation.NewEngine(machine, sessions, engineOpts...)

	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)
	go limiter.Run(ctx.Done())

	r := router.New(&router.Config{
		Logger:              logger,
		ConversationHandler: conversation.NewHandler(engine, transcriptReader, cfg.MaxAttachmentBytes, logger),
		AppointmentsHandler: appointments.NewHandler(service, logger),
		WebChatHandler:      webchat.NewHandler(engine, logger),
		MetricsHandler:      metricsHandler,
		UserAuthSecret:      cfg.AuthJWTSecret,
		AdminAuthSecret:     cfg.AdminJWTSecret,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimiter:         limiter,
		HealthCheck:         healthCheck(pool, redisClient),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func setupMetrics() (http.Handler, *metrics.ConversationMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewConversationMetrics(reg)
}

func connectPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if strings.TrimSpace(databaseURL) == "" {
		logger.Warn("DATABASE_URL not set; appointments kept in memory")
		return nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		return nil
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error("postgres not reachable", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

func openSQLDB(databaseURL string, logger *logging.Logger) *sql.DB {
	if strings.TrimSpace(databaseURL) == "" {
		return nil
	}
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		logger.Error("failed to open transcript database", "error", err)
		return nil
	}
	return db
}

func appointmentStore(pool *pgxpool.Pool, logger *logging.Logger) appointments.Store {
	if pool == nil {
		return appointments.NewMemoryStore()
	}
	logger.Info("appointments stored in postgres")
	return appointments.NewPostgresStore(pool)
}

func setupEvents(cfg *appconfig.Config, clients mainconfig.AWSClients, logger *logging.Logger) appointments.EventPublisher {
	if clients.SQS == nil {
		return nil
	}
	logger.Info("appointment events published to sqs", "queue", cfg.EventsQueueURL)
	return events.NewSQSPublisher(clients.SQS, cfg.EventsQueueURL, logger)
}

func setupAttachments(cfg *appconfig.Config, clients mainconfig.AWSClients, logger *logging.Logger) conversation.AttachmentUploader {
	if clients.S3 == nil {
		logger.Warn("ATTACHMENTS_BUCKET not set; medical record uploads disabled")
		return nil
	}
	logger.Info("medical records stored in s3", "bucket", cfg.AttachmentsBucket)
	return attachments.NewStore(clients.S3, clients.Presigner, cfg.AttachmentsBucket, logger)
}

func healthCheck(pool *pgxpool.Pool, redisClient *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
		}
		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}
}
