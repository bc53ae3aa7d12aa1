package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eztodo/internal/config"
	"eztodo/internal/handler"
	"eztodo/internal/httpserver"
	"eztodo/internal/notify"
	"eztodo/internal/reminder"
	"eztodo/internal/repository"
	"eztodo/internal/service/auth"
	"eztodo/internal/service/todo"
	"eztodo/pkg/db"
	"eztodo/pkg/logger"
	"eztodo/pkg/mq"
	"eztodo/pkg/otel"
	"eztodo/pkg/outbox"
	"eztodo/pkg/redis"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting eztodo api...",
		zap.String("db_host", cfg.DB.Host),
		zap.Int("db_port", cfg.DB.Port),
		zap.String("addr", cfg.ServerAddr()),
	)

	shutdownTracing, err := otel.Init(otel.Config{
		ServiceName:    "eztodo-api",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Otel.Environment,
		Endpoint:       cfg.Otel.Endpoint,
		Enabled:        cfg.Otel.Enabled,
		SampleRatio:    cfg.Otel.SampleRatio,
	}, log)
	if err != nil {
		log.Fatal("Failed to init OpenTelemetry", zap.Error(err))
	}
	defer shutdownTracing()

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()

	schemaCtx, schemaCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := repository.EnsureSchema(schemaCtx, dbConn, log); err != nil {
		schemaCancel()
		log.Fatal("Failed to apply schema", zap.Error(err))
	}
	schemaCancel()

	// Redis
	rdb, err := redis.NewRedisClient(cfg.Redis, log)
	if err != nil {
		log.Fatal("Failed to init Redis", zap.Error(err))
	}
	defer rdb.Close()

	// MQ publisher，只给 outbox 使用
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init publisher", zap.Error(err))
	}
	defer publisher.Close()

	outboxRepo := outbox.NewRepository(dbConn)
	userRepo := repository.NewUserRepository(dbConn)
	todoRepo := repository.NewTodoRepository(dbConn, outboxRepo, log)
	deviceRepo := repository.NewDeviceRepository(dbConn, log)
	notificationRepo := repository.NewNotificationRepository(dbConn, outboxRepo, log)

	authService := auth.NewService(userRepo, cfg.JWT.Secret, cfg.TokenTTL(), log)
	todoService := todo.NewService(todoRepo, log)
	notifier := notify.NewNotifier(notificationRepo, deviceRepo, log)
	reconciler := reminder.NewReconciler(notifier, reminder.NewRedisStateStore(rdb, log), log).
		WithConcurrency(cfg.Reminder.SyncConcurrency)
	replayService := outbox.NewReplayService(outboxRepo, publisher, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Outbox dispatcher 把 todo.changed / reminder.due 投递到 MQ
	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log).
		WithRetention(cfg.OutboxRetention())
	go dispatcher.Start(ctx)

	router := httpserver.NewRouter(httpserver.Handlers{
		Auth:         handler.NewAuthHandler(authService, log),
		Todo:         handler.NewTodoHandler(todoService, log),
		Notification: handler.NewNotificationHandler(notifier, log),
		Reminder:     handler.NewReminderHandler(todoService, reconciler, log),
		Admin:        handler.NewAdminHandler(replayService, log),
	}, cfg.JWT.Secret, map[string]httpserver.ReadinessCheck{
		"db":    func(ctx context.Context) error { return dbConn.Ping(ctx) },
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		"mq": func(context.Context) error {
			if !publisher.IsConnected() {
				return errors.New("publisher disconnected")
			}
			return nil
		},
	}, log)

	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 优雅退出处理
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down api gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	log.Info("api shutdown complete")
}
