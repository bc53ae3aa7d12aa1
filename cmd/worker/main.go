package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqcontracts "eztodo/contracts/mq"
	"eztodo/internal/config"
	"eztodo/internal/mqhandler"
	"eztodo/internal/notify"
	"eztodo/internal/reminder"
	"eztodo/internal/repository"
	"eztodo/internal/service/todo"
	"eztodo/pkg/db"
	"eztodo/pkg/logger"
	"eztodo/pkg/mq"
	"eztodo/pkg/otel"
	"eztodo/pkg/outbox"
	"eztodo/pkg/redis"
	"eztodo/pkg/util"

	"go.uber.org/zap"
)

const (
	todoChangedQueue = "todo.changed.reminders.q"
	reminderDueQueue = "reminder.due.push.q"
)

func main() {
	cfg := config.Load()
	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting eztodo worker...")

	shutdownTracing, err := otel.Init(otel.Config{
		ServiceName:    "eztodo-worker",
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

	// Redis
	rdb, err := redis.NewRedisClient(cfg.Redis, log)
	if err != nil {
		log.Fatal("Failed to init Redis", zap.Error(err))
	}
	defer rdb.Close()

	deduper := util.NewDeduper(rdb, cfg.DedupTTL(), log)
	// 已投递的提醒标记保留一天，覆盖 outbox replay 的重发
	deliveredDeduper := util.NewDeduper(rdb, 24*time.Hour, log)
	retryCounter := util.NewRetryCounter(rdb, time.Hour)

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB connection failed", zap.Error(err))
	}
	defer dbConn.Close()
	log.Info("DB ready")

	// DLQ publisher
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init publisher", zap.Error(err))
	}
	defer publisher.Close()

	// repositories
	outboxRepo := outbox.NewRepository(dbConn)
	todoRepo := repository.NewTodoRepository(dbConn, outboxRepo, log)
	deviceRepo := repository.NewDeviceRepository(dbConn, log)
	notificationRepo := repository.NewNotificationRepository(dbConn, outboxRepo, log)

	todoService := todo.NewService(todoRepo, log)
	notifier := notify.NewNotifier(notificationRepo, deviceRepo, log)
	reconciler := reminder.NewReconciler(notifier, reminder.NewRedisStateStore(rdb, log), log).
		WithConcurrency(cfg.Reminder.SyncConcurrency)
	sender := notify.NewSender(cfg.Push.WebhookURL, deviceRepo, log).WithTimeout(cfg.PushTimeout())

	// handlers
	todoChangedHandler := mqhandler.NewTodoChangedHandler(todoService, deviceRepo, reconciler, deduper, log)
	reminderDueHandler := mqhandler.NewReminderDueHandler(sender, retryCounter, publisher, deliveredDeduper, log)

	// -------------------------
	// todo.changed Consumer
	// -------------------------
	log.Info("Init consumer", zap.String("queue", todoChangedQueue))
	todoConsumer, err := mq.NewConsumer(cfg.MQ.URL, todoChangedQueue, mqcontracts.RoutingTodoChanged, log)
	if err != nil {
		log.Fatal("todo.changed consumer init failed", zap.Error(err))
	}
	defer todoConsumer.Close()
	todoConsumer.SetHandler(todoChangedHandler.Handle)

	go func() {
		if err := todoConsumer.StartConsuming(); err != nil {
			log.Fatal("todo.changed consumer crashed", zap.Error(err))
		}
	}()

	// -------------------------
	// reminder.due Consumer
	// -------------------------
	log.Info("Init consumer", zap.String("queue", reminderDueQueue))
	dueConsumer, err := mq.NewConsumer(cfg.MQ.URL, reminderDueQueue, mqcontracts.RoutingReminderDue, log)
	if err != nil {
		log.Fatal("reminder.due consumer init failed", zap.Error(err))
	}
	defer dueConsumer.Close()
	dueConsumer.SetHandler(reminderDueHandler.Handle)

	go func() {
		if err := dueConsumer.StartConsuming(); err != nil {
			log.Fatal("reminder.due consumer crashed", zap.Error(err))
		}
	}()

	// 到期提醒扫描
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := notify.NewDispatcher(notificationRepo, log).
		WithInterval(cfg.DispatchInterval()).
		WithBatchSize(cfg.Reminder.BatchSize)
	go dispatcher.Start(ctx)

	log.Info("Worker running",
		zap.String("todo_queue", todoChangedQueue),
		zap.String("due_queue", reminderDueQueue),
	)

	// 优雅退出处理
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down worker gracefully...")
	cancel()
	todoConsumer.Stop()
	dueConsumer.Stop()

	log.Info("worker shutdown complete")
}
