package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/tripbooking/config"
	"github.com/Domenick1991/tripbooking/internal/cache"
	"github.com/Domenick1991/tripbooking/internal/email"
	"github.com/Domenick1991/tripbooking/internal/inventory"
	"github.com/Domenick1991/tripbooking/internal/kafka"
	"github.com/Domenick1991/tripbooking/internal/logging"
	"github.com/Domenick1991/tripbooking/internal/repository"
	"github.com/Domenick1991/tripbooking/internal/service/booking"
	"github.com/Domenick1991/tripbooking/internal/service/reaper"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		logging.New(config.LogConfig{}).WithError(err).Fatal("Failed to load config")
	}
	logger := logging.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to postgres")
	}
	defer pool.Close()

	redisCache := cache.NewRedisCache(cfg.Redis, time.Duration(cfg.Booking.TripsCacheTTLSeconds)*time.Second)
	producer := kafka.NewProducer(cfg.Kafka.Brokers, logger)
	defer producer.Close()

	coordinator := inventory.NewCoordinator(
		inventory.NewClient(cfg.Inventory.BaseURL, &http.Client{}),
		inventory.WithTimeout(cfg.Inventory.Timeout()),
		inventory.WithReleaseRetries(cfg.Inventory.Retries()),
		inventory.WithLogger(logger),
	)

	bookingRepo := repository.NewBookingRepository(pool)
	bookingService := booking.NewBookingService(
		bookingRepo,
		coordinator,
		redisCache,
		kafka.NewNotificationDispatcher(producer, cfg.Kafka.NotificationsTopic, cfg.Kafka.EventsTopic),
		cfg.Policy.Engine(),
		booking.WithHoldDuration(cfg.Booking.HoldTTL()),
		booking.WithCurrency(cfg.Booking.Currency),
		booking.WithNotifyTimeout(time.Duration(cfg.Booking.NotifyTimeoutSeconds)*time.Second),
		booking.WithLogger(logger),
	)

	sweeper := reaper.New(bookingRepo, bookingService,
		reaper.WithBatchSize(cfg.Worker.ReaperBatchSize),
		reaper.WithLogger(logger),
	)
	scheduler := reaper.NewScheduler(sweeper, logger)
	if err := scheduler.Start(ctx, cfg.Worker.ReaperSchedule); err != nil {
		logger.WithError(err).Fatal("Failed to start expiration reaper")
	}
	defer scheduler.Stop()

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic, logger)
	defer consumer.Close()

	emailSender := email.NewSender(logger)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.ConsumeNotifications(ctx, emailSender.Send); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("Notification consumer stopped")
		}
	}()

	<-ctx.Done()
	logger.Info("Received shutdown signal, stopping worker")
	<-done
}
