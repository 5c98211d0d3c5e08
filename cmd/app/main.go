package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/tripbooking/config"
	"github.com/Domenick1991/tripbooking/internal/bootstrap"
	"github.com/Domenick1991/tripbooking/internal/cache"
	"github.com/Domenick1991/tripbooking/internal/inventory"
	"github.com/Domenick1991/tripbooking/internal/kafka"
	"github.com/Domenick1991/tripbooking/internal/logging"
	"github.com/Domenick1991/tripbooking/internal/reference"
	"github.com/Domenick1991/tripbooking/internal/repository"
	"github.com/Domenick1991/tripbooking/internal/service/booking"
	"github.com/Domenick1991/tripbooking/internal/service/trips"
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
	if err := redisCache.Ping(ctx); err != nil {
		logger.WithError(err).Warn("Redis unavailable, hold markers and trip cache are degraded")
	}

	producer := kafka.NewProducer(cfg.Kafka.Brokers, logger)
	defer producer.Close()
	if err := producer.CheckConnection(ctx); err != nil {
		logger.WithError(err).Warn("Kafka unavailable, notifications will be dropped")
	}
	notifier := kafka.NewNotificationDispatcher(producer, cfg.Kafka.NotificationsTopic, cfg.Kafka.EventsTopic)

	coordinator := inventory.NewCoordinator(
		inventory.NewClient(cfg.Inventory.BaseURL, &http.Client{}),
		inventory.WithTimeout(cfg.Inventory.Timeout()),
		inventory.WithReleaseRetries(cfg.Inventory.Retries()),
		inventory.WithLogger(logger),
	)

	bookingRepo := repository.NewBookingRepository(pool)
	tripService := trips.NewTripService(coordinator, redisCache, logger)
	bookingService := booking.NewBookingService(
		bookingRepo,
		coordinator,
		redisCache,
		notifier,
		cfg.Policy.Engine(),
		booking.WithHoldDuration(cfg.Booking.HoldTTL()),
		booking.WithCurrency(cfg.Booking.Currency),
		booking.WithReferenceGenerator(reference.NewGenerator()),
		booking.WithReferenceAttempts(cfg.Booking.ReferenceAttempts),
		booking.WithReferenceBackoff(
			time.Duration(cfg.Booking.ReferenceBackoffMinMS)*time.Millisecond,
			time.Duration(cfg.Booking.ReferenceBackoffMaxMS)*time.Millisecond,
		),
		booking.WithNotifyTimeout(time.Duration(cfg.Booking.NotifyTimeoutSeconds)*time.Second),
		booking.WithLogger(logger),
	)

	if err := bootstrap.Run(ctx, cfg, logger, tripService, bookingService); err != nil {
		logger.WithError(err).Fatal("Server error")
	}
}
