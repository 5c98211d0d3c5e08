package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Domenick1991/tripbooking/api"
	"github.com/Domenick1991/tripbooking/config"
	"github.com/Domenick1991/tripbooking/internal/logging"
	"github.com/Domenick1991/tripbooking/internal/service/booking"
	"github.com/Domenick1991/tripbooking/internal/service/trips"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 5 * time.Second

// NewRouter wires the public handlers under /api/v1 and the collaborator
// handlers under /internal/v1. The internal group is only mounted when an
// internal token is configured.
func NewRouter(logger *logrus.Logger, internalToken string, tripSvc trips.TripUseCase, bookingSvc booking.BookingUseCase) *gin.Engine {
	router := gin.New()
	router.Use(logging.RequestLogger(logger), gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	bookings := api.NewBookingHandler(bookingSvc)
	v1 := router.Group("/api/v1")
	api.NewTripHandler(tripSvc).Register(v1.Group("/trips"))
	bookings.Register(v1.Group("/bookings"))

	if internalToken == "" {
		logger.Warn("No internal token configured, payment confirmation is disabled")
		return router
	}
	internal := router.Group("/internal/v1", api.RequireInternalToken(internalToken))
	bookings.RegisterInternal(internal.Group("/bookings"))
	return router
}

// Run serves HTTP and blocks until ctx is canceled or the server fails.
func Run(ctx context.Context, cfg *config.Config, logger *logrus.Logger, tripSvc trips.TripUseCase, bookingSvc booking.BookingUseCase) error {
	srv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           NewRouter(logger, cfg.HTTP.InternalToken, tripSvc, bookingSvc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("address", cfg.HTTP.Address).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve http %s: %w", cfg.HTTP.Address, err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("Shutting down HTTP server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}
