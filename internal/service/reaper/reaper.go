// Package reaper cancels pending bookings whose payment window has lapsed.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/tripbooking/internal/domain"
	"github.com/Domenick1991/tripbooking/internal/service/booking"
	"github.com/sirupsen/logrus"
)

type Store interface {
	FindExpired(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error)
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
}

type Canceller interface {
	CancelBooking(ctx context.Context, input booking.CancelInput) (*booking.CancelResult, error)
}

type SweepResult struct {
	Found               int `json:"found"`
	Cancelled           int `json:"cancelled"`
	Skipped             int `json:"skipped"`
	Failed              int `json:"failed"`
	SeatReleaseFailures int `json:"seat_release_failures"`
}

type Reaper struct {
	store     Store
	canceller Canceller
	batchSize int
	now       func() time.Time
	logger    *logrus.Logger
}

type Option func(*Reaper)

func WithBatchSize(n int) Option {
	return func(r *Reaper) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Reaper) {
		r.now = now
	}
}

func WithLogger(logger *logrus.Logger) Option {
	return func(r *Reaper) {
		r.logger = logger
	}
}

func New(store Store, canceller Canceller, opts ...Option) *Reaper {
	r := &Reaper{
		store:     store,
		canceller: canceller,
		batchSize: 100,
		now:       time.Now,
		logger:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run sweeps one batch. A failing booking is counted and logged; the rest of
// the batch still runs.
func (r *Reaper) Run(ctx context.Context) (SweepResult, error) {
	now := r.now()
	expired, err := r.store.FindExpired(ctx, now, r.batchSize)
	if err != nil {
		return SweepResult{}, fmt.Errorf("find expired bookings: %w", err)
	}

	result := SweepResult{Found: len(expired)}
	for _, candidate := range expired {
		if ctx.Err() != nil {
			break
		}
		r.reap(ctx, candidate.ID, now, &result)
	}

	entry := r.logger.WithFields(logrus.Fields{
		"found":                 result.Found,
		"cancelled":             result.Cancelled,
		"skipped":               result.Skipped,
		"failed":                result.Failed,
		"seat_release_failures": result.SeatReleaseFailures,
	})
	if result.Found > 0 {
		entry.Info("Expiration sweep finished")
	} else {
		entry.Debug("Expiration sweep found nothing")
	}
	return result, ctx.Err()
}

func (r *Reaper) reap(ctx context.Context, bookingID string, now time.Time, result *SweepResult) {
	log := r.logger.WithField("booking_id", bookingID)

	current, err := r.store.GetByID(ctx, bookingID)
	if err != nil {
		result.Failed++
		log.WithError(err).Error("Failed to re-read expired booking")
		return
	}
	if !stillExpired(current, now) {
		result.Skipped++
		log.Debug("Booking changed since the sweep started, skipping")
		return
	}

	res, err := r.canceller.CancelBooking(ctx, booking.CancelInput{
		BookingID: current.ID,
		Reason:    booking.ExpiredReason,
		System:    true,
	})
	switch {
	case errors.Is(err, domain.ErrStateChanged):
		result.Skipped++
		log.Info("Booking was paid or confirmed during the sweep, skipping")
	case err != nil:
		result.Failed++
		log.WithError(err).Error("Failed to expire booking")
	case res.AlreadyCancelled:
		result.Skipped++
	default:
		result.Cancelled++
		if !res.SeatsReleased {
			result.SeatReleaseFailures++
		}
	}
}

func stillExpired(b *domain.Booking, now time.Time) bool {
	return b.Status == domain.BookingStatusPending &&
		!b.IsPaid() &&
		b.LockedUntil != nil &&
		b.LockedUntil.Before(now)
}
