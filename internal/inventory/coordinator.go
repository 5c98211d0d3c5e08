// Package inventory is the booking engine's only way to touch seats. The seat
// inventory is owned by another service; this package bounds every call with a
// timeout and turns its failure modes into domain errors.
package inventory

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Domenick1991/tripbooking/internal/domain"
	"github.com/sirupsen/logrus"
)

type seatClient interface {
	GetTrips(ctx context.Context) ([]domain.Trip, error)
	GetTrip(ctx context.Context, tripID string) (*domain.Trip, error)
	GetSeats(ctx context.Context, tripID string) ([]domain.Seat, error)
	LockSeats(ctx context.Context, tripID string, seats []string, holder domain.Holder, holdFor time.Duration) error
	ReleaseSeats(ctx context.Context, tripID string, seats []string, holder domain.Holder) error
}

// ReleaseOutcome reports a best-effort release. Err is informational only.
type ReleaseOutcome struct {
	Seats    []string
	Released bool
	Attempts int
	Err      error
}

type Coordinator struct {
	client         seatClient
	timeout        time.Duration
	releaseRetries int
	logger         *logrus.Logger
}

type Option func(*Coordinator)

func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithReleaseRetries sets how many extra attempts a failed release gets.
func WithReleaseRetries(n int) Option {
	return func(c *Coordinator) {
		if n >= 0 {
			c.releaseRetries = n
		}
	}
}

func WithLogger(logger *logrus.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func NewCoordinator(client *Client, opts ...Option) *Coordinator {
	return newCoordinator(client, opts...)
}

func newCoordinator(client seatClient, opts ...Option) *Coordinator {
	c := &Coordinator{
		client:         client,
		timeout:        5 * time.Second,
		releaseRetries: 1,
		logger:         logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) Trips(ctx context.Context) ([]domain.Trip, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	trips, err := c.client.GetTrips(ctx)
	if err != nil {
		return nil, domain.Upstream("list trips", err)
	}
	return trips, nil
}

func (c *Coordinator) Trip(ctx context.Context, tripID string) (*domain.Trip, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	trip, err := c.client.GetTrip(ctx, tripID)
	if err != nil {
		if statusOf(err) == http.StatusNotFound {
			return nil, domain.NotFound("trip", tripID)
		}
		return nil, domain.Upstream("get trip", err)
	}
	return trip, nil
}

// CheckAvailability returns the requested seats that cannot be locked right now,
// including seats the trip does not have.
func (c *Coordinator) CheckAvailability(ctx context.Context, tripID string, seatCodes []string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	seats, err := c.client.GetSeats(ctx, tripID)
	if err != nil {
		if statusOf(err) == http.StatusNotFound {
			return nil, domain.NotFound("trip", tripID)
		}
		return nil, domain.Upstream("check availability", err)
	}

	states := make(map[string]domain.SeatState, len(seats))
	for _, s := range seats {
		states[s.Code] = s.State
	}

	var unavailable []string
	for _, code := range seatCodes {
		if state, ok := states[strings.ToUpper(code)]; !ok || state != domain.SeatAvailable {
			unavailable = append(unavailable, code)
		}
	}
	return unavailable, nil
}

// Lock is never retried: after a timeout the seats may or may not be held, and a
// second attempt could double-lock. The caller treats any error as "not locked".
func (c *Coordinator) Lock(ctx context.Context, tripID string, seatCodes []string, holder domain.Holder, holdFor time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.client.LockSeats(ctx, tripID, seatCodes, holder, holdFor)
	if err == nil {
		return nil
	}
	if statusOf(err) == http.StatusConflict {
		return &domain.SeatConflictError{Seats: seatCodes}
	}
	return domain.Upstream("lock seats", err)
}

// Release never fails the caller. Release is idempotent by seat code upstream, so
// a transport failure or 5xx is retried; a 4xx answer is final.
func (c *Coordinator) Release(ctx context.Context, tripID string, seatCodes []string, holder domain.Holder) ReleaseOutcome {
	outcome := ReleaseOutcome{Seats: seatCodes}
	if len(seatCodes) == 0 {
		outcome.Released = true
		return outcome
	}

	for attempt := 0; attempt <= c.releaseRetries; attempt++ {
		outcome.Attempts++
		err := c.releaseOnce(ctx, tripID, seatCodes, holder)
		if err == nil {
			outcome.Released = true
			outcome.Err = nil
			return outcome
		}
		outcome.Err = domain.Upstream("release seats", err)

		status := statusOf(err)
		if (status >= 400 && status < 500) || errors.Is(ctx.Err(), context.Canceled) {
			break
		}
	}

	c.logger.WithFields(logrus.Fields{
		"trip_id":  tripID,
		"seats":    seatCodes,
		"attempts": outcome.Attempts,
	}).WithError(outcome.Err).Warn("Seat release failed, leaving it to the reaper and lock TTL")
	return outcome
}

func (c *Coordinator) releaseOnce(ctx context.Context, tripID string, seatCodes []string, holder domain.Holder) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.client.ReleaseSeats(ctx, tripID, seatCodes, holder)
}
