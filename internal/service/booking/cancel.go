package booking

import (
	"context"
	"errors"

	"github.com/Domenick1991/tripbooking/internal/domain"
	"github.com/Domenick1991/tripbooking/internal/policy"
	"github.com/Domenick1991/tripbooking/internal/repository"
	"github.com/sirupsen/logrus"
)

const (
	// ExpiredReason is recorded on bookings cancelled by the reaper.
	ExpiredReason = "expired - payment not received"
	expiredTier   = "expired"

	cancelAttempts = 3
)

// CancelInput with a nil ActorID is a system or verified-guest cancellation.
// System cancellations skip the policy window and never refund.
type CancelInput struct {
	BookingID string  `json:"-"`
	ActorID   *string `json:"-"`
	Reason    string  `json:"reason"`
	System    bool    `json:"-"`
}

type GuestCancelInput struct {
	Reference string `json:"reference"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Reason    string `json:"reason"`
}

type CancelResult struct {
	Booking          *domain.Booking            `json:"booking"`
	Outcome          domain.CancellationOutcome `json:"outcome"`
	ReleasedSeats    []string                   `json:"released_seats"`
	SeatsReleased    bool                       `json:"seats_released"`
	NotificationSent bool                       `json:"notification_sent"`
	AlreadyCancelled bool                       `json:"already_cancelled"`
}

type CancellationPreview struct {
	BookingID string                      `json:"booking_id"`
	Total     int64                       `json:"total"`
	Currency  string                      `json:"currency"`
	Paid      bool                        `json:"paid"`
	Decision  policy.CancellationDecision `json:"decision"`
}

// CancelBooking commits the outcome only if the booking is still in the state
// it was computed from. When a payment or modification lands in between, a user
// cancellation is evaluated again from a fresh read. System cancellations give
// up with ErrStateChanged instead, since the booking no longer qualifies.
func (s *BookingService) CancelBooking(ctx context.Context, input CancelInput) (*CancelResult, error) {
	for attempt := 1; ; attempt++ {
		result, err := s.cancelOnce(ctx, input)
		if input.System || !errors.Is(err, domain.ErrStateChanged) {
			return result, err
		}
		s.logger.WithFields(logrus.Fields{
			"booking_id": input.BookingID,
			"attempt":    attempt,
		}).Info("Booking changed while cancelling, evaluating again")
		if attempt == cancelAttempts {
			return nil, domain.ErrConcurrentUpdate
		}
	}
}

func (s *BookingService) cancelOnce(ctx context.Context, input CancelInput) (*CancelResult, error) {
	booking, err := s.bookings.GetByID(ctx, input.BookingID)
	if err != nil {
		return nil, err
	}
	if err := authorize(booking, input.ActorID); err != nil {
		return nil, err
	}
	if booking.Status == domain.BookingStatusCancelled {
		return alreadyCancelled(booking), nil
	}
	if !domain.CanTransition(booking.Status, domain.BookingStatusCancelled) {
		return nil, domain.PolicyViolation("booking in status %s cannot be cancelled", booking.Status)
	}

	now := s.now()
	outcome, err := s.cancellationOutcome(ctx, booking, input)
	if err != nil {
		return nil, err
	}
	outcome.CancelledAt = now
	outcome.CancelledBy = input.ActorID

	paymentStatus := booking.PaymentStatus
	if booking.IsPaid() && outcome.TotalRefund > 0 {
		paymentStatus = domain.PaymentStatusRefunded
	}

	log := s.logger.WithField("booking_id", booking.ID)
	err = s.bookings.Cancel(ctx, repository.CancelParams{
		BookingID:         booking.ID,
		ExpectedVersion:   booking.Version,
		Outcome:           outcome,
		PaymentStatus:     paymentStatus,
		OnlyUnpaidPending: input.System,
	})
	if errors.Is(err, domain.ErrAlreadyCancelled) {
		log.Info("Booking was cancelled concurrently")
		current, getErr := s.bookings.GetByID(ctx, booking.ID)
		if getErr != nil {
			return nil, getErr
		}
		return alreadyCancelled(current), nil
	}
	if err != nil {
		return nil, err
	}

	booking.Status = domain.BookingStatusCancelled
	booking.PaymentStatus = paymentStatus
	booking.LockedUntil = nil
	booking.Cancellation = &outcome
	booking.UpdatedAt = now
	booking.Version++
	log.WithFields(logrus.Fields{
		"tier":         outcome.Tier,
		"total_refund": outcome.TotalRefund,
		"system":       input.System,
	}).Info("Booking cancelled")

	result := &CancelResult{
		Booking:       booking,
		Outcome:       outcome,
		ReleasedSeats: booking.SeatCodes(),
	}

	s.deleteMarker(ctx, booking)
	release := s.inventory.Release(context.WithoutCancel(ctx), booking.TripID, result.ReleasedSeats, booking.Holder())
	result.SeatsReleased = release.Released

	template := domain.TemplateBookingCancelled
	if input.System {
		template = domain.TemplateBookingExpired
	}
	result.NotificationSent = s.notify(ctx, template, booking, map[string]any{
		"tier":         outcome.Tier,
		"total_refund": outcome.TotalRefund,
		"reason":       outcome.Reason,
	})
	return result, nil
}

// CancelByReference cancels a guest booking once the contact details check out.
func (s *BookingService) CancelByReference(ctx context.Context, input GuestCancelInput) (*CancelResult, error) {
	booking, err := s.LookupByReference(ctx, input.Reference, input.Phone, input.Email)
	if err != nil {
		return nil, err
	}
	return s.CancelBooking(ctx, CancelInput{BookingID: booking.ID, Reason: input.Reason})
}

func (s *BookingService) cancellationOutcome(ctx context.Context, b *domain.Booking, input CancelInput) (domain.CancellationOutcome, error) {
	if input.System {
		reason := input.Reason
		if reason == "" {
			reason = ExpiredReason
		}
		return domain.CancellationOutcome{Tier: expiredTier, Reason: reason}, nil
	}

	trip, err := s.inventory.Trip(ctx, b.TripID)
	if err != nil {
		return domain.CancellationOutcome{}, err
	}
	decision := s.policy.EvaluateCancellation(b, trip.DepartureTime, s.now())
	if !decision.Allowed {
		return domain.CancellationOutcome{}, domain.PolicyViolation("cancellation window has closed for booking %s", b.Reference)
	}
	return domain.CancellationOutcome{
		Tier:             decision.Tier,
		RefundPercentage: decision.RefundPercentage,
		RefundAmount:     decision.RefundAmount,
		ProcessingFee:    decision.ProcessingFee,
		TotalRefund:      decision.TotalRefund,
		Reason:           input.Reason,
	}, nil
}

func alreadyCancelled(b *domain.Booking) *CancelResult {
	result := &CancelResult{Booking: b, AlreadyCancelled: true}
	if b.Cancellation != nil {
		result.Outcome = *b.Cancellation
	}
	return result
}

// PreviewCancellation shows the figures CancelBooking would commit right now.
func (s *BookingService) PreviewCancellation(ctx context.Context, bookingID string, actorID *string) (*CancellationPreview, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := authorize(booking, actorID); err != nil {
		return nil, err
	}
	if booking.Status == domain.BookingStatusCancelled {
		return nil, domain.ErrAlreadyCancelled
	}

	trip, err := s.inventory.Trip(ctx, booking.TripID)
	if err != nil {
		return nil, err
	}
	decision := s.policy.EvaluateCancellation(booking, trip.DepartureTime, s.now())
	if !domain.CanTransition(booking.Status, domain.BookingStatusCancelled) {
		decision = policy.CancellationDecision{Tier: policy.TierNotAllowed, HoursBefore: decision.HoursBefore}
	}
	return &CancellationPreview{
		BookingID: booking.ID,
		Total:     booking.Pricing.Total,
		Currency:  booking.Pricing.Currency,
		Paid:      booking.IsPaid(),
		Decision:  decision,
	}, nil
}
