package booking

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/Domenick1991/tripbooking/internal/domain"
	"github.com/Domenick1991/tripbooking/internal/policy"
	"github.com/Domenick1991/tripbooking/internal/repository"
	"github.com/sirupsen/logrus"
)

// TicketChange edits one ticket. Nil fields are left alone.
type TicketChange struct {
	TicketID    string  `json:"ticket_id" validate:"required"`
	NewSeatCode *string `json:"new_seat_code,omitempty" validate:"omitempty,max=8"`
	HolderName  *string `json:"holder_name,omitempty" validate:"omitempty,min=1,max=200"`
	Phone       *string `json:"phone,omitempty" validate:"omitempty,max=32"`
	DocumentID  *string `json:"document_id,omitempty" validate:"omitempty,max=64"`
}

type ModifyInput struct {
	BookingID string         `json:"-"`
	ActorID   *string        `json:"-"`
	Changes   []TicketChange `json:"changes" validate:"required,min=1,dive"`
}

type ModifyResult struct {
	Booking          *domain.Booking             `json:"booking"`
	Fee              int64                       `json:"fee"`
	Records          []domain.ModificationRecord `json:"records"`
	OldSeatsReleased bool                        `json:"old_seats_released"`
	NotificationSent bool                        `json:"notification_sent"`
}

type ModificationPreview struct {
	BookingID   string                      `json:"booking_id"`
	Decision    policy.ModificationDecision `json:"decision"`
	SeatChanges int                         `json:"seat_changes"`
	Fee         int64                       `json:"fee"`
	NewTotal    int64                       `json:"new_total"`
	Currency    string                      `json:"currency"`
}

type seatChange struct {
	ticket  int
	oldSeat string
	newSeat string
}

type passengerChange struct {
	ticket int
	delta  map[string]string
}

type modificationPlan struct {
	booking    *domain.Booking
	decision   policy.ModificationDecision
	seats      []seatChange
	passengers []passengerChange
	fee        int64
}

func (p *modificationPlan) newSeats() []string {
	seats := make([]string, 0, len(p.seats))
	for _, c := range p.seats {
		seats = append(seats, c.newSeat)
	}
	return seats
}

// changedTickets picks the touched tickets out of tickets, in booking order.
func (p *modificationPlan) changedTickets(tickets []domain.Ticket) []domain.Ticket {
	touched := make(map[int]struct{}, len(p.seats)+len(p.passengers))
	for _, c := range p.seats {
		touched[c.ticket] = struct{}{}
	}
	for _, c := range p.passengers {
		touched[c.ticket] = struct{}{}
	}
	changed := make([]domain.Ticket, 0, len(touched))
	for i, t := range tickets {
		if _, ok := touched[i]; ok {
			changed = append(changed, t)
		}
	}
	return changed
}

func (p *modificationPlan) oldSeats() []string {
	seats := make([]string, 0, len(p.seats))
	for _, c := range p.seats {
		seats = append(seats, c.oldSeat)
	}
	return seats
}

// plan loads the booking and checks everything that does not touch inventory.
// PreviewModification and ModifyBooking share it so both see the same figures.
func (s *BookingService) plan(ctx context.Context, input ModifyInput) (*modificationPlan, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, validationError(err)
	}

	booking, err := s.bookings.GetByID(ctx, input.BookingID)
	if err != nil {
		return nil, err
	}
	if err := authorize(booking, input.ActorID); err != nil {
		return nil, err
	}
	if booking.Status == domain.BookingStatusCancelled {
		return nil, domain.ErrBookingCancelled
	}
	if booking.Status == domain.BookingStatusCompleted {
		return nil, domain.PolicyViolation("completed booking %s cannot be modified", booking.Reference)
	}

	trip, err := s.inventory.Trip(ctx, booking.TripID)
	if err != nil {
		return nil, err
	}
	decision := s.policy.EvaluateModification(trip.DepartureTime, s.now())
	if !decision.Allowed {
		return nil, domain.PolicyViolation("modification window has closed for booking %s", booking.Reference)
	}

	plan := &modificationPlan{booking: booking, decision: decision}
	current := booking.SeatCodes()
	seenTickets := make(map[string]struct{}, len(input.Changes))
	seenSeats := make(map[string]struct{})

	for _, change := range input.Changes {
		if _, dup := seenTickets[change.TicketID]; dup {
			return nil, domain.Invalid("changes", "ticket "+change.TicketID+" is listed twice")
		}
		seenTickets[change.TicketID] = struct{}{}

		idx := slices.IndexFunc(booking.Tickets, func(t domain.Ticket) bool { return t.ID == change.TicketID })
		if idx < 0 {
			return nil, domain.NotFound("ticket", change.TicketID)
		}
		ticket := booking.Tickets[idx]

		if change.NewSeatCode != nil {
			seat := normalizeSeat(*change.NewSeatCode)
			if seat != "" && seat != ticket.SeatCode {
				if slices.Contains(current, seat) {
					return nil, domain.Invalid("new_seat_code", "seat "+seat+" already belongs to this booking")
				}
				if _, dup := seenSeats[seat]; dup {
					return nil, domain.Invalid("new_seat_code", "seat "+seat+" is requested twice")
				}
				seenSeats[seat] = struct{}{}
				plan.seats = append(plan.seats, seatChange{ticket: idx, oldSeat: ticket.SeatCode, newSeat: seat})
			}
		}

		delta := passengerDelta(ticket, change)
		if len(delta) > 0 {
			plan.passengers = append(plan.passengers, passengerChange{ticket: idx, delta: delta})
		}
	}

	if len(plan.seats) == 0 && len(plan.passengers) == 0 {
		return nil, domain.Invalid("changes", "nothing to change")
	}
	if len(plan.seats) > 0 && !decision.AllowSeatChange {
		return nil, domain.PolicyViolation("seat changes are not allowed in the %s window", decision.Tier)
	}
	if len(plan.passengers) > 0 && !decision.AllowPassengerUpdate {
		return nil, domain.PolicyViolation("passenger updates are not allowed in the %s window", decision.Tier)
	}

	plan.fee = decision.TotalFee(len(plan.seats))
	return plan, nil
}

func passengerDelta(t domain.Ticket, c TicketChange) map[string]string {
	delta := make(map[string]string)
	if c.HolderName != nil {
		if v := strings.TrimSpace(*c.HolderName); v != "" && v != t.HolderName {
			delta["holder_name"] = v
		}
	}
	if c.Phone != nil {
		if v := strings.TrimSpace(*c.Phone); v != t.Phone {
			delta["phone"] = v
		}
	}
	if c.DocumentID != nil {
		if v := strings.TrimSpace(*c.DocumentID); v != t.DocumentID {
			delta["document_id"] = v
		}
	}
	return delta
}

func (s *BookingService) PreviewModification(ctx context.Context, input ModifyInput) (*ModificationPreview, error) {
	plan, err := s.plan(ctx, input)
	if err != nil {
		return nil, err
	}
	return &ModificationPreview{
		BookingID:   plan.booking.ID,
		Decision:    plan.decision,
		SeatChanges: len(plan.seats),
		Fee:         plan.fee,
		NewTotal:    plan.booking.Pricing.Total + plan.fee,
		Currency:    plan.booking.Pricing.Currency,
	}, nil
}

// ModifyBooking holds every new seat before any old seat is let go. If a lock
// or the write fails, the new seats are released and the booking is unchanged.
// A write that lost a race with another change returns ErrConcurrentUpdate.
func (s *BookingService) ModifyBooking(ctx context.Context, input ModifyInput) (*ModifyResult, error) {
	plan, err := s.plan(ctx, input)
	if err != nil {
		return nil, err
	}
	booking := plan.booking
	holder := booking.Holder()
	log := s.logger.WithField("booking_id", booking.ID)

	newSeats := plan.newSeats()
	if len(newSeats) > 0 {
		unavailable, err := s.inventory.CheckAvailability(ctx, booking.TripID, newSeats)
		if err != nil {
			return nil, err
		}
		if len(unavailable) > 0 {
			return nil, &domain.SeatConflictError{Seats: unavailable}
		}
		if err := s.lockNewSeats(ctx, booking, newSeats); err != nil {
			return nil, err
		}
	}

	now := s.now()
	updated := *booking
	updated.Tickets = slices.Clone(booking.Tickets)
	records := make([]domain.ModificationRecord, 0, len(plan.seats)+len(plan.passengers))

	for _, c := range plan.seats {
		updated.Tickets[c.ticket].SeatCode = c.newSeat
		records = append(records, domain.ModificationRecord{
			ID:        s.newID(),
			BookingID: booking.ID,
			TicketID:  updated.Tickets[c.ticket].ID,
			Kind:      domain.ModificationSeatChange,
			OldSeat:   c.oldSeat,
			NewSeat:   c.newSeat,
			CreatedAt: now,
		})
	}
	for _, c := range plan.passengers {
		t := &updated.Tickets[c.ticket]
		if v, ok := c.delta["holder_name"]; ok {
			t.HolderName = v
		}
		if v, ok := c.delta["phone"]; ok {
			t.Phone = v
		}
		if v, ok := c.delta["document_id"]; ok {
			t.DocumentID = v
		}
		records = append(records, domain.ModificationRecord{
			ID:         s.newID(),
			BookingID:  booking.ID,
			TicketID:   t.ID,
			Kind:       domain.ModificationPassengerUpdate,
			FieldDelta: c.delta,
			CreatedAt:  now,
		})
	}
	records[0].Fee = plan.fee

	updated.Pricing.ModificationFees += plan.fee
	updated.Pricing.Recalculate()
	updated.Modifications = append(slices.Clone(booking.Modifications), records...)
	updated.UpdatedAt = now

	err = s.bookings.ApplyModification(ctx, repository.ModificationParams{
		BookingID:       booking.ID,
		ExpectedVersion: booking.Version,
		Fee:             plan.fee,
		Tickets:         plan.changedTickets(updated.Tickets),
		Records:         records,
		UpdatedAt:       now,
	})
	if err != nil {
		log.WithError(err).Warn("Persisting modification failed, releasing new seats")
		if len(newSeats) > 0 {
			s.inventory.Release(context.WithoutCancel(ctx), booking.TripID, newSeats, holder)
		}
		if errors.Is(err, domain.ErrStateChanged) {
			return nil, domain.ErrConcurrentUpdate
		}
		return nil, err
	}
	updated.Version = booking.Version + 1
	log.WithFields(logrus.Fields{
		"seat_changes": len(plan.seats),
		"fee":          plan.fee,
	}).Info("Booking modified")

	result := &ModifyResult{
		Booking:          &updated,
		Fee:              plan.fee,
		Records:          records,
		OldSeatsReleased: true,
	}
	if len(plan.seats) > 0 {
		release := s.inventory.Release(context.WithoutCancel(ctx), booking.TripID, plan.oldSeats(), holder)
		result.OldSeatsReleased = release.Released
	}

	regenerated := s.notify(ctx, domain.TemplateTicketRegenerate, &updated, map[string]any{"tickets": len(updated.Tickets)})
	modified := s.notify(ctx, domain.TemplateBookingModified, &updated, map[string]any{
		"fee":   plan.fee,
		"total": updated.Pricing.Total,
	})
	result.NotificationSent = regenerated && modified
	return result, nil
}

// lockNewSeats locks seats one at a time. On failure the seats this batch
// already holds are released. The failed seat is released too unless the
// inventory refused it outright, since then it may belong to someone else.
func (s *BookingService) lockNewSeats(ctx context.Context, booking *domain.Booking, seats []string) error {
	holder := booking.Holder()
	locked := make([]string, 0, len(seats))
	for _, seat := range seats {
		err := s.inventory.Lock(ctx, booking.TripID, []string{seat}, holder, s.holdDuration)
		if err == nil {
			locked = append(locked, seat)
			continue
		}

		s.logger.WithFields(logrus.Fields{
			"booking_id": booking.ID,
			"seat":       seat,
			"locked":     locked,
		}).WithError(err).Warn("Seat lock failed, rolling back modification")

		release := locked
		if !errors.Is(err, domain.ErrSeatConflict) {
			release = append(release, seat)
		}
		if len(release) > 0 {
			s.inventory.Release(context.WithoutCancel(ctx), booking.TripID, release, holder)
		}

		if errors.Is(err, domain.ErrSeatConflict) || errors.Is(err, domain.ErrUpstreamUnavailable) {
			return err
		}
		return domain.Upstream("lock seats", err)
	}
	return nil
}
