package booking

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"reflect"
	"strings"
	"time"

	"github.com/Domenick1991/tripbooking/internal/domain"
	"github.com/Domenick1991/tripbooking/internal/inventory"
	"github.com/Domenick1991/tripbooking/internal/policy"
	"github.com/Domenick1991/tripbooking/internal/reference"
	"github.com/Domenick1991/tripbooking/internal/repository"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type BookingUseCase interface {
	CreateBooking(ctx context.Context, input CreateInput) (*CreateResult, error)
	ConfirmPayment(ctx context.Context, bookingID string) (*domain.Booking, error)
	CancelBooking(ctx context.Context, input CancelInput) (*CancelResult, error)
	CancelByReference(ctx context.Context, input GuestCancelInput) (*CancelResult, error)
	ModifyBooking(ctx context.Context, input ModifyInput) (*ModifyResult, error)
	PreviewCancellation(ctx context.Context, bookingID string, actorID *string) (*CancellationPreview, error)
	PreviewModification(ctx context.Context, input ModifyInput) (*ModificationPreview, error)
	GetBooking(ctx context.Context, bookingID string, actorID *string) (*domain.Booking, error)
	LookupByReference(ctx context.Context, ref, phone, email string) (*domain.Booking, error)
}

// Inventory is the seat inventory as seen through the coordinator.
type Inventory interface {
	Trip(ctx context.Context, tripID string) (*domain.Trip, error)
	CheckAvailability(ctx context.Context, tripID string, seatCodes []string) ([]string, error)
	Lock(ctx context.Context, tripID string, seatCodes []string, holder domain.Holder, holdFor time.Duration) error
	Release(ctx context.Context, tripID string, seatCodes []string, holder domain.Holder) inventory.ReleaseOutcome
}

type MarkerStore interface {
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type Notifier interface {
	Send(ctx context.Context, n domain.Notification) error
}

type ReferenceGenerator interface {
	Generate() (string, error)
}

type BookingService struct {
	bookings   repository.BookingRepository
	inventory  Inventory
	markers    MarkerStore
	notifier   Notifier
	references ReferenceGenerator
	policy     policy.Engine
	validate   *validator.Validate
	logger     *logrus.Logger

	holdDuration      time.Duration
	referenceAttempts int
	backoffMin        time.Duration
	backoffMax        time.Duration
	notifyTimeout     time.Duration
	currency          string

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	newID func() string
}

type BookingServiceOption func(*BookingService)

func WithHoldDuration(d time.Duration) BookingServiceOption {
	return func(s *BookingService) {
		if d > 0 {
			s.holdDuration = d
		}
	}
}

func WithReferenceAttempts(n int) BookingServiceOption {
	return func(s *BookingService) {
		if n > 0 {
			s.referenceAttempts = n
		}
	}
}

func WithReferenceBackoff(lo, hi time.Duration) BookingServiceOption {
	return func(s *BookingService) {
		if lo >= 0 && hi >= lo {
			s.backoffMin, s.backoffMax = lo, hi
		}
	}
}

func WithReferenceGenerator(g ReferenceGenerator) BookingServiceOption {
	return func(s *BookingService) {
		s.references = g
	}
}

func WithNotifyTimeout(d time.Duration) BookingServiceOption {
	return func(s *BookingService) {
		if d > 0 {
			s.notifyTimeout = d
		}
	}
}

func WithClock(now func() time.Time) BookingServiceOption {
	return func(s *BookingService) {
		s.now = now
	}
}

// WithSleeper replaces the wait between reference attempts.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) BookingServiceOption {
	return func(s *BookingService) {
		s.sleep = sleep
	}
}

func WithLogger(logger *logrus.Logger) BookingServiceOption {
	return func(s *BookingService) {
		s.logger = logger
	}
}

// WithCurrency sets the currency used when the trip does not carry one.
func WithCurrency(currency string) BookingServiceOption {
	return func(s *BookingService) {
		if currency != "" {
			s.currency = currency
		}
	}
}

// NewBookingService wires the orchestrator. markers and notifier may be nil;
// the steps that use them are best-effort anyway.
func NewBookingService(
	bookings repository.BookingRepository,
	inv Inventory,
	markers MarkerStore,
	notifier Notifier,
	engine policy.Engine,
	opts ...BookingServiceOption,
) *BookingService {
	service := &BookingService{
		bookings:          bookings,
		inventory:         inv,
		markers:           markers,
		notifier:          notifier,
		references:        reference.NewGenerator(),
		policy:            engine,
		validate:          newValidator(),
		logger:            logrus.StandardLogger(),
		holdDuration:      15 * time.Minute,
		referenceAttempts: 5,
		backoffMin:        10 * time.Millisecond,
		backoffMax:        50 * time.Millisecond,
		notifyTimeout:     3 * time.Second,
		currency:          "IDR",
		now:               time.Now,
		sleep:             sleepContext,
		newID:             uuid.NewString,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

type PassengerInput struct {
	SeatCode   string `json:"seat_code" validate:"required,max=8"`
	HolderName string `json:"holder_name" validate:"required,max=200"`
	Phone      string `json:"phone" validate:"max=32"`
	DocumentID string `json:"document_id" validate:"max=64"`
}

type CreateInput struct {
	TripID       string           `json:"trip_id" validate:"required"`
	OwnerID      *string          `json:"-"`
	ContactEmail string           `json:"contact_email" validate:"omitempty,email"`
	ContactPhone string           `json:"contact_phone" validate:"max=32"`
	Passengers   []PassengerInput `json:"passengers" validate:"required,min=1,dive"`
}

type CreateResult struct {
	Booking          *domain.Booking `json:"booking"`
	MarkerScheduled  bool            `json:"marker_scheduled"`
	NotificationSent bool            `json:"notification_sent"`
}

func (s *BookingService) CreateBooking(ctx context.Context, input CreateInput) (*CreateResult, error) {
	input = normalizeCreateInput(input)
	if err := s.validateCreate(input); err != nil {
		return nil, err
	}

	trip, err := s.inventory.Trip(ctx, input.TripID)
	if err != nil {
		return nil, err
	}
	if trip.SeatPrice <= 0 {
		return nil, domain.Invalid("trip_id", "trip has no valid seat price")
	}
	now := s.now()
	if trip.Departed(now) {
		return nil, domain.PolicyViolation("trip %s has already departed", trip.ID)
	}

	seats := make([]string, 0, len(input.Passengers))
	for _, p := range input.Passengers {
		seats = append(seats, p.SeatCode)
	}
	unavailable, err := s.inventory.CheckAvailability(ctx, trip.ID, seats)
	if err != nil {
		return nil, err
	}
	if len(unavailable) > 0 {
		return nil, &domain.SeatConflictError{Seats: unavailable}
	}

	booking := s.newBooking(input, trip, now)
	log := s.logger.WithFields(logrus.Fields{"booking_id": booking.ID, "trip_id": trip.ID})

	attempts := 0
	booking.Reference, err = s.uniqueReference(ctx, &attempts)
	if err != nil {
		return nil, err
	}

	holder := booking.Holder()
	if err := s.inventory.Lock(ctx, trip.ID, seats, holder, s.holdDuration); err != nil {
		// A refused lock holds nothing, and the seats may be someone else's now.
		// Any other failure may still have landed upstream.
		if !errors.Is(err, domain.ErrSeatConflict) {
			s.inventory.Release(context.WithoutCancel(ctx), trip.ID, seats, holder)
		}
		return nil, err
	}

	if err := s.persistNew(ctx, booking, &attempts); err != nil {
		log.WithError(err).Warn("Persisting booking failed, releasing seats")
		s.inventory.Release(context.WithoutCancel(ctx), trip.ID, seats, holder)
		return nil, err
	}
	log.WithField("reference", booking.Reference).Info("Booking created")

	result := &CreateResult{Booking: booking}
	result.MarkerScheduled = s.setMarker(ctx, booking)
	result.NotificationSent = s.notify(ctx, domain.TemplateBookingCreated, booking, map[string]any{
		"total":        booking.Pricing.Total,
		"locked_until": booking.LockedUntil,
	})
	return result, nil
}

func (s *BookingService) newBooking(input CreateInput, trip *domain.Trip, now time.Time) *domain.Booking {
	currency := trip.Currency
	if currency == "" {
		currency = s.currency
	}
	lockedUntil := now.Add(s.holdDuration)

	booking := &domain.Booking{
		ID:            s.newID(),
		TripID:        trip.ID,
		OwnerID:       input.OwnerID,
		HolderToken:   s.newID(),
		ContactEmail:  input.ContactEmail,
		ContactPhone:  input.ContactPhone,
		Status:        domain.BookingStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		LockedUntil:   &lockedUntil,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, p := range input.Passengers {
		booking.Tickets = append(booking.Tickets, domain.Ticket{
			ID:         s.newID(),
			BookingID:  booking.ID,
			SeatCode:   p.SeatCode,
			HolderName: p.HolderName,
			Phone:      p.Phone,
			DocumentID: p.DocumentID,
			Price:      trip.SeatPrice,
		})
	}

	subtotal := trip.SeatPrice * int64(len(booking.Tickets))
	booking.Pricing = domain.Pricing{
		Subtotal:   subtotal,
		ServiceFee: s.policy.ServiceFee(subtotal),
		Currency:   currency,
	}
	booking.Pricing.Recalculate()
	return booking
}

// uniqueReference draws references until one is free. attempts is shared with
// persistNew so that insert-time collisions draw from the same budget.
func (s *BookingService) uniqueReference(ctx context.Context, attempts *int) (string, error) {
	for *attempts < s.referenceAttempts {
		if *attempts > 0 {
			if err := s.sleep(ctx, s.backoff()); err != nil {
				return "", err
			}
		}
		*attempts++

		ref, err := s.references.Generate()
		if err != nil {
			return "", err
		}
		exists, err := s.bookings.ReferenceExists(ctx, ref)
		if err != nil {
			return "", fmt.Errorf("check reference: %w", err)
		}
		if !exists {
			return ref, nil
		}
		s.logger.WithField("attempt", *attempts).Debug("Booking reference collision")
	}
	return "", domain.ErrReferenceExhausted
}

func (s *BookingService) persistNew(ctx context.Context, booking *domain.Booking, attempts *int) error {
	for {
		err := s.bookings.Create(ctx, booking)
		if !errors.Is(err, domain.ErrDuplicateReference) {
			return err
		}
		ref, err := s.uniqueReference(ctx, attempts)
		if err != nil {
			return err
		}
		booking.Reference = ref
	}
}

func (s *BookingService) backoff() time.Duration {
	if s.backoffMax <= s.backoffMin {
		return s.backoffMin
	}
	return s.backoffMin + rand.N(s.backoffMax-s.backoffMin+1)
}

func (s *BookingService) ConfirmPayment(ctx context.Context, bookingID string) (*domain.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := confirmable(booking); err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.bookings.UpdatePayment(ctx, booking.ID, now); err != nil {
		if !errors.Is(err, domain.ErrStateChanged) {
			return nil, err
		}
		current, getErr := s.bookings.GetByID(ctx, booking.ID)
		if getErr != nil {
			return nil, getErr
		}
		if err := confirmable(current); err != nil {
			return nil, err
		}
		return nil, domain.ErrConcurrentUpdate
	}

	booking.Status = domain.BookingStatusConfirmed
	booking.PaymentStatus = domain.PaymentStatusPaid
	booking.PaidAt = &now
	booking.LockedUntil = nil
	booking.UpdatedAt = now
	booking.Version++
	s.logger.WithField("booking_id", booking.ID).Info("Payment confirmed")

	s.deleteMarker(ctx, booking)
	s.notify(ctx, domain.TemplateBookingConfirmed, booking, map[string]any{"total": booking.Pricing.Total})
	return booking, nil
}

func confirmable(b *domain.Booking) error {
	switch {
	case b.Status == domain.BookingStatusCancelled:
		return domain.ErrBookingCancelled
	case b.IsPaid():
		return domain.ErrAlreadyPaid
	case !domain.CanTransition(b.Status, domain.BookingStatusConfirmed):
		return domain.PolicyViolation("booking in status %s cannot be confirmed", b.Status)
	}
	return nil
}

func (s *BookingService) GetBooking(ctx context.Context, bookingID string, actorID *string) (*domain.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := authorize(booking, actorID); err != nil {
		return nil, err
	}
	return booking, nil
}

// LookupByReference is the guest entry point: the reference plus a matching
// phone number or e-mail address stands in for an account.
func (s *BookingService) LookupByReference(ctx context.Context, ref, phone, email string) (*domain.Booking, error) {
	ref = reference.Normalize(ref)
	if !reference.Valid(ref) {
		return nil, domain.Invalid("reference", "must be 6 characters from the booking alphabet")
	}
	if strings.TrimSpace(phone) == "" && strings.TrimSpace(email) == "" {
		return nil, domain.Invalid("contact", "phone or email is required")
	}

	booking, err := s.bookings.GetByReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !contactMatches(booking, phone, email) {
		s.logger.WithField("booking_id", booking.ID).Warn("Guest lookup with mismatched contact")
		return nil, domain.Unauthorized("contact details do not match booking %s", ref)
	}
	return booking, nil
}

func contactMatches(b *domain.Booking, phone, email string) bool {
	if e := domain.NormalizeEmail(email); e != "" && e == domain.NormalizeEmail(b.ContactEmail) {
		return true
	}
	if p := domain.NormalizePhone(phone); p != "" && p == domain.NormalizePhone(b.ContactPhone) {
		return true
	}
	return false
}

// authorize lets a nil actor through: that is the system or a guest who has
// already proven contact details.
func authorize(b *domain.Booking, actorID *string) error {
	if actorID == nil {
		return nil
	}
	if !b.OwnedBy(*actorID) {
		return domain.Unauthorized("booking %s does not belong to the caller", b.ID)
	}
	return nil
}

func (s *BookingService) setMarker(ctx context.Context, b *domain.Booking) bool {
	if s.markers == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()

	if err := s.markers.SetWithTTL(ctx, domain.HoldMarkerKey(b.ID), b.Reference, s.holdDuration); err != nil {
		s.logger.WithField("booking_id", b.ID).WithError(err).Warn("Failed to set hold marker")
		return false
	}
	return true
}

func (s *BookingService) deleteMarker(ctx context.Context, b *domain.Booking) {
	if s.markers == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()

	if err := s.markers.Delete(ctx, domain.HoldMarkerKey(b.ID)); err != nil {
		s.logger.WithField("booking_id", b.ID).WithError(err).Warn("Failed to clear hold marker")
	}
}

// notify never fails the caller; the result only feeds the response flags.
func (s *BookingService) notify(ctx context.Context, template domain.NotificationTemplate, b *domain.Booking, data map[string]any) bool {
	if s.notifier == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()

	if err := s.notifier.Send(ctx, domain.NewNotification(template, b, data, s.now())); err != nil {
		s.logger.WithFields(logrus.Fields{
			"booking_id": b.ID,
			"template":   template,
		}).WithError(err).Warn("Failed to send notification")
		return false
	}
	return true
}

func normalizeCreateInput(input CreateInput) CreateInput {
	input.TripID = strings.TrimSpace(input.TripID)
	input.ContactEmail = domain.NormalizeEmail(input.ContactEmail)
	input.ContactPhone = strings.TrimSpace(input.ContactPhone)
	if input.OwnerID != nil && strings.TrimSpace(*input.OwnerID) == "" {
		input.OwnerID = nil
	}
	passengers := make([]PassengerInput, len(input.Passengers))
	for i, p := range input.Passengers {
		p.SeatCode = normalizeSeat(p.SeatCode)
		p.HolderName = strings.TrimSpace(p.HolderName)
		p.Phone = strings.TrimSpace(p.Phone)
		p.DocumentID = strings.TrimSpace(p.DocumentID)
		passengers[i] = p
	}
	input.Passengers = passengers
	return input
}

func normalizeSeat(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *BookingService) validateCreate(input CreateInput) error {
	if err := s.validate.Struct(input); err != nil {
		return validationError(err)
	}
	if input.ContactEmail == "" && input.ContactPhone == "" {
		return domain.Invalid("contact", "email or phone is required")
	}
	seen := make(map[string]struct{}, len(input.Passengers))
	for _, p := range input.Passengers {
		if _, dup := seen[p.SeatCode]; dup {
			return domain.Invalid("passengers", "seat "+p.SeatCode+" is requested twice")
		}
		seen[p.SeatCode] = struct{}{}
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		return domain.Invalid(field, "failed "+fe.Tag()+" check")
	}
	return domain.Invalid("", err.Error())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ BookingUseCase = (*BookingService)(nil)
