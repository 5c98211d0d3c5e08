package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Domenick1991/tripbooking/internal/domain"
	"github.com/Domenick1991/tripbooking/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func seatChangeInput(newSeat string) ModifyInput {
	return ModifyInput{
		BookingID: "b-1",
		ActorID:   strPtr("user-1"),
		Changes:   []TicketChange{{TicketID: "t-1", NewSeatCode: strPtr(newSeat)}},
	}
}

func TestBookingService_ModifyBooking_SeatChange(t *testing.T) {
	f := newFixture(t)
	b := existingBooking(domain.BookingStatusConfirmed, domain.PaymentStatusPaid, 500000)
	b.Version = 5
	holder := existingHolder
	var order []string

	f.repo.On("GetByID", mock.Anything, "b-1").Return(b, nil)
	f.inv.On("Trip", mock.Anything, "trip-1").Return(tripDeparting(48*time.Hour), nil)
	f.inv.On("CheckAvailability", mock.Anything, "trip-1", []string{"12B"}).Return(nil, nil).Once()
	f.inv.On("Lock", mock.Anything, "trip-1", []string{"12B"}, holder, 15*time.Minute).
		Run(func(mock.Arguments) { order = append(order, "lock 12B") }).Return(nil).Once()
	f.repo.On("ApplyModification", mock.Anything, mock.MatchedBy(func(p repository.ModificationParams) bool {
		return p.BookingID == "b-1" && p.ExpectedVersion == 5 && p.Fee == 15000 &&
			len(p.Tickets) == 1 && p.Tickets[0].SeatCode == "12B" && len(p.Records) == 1
	})).
		Run(func(mock.Arguments) { order = append(order, "persist") }).Return(nil).Once()
	f.inv.On("Release", mock.Anything, "trip-1", []string{"12A"}, holder).
		Run(func(mock.Arguments) { order = append(order, "release 12A") }).Return(released("12A")).Once()
	f.notifier.On("Send", mock.Anything, templateIs(domain.TemplateTicketRegenerate)).Return(nil).Once()
	f.notifier.On("Send", mock.Anything, templateIs(domain.TemplateBookingModified)).Return(nil).Once()

	result, err := f.service.ModifyBooking(context.Background(), seatChangeInput("12b"))

	require.NoError(t, err)
	assert.Equal(t, []string{"lock 12B", "persist", "release 12A"}, order)
	assert.Equal(t, int64(15000), result.Fee)
	assert.Equal(t, int64(515000), result.Booking.Pricing.Total)
	assert.True(t, result.Booking.Pricing.Consistent())
	assert.Equal(t, int64(6), result.Booking.Version)
	require.Len(t, result.Records, 1)
	assert.Equal(t, domain.ModificationSeatChange, result.Records[0].Kind)
	assert.Equal(t, "12A", result.Records[0].OldSeat)
	assert.Equal(t, "12B", result.Records[0].NewSeat)
	assert.Equal(t, int64(15000), result.Records[0].Fee)
	assert.True(t, result.OldSeatsReleased)
	assert.True(t, result.NotificationSent)
	assert.Equal(t, "12A", b.Tickets[0].SeatCode, "loaded booking is not mutated")
	f.assertExpectations(t)
}

func TestBookingService_ModifyBooking_LockFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	b := existingBooking(domain.BookingStatusConfirmed, domain.PaymentStatusPaid, 500000)
	holder := existingHolder

	f.repo.On("GetByID", mock.Anything, "b-1").Return(b, nil)
	f.inv.On("Trip", mock.Anything, "trip-1").Return(tripDeparting(48*time.Hour), nil)
	f.inv.On("CheckAvailability", mock.Anything, "trip-1", []string{"12B"}).Return(nil, nil)
	f.inv.On("Lock", mock.Anything, "trip-1", []string{"12B"}, holder, 15*time.Minute).
		Return(domain.Upstream("lock seats", context.DeadlineExceeded)).Once()
	f.inv.On("Release", mock.Anything, "trip-1", []string{"12B"}, holder).Return(released("12B")).Once()

	result, err := f.service.ModifyBooking(context.Background(), seatChangeInput("12B"))

	assert.Nil(t, result)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	f.repo.AssertNotCalled(t, "ApplyModification", mock.Anything, mock.Anything)
	f.inv.AssertNotCalled(t, "Release", mock.Anything, "trip-1", []string{"12A"}, holder)
	assert.Equal(t, "12A", b.Tickets[0].SeatCode)
	assert.Zero(t, b.Pricing.ModificationFees)
	f.inv.AssertExpectations(t)
}

func twoSeatChange() ModifyInput {
	return ModifyInput{
		BookingID: "b-1",
		ActorID:   strPtr("user-1"),
		Changes: []TicketChange{
			{TicketID: "t-1", NewSeatCode: strPtr("14A")},
			{TicketID: "t-2", NewSeatCode: strPtr("14B")},
		},
	}
}

func TestBookingService_ModifyBooking_SecondSeatTakenReleasesOnlyOwnLock(t *testing.T) {
	f := newFixture(t)
	b := existingBooking(domain.BookingStatusConfirmed, domain.PaymentStatusPaid, 500000)
	b.Tickets = append(b.Tickets, domain.Ticket{ID: "t-2", BookingID: "b-1", SeatCode: "12C", HolderName: "Budi"})
	holder := existingHolder

	f.repo.On("GetByID", mock.Anything, "b-1").Return(b, nil)
	f.inv.On("Trip", mock.Anything, "trip-1").Return(tripDeparting(48*time.Hour), nil)
	f.inv.On("CheckAvailability", mock.Anything, "trip-1", []string{"14A", "14B"}).Return(nil, nil)
	f.inv.On("Lock", mock.Anything, "trip-1", []string{"14A"}, holder, mock.Anything).Return(nil).Once()
	f.inv.On("Lock", mock.Anything, "trip-1", []string{"14B"}, holder, mock.Anything).
		Return(&domain.SeatConflictError{Seats: []string{"14B"}}).Once()
	f.inv.On("Release", mock.Anything, "trip-1", []string{"14A"}, holder).Return(released("14A")).Once()

	_, err := f.service.ModifyBooking(context.Background(), twoSeatChange())

	assert.ErrorIs(t, err, domain.ErrSeatConflict)
	f.inv.AssertExpectations(t)
	f.inv.AssertNotCalled(t, "Release", mock.Anything, "trip-1", []string{"14A", "14B"}, holder)
	f.repo.AssertNotCalled(t, "ApplyModification", mock.Anything, mock.Anything)
}

func TestBookingService_ModifyBooking_FirstSeatTakenReleasesNothing(t *testing.T) {
	f := newFixture(t)
	f.repo.On("GetByID", mock.Anything, "b-1").Return(existingBooking(domain.BookingStatusConfirmed, domain.PaymentStatusPaid, 500000), nil)
	f.inv.On("Trip", mock.Anything, "trip-1").Return(tripDeparting(48*time.Hour), nil)
	f.inv.On("CheckAvailability", mock.Anything, "trip-1", []string{"12B"}).Return(nil, nil)
	f.inv.On("Lock", mock.Anything, "trip-1", []string{"12B"}, existingHolder, mock.Anything).
		Return(&domain.SeatConflictError{Seats: []string{"12B"}}).Once()

	_, err := f.service.ModifyBooking(context.Background(), seatChangeInput("12B"))

	assert.ErrorIs(t, err, domain.ErrSeatConflict)
	f.inv.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBookingService_ModifyBooking_SecondLockTimesOutReleasesBoth(t *testing.T) {
	f := newFixture(t)
	b := existingBooking(domain.BookingStatusConfirmed, domain.PaymentStatusPaid, 500000)
	b.Tickets = append(b.Tickets, domain.Ticket{ID: "t-2", BookingID: "b-1", SeatCode: "12C", HolderName: "Budi"})
	holder := existingHolder

	f.repo.On("GetByID", mock.Anything, "b-1").Return(b, nil)
	f.inv.On("Trip", mock.Anything, "trip-1").Return(tripDeparting(48*time.Hour), nil)
	f.inv.On("CheckAvailability", mock.Anything, "trip-1", []string{"14A", "14B"}).Return(nil, nil)
	f.inv.On("Lock", mock.Anything, "trip-1", []string{"14A"}, holder, mock.Anything).Return(nil).Once()
	f.inv.On("Lock", mock.Anything, "trip-1", []string{"14B"}, holder, mock.Anything).
		Return(domain.Upstream("lock seats", context.DeadlineExceeded)).Once()
	f.inv.On("Release", mock.Anything, "trip-1", []string{"14A", "14B"}, holder).Return(released("14A", "14B")).Once()

	_, err := f.service.ModifyBooking(context.Background(), twoSeatChange())

	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	f.inv.AssertExpectations(t)
	f.repo.AssertNotCalled(t, "ApplyModification", mock.Anything, mock.Anything)
}

func TestBookingService_ModifyBooking_LostRace(t *testing.T) {
	testCases := []struct {
		name     string
		writeErr error
		want     error
	}{
		{"another modification landed", domain.ErrStateChanged, domain.ErrConcurrentUpdate},
		{"cancelled meanwhile", domain.ErrBookingCancelled, domain.ErrBookingCancelled},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.repo.On("GetByID", mock.Anything, "b-1").Return(existingBooking(domain.BookingStatusConfirmed, domain.PaymentStatusPaid, 500000), nil)
			f.inv.On("Trip", mock.Anything, "trip-1").Return(tripDeparting(48*time.Hour), nil)
			f.inv.On("CheckAvailability", mock.Anything, "trip-1", []string{"12B"}).Return(nil, nil)
			f.inv.On("Lock", mock.Anything, "trip-1", []string{"12B"}, existingHolder, mock.Anything).Return(nil)
			f.repo.On("ApplyModification", mock.Anything, mock.Anything).Return(tc.writeErr).Once()
			f.inv.On("Release", mock.Anything, "trip-1", []string{"12B"}, existingHolder).Return(released("12B")).Once()

			result, err := f.service.ModifyBooking(context.Background(), seatChangeInput("12B"))

			assert.Nil(t, result)
			assert.ErrorIs(t, err, tc.want)
			f.inv.AssertNotCalled(t, "Release", mock.Anything, "trip-1", []string{"12A"}, existingHolder)
			f.notifier.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
			f.inv.AssertExpectations(t)
		})
	}
}

func TestBookingService_ModifyBooking_WritesOnlyChangedTickets(t *testing.T) {
	f := newFixture(t)
	b := existingBooking(domain.BookingStatusConfirmed, domain.PaymentStatusPaid, 500000)
	b.Tickets = append(b.Tickets, domain.Ticket{ID: "t-2", BookingID: "b-1", SeatCode: "12C", HolderName: "Budi"})

	f.repo.On("GetByID", mock.Anything, "b-1").Return(b, nil)
	f.inv.On("Trip", mock.Anything, "trip-1").Return(tripDeparting(48*time.Hour), nil)
	f.repo.On("ApplyModification", mock.Anything, mock.MatchedBy(func(p repository.ModificationParams) bool {
		return len(p.Tickets) == 1 && p.Tickets[0].ID == "t-2" && p.Tickets[0].Phone == "+62811"
	})).Return(nil).Once()
	f.notifier.On("Send", mock.Anything, mock.Anything).Return(nil)

	_, err := f.service.ModifyBooking(context.Background(), ModifyInput{
		BookingID: "b-1",
		ActorID:   strPtr("user-1"),
		Changes:   []TicketChange{{TicketID: "t-2", Phone: strPtr("+62811")}},
	})

	require.NoError(t, err)
	f.repo.AssertExpectations(t)
}

func TestBookingService_ModifyBooking_NewSeatUnavailable(t *testing.T) {
	f := newFixture(t)
	f.repo.On("GetByID", mock.Anything, "b-1").Return(existingBooking(domain.BookingStatusConfirmed, domain.PaymentStatusPaid, 500000), nil)
	f.inv.On("Trip", mock.Anything, "trip-1").Return(tripDeparting(48*time.Hour), nil)
	f.inv.On("CheckAvailability", mock.Anything, "trip-1", []string{"12B"}).Return([]string{"12B"}, nil)

	_, err := f.service.ModifyBooking(context.Background(), seatChangeInput("12B"))

	assert.ErrorIs(t, err, domain.ErrSeatConflict)
	f.inv.AssertNotCalled(t, "Lock", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBookingService_ModifyBooking_PersistFailureKeepsOldSeat(t *testing.T) {
	f := newFixture(t)
	holder := existingHolder
	f.repo.On("GetByID", mock.Anything, "b-1").Return(existingBooking(domain.BookingStatusConfirmed, domain.PaymentStatusPaid, 500000), nil)
	f.inv.On("Trip", mock.Anything, "trip-1").Return(tripDeparting(48*time.Hour), nil)
	f.inv.On("CheckAvailability", mock.Anything, "trip-1", []string{"12B"}).Return(nil, nil)
	f.inv.On("Lock", mock.Anything, "trip-1", []string{"12B"}, holder, mock.Anything).Return(nil)
	f.repo.On("ApplyModification", mock.Anything, mock.Anything).Return(errors.New("db down"))
	f.inv.On("Release", mock.Anything, "trip-1", []string{"12B"}, holder).Return(released("12B")).Once()

	_, err := f.service.ModifyBooking(context.Background(), seatChangeInput("12B"))

	assert.EqualError(t, err, "db down")
	f.inv.AssertNotCalled(t, "Release", mock.Anything, "trip-1", []string{"12A"}, holder)
	f.inv.AssertExpectations(t)
}

func TestBookingService_ModifyBooking_PassengerUpdate(t *testing.T) {
	f := newFixture(t)
	b := existingBooking(domain.BookingStatusConfirmed, domain.PaymentStatusPaid, 500000)
	b.Pricing.ModificationFees = 10000
	b.Pricing.Recalculate()
	b.Modifications = []domain.ModificationRecord{{ID: "m-0", Fee: 10000}}

	f.repo.On("GetByID", mock.Anything, "b-1").Return(b, nil)
	f.inv.On("Trip", mock.Anything, "trip-1").Return(tripDeparting(3*time.Hour), nil)
	f.repo.On("ApplyModification", mock.Anything, mock.Anything).Return(nil)
	f.notifier.On("Send", mock.Anything, mock.Anything).Return(nil)

	result, err := f.service.ModifyBooking(context.Background(), ModifyInput{
		BookingID: "b-1",
		ActorID:   strPtr("user-1"),
		Changes:   []TicketChange{{TicketID: "t-1", HolderName: strPtr("Ana Putri"), DocumentID: strPtr("P123")}},
	})

	require.NoError(t, err)
	assert.Equal(t, int64(20000), result.Fee)
	assert.Equal(t, "Ana Putri", result.Booking.Tickets[0].HolderName)
	assert.Equal(t, map[string]string{"holder_name": "Ana Putri", "document_id": "P123"}, result.Records[0].FieldDelta)

	var sum int64
	for _, m := range result.Booking.Modifications {
		sum += m.Fee
	}
	assert.Equal(t, result.Booking.Pricing.ModificationFees, sum)
	assert.Equal(t, int64(530000), result.Booking.Pricing.Total)
	f.inv.AssertNotCalled(t, "Lock", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.inv.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBookingService_ModifyBooking_Rejections(t *testing.T) {
	testCases := []struct {
		name        string
		booking     func() *domain.Booking
		departureIn time.Duration
		input       ModifyInput
		want        error
	}{
		{
			name:        "seat change in restricted window",
			departureIn: 3 * time.Hour,
			input:       seatChangeInput("12B"),
			want:        domain.ErrPolicyViolation,
		},
		{
			name:        "window closed",
			departureIn: time.Hour,
			input:       seatChangeInput("12B"),
			want:        domain.ErrPolicyViolation,
		},
		{
			name:        "no effective change",
			departureIn: 48 * time.Hour,
			input:       seatChangeInput("12a"),
			want:        domain.ErrValidation,
		},
		{
			name:        "unknown ticket",
			departureIn: 48 * time.Hour,
			input: ModifyInput{BookingID: "b-1", ActorID: strPtr("user-1"),
				Changes: []TicketChange{{TicketID: "t-9", NewSeatCode: strPtr("12B")}}},
			want: domain.ErrNotFound,
		},
		{
			name:        "other owner",
			departureIn: 48 * time.Hour,
			input: ModifyInput{BookingID: "b-1", ActorID: strPtr("user-2"),
				Changes: []TicketChange{{TicketID: "t-1", NewSeatCode: strPtr("12B")}}},
			want: domain.ErrUnauthorized,
		},
		{
			name: "cancelled booking",
			booking: func() *domain.Booking {
				return existingBooking(domain.BookingStatusCancelled, domain.PaymentStatusPending, 500000)
			},
			departureIn: 48 * time.Hour,
			input:       seatChangeInput("12B"),
			want:        domain.ErrPolicyViolation,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			b := existingBooking(domain.BookingStatusConfirmed, domain.PaymentStatusPaid, 500000)
			if tc.booking != nil {
				b = tc.booking()
			}
			f.repo.On("GetByID", mock.Anything, "b-1").Return(b, nil)
			f.inv.On("Trip", mock.Anything, "trip-1").Return(tripDeparting(tc.departureIn), nil)

			_, err := f.service.ModifyBooking(context.Background(), tc.input)

			assert.ErrorIs(t, err, tc.want)
			f.inv.AssertNotCalled(t, "Lock", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			f.repo.AssertNotCalled(t, "ApplyModification", mock.Anything, mock.Anything)
		})
	}
}

func TestBookingService_ModifyBooking_EmptyChanges(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.ModifyBooking(context.Background(), ModifyInput{BookingID: "b-1"})

	assert.ErrorIs(t, err, domain.ErrValidation)
	f.repo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestBookingService_PreviewModification_MatchesModify(t *testing.T) {
	f := newFixture(t)
	f.repo.On("GetByID", mock.Anything, "b-1").Return(existingBooking(domain.BookingStatusConfirmed, domain.PaymentStatusPaid, 500000), nil)
	f.inv.On("Trip", mock.Anything, "trip-1").Return(tripDeparting(8*time.Hour), nil)

	preview, err := f.service.PreviewModification(context.Background(), seatChangeInput("12B"))
	require.NoError(t, err)
	assert.Equal(t, "standard", preview.Decision.Tier)
	assert.Equal(t, 1, preview.SeatChanges)
	assert.Equal(t, int64(30000), preview.Fee)
	assert.Equal(t, int64(530000), preview.NewTotal)
	f.inv.AssertNotCalled(t, "CheckAvailability", mock.Anything, mock.Anything, mock.Anything)

	f.inv.On("CheckAvailability", mock.Anything, "trip-1", []string{"12B"}).Return(nil, nil)
	f.inv.On("Lock", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.repo.On("ApplyModification", mock.Anything, mock.Anything).Return(nil)
	f.inv.On("Release", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(released("12A"))
	f.notifier.On("Send", mock.Anything, mock.Anything).Return(nil)

	result, err := f.service.ModifyBooking(context.Background(), seatChangeInput("12B"))
	require.NoError(t, err)
	assert.Equal(t, preview.Fee, result.Fee)
	assert.Equal(t, preview.NewTotal, result.Booking.Pricing.Total)
}
