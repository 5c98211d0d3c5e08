package domain

import (
	"strings"
	"time"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// CanTransition reports whether a booking may move from one status to another.
// Nothing re-enters pending and nothing leaves cancelled.
func CanTransition(from, to BookingStatus) bool {
	switch from {
	case BookingStatusPending:
		return to == BookingStatusConfirmed || to == BookingStatusCancelled
	case BookingStatusConfirmed:
		return to == BookingStatusCancelled || to == BookingStatusCompleted
	default:
		return false
	}
}

// Pricing amounts are integer minor units of Currency.
type Pricing struct {
	Subtotal         int64  `json:"subtotal"`
	ServiceFee       int64  `json:"service_fee"`
	ModificationFees int64  `json:"modification_fees"`
	Total            int64  `json:"total"`
	Currency         string `json:"currency"`
}

// Recalculate restores Total = Subtotal + ServiceFee + ModificationFees.
func (p *Pricing) Recalculate() {
	p.Total = p.Subtotal + p.ServiceFee + p.ModificationFees
}

func (p Pricing) Consistent() bool {
	return p.Total == p.Subtotal+p.ServiceFee+p.ModificationFees
}

type Booking struct {
	ID            string               `json:"id"`
	Reference     string               `json:"reference"`
	TripID        string               `json:"trip_id"`
	OwnerID       *string              `json:"owner_id,omitempty"`
	HolderToken   string               `json:"-"`
	ContactEmail  string               `json:"contact_email"`
	ContactPhone  string               `json:"contact_phone"`
	Status        BookingStatus        `json:"status"`
	PaymentStatus PaymentStatus        `json:"payment_status"`
	LockedUntil   *time.Time           `json:"locked_until,omitempty"`
	Pricing       Pricing              `json:"pricing"`
	Tickets       []Ticket             `json:"tickets"`
	Cancellation  *CancellationOutcome `json:"cancellation,omitempty"`
	Modifications []ModificationRecord `json:"modifications,omitempty"`
	PaidAt        *time.Time           `json:"paid_at,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
	// Version increases with every stored write; conditional writes compare it.
	Version       int64                `json:"-"`
}

// Holder identifies who owns the inventory locks of a booking. Ref is always the
// per-booking token so that one booking can never release another's seats, even
// when both belong to the same user. OwnerID is passed along for authenticated holds.
type Holder struct {
	Ref     string
	Guest   bool
	OwnerID string
}

func (b *Booking) Holder() Holder {
	h := Holder{Ref: b.HolderToken, Guest: b.IsGuest()}
	if !h.Guest {
		h.OwnerID = *b.OwnerID
	}
	return h
}

func (b *Booking) IsGuest() bool {
	return b.OwnerID == nil || *b.OwnerID == ""
}

// OwnedBy is false for guest bookings: a guest booking has no owner to match.
func (b *Booking) OwnedBy(actorID string) bool {
	return !b.IsGuest() && *b.OwnerID == actorID
}

func (b *Booking) IsPaid() bool {
	return b.PaymentStatus == PaymentStatusPaid
}

func (b *Booking) SeatCodes() []string {
	seats := make([]string, 0, len(b.Tickets))
	for _, t := range b.Tickets {
		seats = append(seats, t.SeatCode)
	}
	return seats
}

// HoldMarkerKey is the advisory TTL key mirroring LockedUntil.
func HoldMarkerKey(bookingID string) string {
	return "booking:hold:" + bookingID
}

// NormalizeEmail lower-cases and trims an e-mail address for comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone keeps digits and a leading plus sign.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	var sb strings.Builder
	for i, r := range phone {
		if r == '+' && i == 0 {
			sb.WriteRune(r)
			continue
		}
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
