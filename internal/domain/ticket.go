package domain

import "time"

// Ticket is one passenger line item. Price is the seat price at booking time.
type Ticket struct {
	ID         string `json:"id"`
	BookingID  string `json:"booking_id"`
	SeatCode   string `json:"seat_code"`
	HolderName string `json:"holder_name"`
	Phone      string `json:"phone"`
	DocumentID string `json:"document_id"`
	Price      int64  `json:"price"`
}

type CancellationOutcome struct {
	Tier             string    `json:"tier"`
	RefundPercentage int       `json:"refund_percentage"`
	RefundAmount     int64     `json:"refund_amount"`
	ProcessingFee    int64     `json:"processing_fee"`
	TotalRefund      int64     `json:"total_refund"`
	Reason           string    `json:"reason"`
	CancelledBy      *string   `json:"cancelled_by,omitempty"`
	CancelledAt      time.Time `json:"cancelled_at"`
}

type ModificationKind string

const (
	ModificationSeatChange      ModificationKind = "seat_change"
	ModificationPassengerUpdate ModificationKind = "passenger_update"
)

// ModificationRecord is append-only history. The fee of a modification batch is
// carried by its first record so that the record fees sum to Pricing.ModificationFees.
type ModificationRecord struct {
	ID         string            `json:"id"`
	BookingID  string            `json:"booking_id"`
	TicketID   string            `json:"ticket_id"`
	Kind       ModificationKind  `json:"kind"`
	OldSeat    string            `json:"old_seat,omitempty"`
	NewSeat    string            `json:"new_seat,omitempty"`
	FieldDelta map[string]string `json:"field_delta,omitempty"`
	Fee        int64             `json:"fee"`
	CreatedAt  time.Time         `json:"created_at"`
}
