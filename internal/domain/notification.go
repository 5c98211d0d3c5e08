package domain

import "time"

type NotificationTemplate string

const (
	TemplateBookingCreated   NotificationTemplate = "booking_created"
	TemplateBookingConfirmed NotificationTemplate = "booking_confirmed"
	TemplateBookingCancelled NotificationTemplate = "booking_cancelled"
	TemplateBookingExpired   NotificationTemplate = "booking_expired"
	TemplateBookingModified  NotificationTemplate = "booking_modified"
	TemplateTicketRegenerate NotificationTemplate = "ticket_regenerate"
)

// Notification is a fire-and-forget message about a booking.
type Notification struct {
	Template   NotificationTemplate `json:"template"`
	BookingID  string               `json:"booking_id"`
	Reference  string               `json:"reference"`
	TripID     string               `json:"trip_id"`
	Status     BookingStatus        `json:"status"`
	Email      string               `json:"email,omitempty"`
	Phone      string               `json:"phone,omitempty"`
	Data       map[string]any       `json:"data,omitempty"`
	OccurredAt time.Time            `json:"occurred_at"`
}

func NewNotification(template NotificationTemplate, b *Booking, data map[string]any, at time.Time) Notification {
	return Notification{
		Template:   template,
		BookingID:  b.ID,
		Reference:  b.Reference,
		TripID:     b.TripID,
		Status:     b.Status,
		Email:      b.ContactEmail,
		Phone:      b.ContactPhone,
		Data:       data,
		OccurredAt: at,
	}
}
