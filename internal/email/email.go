package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/Domenick1991/tripbooking/internal/domain"
	"github.com/sirupsen/logrus"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender renders notifications into messages. Delivery is a log line until a
// mail relay is configured.
type Sender struct {
	logger *logrus.Logger
}

func NewSender(logger *logrus.Logger) *Sender {
	return &Sender{logger: logger}
}

func (s *Sender) Send(ctx context.Context, n domain.Notification) error {
	msg, err := Render(n)
	if err != nil {
		return err
	}
	if msg.To == "" {
		s.logger.WithFields(logrus.Fields{
			"booking_id": n.BookingID,
			"template":   n.Template,
		}).Debug("No email on booking, skipping")
		return nil
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": n.BookingID,
		"template":   n.Template,
		"to":         msg.To,
	}).Infof("send email: %s", msg.Subject)
	return nil
}

func Render(n domain.Notification) (Message, error) {
	var subject string
	switch n.Template {
	case domain.TemplateBookingCreated:
		subject = "Booking %s received"
	case domain.TemplateBookingConfirmed:
		subject = "Booking %s confirmed"
	case domain.TemplateBookingCancelled:
		subject = "Booking %s cancelled"
	case domain.TemplateBookingExpired:
		subject = "Booking %s expired"
	case domain.TemplateBookingModified:
		subject = "Booking %s updated"
	case domain.TemplateTicketRegenerate:
		subject = "New tickets for booking %s"
	default:
		return Message{}, fmt.Errorf("unknown notification template %q", n.Template)
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Reference: %s\nTrip: %s\nStatus: %s\n", n.Reference, n.TripID, n.Status)
	for _, key := range []string{"total", "total_refund", "tier", "fee", "reason"} {
		if v, ok := n.Data[key]; ok {
			fmt.Fprintf(&body, "%s: %v\n", key, v)
		}
	}

	return Message{
		To:      n.Email,
		Subject: fmt.Sprintf(subject, n.Reference),
		Body:    body.String(),
	}, nil
}
