package kafka

import (
	"context"
	"time"

	"github.com/Domenick1991/tripbooking/internal/domain"
)

type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// BookingEvent is the lifecycle record written to the events topic.
type BookingEvent struct {
	Type       string    `json:"type"`
	BookingID  string    `json:"booking_id"`
	Reference  string    `json:"reference"`
	TripID     string    `json:"trip_id"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NotificationDispatcher sends notifications through Kafka. The worker consumes
// the notifications topic and does the actual delivery.
type NotificationDispatcher struct {
	producer           EventPublisher
	notificationsTopic string
	eventsTopic        string
}

func NewNotificationDispatcher(producer EventPublisher, notificationsTopic, eventsTopic string) *NotificationDispatcher {
	return &NotificationDispatcher{
		producer:           producer,
		notificationsTopic: notificationsTopic,
		eventsTopic:        eventsTopic,
	}
}

func (d *NotificationDispatcher) Send(ctx context.Context, n domain.Notification) error {
	if d.producer == nil || d.notificationsTopic == "" {
		return nil
	}
	if err := d.producer.Publish(ctx, d.notificationsTopic, n.BookingID, n); err != nil {
		return err
	}
	if d.eventsTopic == "" {
		return nil
	}
	return d.producer.Publish(ctx, d.eventsTopic, n.BookingID, BookingEvent{
		Type:       string(n.Template),
		BookingID:  n.BookingID,
		Reference:  n.Reference,
		TripID:     n.TripID,
		Status:     string(n.Status),
		OccurredAt: n.OccurredAt,
	})
}
