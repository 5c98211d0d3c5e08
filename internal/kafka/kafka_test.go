package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Domenick1991/tripbooking/internal/domain"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, topic, key string, value interface{}) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

func TestProducer_Publish(t *testing.T) {
	logger, _ := test.NewNullLogger()
	w := &fakeWriter{}
	p := &Producer{writer: w, logger: logger}

	err := p.Publish(context.Background(), "topic", "b-1", map[string]string{"a": "b"})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "topic", w.msgs[0].Topic)
	assert.Equal(t, []byte("b-1"), w.msgs[0].Key)
	assert.JSONEq(t, `{"a":"b"}`, string(w.msgs[0].Value))
}

func TestProducer_PublishWriteError(t *testing.T) {
	logger, _ := test.NewNullLogger()
	p := &Producer{writer: &fakeWriter{err: errors.New("broker down")}, logger: logger}

	err := p.Publish(context.Background(), "topic", "k", "v")
	assert.ErrorContains(t, err, "broker down")
}

func TestNotificationDispatcher_Send(t *testing.T) {
	pub := new(mockPublisher)
	d := NewNotificationDispatcher(pub, "notifications", "events")
	n := domain.Notification{
		Template:   domain.TemplateBookingConfirmed,
		BookingID:  "b-1",
		Reference:  "AB23CD",
		TripID:     "trip-1",
		Status:     domain.BookingStatusConfirmed,
		OccurredAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	pub.On("Publish", mock.Anything, "notifications", "b-1", n).Return(nil)
	pub.On("Publish", mock.Anything, "events", "b-1", mock.MatchedBy(func(e BookingEvent) bool {
		return e.Type == "booking_confirmed" && e.Status == "confirmed" && e.Reference == "AB23CD"
	})).Return(nil)

	require.NoError(t, d.Send(context.Background(), n))
	pub.AssertExpectations(t)
}

func TestNotificationDispatcher_SendFailure(t *testing.T) {
	pub := new(mockPublisher)
	d := NewNotificationDispatcher(pub, "notifications", "events")
	pub.On("Publish", mock.Anything, "notifications", "b-1", mock.Anything).Return(errors.New("boom"))

	err := d.Send(context.Background(), domain.Notification{BookingID: "b-1"})
	assert.Error(t, err)
	pub.AssertNumberOfCalls(t, "Publish", 1)
}

func TestNotificationDispatcher_NoTopic(t *testing.T) {
	pub := new(mockPublisher)
	d := NewNotificationDispatcher(pub, "", "")
	assert.NoError(t, d.Send(context.Background(), domain.Notification{BookingID: "b-1"}))
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
