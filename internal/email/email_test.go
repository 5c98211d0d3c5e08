package email

import (
	"context"
	"testing"

	"github.com/Domenick1991/tripbooking/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	msg, err := Render(domain.Notification{
		Template:  domain.TemplateBookingCancelled,
		Reference: "AB23CD",
		TripID:    "trip-1",
		Status:    domain.BookingStatusCancelled,
		Email:     "a@b.c",
		Data:      map[string]any{"total_refund": int64(445000), "tier": "full"},
	})
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", msg.To)
	assert.Equal(t, "Booking AB23CD cancelled", msg.Subject)
	assert.Contains(t, msg.Body, "total_refund: 445000")
	assert.Contains(t, msg.Body, "tier: full")
}

func TestRender_UnknownTemplate(t *testing.T) {
	_, err := Render(domain.Notification{Template: "nope"})
	assert.Error(t, err)
}

func TestSender_Send(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	s := NewSender(logger)

	err := s.Send(context.Background(), domain.Notification{
		Template:  domain.TemplateBookingExpired,
		BookingID: "b-1",
		Reference: "AB23CD",
		Email:     "a@b.c",
	})
	require.NoError(t, err)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
	assert.Equal(t, "b-1", hook.LastEntry().Data["booking_id"])

	err = s.Send(context.Background(), domain.Notification{Template: domain.TemplateBookingExpired, BookingID: "b-2"})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, hook.LastEntry().Level)
}
