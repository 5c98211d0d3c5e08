package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Domenick1991/tripbooking/internal/domain"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type Consumer struct {
	reader *kafka.Reader
	logger *logrus.Logger
}

func NewConsumer(brokers []string, groupID, topic string, logger *logrus.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:           brokers,
			GroupID:           groupID,
			Topic:             topic,
			HeartbeatInterval: 3 * time.Second,
			SessionTimeout:    30 * time.Second,
		}),
		logger: logger,
	}
}

func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

func (c *Consumer) Consume(ctx context.Context, handler func(context.Context, kafka.Message) error) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		if err := handler(ctx, msg); err != nil {
			return err
		}
	}
}

// ConsumeNotifications decodes notification messages and hands them to handle.
// Undecodable messages are logged and skipped.
func (c *Consumer) ConsumeNotifications(ctx context.Context, handle func(context.Context, domain.Notification) error) error {
	return c.Consume(ctx, func(ctx context.Context, msg kafka.Message) error {
		var n domain.Notification
		if err := json.Unmarshal(msg.Value, &n); err != nil {
			c.logger.WithError(err).WithField("offset", msg.Offset).Warn("Skipping undecodable notification")
			return nil
		}
		return handle(ctx, n)
	})
}
