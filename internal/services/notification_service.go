package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// Notification event types emitted by the booking flow.
const (
	EventBookingCreated   = "booking_created"
	EventBookingConfirmed = "booking_confirmed"
	EventBookingCancelled = "booking_cancelled"
	EventBookingExpired   = "booking_expired"
	EventBookingRefunded  = "booking_refunded"
)

// Notifier is the fire-and-forget notification port. Implementations must
// never propagate delivery failures into the booking flow.
type Notifier interface {
	Notify(eventType string, payload map[string]interface{})
}

// LogNotifier records notification events in the application log. Used in
// development and as the fallback transport.
type LogNotifier struct {
	logger *logrus.Logger
}

// NewLogNotifier creates a new LogNotifier
func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the event.
func (n *LogNotifier) Notify(eventType string, payload map[string]interface{}) {
	n.logger.WithFields(logrus.Fields{
		"event_type": eventType,
		"payload":    payload,
	}).Info("Notification event")
}

// AMQPNotifier publishes notification events to a RabbitMQ topic exchange so
// the email renderer and merchant dashboard can consume them.
type AMQPNotifier struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *logrus.Logger
}

// NewAMQPNotifier connects to RabbitMQ and declares the exchange.
func NewAMQPNotifier(url, exchange string, logger *logrus.Logger) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &AMQPNotifier{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// Notify publishes the event. Publish failures are logged and swallowed;
// notifications are best-effort by contract.
func (n *AMQPNotifier) Notify(eventType string, payload map[string]interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.WithError(err).WithField("event_type", eventType).Error("Failed to marshal notification payload")
		return
	}

	routingKey := fmt.Sprintf("booking.%s", eventType)
	err = n.channel.Publish(
		n.exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.New().String(),
			Timestamp:    time.Now(),
			Headers: amqp.Table{
				"event_type": eventType,
			},
		},
	)
	if err != nil {
		n.logger.WithError(err).WithField("event_type", eventType).Error("Failed to publish notification event")
		return
	}

	n.logger.WithFields(logrus.Fields{
		"event_type":  eventType,
		"routing_key": routingKey,
	}).Debug("Notification event published")
}

// Close releases the AMQP channel and connection.
func (n *AMQPNotifier) Close() {
	if n.channel != nil {
		n.channel.Close()
	}
	if n.conn != nil {
		n.conn.Close()
	}
}
