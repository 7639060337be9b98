// Package events publishes reservation lifecycle events to RabbitMQ.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/semanticallynull/rentaldesk-backend/reservation"
)

const (
	TypeCreated = "reservation.created"
	TypeOverdue = "reservation.overdue"
)

// TypeForStatus is the routing key used when a reservation reaches status.
func TypeForStatus(s reservation.Status) string {
	return "reservation." + string(s)
}

type Event struct {
	Type          string             `json:"type"`
	ReservationID int64              `json:"reservationId"`
	VehicleID     int64              `json:"vehicleId"`
	CustomerID    int64              `json:"customerId"`
	Status        reservation.Status `json:"status"`
	DaysOverdue   int                `json:"daysOverdue,omitempty"`
	OccurredAt    time.Time          `json:"occurredAt"`
}

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type Publisher struct {
	ch       Channel
	exchange string
	logger   *slog.Logger
	now      func() time.Time
}

func NewPublisher(ch Channel, exchange string, logger *slog.Logger) *Publisher {
	return &Publisher{
		ch:       ch,
		exchange: exchange,
		logger:   logger,
		now:      time.Now,
	}
}

// Dial connects to the broker and declares the topic exchange events are
// published to.
func Dial(url, exchange string, logger *slog.Logger) (*Publisher, func(), error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	cleanup := func() {
		ch.Close()
		conn.Close()
	}
	return NewPublisher(ch, exchange, logger), cleanup, nil
}

func (p *Publisher) Publish(ctx context.Context, e Event) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = p.now()
	}

	body, err := json.Marshal(e)
	if err != nil {
		return err
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, e.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    e.OccurredAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}

	p.logger.DebugContext(ctx, "event published", "type", e.Type, "reservation_id", e.ReservationID)
	return nil
}

func eventFor(typ string, r reservation.Reservation) Event {
	return Event{
		Type:          typ,
		ReservationID: r.ID,
		VehicleID:     r.VehicleID,
		CustomerID:    r.CustomerID,
		Status:        r.Status,
	}
}

// ReservationSaved publishes reservation.created for new reservations and
// reservation.<status> otherwise.
func (p *Publisher) ReservationSaved(ctx context.Context, r reservation.Reservation, created bool) error {
	typ := TypeForStatus(r.Status)
	if created {
		typ = TypeCreated
	}
	return p.Publish(ctx, eventFor(typ, r))
}

func (p *Publisher) ReservationOverdue(ctx context.Context, r reservation.Reservation, daysOverdue int) error {
	e := eventFor(TypeOverdue, r)
	e.DaysOverdue = daysOverdue
	return p.Publish(ctx, e)
}
