package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mstfa13/asura-backend/internal/observability"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const publishTimeout = 5 * time.Second

// Publisher emits domain events. Callers treat failures as non-fatal.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }

// channel is the part of *amqp.Channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type RabbitPublisher struct {
	mu      sync.Mutex
	ch      channel
	queue   string
	metrics *observability.Metrics
}

func NewRabbitPublisher(ch *amqp.Channel, queueName string, metrics *observability.Metrics) *RabbitPublisher {
	return newRabbitPublisher(ch, queueName, metrics)
}

func newRabbitPublisher(ch channel, queueName string, metrics *observability.Metrics) *RabbitPublisher {
	return &RabbitPublisher{ch: ch, queue: queueName, metrics: metrics}
}

func (p *RabbitPublisher) Publish(ctx context.Context, eventType string, payload any) error {
	ev, err := NewEvent(eventType, payload)
	if err != nil {
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	// amqp channels must not be shared across concurrent publishers
	p.mu.Lock()
	err = p.ch.PublishWithContext(
		ctx,
		"",      // exchange
		p.queue, // routing key (queue name)
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.ID,
			Type:         ev.Type,
			Timestamp:    ev.Timestamp,
			Body:         body,
		},
	)
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}

	if p.metrics != nil {
		p.metrics.QueueMessagesPublished.WithLabelValues(p.queue).Inc()
	}

	logrus.WithFields(logrus.Fields{
		"event_id":   ev.ID,
		"event_type": ev.Type,
		"queue":      p.queue,
	}).Debug("Event published")
	return nil
}
