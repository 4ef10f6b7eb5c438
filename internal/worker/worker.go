package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mstfa13/asura-backend/internal/observability"
	"github.com/mstfa13/asura-backend/internal/queue"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	maxRetries       = 3
	retryCountHeader = "x-retry-count"
)

// channel is the part of *amqp.Channel used to requeue failed messages.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type Worker struct {
	id      int
	queue   string
	ch      channel
	audit   *AuditLog
	metrics *observability.Metrics
}

func newWorker(id int, queueName string, ch channel, audit *AuditLog, metrics *observability.Metrics) *Worker {
	return &Worker{id: id, queue: queueName, ch: ch, audit: audit, metrics: metrics}
}

// StartWorker consumes queueName until ctx is cancelled or the channel closes.
func StartWorker(ctx context.Context, conn *amqp.Connection, queueName string, audit *AuditLog, metrics *observability.Metrics, id int) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("worker %d failed to open channel: %w", id, err)
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("worker %d failed to set QoS: %w", id, err)
	}

	msgs, err := ch.Consume(
		queueName,
		fmt.Sprintf("audit-worker-%d", id),
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("worker %d failed to start consuming messages: %w", id, err)
	}

	logrus.Infof("Worker %d started", id)
	newWorker(id, queueName, ch, audit, metrics).Process(ctx, msgs)
	logrus.Infof("Worker %d stopped", id)
	return nil
}

// Process handles deliveries until ctx is done or msgs is closed.
func (w *Worker) Process(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			w.handle(msg)
		}
	}
}

func (w *Worker) handle(msg amqp.Delivery) {
	if w.metrics != nil {
		w.metrics.QueueMessagesConsumed.WithLabelValues(w.queue).Inc()
	}

	ev, err := queue.DecodeEvent(msg.Body)
	if err != nil {
		logrus.WithError(err).Error("invalid payload")
		_ = msg.Nack(false, false)
		return
	}

	err = handleEvent(w.audit, ev, w.id)
	if err == nil {
		_ = msg.Ack(false)
		return
	}

	if errors.Is(err, errPermanent) {
		logrus.WithError(err).WithField("event_id", ev.ID).Error("Dropping event")
		_ = msg.Nack(false, false)
		return
	}

	retryCount := retryCountOf(msg)
	if retryCount >= maxRetries {
		logrus.WithError(err).WithField("event_id", ev.ID).Error("Max retries reached, dropping event")
		_ = msg.Nack(false, false)
		return
	}

	logrus.WithError(err).Warnf("Worker %d: event failed, requeuing (retry %d/%d)", w.id, retryCount+1, maxRetries)
	if err := w.republish(&msg, retryCount+1); err != nil {
		logrus.WithError(err).Error("Failed to republish message")
		_ = msg.Nack(false, false)
		return
	}

	if w.metrics != nil {
		w.metrics.QueueMessagesPublished.WithLabelValues(w.queue).Inc()
	}
	_ = msg.Ack(false)
}

func (w *Worker) republish(msg *amqp.Delivery, retryCount int32) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	headers := amqp.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[retryCountHeader] = retryCount

	return w.ch.PublishWithContext(
		ctx,
		"",      // exchange
		w.queue, // routing key (queue name)
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  msg.ContentType,
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.MessageId,
			Type:         msg.Type,
			Body:         msg.Body,
			Headers:      headers,
		},
	)
}

func retryCountOf(msg amqp.Delivery) int32 {
	switch v := msg.Headers[retryCountHeader].(type) {
	case int32:
		return v
	case int64:
		return int32(v)
	case int:
		return int32(v)
	default:
		return 0
	}
}
