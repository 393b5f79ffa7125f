package queue

import (
	"context"
	"fmt"

	"github.com/telhawk-systems/agent-events/common/logging"
	"github.com/telhawk-systems/agent-events/common/messaging"
	"github.com/telhawk-systems/agent-events/internal/codec"
	"github.com/telhawk-systems/agent-events/internal/metrics"
	"github.com/telhawk-systems/agent-events/internal/models"
	"github.com/telhawk-systems/agent-events/internal/repository"
)

// Message headers set on published events.
const (
	HeaderEventID   = "Agent-Event-Id"
	HeaderEventType = "Agent-Event-Type"
)

// NATSQueue publishes encoded events to agents.events.<type>.
type NATSQueue struct {
	publisher messaging.Publisher
	pipeline  *codec.Pipeline
}

// NewNATSQueue creates a NATSQueue.
func NewNATSQueue(publisher messaging.Publisher, pipeline *codec.Pipeline) *NATSQueue {
	return &NATSQueue{publisher: publisher, pipeline: pipeline}
}

// Publish implements Publisher.
func (q *NATSQueue) Publish(ctx context.Context, e models.Event) error {
	data, err := q.pipeline.EncodeOne(e)
	if err != nil {
		return err
	}

	h := e.Header()
	err = q.publisher.PublishMsg(ctx, &messaging.Message{
		Subject: messaging.AgentEventSubject(string(e.Type())),
		Data:    data,
		Metadata: map[string]string{
			HeaderEventID:   h.ID.String(),
			HeaderEventType: string(e.Type()),
		},
	})
	metrics.EventsPublished.WithLabelValues(BackendNATS, status(err)).Inc()
	if err != nil {
		return fmt.Errorf("failed to publish event %s: %w", h.ID, err)
	}
	return nil
}

// Consumer persists events received from the queue.
type Consumer struct {
	subscriber messaging.Subscriber
	pipeline   *codec.Pipeline
	save       Handler
	logger     *logging.Logger
	sub        messaging.Subscription
}

// NewConsumer creates a Consumer. A nil logger falls back to the default logger.
func NewConsumer(subscriber messaging.Subscriber, pipeline *codec.Pipeline, writer repository.Writer, logger *logging.Logger) *Consumer {
	return &Consumer{
		subscriber: subscriber,
		pipeline:   pipeline,
		save:       Persist(writer),
		logger:     logging.OrDefault(logger),
	}
}

// Start joins the event writer queue group.
func (c *Consumer) Start() error {
	sub, err := c.subscriber.QueueSubscribe(messaging.SubjectAgentEventsAll, messaging.QueueEventWriters, c.Handle)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", messaging.SubjectAgentEventsAll, err)
	}
	c.sub = sub
	c.logger.Info("event consumer started", logging.Subject(messaging.SubjectAgentEventsAll))
	return nil
}

// Stop leaves the queue group.
func (c *Consumer) Stop() error {
	if c.sub == nil {
		return nil
	}
	return c.sub.Unsubscribe()
}

// Handle decodes and saves one message. Events already stored count as handled.
func (c *Consumer) Handle(ctx context.Context, msg *messaging.Message) error {
	e, err := c.pipeline.Decode(msg.Data)
	if err != nil {
		metrics.EventsConsumed.WithLabelValues(metrics.OutcomeInvalid).Inc()
		c.logger.ErrorContext(ctx, "dropping undecodable event",
			logging.Subject(msg.Subject),
			logging.Error(err))
		return err
	}

	if err := c.save(ctx, e); err != nil {
		metrics.EventsConsumed.WithLabelValues(metrics.OutcomeError).Inc()
		return fmt.Errorf("failed to store event %s: %w", e.Header().ID, err)
	}
	metrics.EventsConsumed.WithLabelValues(metrics.OutcomeSuccess).Inc()
	return nil
}
