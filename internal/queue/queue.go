// Package queue hands ingested events to whatever persists them.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/telhawk-systems/agent-events/internal/metrics"
	"github.com/telhawk-systems/agent-events/internal/models"
	"github.com/telhawk-systems/agent-events/internal/repository"
)

// Backend names accepted by configuration.
const (
	BackendLocal = "local"
	BackendNATS  = "nats"
)

// Publisher accepts events for asynchronous processing.
type Publisher interface {
	Publish(ctx context.Context, e models.Event) error
}

// Handler receives events delivered by a LocalQueue.
type Handler func(ctx context.Context, e models.Event) error

// Persist returns a Handler that saves events to w. An event whose ID is
// already stored counts as handled, so a resent batch is not an error.
func Persist(w repository.Writer) Handler {
	return func(ctx context.Context, e models.Event) error {
		if err := w.Save(ctx, e); err != nil && !errors.Is(err, repository.ErrDuplicate) {
			return err
		}
		return nil
	}
}

// LocalQueue delivers each published event synchronously to every subscriber.
type LocalQueue struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewLocalQueue creates a LocalQueue with no subscribers.
func NewLocalQueue() *LocalQueue {
	return &LocalQueue{}
}

// Subscribe registers h for every subsequently published event.
func (q *LocalQueue) Subscribe(h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = append(q.handlers, h)
}

// Publish runs every subscriber and joins their errors.
func (q *LocalQueue) Publish(ctx context.Context, e models.Event) error {
	q.mu.RLock()
	handlers := q.handlers
	q.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}

	err := errors.Join(errs...)
	metrics.EventsPublished.WithLabelValues(BackendLocal, status(err)).Inc()
	return err
}

func status(err error) string {
	if err != nil {
		return metrics.OutcomeError
	}
	return metrics.OutcomeSuccess
}
