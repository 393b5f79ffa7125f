// Package service orchestrates event queries and ingestion.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/telhawk-systems/agent-events/common/logging"
	"github.com/telhawk-systems/agent-events/internal/codec"
	"github.com/telhawk-systems/agent-events/internal/filter"
	"github.com/telhawk-systems/agent-events/internal/metrics"
	"github.com/telhawk-systems/agent-events/internal/models"
	"github.com/telhawk-systems/agent-events/internal/queue"
	"github.com/telhawk-systems/agent-events/internal/selector"
)

// IngestError reports where a batch stopped. Events before Index were
// published and stay published.
type IngestError struct {
	Index     int
	Published int
	Err       error
}

func (e *IngestError) Error() string {
	return e.Err.Error()
}

func (e *IngestError) Unwrap() error {
	return e.Err
}

// IngestResult summarizes an accepted batch.
type IngestResult struct {
	Published int
}

// EventService answers event queries and ingests event batches.
type EventService struct {
	parser    *filter.Parser
	selector  *selector.Selector
	pipeline  *codec.Pipeline
	publisher queue.Publisher
	logger    *logging.Logger
}

// NewEventService creates an EventService. A nil logger falls back to the default logger.
func NewEventService(parser *filter.Parser, sel *selector.Selector, pipeline *codec.Pipeline, publisher queue.Publisher, logger *logging.Logger) *EventService {
	return &EventService{
		parser:    parser,
		selector:  sel,
		pipeline:  pipeline,
		publisher: publisher,
		logger:    logging.OrDefault(logger),
	}
}

// Query validates args, selects the matching events and encodes them.
// Invalid arguments are rejected before the repository is read.
func (s *EventService) Query(ctx context.Context, args filter.Args) ([]json.RawMessage, error) {
	start := time.Now()
	defer func() {
		metrics.QueryDuration.Observe(time.Since(start).Seconds())
	}()

	spec, err := s.parser.Parse(args)
	if err != nil {
		metrics.Queries.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return nil, err
	}

	events, err := s.selector.Select(ctx, spec)
	if err != nil {
		metrics.Queries.WithLabelValues(metrics.OutcomeError).Inc()
		s.logger.ErrorContext(ctx, "failed to select events", logging.Error(err))
		return nil, err
	}

	encoded, err := s.pipeline.Encode(ctx, events)
	if err != nil {
		metrics.Queries.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, err
	}

	metrics.Queries.WithLabelValues(metrics.OutcomeSuccess).Inc()
	metrics.SelectedEvents.Observe(float64(len(encoded)))
	return encoded, nil
}

// Ingest decodes and publishes raw events one at a time, in order. Processing
// stops at the first event that fails; earlier events are not retracted.
func (s *EventService) Ingest(ctx context.Context, raw []json.RawMessage) (IngestResult, error) {
	published := 0
	err := s.pipeline.DecodeEach(raw, func(_ int, e models.Event) error {
		if err := s.publisher.Publish(ctx, e); err != nil {
			metrics.IngestFailures.WithLabelValues("publish").Inc()
			h := e.Header()
			s.logger.ErrorContext(ctx, "failed to publish event",
				logging.EventID(h.ID.String()),
				logging.EventType(string(e.Type())),
				logging.Error(err))
			return fmt.Errorf("failed to publish event %s: %w", h.ID, err)
		}
		metrics.EventsIngested.WithLabelValues(string(e.Type())).Inc()
		published++
		return nil
	})
	if err != nil {
		var be *codec.BatchError
		if !errors.As(err, &be) {
			return IngestResult{Published: published}, err
		}
		if errors.Is(be.Err, codec.ErrDecode) {
			metrics.IngestFailures.WithLabelValues("decode").Inc()
			s.logger.WarnContext(ctx, "rejected event in batch",
				slog.Int("index", be.Index),
				logging.Count(published),
				logging.Error(be.Err))
		}
		return IngestResult{Published: published}, &IngestError{Index: be.Index, Published: published, Err: be.Err}
	}

	s.logger.DebugContext(ctx, "ingested event batch", logging.Count(published))
	return IngestResult{Published: published}, nil
}

// PublishedBefore extracts the number of events published before err interrupted a batch.
func PublishedBefore(err error) int {
	var ie *IngestError
	if errors.As(err, &ie) {
		return ie.Published
	}
	return 0
}
