package codec

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/telhawk-systems/agent-events/common/logging"
	"github.com/telhawk-systems/agent-events/internal/models"
)

// maxQuotedEvent bounds how much of a malformed event is echoed in errors.
const maxQuotedEvent = 256

// Pipeline encodes and decodes batches of events through a Registry.
type Pipeline struct {
	registry *Registry
	logger   *logging.Logger
}

// NewPipeline creates a Pipeline. A nil logger falls back to the default logger.
func NewPipeline(registry *Registry, logger *logging.Logger) *Pipeline {
	return &Pipeline{
		registry: registry,
		logger:   logging.OrDefault(logger),
	}
}

// Encode serializes events in order. The first failure aborts the batch and
// no partial result is returned.
func (p *Pipeline) Encode(ctx context.Context, events []models.Event) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(events))
	for _, e := range events {
		raw, err := p.EncodeOne(e)
		if err != nil {
			h := e.Header()
			p.logger.ErrorContext(ctx, "failed to encode event",
				logging.EventID(h.ID.String()),
				logging.EventType(string(e.Type())),
				logging.Error(err))
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

// EncodeOne serializes a single event.
func (p *Pipeline) EncodeOne(e models.Event) (json.RawMessage, error) {
	h := e.Header()
	c, ok := p.registry.Lookup(e.Type())
	if !ok {
		return nil, fmt.Errorf("%w: event %s (%s): no codec registered", ErrEncode, h.ID, e.Type())
	}
	raw, err := c.Encode(e)
	if err != nil {
		return nil, fmt.Errorf("%w: event %s (%s): %w", ErrEncode, h.ID, e.Type(), err)
	}
	return raw, nil
}

// Decode turns one raw event into an event using its "type" discriminator.
func (p *Pipeline) Decode(raw json.RawMessage) (models.Event, error) {
	t, err := discriminator(raw)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrDecode, quote(raw), err)
	}
	c, ok := p.registry.Lookup(t)
	if !ok {
		return nil, fmt.Errorf("%w %s: unknown event type %q", ErrDecode, quote(raw), t)
	}
	e, err := c.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrDecode, quote(raw), err)
	}
	return e, nil
}

// BatchError reports the raw event at which DecodeEach stopped.
type BatchError struct {
	Index int
	Err   error
}

func (e *BatchError) Error() string {
	return e.Err.Error()
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// DecodeEach decodes raw events in order and hands each one to fn before the
// next is decoded. It stops at the first decode failure or fn error and
// returns it as a *BatchError carrying the index.
func (p *Pipeline) DecodeEach(raw []json.RawMessage, fn func(i int, e models.Event) error) error {
	for i, r := range raw {
		e, err := p.Decode(r)
		if err != nil {
			return &BatchError{Index: i, Err: err}
		}
		if err := fn(i, e); err != nil {
			return &BatchError{Index: i, Err: err}
		}
	}
	return nil
}

// quote bounds raw for use in an error message without splitting a rune.
func quote(raw json.RawMessage) string {
	if len(raw) <= maxQuotedEvent {
		return strings.ToValidUTF8(string(raw), "\uFFFD")
	}
	cut := maxQuotedEvent
	for cut > 0 && !utf8.RuneStart(raw[cut]) {
		cut--
	}
	return strings.ToValidUTF8(string(raw[:cut]), "\uFFFD") + "..."
}
