// Package repository stores events and serves the indexed subsets the selector reads.
//
// Every Reader method returns events sorted by ascending timestamp. Events
// with equal timestamps keep the order in which they were saved.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/telhawk-systems/agent-events/common/database"
	"github.com/telhawk-systems/agent-events/internal/codec"
	"github.com/telhawk-systems/agent-events/internal/models"
)

var (
	// ErrDuplicate is returned when an event with the same ID is already stored.
	ErrDuplicate = errors.New("event already stored")
	// ErrCorrupt is returned when a stored payload no longer decodes.
	ErrCorrupt = errors.New("stored event is corrupt")
)

// Reader serves ordered event subsets.
type Reader interface {
	// Events returns every stored event.
	Events(ctx context.Context) ([]models.Event, error)
	// EventsByType returns the events of one variant.
	EventsByType(ctx context.Context, t models.EventType) ([]models.Event, error)
	// EventsByTag returns the events carrying tag.
	EventsByTag(ctx context.Context, tag string) ([]models.Event, error)
}

// Writer stores events.
type Writer interface {
	Save(ctx context.Context, e models.Event) error
}

// Repository is a readable and writable event store.
type Repository interface {
	Reader
	Writer
	Close() error
}

// Backend names accepted by configuration.
const (
	BackendMemory     = "memory"
	BackendSQLite     = "sqlite"
	BackendPostgres   = "postgres"
	BackendOpenSearch = "opensearch"
)

// Option configures a persistent backend.
type Option func(*options)

type options struct {
	timeouts database.Timeouts
}

// WithTimeouts bounds each round trip to the backend.
func WithTimeouts(t database.Timeouts) Option {
	return func(o *options) { o.timeouts = t }
}

func applyOptions(opts []Option) options {
	o := options{timeouts: database.DefaultTimeouts()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// decodeStored decodes a payload read back from a backend. Decode failures are
// reported as ErrCorrupt so they are never mistaken for bad client input.
func decodeStored(pipeline *codec.Pipeline, payload json.RawMessage) (models.Event, error) {
	e, err := pipeline.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return e, nil
}
