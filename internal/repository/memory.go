package repository

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/telhawk-systems/agent-events/internal/models"
)

// MemoryRepository keeps events in process, indexed by type and tag.
type MemoryRepository struct {
	mu     sync.RWMutex
	ids    map[uuid.UUID]struct{}
	all    []models.Event
	byType map[models.EventType][]models.Event
	byTag  map[string][]models.Event
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		ids:    make(map[uuid.UUID]struct{}),
		byType: make(map[models.EventType][]models.Event),
		byTag:  make(map[string][]models.Event),
	}
}

// Save stores e in every index it belongs to.
func (r *MemoryRepository) Save(ctx context.Context, e models.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h := e.Header()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ids[h.ID]; exists {
		return ErrDuplicate
	}
	r.ids[h.ID] = struct{}{}

	r.all = insertOrdered(r.all, e)
	r.byType[e.Type()] = insertOrdered(r.byType[e.Type()], e)
	for _, tag := range h.Tags {
		r.byTag[tag] = insertOrdered(r.byTag[tag], e)
	}
	return nil
}

// Events returns a snapshot of every event.
func (r *MemoryRepository) Events(ctx context.Context) ([]models.Event, error) {
	return r.snapshot(ctx, func() []models.Event { return r.all })
}

// EventsByType returns a snapshot of the events of type t.
func (r *MemoryRepository) EventsByType(ctx context.Context, t models.EventType) ([]models.Event, error) {
	return r.snapshot(ctx, func() []models.Event { return r.byType[t] })
}

// EventsByTag returns a snapshot of the events tagged tag.
func (r *MemoryRepository) EventsByTag(ctx context.Context, tag string) ([]models.Event, error) {
	return r.snapshot(ctx, func() []models.Event { return r.byTag[tag] })
}

// Len returns the number of stored events.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.all)
}

// Close is a no-op.
func (r *MemoryRepository) Close() error { return nil }

func (r *MemoryRepository) snapshot(ctx context.Context, subset func() []models.Event) ([]models.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := slices.Clone(subset())
	if out == nil {
		out = []models.Event{}
	}
	return out, nil
}

// insertOrdered inserts e after every event whose timestamp is <= e's.
func insertOrdered(events []models.Event, e models.Event) []models.Event {
	ts := e.Header().Timestamp
	i := sort.Search(len(events), func(i int) bool {
		return events[i].Header().Timestamp > ts
	})
	return slices.Insert(events, i, e)
}
