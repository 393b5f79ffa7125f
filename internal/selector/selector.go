// Package selector evaluates a filter against the repository's indexed subsets.
package selector

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/telhawk-systems/agent-events/internal/filter"
	"github.com/telhawk-systems/agent-events/internal/models"
	"github.com/telhawk-systems/agent-events/internal/repository"
)

// ErrUnordered is returned when the repository hands back a subset that is not
// sorted by ascending timestamp.
var ErrUnordered = errors.New("repository returned events out of timestamp order")

// Selector returns the events matching every constraint of a filter.Spec.
type Selector struct {
	repo repository.Reader
}

// New creates a Selector reading from repo.
func New(repo repository.Reader) *Selector {
	return &Selector{repo: repo}
}

// Select returns the matching events in ascending timestamp order.
// The result is never nil.
func (s *Selector) Select(ctx context.Context, spec filter.Spec) ([]models.Event, error) {
	if spec.IsEmpty() {
		return s.everything(ctx)
	}

	events, err := s.candidates(ctx, spec)
	if err != nil {
		return nil, err
	}

	if spec.Success != nil {
		events = FilterSuccess(events, *spec.Success)
	}

	if spec.Timestamp != nil {
		if i := firstUnordered(events); i >= 0 {
			return nil, fmt.Errorf("%w: index %d", ErrUnordered, i)
		}
		events = Clip(events, *spec.Timestamp)
	}

	if events == nil {
		events = []models.Event{}
	}
	return events, nil
}

// candidates fetches the type and tag subsets and intersects them.
// Fetching everything only happens when neither is constrained.
func (s *Selector) candidates(ctx context.Context, spec filter.Spec) ([]models.Event, error) {
	var byType, byTag []models.Event
	var err error

	if spec.Type != nil {
		byType, err = s.repo.EventsByType(ctx, *spec.Type)
		if err != nil {
			return nil, fmt.Errorf("failed to load events by type: %w", err)
		}
	}
	if spec.Tag != nil {
		byTag, err = s.repo.EventsByTag(ctx, *spec.Tag)
		if err != nil {
			return nil, fmt.Errorf("failed to load events by tag: %w", err)
		}
	}

	switch {
	case spec.Type != nil && spec.Tag != nil:
		return Intersect(byTag, byType), nil
	case spec.Type != nil:
		return byType, nil
	case spec.Tag != nil:
		return byTag, nil
	}
	return s.everything(ctx)
}

func (s *Selector) everything(ctx context.Context) ([]models.Event, error) {
	all, err := s.repo.Events(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	if all == nil {
		all = []models.Event{}
	}
	return all, nil
}

// Intersect returns the events of a that also appear in b, in a's order.
// Membership is decided by event ID.
func Intersect(a, b []models.Event) []models.Event {
	members := make(map[uuid.UUID]struct{}, len(b))
	for _, e := range b {
		members[e.Header().ID] = struct{}{}
	}

	out := make([]models.Event, 0, min(len(a), len(b)))
	for _, e := range a {
		if _, ok := members[e.Header().ID]; ok {
			out = append(out, e)
		}
	}
	return out
}

// FilterSuccess keeps the events that report a success outcome equal to want.
// Variants without a success outcome are dropped.
func FilterSuccess(events []models.Event, want bool) []models.Event {
	out := make([]models.Event, 0, len(events))
	for _, e := range events {
		if sr, ok := e.(models.SuccessReporter); ok && sr.Succeeded() == want {
			out = append(out, e)
		}
	}
	return out
}

// Clip applies an exclusive timestamp bound to events sorted by ascending timestamp.
// The returned slice shares events' backing array.
func Clip(events []models.Event, tc filter.TimestampConstraint) []models.Event {
	switch tc.Op {
	case filter.OpGreaterThan:
		i := sort.Search(len(events), func(i int) bool {
			return events[i].Header().Timestamp > tc.Threshold
		})
		return events[i:]
	case filter.OpLessThan:
		i := sort.Search(len(events), func(i int) bool {
			return events[i].Header().Timestamp >= tc.Threshold
		})
		return events[:i]
	}
	return events
}

// firstUnordered returns the index of the first event whose timestamp is lower
// than its predecessor's, or -1.
func firstUnordered(events []models.Event) int {
	for i := 1; i < len(events); i++ {
		if events[i].Header().Timestamp < events[i-1].Header().Timestamp {
			return i
		}
	}
	return -1
}
