package database

import (
	"context"
	"time"
)

// Timeouts applied by storage adapters to each round trip.
const (
	DefaultQueryTimeout     = 5 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DefaultMigrationTimeout = 30 * time.Second
)

// Timeouts bounds storage round trips per kind of operation.
// A zero field takes its default; a negative field leaves the parent unbounded.
type Timeouts struct {
	Query     time.Duration `mapstructure:"query"`
	Write     time.Duration `mapstructure:"write"`
	Migration time.Duration `mapstructure:"migration"`
}

// DefaultTimeouts returns the default bound for every kind of operation.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Query:     DefaultQueryTimeout,
		Write:     DefaultWriteTimeout,
		Migration: DefaultMigrationTimeout,
	}
}

// QueryContext bounds a read.
func (t Timeouts) QueryContext(parent context.Context) (context.Context, context.CancelFunc) {
	return bound(parent, t.Query, DefaultQueryTimeout)
}

// WriteContext bounds a single write.
func (t Timeouts) WriteContext(parent context.Context) (context.Context, context.CancelFunc) {
	return bound(parent, t.Write, DefaultWriteTimeout)
}

// MigrationContext bounds schema setup.
func (t Timeouts) MigrationContext(parent context.Context) (context.Context, context.CancelFunc) {
	return bound(parent, t.Migration, DefaultMigrationTimeout)
}

// bound never extends a deadline the parent already carries.
func bound(parent context.Context, d, fallback time.Duration) (context.Context, context.CancelFunc) {
	switch {
	case d == 0:
		d = fallback
	case d < 0:
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}
