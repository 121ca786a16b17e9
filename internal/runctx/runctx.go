// Package runctx carries the per-invocation state every pipeline stage needs.
package runctx

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Run is built once per invocation and passed to every stage.
type Run struct {
	ID      string
	Started time.Time
	// Today is the calendar date of Started in the run's location, at midnight.
	Today time.Time
	Log   *zap.Logger
}

// New snapshots now into a Run. A nil logger is replaced with a no-op logger.
func New(now time.Time, loc *time.Location, log *zap.Logger) *Run {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = zap.NewNop()
	}
	id := uuid.NewString()
	if v7, err := uuid.NewV7(); err == nil {
		id = v7.String()
	}
	local := now.In(loc)
	return &Run{
		ID:      id,
		Started: local,
		Today:   time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc),
		Log:     log.With(zap.String("run_id", id)),
	}
}

// SameDay reports whether t falls on the run's calendar date.
func (r *Run) SameDay(t time.Time) bool {
	t = t.In(r.Today.Location())
	return t.Year() == r.Today.Year() && t.Month() == r.Today.Month() && t.Day() == r.Today.Day()
}
