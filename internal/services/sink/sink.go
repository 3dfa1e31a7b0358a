// Package sink delivers flushed project aggregates out of process.
package sink

import (
	"context"
	"errors"
	"time"

	"github.com/coder/quartz"

	"github.com/j-veylop/kpm-aggregator/internal/models"
)

// Sink accepts one aggregate per call.
type Sink interface {
	Submit(ctx context.Context, agg *models.ProjectAggregate) error
}

// Multi submits to every sink in order and joins their errors.
type Multi []Sink

// Submit delivers agg to each sink. A failing sink does not stop the others.
func (m Multi) Submit(ctx context.Context, agg *models.ProjectAggregate) error {
	var errs []error
	for _, s := range m {
		if err := s.Submit(ctx, agg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder persists a flushed aggregate. *db.DB implements it.
type Recorder interface {
	InsertFlush(ctx context.Context, agg *models.ProjectAggregate, at time.Time) (int64, error)
}

// DBSink writes aggregates to the local history database.
type DBSink struct {
	rec   Recorder
	clock quartz.Clock
}

// NewDBSink creates a sink backed by rec. A nil clock uses the real clock.
func NewDBSink(rec Recorder, clock quartz.Clock) *DBSink {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &DBSink{rec: rec, clock: clock}
}

// Submit records agg with the current time.
func (s *DBSink) Submit(ctx context.Context, agg *models.ProjectAggregate) error {
	if _, err := s.rec.InsertFlush(ctx, agg, s.clock.Now()); err != nil {
		return err
	}
	return nil
}
