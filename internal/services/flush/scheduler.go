// Package flush drains the aggregation store on a fixed schedule and hands
// completed aggregates to a sink.
package flush

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"

	"github.com/j-veylop/kpm-aggregator/internal/kpm"
	"github.com/j-veylop/kpm-aggregator/internal/logger"
	"github.com/j-veylop/kpm-aggregator/internal/metrics"
	"github.com/j-veylop/kpm-aggregator/internal/models"
)

// Sink delivers a completed aggregate out of process.
type Sink interface {
	Submit(ctx context.Context, agg *models.ProjectAggregate) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, agg *models.ProjectAggregate) error

// Submit calls f.
func (f SinkFunc) Submit(ctx context.Context, agg *models.ProjectAggregate) error {
	return f(ctx, agg)
}

// State is the scheduler state.
type State int

const (
	// StateIdle means the scheduler is waiting for the next tick.
	StateIdle State = iota
	// StateDraining means the scheduler is emptying the store.
	StateDraining
)

// EventType defines the type of scheduler event.
type EventType int

const (
	// EventFlushed indicates that a tick drained the store.
	EventFlushed EventType = iota
	// EventSubmitted indicates that the sink accepted an aggregate.
	EventSubmitted
	// EventSubmitFailed indicates that the sink returned an error.
	EventSubmitFailed
	// EventDropped indicates that the submission queue was full.
	EventDropped
)

// Event represents a scheduler event.
type Event struct {
	Error     error
	BatchID   string
	Directory string
	Type      EventType
	Projects  int
}

// Result summarizes one drain pass.
type Result struct {
	BatchID   string
	Submitted int
	Skipped   int
	Dropped   int
}

// Config holds configuration for the scheduler.
type Config struct {
	Clock         quartz.Clock
	Metrics       *metrics.Collectors
	Interval      time.Duration
	SubmitTimeout time.Duration
	MaxConcurrent int
	QueueSize     int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Interval:      60 * time.Second,
		SubmitTimeout: 5 * time.Minute,
		MaxConcurrent: 4,
		QueueSize:     64,
	}
}

// Scheduler drains a kpm.Store every Interval.
type Scheduler struct {
	store     *kpm.Store
	sink      Sink
	config    Config
	clock     quartz.Clock
	queue     chan *models.ProjectAggregate
	eventChan chan Event
	workers   sync.WaitGroup

	// drainMu serializes drain passes.
	drainMu sync.Mutex

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	started bool
	closed  bool
}

// New creates a scheduler and starts its submission workers. The timer does
// not run until Start is called.
func New(store *kpm.Store, sink Sink, config Config) *Scheduler {
	defaults := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.SubmitTimeout <= 0 {
		config.SubmitTimeout = defaults.SubmitTimeout
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = defaults.MaxConcurrent
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.Clock == nil {
		config.Clock = quartz.NewReal()
	}

	s := &Scheduler{
		store:     store,
		sink:      sink,
		config:    config,
		clock:     config.Clock,
		queue:     make(chan *models.ProjectAggregate, config.QueueSize),
		eventChan: make(chan Event, 100),
	}

	for range config.MaxConcurrent {
		s.workers.Add(1)
		go s.worker()
	}

	return s
}

// Start begins the recurring flush timer. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("scheduler is stopped")
	}
	if s.started {
		return fmt.Errorf("scheduler already started")
	}
	s.started = true

	tickCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.clock.TickerFunc(tickCtx, s.config.Interval, func() error {
		s.drain()
		return nil
	}, "flush")

	logger.Info("flush scheduler started", "interval", s.config.Interval)
	return nil
}

// FlushNow runs one drain pass outside the timer.
func (s *Scheduler) FlushNow() Result {
	return s.drain()
}

// State returns the current scheduler state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Events returns the event channel.
func (s *Scheduler) Events() <-chan Event {
	return s.eventChan
}

// Stop cancels the timer. Queued submissions still run; they are neither
// cancelled nor awaited. Pending store contents are not flushed.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	close(s.queue)
}

// Wait blocks until every queued submission has finished. Only valid after Stop.
func (s *Scheduler) Wait() {
	s.workers.Wait()
}

// drain takes every aggregate out of the store and queues the ones with
// activity for submission.
func (s *Scheduler) drain() Result {
	s.drainMu.Lock()
	defer s.drainMu.Unlock()

	s.setState(StateDraining)
	defer s.setState(StateIdle)

	res := Result{BatchID: uuid.NewString()}
	now := s.clock.Now()
	_, offset := now.Zone()

	for _, key := range s.store.Keys() {
		agg := s.store.Take(key)
		if agg == nil {
			continue
		}
		if !agg.HasData() {
			res.Skipped++
			continue
		}

		agg.BatchID = res.BatchID
		agg.End = now.Unix()
		agg.LocalEnd = agg.End + int64(offset)

		if s.enqueue(agg) {
			res.Submitted++
		} else {
			res.Dropped++
		}
	}

	s.config.Metrics.Flushed(res.Submitted)
	s.config.Metrics.SetActiveProjects(s.store.Len())

	if res.Submitted > 0 || res.Dropped > 0 {
		logger.Debug("flush complete",
			"batch", res.BatchID,
			"submitted", res.Submitted,
			"skipped", res.Skipped,
			"dropped", res.Dropped,
		)
	}
	s.sendEvent(Event{Type: EventFlushed, BatchID: res.BatchID, Projects: res.Submitted})

	return res
}

// enqueue hands agg to the workers without blocking.
func (s *Scheduler) enqueue(agg *models.ProjectAggregate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		logger.Warn("scheduler stopped, dropping aggregate", "directory", agg.Directory)
		return false
	}

	select {
	case s.queue <- agg:
		return true
	default:
		logger.Warn("submission queue full, dropping aggregate",
			"directory", agg.Directory, "keystrokes", agg.Keystrokes)
		s.config.Metrics.Submitted("dropped")
		s.sendEvent(Event{Type: EventDropped, BatchID: agg.BatchID, Directory: agg.Directory})
		return false
	}
}

// worker submits queued aggregates until the queue is closed.
func (s *Scheduler) worker() {
	defer s.workers.Done()
	for agg := range s.queue {
		s.submit(agg)
	}
}

func (s *Scheduler) submit(agg *models.ProjectAggregate) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.SubmitTimeout)
	defer cancel()

	err := s.safeSubmit(ctx, agg)
	if err != nil {
		logger.Warn("failed to submit aggregate", "directory", agg.Directory, "batch", agg.BatchID, "error", err)
		s.config.Metrics.Submitted("error")
		s.sendEvent(Event{Type: EventSubmitFailed, BatchID: agg.BatchID, Directory: agg.Directory, Error: err})
		return
	}

	s.config.Metrics.Submitted("ok")
	s.sendEvent(Event{Type: EventSubmitted, BatchID: agg.BatchID, Directory: agg.Directory})
}

// safeSubmit calls the sink and converts a panic into an error.
func (s *Scheduler) safeSubmit(ctx context.Context, agg *models.ProjectAggregate) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	return s.sink.Submit(ctx, agg)
}

func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// sendEvent sends an event to the event channel non-blocking.
func (s *Scheduler) sendEvent(event Event) {
	select {
	case s.eventChan <- event:
	default:
		// Channel full, drop oldest
		select {
		case <-s.eventChan:
		default:
		}
		select {
		case s.eventChan <- event:
		default:
		}
	}
}
