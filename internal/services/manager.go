// Package services provides service orchestration for the daemon and the TUI.
package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/coder/quartz"

	"github.com/j-veylop/kpm-aggregator/internal/config"
	"github.com/j-veylop/kpm-aggregator/internal/db"
	"github.com/j-veylop/kpm-aggregator/internal/kpm"
	"github.com/j-veylop/kpm-aggregator/internal/logger"
	"github.com/j-veylop/kpm-aggregator/internal/metrics"
	"github.com/j-veylop/kpm-aggregator/internal/models"
	"github.com/j-veylop/kpm-aggregator/internal/services/flush"
	"github.com/j-veylop/kpm-aggregator/internal/services/sink"
	"github.com/j-veylop/kpm-aggregator/internal/services/source"
)

// closeGrace bounds how long Close waits for queued submissions before the
// database is closed underneath them.
const closeGrace = 5 * time.Second

type (
	// WindowUpdatedEvent is emitted when new editor events were applied.
	WindowUpdatedEvent struct {
		Stats source.Stats
	}

	// FlushedEvent is emitted after each flush pass.
	FlushedEvent struct {
		BatchID  string
		Projects int
	}

	// SubmissionEvent is emitted when a sink accepts or rejects an aggregate.
	SubmissionEvent struct {
		Error     error
		Directory string
	}

	// ErrorEvent is emitted when an error occurs in any service.
	ErrorEvent struct {
		Error   error
		Service string
	}

	// StatsEvent summarizes the current window.
	StatsEvent struct {
		ActiveProjects    int
		ActiveFiles       int
		PendingKeystrokes int
	}
)

// ServiceEvent is the interface implemented by all service events.
type ServiceEvent interface {
	isServiceEvent()
}

func (WindowUpdatedEvent) isServiceEvent() {}
func (FlushedEvent) isServiceEvent()       {}
func (SubmissionEvent) isServiceEvent()    {}
func (ErrorEvent) isServiceEvent()         {}
func (StatsEvent) isServiceEvent()         {}

// Options overrides collaborators, mostly for tests.
type Options struct {
	Clock quartz.Clock
	// Sink replaces the sink chain built from the configuration.
	Sink flush.Sink
	// Notify replaces the desktop notification call.
	Notify sink.NotifyFunc
}

// Manager wires the engine, scheduler, sinks and spool tailer together.
type Manager struct {
	mu          sync.RWMutex
	database    *db.DB
	metrics     *metrics.Collectors
	store       *kpm.Store
	engine      *kpm.Engine
	scheduler   *flush.Scheduler
	tailer      *source.Tailer
	metricsSrv  *http.Server
	metricsAddr string
	cancel      context.CancelFunc
	stopChan    chan struct{}
	subscribers []chan<- ServiceEvent
	closeOnce   sync.Once
}

// NewManager creates a new service manager and starts the flush timer.
func NewManager(cfg *config.Config, opts Options) (*Manager, error) {
	m := &Manager{
		metrics:  metrics.New(),
		store:    kpm.NewStore(),
		stopChan: make(chan struct{}),
	}

	var err error
	m.database, err = db.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	m.engine = kpm.NewEngine(m.store, kpm.Options{
		MetricsFile:  cfg.DashboardFile,
		FallbackName: cfg.DefaultProjectName,
		Clock:        opts.Clock,
		Metrics:      m.metrics,
	})

	out := opts.Sink
	if out == nil {
		out = NewSink(cfg, m.database, opts)
	}

	m.scheduler = flush.New(m.store, out, flush.Config{
		Interval:      cfg.FlushInterval,
		MaxConcurrent: cfg.MaxConcurrentSubmits,
		Clock:         opts.Clock,
		Metrics:       m.metrics,
	})

	m.tailer, err = source.NewTailer(source.Config{Path: cfg.EventsPath}, m.engine)
	if err != nil {
		m.abort()
		return nil, err
	}

	if cfg.MetricsAddr != "" {
		if err := m.serveMetrics(cfg.MetricsAddr); err != nil {
			m.abort()
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	if err := m.scheduler.Start(ctx); err != nil {
		m.abort()
		return nil, err
	}

	go m.routeEvents()

	return m, nil
}

// abort releases whatever NewManager has set up so far.
func (m *Manager) abort() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.metricsSrv != nil {
		_ = m.metricsSrv.Close()
	}
	if m.tailer != nil {
		_ = m.tailer.Close()
	}
	m.scheduler.Stop()
	_ = m.database.Close()
}

// NewSink assembles the history sink, the optional HTTP sink and the
// failure notifier described by cfg.
func NewSink(cfg *config.Config, database *db.DB, opts Options) flush.Sink {
	sinks := sink.Multi{sink.NewDBSink(database, opts.Clock)}
	if cfg.IngestURL != "" {
		sinks = append(sinks, sink.NewHTTPSink(sink.HTTPConfig{
			URL:   cfg.IngestURL,
			Token: cfg.IngestToken,
		}))
	}

	if !cfg.NotifyOnFailure {
		return sinks
	}
	return sink.NewNotifier(sinks, sink.NotifierConfig{
		Notify: opts.Notify,
		Clock:  opts.Clock,
	})
}

func (m *Manager) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	m.metricsAddr = ln.Addr().String()

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.metrics.Handler())
	m.metricsSrv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := m.metricsSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", m.metricsAddr)
	return nil
}

// routeEvents routes events from individual services to subscribers.
func (m *Manager) routeEvents() {
	for {
		select {
		case event := <-m.scheduler.Events():
			m.handleFlushEvent(event)

		case event := <-m.tailer.Events():
			m.handleSourceEvent(event)

		case <-m.stopChan:
			return
		}
	}
}

func (m *Manager) handleFlushEvent(event flush.Event) {
	switch event.Type {
	case flush.EventFlushed:
		m.broadcast(FlushedEvent{BatchID: event.BatchID, Projects: event.Projects})
		m.broadcast(m.GetStats())
	case flush.EventSubmitted:
		m.broadcast(SubmissionEvent{Directory: event.Directory})
	case flush.EventSubmitFailed:
		m.broadcast(SubmissionEvent{Directory: event.Directory, Error: event.Error})
	case flush.EventDropped:
		m.broadcast(ErrorEvent{
			Service: "flush",
			Error:   fmt.Errorf("submission queue full, dropped %s", event.Directory),
		})
	}
}

func (m *Manager) handleSourceEvent(event source.Event) {
	switch event.Type {
	case source.EventLinesRead:
		m.broadcast(WindowUpdatedEvent{Stats: event.Stats})
		m.broadcast(m.GetStats())
	case source.EventError:
		m.broadcast(ErrorEvent{Service: "source", Error: event.Error})
	}
}

// broadcast sends an event to all subscribers.
func (m *Manager) broadcast(event ServiceEvent) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sub := range m.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber channel full, skip
		}
	}
}

// Subscribe creates a channel for receiving service events.
// Returns a tea.Cmd that can be used in Bubble Tea's Init or Update.
func (m *Manager) Subscribe() (chan ServiceEvent, tea.Cmd) {
	ch := make(chan ServiceEvent, 50)

	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()

	return ch, WaitForEvent(ch)
}

// WaitForEvent returns a tea.Cmd for the next event on a channel.
func WaitForEvent(ch <-chan ServiceEvent) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

// Unsubscribe removes a subscriber channel.
func (m *Manager) Unsubscribe(ch chan ServiceEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, sub := range m.subscribers {
		if sub == ch {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

// Engine returns the aggregation engine.
func (m *Manager) Engine() *kpm.Engine {
	return m.engine
}

// Metrics returns the Prometheus collectors.
func (m *Manager) Metrics() *metrics.Collectors {
	return m.metrics
}

// MetricsAddr returns the address the metrics endpoint listens on, or "".
func (m *Manager) MetricsAddr() string {
	return m.metricsAddr
}

// Database returns the database instance for direct access.
func (m *Manager) Database() *db.DB {
	return m.database
}

// Snapshot returns copies of the aggregates in the current window.
func (m *Manager) Snapshot() []*models.ProjectAggregate {
	return m.store.Snapshot()
}

// PollEvents reads spool lines that have not been applied yet.
func (m *Manager) PollEvents() (source.Stats, error) {
	stats, err := m.tailer.Poll()
	if err != nil {
		return stats, fmt.Errorf("failed to read spool: %w", err)
	}
	return stats, nil
}

// FlushNow drains the current window immediately.
func (m *Manager) FlushNow() flush.Result {
	return m.scheduler.FlushNow()
}

// GetStats returns statistics for the current window.
func (m *Manager) GetStats() StatsEvent {
	var stats StatsEvent
	for _, agg := range m.store.Snapshot() {
		stats.ActiveProjects++
		stats.ActiveFiles += len(agg.Source)
		stats.PendingKeystrokes += agg.Keystrokes
	}
	return stats
}

// RecentFlushes returns the most recent flush records.
func (m *Manager) RecentFlushes(limit int) ([]models.FlushRecord, error) {
	return m.database.GetRecentFlushes(limit)
}

// HourlyKeystrokes returns keystroke totals per hour.
func (m *Manager) HourlyKeystrokes(hours int) ([]models.HourlyKeystrokes, error) {
	return m.database.GetHourlyKeystrokes(hours)
}

// TotalStats returns lifetime totals from the history database.
func (m *Manager) TotalStats() (*models.TotalStats, error) {
	return m.database.GetTotalStats()
}

// TopFiles returns the files with the most recorded activity.
func (m *Manager) TopFiles(limit int) ([]models.FileTotals, error) {
	return m.database.GetTopFiles(limit)
}

// Close stops the timer and the spool watcher, then closes the database.
// Contents of the current window are not flushed.
func (m *Manager) Close() error {
	var errs []error
	m.closeOnce.Do(func() {
		close(m.stopChan)
		m.cancel()

		m.mu.Lock()
		for _, sub := range m.subscribers {
			close(sub)
		}
		m.subscribers = nil
		m.mu.Unlock()

		if err := m.tailer.Close(); err != nil {
			errs = append(errs, err)
		}

		m.scheduler.Stop()
		done := make(chan struct{})
		go func() {
			m.scheduler.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(closeGrace):
			logger.Warn("submissions still running at shutdown")
		}

		if m.metricsSrv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), closeGrace)
			if err := m.metricsSrv.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
			cancel()
		}

		if err := m.database.Close(); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}

// InitialState returns the current window and recent history for TUI initialization.
func (m *Manager) InitialState() (StatsEvent, []models.FlushRecord) {
	recent, err := m.RecentFlushes(20)
	if err != nil {
		logger.Warn("failed to load recent flushes", "error", err)
	}
	return m.GetStats(), recent
}
