package services

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/j-veylop/kpm-aggregator/internal/config"
	"github.com/j-veylop/kpm-aggregator/internal/db"
	"github.com/j-veylop/kpm-aggregator/internal/models"
	"github.com/j-veylop/kpm-aggregator/internal/services/sink"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	tmpDir := t.TempDir()
	return &config.Config{
		FlushInterval:        time.Hour,
		DefaultProjectName:   "Untitled",
		DatabasePath:         filepath.Join(tmpDir, "kpm.db"),
		EventsPath:           filepath.Join(tmpDir, "events.jsonl"),
		DashboardFile:        filepath.Join(tmpDir, "CodeTime.txt"),
		MaxConcurrentSubmits: 2,
	}
}

func writeSpool(t *testing.T, path string, lines ...string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		t.Fatalf("open spool: %v", err)
	}
	defer func() { _ = f.Close() }()
	for _, l := range lines {
		if _, err := f.WriteString(l + "\n"); err != nil {
			t.Fatalf("write spool: %v", err)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestNewManager(t *testing.T) {
	mgr, err := NewManager(testConfig(t), Options{})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer func() { _ = mgr.Close() }()

	if mgr.Engine() == nil {
		t.Error("Engine should be initialized")
	}
	if mgr.Database() == nil {
		t.Error("Database should be initialized")
	}
	if mgr.Metrics() == nil {
		t.Error("Metrics should be initialized")
	}
	if mgr.MetricsAddr() != "" {
		t.Errorf("MetricsAddr() = %q, want empty when disabled", mgr.MetricsAddr())
	}
}

func TestNewManager_BadDatabasePath(t *testing.T) {
	cfg := testConfig(t)
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0600); err != nil {
		t.Fatal(err)
	}
	cfg.DatabasePath = filepath.Join(blocker, "kpm.db")

	if _, err := NewManager(cfg, Options{}); err == nil {
		t.Error("expected error for unusable database path")
	}
}

func TestManager_SpoolToHistory(t *testing.T) {
	cfg := testConfig(t)
	mgr, err := NewManager(cfg, Options{})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer func() { _ = mgr.Close() }()

	writeSpool(t, cfg.EventsPath,
		`{"type":"open","path":"/work/app/main.go","root":"/work/app"}`,
		`{"type":"change","path":"/work/app/main.go","root":"/work/app","languageId":"go","lineCount":1,"changes":[{"text":"a"}]}`,
		`{"type":"change","path":"/work/app/main.go","root":"/work/app","languageId":"go","lineCount":1,"changes":[{"text":"b"}]}`,
		`{"type":"open","path":"`+cfg.DashboardFile+`"}`,
	)

	stats, err := mgr.PollEvents()
	if err != nil {
		t.Fatalf("PollEvents() error = %v", err)
	}
	if stats.Lines != 4 || stats.Ignored != 1 {
		t.Errorf("stats = %+v, want 4 lines, 1 ignored", stats)
	}

	window := mgr.GetStats()
	if window.ActiveProjects != 1 || window.PendingKeystrokes != 2 {
		t.Errorf("GetStats() = %+v", window)
	}
	if !mgr.Engine().MetricsFileState().Focused {
		t.Error("dashboard file should be focused")
	}

	res := mgr.FlushNow()
	if res.Submitted != 1 {
		t.Fatalf("FlushNow() = %+v, want 1 submitted", res)
	}
	if len(mgr.Snapshot()) != 0 {
		t.Error("window should be empty after flush")
	}

	waitFor(t, func() bool {
		recent, err := mgr.RecentFlushes(10)
		return err == nil && len(recent) == 1
	})

	recent, _ := mgr.RecentFlushes(10)
	if recent[0].Directory != "/work/app" || recent[0].Name != "app" || recent[0].Keystrokes != 2 {
		t.Errorf("flush record = %+v", recent[0])
	}

	totals, err := mgr.TotalStats()
	if err != nil {
		t.Fatalf("TotalStats() error = %v", err)
	}
	if totals.TotalKeystrokes != 2 {
		t.Errorf("TotalKeystrokes = %d, want 2", totals.TotalKeystrokes)
	}

	top, err := mgr.TopFiles(5)
	if err != nil {
		t.Fatalf("TopFiles() error = %v", err)
	}
	if len(top) != 1 || top[0].Path != "/work/app/main.go" {
		t.Errorf("TopFiles() = %+v", top)
	}

	if _, err := mgr.HourlyKeystrokes(24); err != nil {
		t.Errorf("HourlyKeystrokes() error = %v", err)
	}
}

type captureSink struct {
	mu   sync.Mutex
	aggs []*models.ProjectAggregate
	err  error
}

func (c *captureSink) Submit(_ context.Context, agg *models.ProjectAggregate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aggs = append(c.aggs, agg)
	return c.err
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.aggs)
}

func TestManager_CustomSinkAndEvents(t *testing.T) {
	cfg := testConfig(t)
	out := &captureSink{err: errors.New("rejected")}
	mgr, err := NewManager(cfg, Options{Sink: out})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer func() { _ = mgr.Close() }()

	ch, _ := mgr.Subscribe()

	writeSpool(t, cfg.EventsPath, `{"type":"change","path":"/p/a.go","root":"/p","changes":[{"text":"a"}]}`)
	if _, err := mgr.PollEvents(); err != nil {
		t.Fatalf("PollEvents() error = %v", err)
	}
	mgr.FlushNow()

	timeout := time.After(5 * time.Second)
	var flushed, failed bool
	for !flushed || !failed {
		select {
		case ev := <-ch:
			switch e := ev.(type) {
			case FlushedEvent:
				flushed = e.Projects == 1
			case SubmissionEvent:
				failed = e.Error != nil && e.Directory == "/p"
			}
		case <-timeout:
			t.Fatalf("timed out: flushed=%v failed=%v", flushed, failed)
		}
	}

	if out.count() != 1 {
		t.Errorf("sink calls = %d, want 1", out.count())
	}

	mgr.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Unsubscribe")
	}
}

func TestNewSink_NotifiesOnFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.NotifyOnFailure = true

	database, err := db.New(cfg.DatabasePath)
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	if err := database.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	var notes []string
	out := NewSink(cfg, database, Options{Notify: func(title, _ string) error {
		notes = append(notes, title)
		return nil
	}})

	agg := models.NewProjectAggregate("/p", "p")
	agg.Keystrokes = 1
	if err := out.Submit(context.Background(), agg); err == nil {
		t.Fatal("expected error from closed database")
	}
	if len(notes) != 1 {
		t.Errorf("notifications = %d, want 1", len(notes))
	}
}

func TestNewSink_WithoutNotifier(t *testing.T) {
	cfg := testConfig(t)
	cfg.IngestURL = "http://127.0.0.1:9/ingest"

	out := NewSink(cfg, nil, Options{})
	multi, ok := out.(sink.Multi)
	if !ok {
		t.Fatalf("NewSink() = %T, want sink.Multi", out)
	}
	if len(multi) != 2 {
		t.Errorf("len(Multi) = %d, want 2 with an ingest URL", len(multi))
	}
}

func TestManager_MetricsEndpoint(t *testing.T) {
	cfg := testConfig(t)
	cfg.MetricsAddr = "127.0.0.1:0"

	mgr, err := NewManager(cfg, Options{})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer func() { _ = mgr.Close() }()

	mgr.Engine().HandleOpen(models.OpenEvent{Path: "/p/a.go", Root: "/p"})

	resp, err := http.Get("http://" + mgr.MetricsAddr() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "kpm_events_total") {
		t.Errorf("metrics output missing kpm_events_total:\n%s", body)
	}
}

func TestManager_AbortReleasesResources(t *testing.T) {
	cfg := testConfig(t)
	cfg.MetricsAddr = "127.0.0.1:0"

	mgr, err := NewManager(cfg, Options{})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer close(mgr.stopChan)

	addr := mgr.MetricsAddr()
	mgr.abort()

	if err := mgr.Database().PingContext(context.Background()); err == nil {
		t.Error("database should be closed")
	}
	if _, err := http.Get("http://" + addr + "/metrics"); err == nil {
		t.Error("metrics server should be closed")
	}
	if err := mgr.scheduler.Start(context.Background()); err == nil {
		t.Error("scheduler should be stopped")
	}
}

func TestNewManager_MetricsAddrInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = ln.Close() }()

	cfg := testConfig(t)
	cfg.MetricsAddr = ln.Addr().String()
	if _, err := NewManager(cfg, Options{}); err == nil {
		t.Fatal("NewManager should fail when the metrics address is taken")
	}

	// The failed manager must not hold the database open.
	d, err := db.New(cfg.DatabasePath)
	if err != nil {
		t.Fatalf("reopen database: %v", err)
	}
	_ = d.Close()
}

func TestManager_CloseTwice(t *testing.T) {
	mgr, err := NewManager(testConfig(t), Options{})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if err := mgr.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := mgr.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestManager_InitialState(t *testing.T) {
	mgr, err := NewManager(testConfig(t), Options{})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer func() { _ = mgr.Close() }()

	stats, recent := mgr.InitialState()
	if stats.ActiveProjects != 0 {
		t.Errorf("ActiveProjects = %d, want 0", stats.ActiveProjects)
	}
	if len(recent) != 0 {
		t.Errorf("recent = %d, want 0", len(recent))
	}
}
