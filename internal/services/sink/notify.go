package sink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/gen2brain/beeep"

	"github.com/j-veylop/kpm-aggregator/internal/logger"
	"github.com/j-veylop/kpm-aggregator/internal/models"
)

// NotifyFunc shows a desktop notification.
type NotifyFunc func(title, message string) error

// NotifierConfig holds configuration for the Notifier.
type NotifierConfig struct {
	Notify   NotifyFunc
	Clock    quartz.Clock
	Cooldown time.Duration
}

// Notifier wraps a sink and raises a desktop notification when delivery
// fails. At most one notification is shown per Cooldown.
type Notifier struct {
	next     Sink
	notify   NotifyFunc
	clock    quartz.Clock
	cooldown time.Duration

	mu       sync.Mutex
	lastSent time.Time
}

// NewNotifier creates a notifying wrapper around next.
func NewNotifier(next Sink, cfg NotifierConfig) *Notifier {
	n := &Notifier{
		next:     next,
		notify:   cfg.Notify,
		clock:    cfg.Clock,
		cooldown: cfg.Cooldown,
	}
	if n.notify == nil {
		n.notify = func(title, message string) error {
			return beeep.Notify(title, message, "")
		}
	}
	if n.clock == nil {
		n.clock = quartz.NewReal()
	}
	if n.cooldown <= 0 {
		n.cooldown = 10 * time.Minute
	}
	return n
}

// Submit forwards to the wrapped sink.
func (n *Notifier) Submit(ctx context.Context, agg *models.ProjectAggregate) error {
	err := n.next.Submit(ctx, agg)
	if err != nil {
		n.alert(agg, err)
	}
	return err
}

func (n *Notifier) alert(agg *models.ProjectAggregate, cause error) {
	n.mu.Lock()
	now := n.clock.Now()
	if !n.lastSent.IsZero() && now.Sub(n.lastSent) < n.cooldown {
		n.mu.Unlock()
		return
	}
	n.lastSent = now
	n.mu.Unlock()

	title := "Keystroke metrics not delivered"
	body := fmt.Sprintf("%s: %d keystrokes could not be sent", agg.Name, agg.Keystrokes)
	if err := n.notify(title, body); err != nil {
		logger.Warn("failed to show notification", "error", err, "cause", cause)
	}
}
