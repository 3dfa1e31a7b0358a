package app

import (
	"time"

	"github.com/j-veylop/kpm-aggregator/internal/kpm"
	"github.com/j-veylop/kpm-aggregator/internal/models"
	"github.com/j-veylop/kpm-aggregator/internal/services"
	"github.com/j-veylop/kpm-aggregator/internal/services/flush"
)

// TickMsg is sent periodically to trigger state refresh.
type TickMsg struct {
	Time time.Time
}

// StartLoadingMsg signals that a resource is starting to load.
type StartLoadingMsg struct {
	Resource string
}

// StopLoadingMsg signals that a resource has finished loading.
type StopLoadingMsg struct {
	Resource string
}

// WindowLoadedMsg contains a snapshot of the current aggregation window.
type WindowLoadedMsg struct {
	Window    []*models.ProjectAggregate
	Stats     services.StatsEvent
	FileState kpm.MetricsFileState
}

// RecentFlushesLoadedMsg contains the latest flush records.
type RecentFlushesLoadedMsg struct {
	Error   error
	Records []models.FlushRecord
}

// FlushResultMsg contains the result of a manual flush.
type FlushResultMsg struct {
	At     time.Time
	Result flush.Result
}

// FlushCompletedMsg is forwarded to tabs after any flush pass.
type FlushCompletedMsg struct {
	BatchID  string
	Projects int
}

// RefreshMsg requests a refresh of data.
type RefreshMsg struct {
	Resource string // "all", "window", "history"
}

// AddNotificationMsg requests adding a new notification.
type AddNotificationMsg struct {
	Message  string
	Duration time.Duration
	Type     NotificationType
}

// RemoveNotificationMsg requests removal of a notification.
type RemoveNotificationMsg struct {
	ID string
}

// ClearExpiredNotificationsMsg triggers clearing of expired notifications.
type ClearExpiredNotificationsMsg struct{}

// ServiceEventMsg wraps a service event from the service manager.
type ServiceEventMsg struct {
	Event services.ServiceEvent
}

// SubscriptionEventMsg is the callback wrapper for service subscription.
type SubscriptionEventMsg struct {
	Channel chan services.ServiceEvent
}

// ErrorMsg represents a general error.
type ErrorMsg struct {
	Error   error
	Context string
}

// QuitMsg requests the application to quit.
type QuitMsg struct{}

// TabSwitchMsg requests switching to a specific tab.
type TabSwitchMsg struct {
	Tab TabID
}

// ToggleHelpMsg toggles the help display.
type ToggleHelpMsg struct{}

// SelectedProjectChangedMsg signals that the selected project changed.
type SelectedProjectChangedMsg struct {
	Directory string
	Index     int
}
