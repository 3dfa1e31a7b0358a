// Package app provides the main Bubble Tea application model and state management.
package app

import (
	"sync"
	"time"

	"github.com/j-veylop/kpm-aggregator/internal/kpm"
	"github.com/j-veylop/kpm-aggregator/internal/models"
	"github.com/j-veylop/kpm-aggregator/internal/services"
)

// NotificationType defines the type of notification.
type NotificationType int

const (
	// NotificationSuccess represents a success notification.
	NotificationSuccess NotificationType = iota
	// NotificationError represents an error notification.
	NotificationError
	// NotificationWarning represents a warning notification.
	NotificationWarning
	// NotificationInfo represents an informational notification.
	NotificationInfo
	// NotificationLoading represents a loading notification with spinner.
	NotificationLoading
)

const (
	// LoadingNotificationID is the fixed ID for loading notifications.
	LoadingNotificationID = "__loading__"
)

// String returns the string representation of a NotificationType.
func (n NotificationType) String() string {
	switch n {
	case NotificationSuccess:
		return "success"
	case NotificationError:
		return "error"
	case NotificationWarning:
		return "warning"
	case NotificationInfo:
		return "info"
	case NotificationLoading:
		return "loading"
	default:
		return "unknown"
	}
}

// Notification represents a user-facing notification message.
type Notification struct {
	CreatedAt time.Time
	ID        string
	Message   string
	Duration  time.Duration
	Type      NotificationType
}

// IsExpired returns true if the notification has expired.
func (n *Notification) IsExpired() bool {
	if n.Duration <= 0 {
		return false
	}
	return time.Since(n.CreatedAt) > n.Duration
}

// LoadingState tracks loading states for different resources.
type LoadingState struct {
	Initial bool
	Window  bool
	History bool
	Flush   bool
}

// State is the data shared between the application and its tabs.
type State struct {
	mu sync.RWMutex

	Window           []*models.ProjectAggregate
	Stats            services.StatsEvent
	FileState        kpm.MetricsFileState
	RecentFlushes    []models.FlushRecord
	LastFlush        time.Time
	LastBatchID      string
	SelectedProject  int
	FailedDeliveries int

	Loading LoadingState

	notifications   []Notification
	notificationSeq int
}

// NewState creates an empty state with the initial load pending.
func NewState() *State {
	return &State{
		notifications: make([]Notification, 0),
		Loading: LoadingState{
			Initial: true,
		},
	}
}

// SetLoading sets the loading state for a specific resource.
func (s *State) SetLoading(resource string, loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch resource {
	case "initial":
		s.Loading.Initial = loading
	case "window":
		s.Loading.Window = loading
	case "history":
		s.Loading.History = loading
	case "flush":
		s.Loading.Flush = loading
	}
}

// AnyLoading returns true if any resource is currently loading.
func (s *State) AnyLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.Loading.Initial ||
		s.Loading.Window ||
		s.Loading.History ||
		s.Loading.Flush
}

// IsInitialLoading returns true if initial data is still loading.
func (s *State) IsInitialLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Loading.Initial
}

// SetWindow replaces the current window snapshot.
func (s *State) SetWindow(window []*models.ProjectAggregate, stats services.StatsEvent, fileState kpm.MetricsFileState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Window = window
	s.Stats = stats
	s.FileState = fileState

	if s.SelectedProject >= len(window) {
		s.SelectedProject = max(len(window)-1, 0)
	}
}

// GetWindow returns the current window snapshot.
func (s *State) GetWindow() []*models.ProjectAggregate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	window := make([]*models.ProjectAggregate, len(s.Window))
	copy(window, s.Window)
	return window
}

// GetStats returns statistics for the current window.
func (s *State) GetStats() services.StatsEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Stats
}

// SetStats updates the window statistics.
func (s *State) SetStats(stats services.StatsEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Stats = stats
}

// GetFileState returns the status file visibility.
func (s *State) GetFileState() kpm.MetricsFileState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.FileState
}

// SetRecentFlushes replaces the recent flush list.
func (s *State) SetRecentFlushes(records []models.FlushRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RecentFlushes = records
}

// GetRecentFlushes returns a copy of the recent flush list.
func (s *State) GetRecentFlushes() []models.FlushRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]models.FlushRecord, len(s.RecentFlushes))
	copy(records, s.RecentFlushes)
	return records
}

// RecordFlush remembers the most recent flush pass.
func (s *State) RecordFlush(batchID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastBatchID = batchID
	s.LastFlush = at
}

// GetLastFlush returns the most recent flush time and batch id.
func (s *State) GetLastFlush() (time.Time, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastFlush, s.LastBatchID
}

// RecordDeliveryFailure counts one failed submission.
func (s *State) RecordDeliveryFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FailedDeliveries++
}

// GetFailedDeliveries returns the number of failed submissions this session.
func (s *State) GetFailedDeliveries() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.FailedDeliveries
}

// GetSelectedProject returns the selected project index.
func (s *State) GetSelectedProject() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.SelectedProject
}

// SetSelectedProject updates the selected project index.
func (s *State) SetSelectedProject(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SelectedProject = idx
}

// AddNotification adds a new notification and returns its ID.
func (s *State) AddNotification(notifType NotificationType, message string, duration time.Duration) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notificationSeq++
	id := time.Now().Format("20060102150405") + "-" + string(rune('A'+s.notificationSeq%26))

	s.notifications = append(s.notifications, Notification{
		ID:        id,
		Type:      notifType,
		Message:   message,
		CreatedAt: time.Now(),
		Duration:  duration,
	})

	// Keep only the last 10 notifications
	if len(s.notifications) > 10 {
		s.notifications = s.notifications[len(s.notifications)-10:]
	}

	return id
}

// RemoveNotification removes a notification by ID.
func (s *State) RemoveNotification(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, n := range s.notifications {
		if n.ID == id {
			s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
			return
		}
	}
}

// ClearExpiredNotifications removes all expired notifications.
func (s *State) ClearExpiredNotifications() {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := make([]Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		if !n.IsExpired() {
			active = append(active, n)
		}
	}
	s.notifications = active
}

// GetNotifications returns a copy of all active notifications.
func (s *State) GetNotifications() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make([]Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		if !n.IsExpired() {
			active = append(active, n)
		}
	}
	return active
}

// SetLoadingNotification sets a loading notification message.
func (s *State) SetLoadingNotification(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, n := range s.notifications {
		if n.ID == LoadingNotificationID {
			s.notifications[i].Message = message
			return
		}
	}

	s.notifications = append(s.notifications, Notification{
		ID:        LoadingNotificationID,
		Type:      NotificationLoading,
		Message:   message,
		CreatedAt: time.Now(),
	})
}

// ClearLoadingNotification removes the loading notification.
func (s *State) ClearLoadingNotification() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, n := range s.notifications {
		if n.ID == LoadingNotificationID {
			s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
			return
		}
	}
}
