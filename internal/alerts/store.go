package alerts

import (
	"sync"
	"time"

	"github.com/teplovod/go-heatnet-alerts/internal/models"
)

// Store holds the current alert list for the dashboard. The list is
// replaced wholesale on every successful poll; readers observe either the
// previous complete list or the next one, never a partial update.
type Store struct {
	mu               sync.RWMutex
	alerts           []models.Alert
	loading          bool
	err              string
	lastUpdated      time.Time
	currentTimestamp string
	filterByAlerts   bool
}

// Snapshot is a consistent read of the store state.
type Snapshot struct {
	Alerts           []models.Alert `json:"alerts"`
	Loading          bool           `json:"loading"`
	Error            string         `json:"error,omitempty"`
	LastUpdated      time.Time      `json:"last_updated"`
	CurrentTimestamp string         `json:"timestamp,omitempty"`
	FilterByAlerts   bool           `json:"filter_by_alerts"`
}

func NewStore() *Store {
	return &Store{}
}

// BeginFetch marks a poll as in flight and records the timestamp the poll
// was issued for.
func (s *Store) BeginFetch(timestamp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = true
	s.err = ""
	if timestamp != "" {
		s.currentTimestamp = timestamp
	}
}

// SetAlerts atomically replaces the alert list after a successful poll.
func (s *Store) SetAlerts(list []models.Alert, timestamp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = list
	s.loading = false
	s.err = ""
	s.lastUpdated = time.Now()
	if timestamp != "" {
		s.currentTimestamp = timestamp
	}
}

// SetError records a failed poll. The alert list is cleared so the
// dashboard does not keep rendering data from an unknown point in time.
func (s *Store) SetError(msg, timestamp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = nil
	s.loading = false
	s.err = msg
	if timestamp != "" {
		s.currentTimestamp = timestamp
	}
}

// Clear resets the store to its initial state.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = nil
	s.err = ""
	s.lastUpdated = time.Time{}
	s.currentTimestamp = ""
}

// Alerts returns a copy of the current list.
func (s *Store) Alerts() []models.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// ActiveFor returns the alert correlated to the given object, if any.
func (s *Store) ActiveFor(objectID any) (models.Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return FindAlertForObject(s.alerts, objectID)
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	alerts := make([]models.Alert, len(s.alerts))
	copy(alerts, s.alerts)
	return Snapshot{
		Alerts:           alerts,
		Loading:          s.loading,
		Error:            s.err,
		LastUpdated:      s.lastUpdated,
		CurrentTimestamp: s.currentTimestamp,
		FilterByAlerts:   s.filterByAlerts,
	}
}

func (s *Store) SetFilterByAlerts(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filterByAlerts = on
}

func (s *Store) ToggleFilterByAlerts() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filterByAlerts = !s.filterByAlerts
	return s.filterByAlerts
}
