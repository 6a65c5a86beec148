package ingestion

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teplovod/go-heatnet-alerts/internal/alerts"
	"github.com/teplovod/go-heatnet-alerts/internal/broadcast"
	"github.com/teplovod/go-heatnet-alerts/internal/config"
	"github.com/teplovod/go-heatnet-alerts/internal/models"
	"github.com/teplovod/go-heatnet-alerts/internal/observability"
	"github.com/teplovod/go-heatnet-alerts/internal/repository"
	"github.com/teplovod/go-heatnet-alerts/internal/worker"
)

// Fetcher pulls raw alert records from upstream; satisfied by *Client.
type Fetcher interface {
	FetchAlerts(ctx context.Context, timestamp string) ([]models.RawAlert, error)
}

// Manager polls the upstream alert feed, normalizes each batch, replaces
// the alert store atomically and persists occurrences through the worker
// pool. Newly appeared high and medium severity alerts are broadcast to
// live stream subscribers.
type Manager struct {
	cfg         *config.Config
	fetcher     Fetcher
	store       *alerts.Store
	repo        repository.AlertEventRepository
	broadcaster *broadcast.Broadcaster
	metrics     *observability.Metrics
	pool        *worker.Pool
	wg          sync.WaitGroup

	mu      sync.Mutex
	lastIDs map[string]struct{}
}

func NewManager(cfg *config.Config, fetcher Fetcher, store *alerts.Store, repo repository.AlertEventRepository, broadcaster *broadcast.Broadcaster, metrics *observability.Metrics) *Manager {
	return &Manager{
		cfg:         cfg,
		fetcher:     fetcher,
		store:       store,
		repo:        repo,
		broadcaster: broadcaster,
		metrics:     metrics,
		lastIDs:     make(map[string]struct{}),
	}
}

func (m *Manager) Start(ctx context.Context) {
	m.pool = worker.NewPool(m.cfg.Worker.Count, m.cfg.Worker.BufferSize, m.processEvent)
	m.pool.Start(ctx)

	m.wg.Add(1)
	go m.runPoller(ctx)
}

func (m *Manager) processEvent(ctx context.Context, event *repository.AlertEvent) error {
	exists, err := m.repo.Exists(ctx, event.ID, event.Timestamp)
	if err != nil {
		slog.Error("error checking occurrence existence", "id", event.ID, "error", err)
		return err
	}
	if exists {
		return nil
	}

	if err := m.repo.Add(ctx, event); err != nil {
		slog.Error("error persisting alert occurrence", "id", event.ID, "error", err)
		return err
	}

	slog.Info("recorded alert occurrence", "id", event.ID, "severity", event.Severity, "object", event.ObjectID)
	return nil
}

func (m *Manager) runPoller(ctx context.Context) {
	defer m.wg.Done()
	slog.Info("starting alert poller", "interval", m.cfg.Upstream.PollInterval)

	ticker := time.NewTicker(m.cfg.Upstream.PollInterval)
	defer ticker.Stop()

	// Initial poll
	m.Poll(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("alert poller shutting down")
			return
		case <-ticker.C:
			m.Poll(ctx)
		}
	}
}

// Poll runs one fetch-normalize-publish cycle. The store observes either
// the previous complete list or the new one; a failed poll records the
// error without leaving a partial list behind.
func (m *Manager) Poll(ctx context.Context) {
	timestamp := "NOW"

	m.store.BeginFetch(timestamp)

	raw, err := m.fetcher.FetchAlerts(ctx, timestamp)
	if err != nil {
		slog.Error("alert poll failed", "error", err)
		m.store.SetError(err.Error(), timestamp)
		m.countPoll("error")
		return
	}

	now := time.Now()
	list := make([]models.Alert, 0, len(raw))
	for i, r := range raw {
		list = append(list, alerts.NormalizeAlert(r, i, now))
	}

	m.store.SetAlerts(list, timestamp)
	m.countPoll("success")
	if m.metrics != nil {
		m.metrics.ActiveAlerts.Set(float64(len(list)))
	}

	m.publish(list, now)

	slog.Debug("alert poll complete", "count", len(list))
}

// publish persists each occurrence and broadcasts alerts that were not
// present in the previous cycle.
func (m *Manager) publish(list []models.Alert, observedAt time.Time) {
	m.mu.Lock()
	previous := m.lastIDs
	current := make(map[string]struct{}, len(list))
	for _, a := range list {
		current[a.ID] = struct{}{}
	}
	m.lastIDs = current
	m.mu.Unlock()

	for _, a := range list {
		m.pool.Submit(&repository.AlertEvent{
			ID:            a.ID,
			ObjectID:      a.ObjectID,
			ObjectType:    a.ObjectType,
			Message:       a.Message,
			Comment:       a.Comment,
			Level:         a.Level,
			Severity:      a.Severity,
			Timestamp:     a.Timestamp,
			DurationHours: a.DurationHours,
			ObservedAt:    observedAt,
		})

		if _, seen := previous[a.ID]; seen {
			continue
		}
		if m.broadcaster != nil && shouldBroadcast(a) {
			m.broadcaster.Broadcast(a)
		}
	}
}

func (m *Manager) Stop() {
	m.wg.Wait()
	m.pool.Stop()
	slog.Info("ingestion manager stopped")
}

func (m *Manager) countPoll(status string) {
	if m.metrics != nil {
		m.metrics.AlertPolls.WithLabelValues(status).Inc()
	}
}

// shouldBroadcast keeps the live feed to alerts worth interrupting an
// operator for; low-severity ones only show in the panel list.
func shouldBroadcast(a models.Alert) bool {
	return a.Severity == models.SeverityHigh || a.Severity == models.SeverityMedium
}
