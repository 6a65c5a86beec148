package repository

import (
	"context"
	"time"

	"github.com/teplovod/go-heatnet-alerts/internal/models"
)

// AlertEvent is one persisted alert occurrence. The same alert ID can
// reappear across polls with different upstream timestamps; the pair
// (ID, Timestamp) identifies an occurrence.
type AlertEvent struct {
	ID            string          `json:"id"`
	ObjectID      string          `json:"object_id"`
	ObjectType    string          `json:"object_type"`
	Message       string          `json:"alert_message"`
	Comment       string          `json:"comment"`
	Level         string          `json:"level"`
	Severity      models.Severity `json:"severity"`
	Timestamp     string          `json:"timestamp"`
	DurationHours int             `json:"duration"`
	ObservedAt    time.Time       `json:"observed_at"`
}

type Filter struct {
	Limit    int
	Offset   int
	Since    *time.Time
	Severity *models.Severity
	ObjectID string
}

type AlertEventRepository interface {
	Add(ctx context.Context, e *AlertEvent) error
	Exists(ctx context.Context, id, timestamp string) (bool, error)
	ListEvents(ctx context.Context, opts Filter) ([]AlertEvent, error)
}
