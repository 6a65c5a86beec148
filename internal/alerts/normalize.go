package alerts

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teplovod/go-heatnet-alerts/internal/models"
)

const (
	// Placeholders substituted for absent upstream fields.
	defaultMessage    = "No description"
	defaultLevel      = "Not specified"
	defaultObjectType = "unknown"

	// Hours an alert is assumed to stay relevant when upstream omits duration.
	defaultDurationHours = 4
)

// NormalizeID canonicalizes heterogeneous object identifiers so that 123,
// "123" and "123.0" all compare equal. Integer-valued identifiers pass
// through float serialization in some upstream exports, which is where the
// trailing ".0" comes from. No case folding or trimming is applied.
func NormalizeID(id any) string {
	var s string
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		s = v
	case json.Number:
		s = v.String()
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		s = strconv.Itoa(v)
	case int64:
		s = strconv.FormatInt(v, 10)
	default:
		s = fmt.Sprint(v)
	}
	return strings.TrimSuffix(s, ".0")
}

// ClassifySeverity maps a free-text severity label to the closed Severity
// enum. Upstream mixes Russian and English vocabulary; anything
// unrecognized falls back to medium so classification is total.
func ClassifySeverity(level string) models.Severity {
	switch strings.ToLower(level) {
	case "высокий", "high":
		return models.SeverityHigh
	case "средний", "medium":
		return models.SeverityMedium
	case "низкий", "low":
		return models.SeverityLow
	default:
		return models.SeverityMedium
	}
}

// NormalizeAlert converts one raw upstream record into a canonical Alert.
// index is the record's position in the upstream response and is used as an
// ID fallback when object_id is absent. now supplies the timestamp default.
// Every field has a fallback, so normalization never fails.
func NormalizeAlert(raw models.RawAlert, index int, now time.Time) models.Alert {
	objectID := NormalizeID(raw.ObjectID)

	id := objectID
	if id == "" {
		id = fmt.Sprintf("alert-%d", index)
	}

	message := raw.AlertMessage
	if message == "" {
		message = defaultMessage
	}

	level := raw.Level
	if level == "" {
		level = defaultLevel
	}

	objectType := raw.Type
	if objectType == "" {
		objectType = defaultObjectType
	}

	timestamp := raw.Timestamp
	if timestamp == "" {
		timestamp = now.Format(time.RFC3339)
	}

	duration := int(raw.Duration)
	if duration == 0 {
		duration = defaultDurationHours
	}

	return models.Alert{
		ID:            id,
		Message:       message,
		Comment:       raw.Comment,
		Level:         level,
		ObjectID:      objectID,
		ObjectType:    objectType,
		Severity:      ClassifySeverity(raw.Level),
		Timestamp:     timestamp,
		DurationHours: duration,
	}
}
