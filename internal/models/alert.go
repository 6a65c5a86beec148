package models

// Severity is the closed classification of an alert's urgency. Upstream
// sends free-text levels in mixed Russian/English; those are kept verbatim
// in Alert.Level while Severity is always one of these three values.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Rank orders severities for correlation tie-breaking. Higher is more urgent.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Color returns the hex color the dashboard uses for this severity.
func (s Severity) Color() string {
	switch s {
	case SeverityHigh:
		return "#ff4444"
	case SeverityMedium:
		return "#ffaa00"
	default:
		return "#0099cc"
	}
}

// RawAlert is the loosely typed record as received from the upstream
// analytics service. object_id arrives as a string or a number (sometimes a
// float with a trailing ".0"), and most fields may be absent. Raw records
// never flow past the normalizer.
type RawAlert struct {
	ObjectID     any     `json:"object_id"`
	AlertMessage string  `json:"alert_message"`
	Comment      string  `json:"comment"`
	Level        string  `json:"level"`
	Type         string  `json:"type"`
	Timestamp    string  `json:"timestamp"`
	Duration     float64 `json:"duration"`
}

// Alert is the canonical in-process representation of one active network
// anomaly. Every Alert has a non-empty ID and a valid Severity.
type Alert struct {
	ID            string   `json:"id"`
	Message       string   `json:"alert_message"`
	Comment       string   `json:"comment"`
	Level         string   `json:"level"`
	ObjectID      string   `json:"object_id"`
	ObjectType    string   `json:"type"`
	Severity      Severity `json:"severity"`
	Timestamp     string   `json:"timestamp"`
	DurationHours int      `json:"duration"`
}
