package forecast

import (
	"fmt"
	"time"
)

// Period is the forecast horizon requested by the dashboard charts.
type Period string

const (
	Period2h  Period = "2h"
	Period4h  Period = "4h"
	Period6h  Period = "6h"
	Period8h  Period = "8h"
	Period12h Period = "12h"
	Period24h Period = "24h"
)

// cacheTTL maps each period to how long a fetched forecast stays fresh.
// Shorter horizons go stale faster.
var cacheTTL = map[Period]time.Duration{
	Period2h:  5 * time.Minute,
	Period4h:  10 * time.Minute,
	Period6h:  15 * time.Minute,
	Period8h:  20 * time.Minute,
	Period12h: 30 * time.Minute,
	Period24h: time.Hour,
}

// TTL returns how long a cached forecast for this period may be reused.
func (p Period) TTL() time.Duration {
	if ttl, ok := cacheTTL[p]; ok {
		return ttl
	}
	return 5 * time.Minute
}

func (p Period) Valid() bool {
	_, ok := cacheTTL[p]
	return ok
}

// ParsePeriod validates a period string from a query parameter.
func ParsePeriod(s string) (Period, error) {
	p := Period(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown forecast period %q", s)
	}
	return p, nil
}
