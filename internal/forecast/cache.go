package forecast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/teplovod/go-heatnet-alerts/internal/observability"
)

// ObjectType selects which upstream series endpoint a forecast comes from.
const (
	ObjectTypeCTP  = "ctp"
	ObjectTypeUNOM = "unom"
)

// KindPressure marks a request for the pump pressure payload of a CTP
// instead of its consumption series. The zero value requests consumption.
const KindPressure = "pressure"

// Params identifies one forecast request. Timestamp is passed through to
// the upstream fetch but is not part of the cache key.
type Params struct {
	ObjectID   string
	ObjectType string
	Period     Period
	Timestamp  string
	Kind       string
}

// Key is the cache key for these params. Pressure entries live alongside
// consumption entries for the same object without colliding.
func (p Params) Key() string {
	key := fmt.Sprintf("%s-%s-%s", p.ObjectType, p.ObjectID, p.Period)
	if p.Kind != "" {
		key += "-" + p.Kind
	}
	return key
}

// Data is one forecast result: the predicted and observed series for an
// object over the requested period.
type Data struct {
	Timestamp   string    `json:"timestamp"`
	Predicted   []float64 `json:"predicted"`
	Real        []float64 `json:"real"`
	Period      Period    `json:"period"`
	ObjectID    string    `json:"object_id"`
	ObjectType  string    `json:"object_type"`
	LastUpdated time.Time `json:"last_updated"`

	// Pressure carries the pump state payload (system_state, pump and
	// pipe curves) for KindPressure requests; nil for consumption.
	Pressure map[string]any `json:"pressure,omitempty"`
}

// Fetcher loads a forecast from the upstream service.
type Fetcher interface {
	FetchForecast(ctx context.Context, p Params) (Data, error)
}

type entry struct {
	data      Data
	fetchedAt time.Time
}

// Cache keeps per-object forecasts with period-dependent TTLs.
//
// Every key carries a generation counter. Invalidate and Refresh bump it,
// so an in-flight fetch started before the invalidation discards its result
// instead of overwriting a newer entry. Failed fetches never write; the
// previous entry, stale or not, stays in place.
type Cache struct {
	fetcher Fetcher
	clock   clockwork.Clock
	metrics *observability.Metrics

	mu      sync.Mutex
	entries map[string]entry
	gens    map[string]uint64
}

func NewCache(fetcher Fetcher, clock clockwork.Clock, metrics *observability.Metrics) *Cache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Cache{
		fetcher: fetcher,
		clock:   clock,
		metrics: metrics,
		entries: make(map[string]entry),
		gens:    make(map[string]uint64),
	}
}

// Get returns the cached forecast when it is still fresh for its period,
// otherwise fetches, stores and returns a new one.
func (c *Cache) Get(ctx context.Context, p Params) (Data, error) {
	key := p.Key()

	c.mu.Lock()
	e, ok := c.entries[key]
	gen := c.gens[key]
	c.mu.Unlock()

	if ok {
		age := c.clock.Since(e.fetchedAt)
		if age < p.Period.TTL() {
			c.countLookup("hit")
			return e.data, nil
		}
		c.countLookup("stale")
	} else {
		c.countLookup("miss")
	}

	return c.fetch(ctx, p, key, gen)
}

// Refresh drops any cached entry for the key and fetches unconditionally.
func (c *Cache) Refresh(ctx context.Context, p Params) (Data, error) {
	key := p.Key()

	c.mu.Lock()
	delete(c.entries, key)
	c.gens[key]++
	gen := c.gens[key]
	c.mu.Unlock()

	return c.fetch(ctx, p, key, gen)
}

// Invalidate deletes the cache entry for the key without fetching. A
// subsequent Get is guaranteed to treat the key as a miss.
func (c *Cache) Invalidate(p Params) {
	key := p.Key()
	c.mu.Lock()
	delete(c.entries, key)
	c.gens[key]++
	c.mu.Unlock()
}

// InvalidateAll clears every cached forecast.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	for key := range c.entries {
		delete(c.entries, key)
		c.gens[key]++
	}
	c.mu.Unlock()
}

// Cached is a read-only lookup; it never triggers network activity and
// returns false when no entry exists, fresh or stale.
func (c *Cache) Cached(p Params) (Data, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[p.Key()]
	return e.data, ok
}

// ShouldRefresh reports whether a Get for these params would hit upstream.
func (c *Cache) ShouldRefresh(p Params) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[p.Key()]
	if !ok {
		return true
	}
	return c.clock.Since(e.fetchedAt) >= p.Period.TTL()
}

func (c *Cache) fetch(ctx context.Context, p Params, key string, gen uint64) (Data, error) {
	data, err := c.fetcher.FetchForecast(ctx, p)
	if err != nil {
		c.countFetch("error")
		return Data{}, err
	}
	data.LastUpdated = c.clock.Now()
	c.countFetch("success")

	c.mu.Lock()
	// A newer invalidation or refresh supersedes this fetch; drop the write
	// but still hand the data to the caller that asked for it.
	if c.gens[key] == gen {
		c.entries[key] = entry{data: data, fetchedAt: c.clock.Now()}
	}
	c.mu.Unlock()

	return data, nil
}

func (c *Cache) countLookup(result string) {
	if c.metrics != nil {
		c.metrics.ForecastCacheLookups.WithLabelValues(result).Inc()
	}
}

func (c *Cache) countFetch(outcome string) {
	if c.metrics != nil {
		c.metrics.ForecastFetches.WithLabelValues(outcome).Inc()
	}
}
