package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"

	"github.com/teplovod/go-heatnet-alerts/internal/alerts"
	"github.com/teplovod/go-heatnet-alerts/internal/broadcast"
	"github.com/teplovod/go-heatnet-alerts/internal/forecast"
	"github.com/teplovod/go-heatnet-alerts/internal/geo"
	"github.com/teplovod/go-heatnet-alerts/internal/models"
	"github.com/teplovod/go-heatnet-alerts/internal/repository"
	"github.com/teplovod/go-heatnet-alerts/internal/settings"
)

// mockRepo implements repository.AlertEventRepository for testing
type mockRepo struct {
	mu     sync.Mutex
	events []repository.AlertEvent
	err    error
}

func (m *mockRepo) Add(ctx context.Context, e *repository.AlertEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *e)
	return nil
}

func (m *mockRepo) Exists(ctx context.Context, id, timestamp string) (bool, error) {
	return false, nil
}

func (m *mockRepo) ListEvents(ctx context.Context, opts repository.Filter) ([]repository.AlertEvent, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	results := m.events
	if opts.Severity != nil {
		var filtered []repository.AlertEvent
		for _, e := range results {
			if e.Severity == *opts.Severity {
				filtered = append(filtered, e)
			}
		}
		results = filtered
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(results) {
			results = nil
		} else {
			results = results[opts.Offset:]
		}
	}
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

type stubFetcher struct {
	calls int
	err   error
}

func (f *stubFetcher) FetchForecast(ctx context.Context, p forecast.Params) (forecast.Data, error) {
	f.calls++
	if f.err != nil {
		return forecast.Data{}, f.err
	}
	if p.Kind == forecast.KindPressure {
		return forecast.Data{
			Period:     p.Period,
			ObjectID:   p.ObjectID,
			ObjectType: p.ObjectType,
			Pressure:   map[string]any{"system_state": map[string]any{"pumps_working": 2.0}},
		}, nil
	}
	return forecast.Data{
		Predicted:  []float64{1, 2},
		Real:       []float64{1},
		Period:     p.Period,
		ObjectID:   p.ObjectID,
		ObjectType: p.ObjectType,
	}, nil
}

type testEnv struct {
	router   *gin.Engine
	store    *alerts.Store
	fetcher  *stubFetcher
	settings *settings.Store
}

func setupTestRouter(t *testing.T, repo repository.AlertEventRepository) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := alerts.NewStore()
	fetcher := &stubFetcher{}
	cache := forecast.NewCache(fetcher, clockwork.NewFakeClock(), nil)
	params := settings.NewStore()
	b := broadcast.NewBroadcaster()
	t.Cleanup(b.Close)

	network := geo.FeatureCollection{
		Type: "FeatureCollection",
		Features: []geo.Feature{
			{
				Type:       "Feature",
				Geometry:   &geo.Geometry{Type: "Point", Coordinates: []any{37.6, 55.7}},
				Properties: map[string]any{"UNOM": "77", "address": "Lenina 1"},
			},
			{
				Type:       "Feature",
				Geometry:   &geo.Geometry{Type: "Point", Coordinates: []any{37.7, 55.8}},
				Properties: map[string]any{"ctp": "04-17"},
			},
		},
	}

	router := gin.New()
	handler := NewHandler(store, repo, cache, network, params, b, nil)
	handler.RegisterRoutes(router)

	return &testEnv{router: router, store: store, fetcher: fetcher, settings: params}
}

func TestHealth(t *testing.T) {
	env := setupTestRouter(t, &mockRepo{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}

func TestGetAlerts_Snapshot(t *testing.T) {
	env := setupTestRouter(t, &mockRepo{})
	env.store.SetAlerts([]models.Alert{
		{ID: "77", ObjectID: "77", Severity: models.SeverityHigh, Message: "Leak detected"},
	}, "2026-02-11T10:00:00")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/alerts", nil)
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var snap alerts.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(snap.Alerts) != 1 || snap.Alerts[0].ID != "77" {
		t.Errorf("unexpected alerts %v", snap.Alerts)
	}
	if snap.CurrentTimestamp != "2026-02-11T10:00:00" {
		t.Errorf("unexpected timestamp %q", snap.CurrentTimestamp)
	}
}

func TestGetObjectAlert_Found(t *testing.T) {
	env := setupTestRouter(t, &mockRepo{})
	env.store.SetAlerts([]models.Alert{
		{ID: "77", ObjectID: "77.0", Severity: models.SeverityHigh},
	}, "")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/objects/77/alert", nil)
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp struct {
		Alert *models.Alert `json:"alert"`
		Color string        `json:"color"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp.Alert == nil || resp.Alert.ID != "77" {
		t.Fatalf("expected correlated alert, got %v", resp.Alert)
	}
	if resp.Color != "#ff4444" {
		t.Errorf("expected high-severity color, got %q", resp.Color)
	}
}

func TestGetObjectAlert_Absent(t *testing.T) {
	env := setupTestRouter(t, &mockRepo{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/objects/999/alert", nil)
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("absence is not an error, got status %d", w.Code)
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["alert"] != nil {
		t.Errorf("expected null alert, got %v", resp["alert"])
	}
}

func TestGetAlertHistory_SeverityFilter(t *testing.T) {
	repo := &mockRepo{events: []repository.AlertEvent{
		{ID: "1", Severity: models.SeverityHigh},
		{ID: "2", Severity: models.SeverityLow},
	}}
	env := setupTestRouter(t, repo)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/alerts/history?severity=high", nil)
	env.router.ServeHTTP(w, req)

	var resp struct {
		Events []repository.AlertEvent `json:"events"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)

	if len(resp.Events) != 1 || resp.Events[0].ID != "1" {
		t.Errorf("expected only the high event, got %v", resp.Events)
	}
}

func TestGetAlertHistory_InvalidSeverity(t *testing.T) {
	env := setupTestRouter(t, &mockRepo{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/alerts/history?severity=critical", nil)
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestGetAlertHistory_RepoError(t *testing.T) {
	env := setupTestRouter(t, &mockRepo{err: errors.New("db down")})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/alerts/history", nil)
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", w.Code)
	}
}

func TestGetForecast_CachesSecondCall(t *testing.T) {
	env := setupTestRouter(t, &mockRepo{})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/forecast?object_type=ctp&object_id=2045&period=2h&timestamp=2026-02-11T10:00:00", nil)
		env.router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
	}

	if env.fetcher.calls != 1 {
		t.Errorf("expected a single upstream fetch, got %d", env.fetcher.calls)
	}
}

func TestGetAlertHistory_Offset(t *testing.T) {
	repo := &mockRepo{events: []repository.AlertEvent{
		{ID: "1"}, {ID: "2"}, {ID: "3"},
	}}
	env := setupTestRouter(t, repo)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/alerts/history?offset=2", nil)
	env.router.ServeHTTP(w, req)

	var resp struct {
		Events []repository.AlertEvent `json:"events"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)

	if len(resp.Events) != 1 || resp.Events[0].ID != "3" {
		t.Errorf("expected the page after the first two events, got %v", resp.Events)
	}
}

func TestClearAlerts(t *testing.T) {
	env := setupTestRouter(t, &mockRepo{})
	env.store.SetAlerts([]models.Alert{{ID: "77", ObjectID: "77"}}, "")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/api/alerts", nil)
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", w.Code)
	}
	if len(env.store.Alerts()) != 0 {
		t.Error("expected an empty list after clearing")
	}
}

func TestSetAlertFilter(t *testing.T) {
	env := setupTestRouter(t, &mockRepo{})

	// No body toggles.
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/alerts/filter", nil)
	env.router.ServeHTTP(w, req)

	var resp struct {
		FilterByAlerts bool `json:"filter_by_alerts"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.FilterByAlerts {
		t.Error("expected toggle from the default off state to report true")
	}

	// An explicit value sets regardless of current state.
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("POST", "/api/alerts/filter", strings.NewReader(`{"enabled": false}`))
	req.Header.Set("Content-Type", "application/json")
	env.router.ServeHTTP(w, req)

	if got := env.store.Snapshot().FilterByAlerts; got {
		t.Errorf("expected filter off, got %v", got)
	}
}

func TestGetForecast_BadParams(t *testing.T) {
	env := setupTestRouter(t, &mockRepo{})

	cases := []string{
		"/api/forecast?object_type=plant&object_id=1",
		"/api/forecast?object_type=ctp",
		"/api/forecast?object_type=ctp&object_id=1&period=3h",
	}
	for _, url := range cases {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", url, nil)
		env.router.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", url, w.Code)
		}
	}
}

func TestGetForecast_UpstreamError(t *testing.T) {
	env := setupTestRouter(t, &mockRepo{})
	env.fetcher.err = errors.New("no data for period")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/forecast?object_type=unom&object_id=17823&period=4h", nil)
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("expected status 502, got %d", w.Code)
	}
}

func TestRefreshForecast_BypassesCache(t *testing.T) {
	env := setupTestRouter(t, &mockRepo{})

	get, _ := http.NewRequest("GET", "/api/forecast?object_type=ctp&object_id=2045&period=2h", nil)
	refresh, _ := http.NewRequest("POST", "/api/forecast/refresh?object_type=ctp&object_id=2045&period=2h", nil)

	env.router.ServeHTTP(httptest.NewRecorder(), get)
	env.router.ServeHTTP(httptest.NewRecorder(), refresh)

	if env.fetcher.calls != 2 {
		t.Errorf("refresh must always fetch, got %d calls", env.fetcher.calls)
	}
}

func TestInvalidateForecast(t *testing.T) {
	env := setupTestRouter(t, &mockRepo{})

	get, _ := http.NewRequest("GET", "/api/forecast?object_type=ctp&object_id=2045&period=2h", nil)
	env.router.ServeHTTP(httptest.NewRecorder(), get)

	w := httptest.NewRecorder()
	del, _ := http.NewRequest("DELETE", "/api/forecast?object_type=ctp&object_id=2045&period=2h", nil)
	env.router.ServeHTTP(w, del)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", w.Code)
	}

	get2, _ := http.NewRequest("GET", "/api/forecast?object_type=ctp&object_id=2045&period=2h", nil)
	env.router.ServeHTTP(httptest.NewRecorder(), get2)

	if env.fetcher.calls != 2 {
		t.Errorf("expected refetch after invalidation, got %d calls", env.fetcher.calls)
	}
}

func TestGetForecastPressure(t *testing.T) {
	env := setupTestRouter(t, &mockRepo{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/forecast/pressure?object_id=04-17&period=24h", nil)
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var data forecast.Data
	if err := json.Unmarshal(w.Body.Bytes(), &data); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if data.Pressure == nil {
		t.Fatal("expected a pressure payload")
	}
	if data.ObjectType != forecast.ObjectTypeCTP {
		t.Errorf("pressure data is CTP-only, got object_type %q", data.ObjectType)
	}
}

func TestGetForecastPressure_MissingObjectID(t *testing.T) {
	env := setupTestRouter(t, &mockRepo{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/forecast/pressure", nil)
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestGetForecastPressure_CachedSeparatelyFromConsumption(t *testing.T) {
	env := setupTestRouter(t, &mockRepo{})

	urls := []string{
		"/api/forecast?object_type=ctp&object_id=04-17&period=24h",
		"/api/forecast/pressure?object_id=04-17&period=24h",
		"/api/forecast/pressure?object_id=04-17&period=24h",
	}
	for _, url := range urls {
		req, _ := http.NewRequest("GET", url, nil)
		env.router.ServeHTTP(httptest.NewRecorder(), req)
	}

	// Consumption and pressure each fetch once; the repeated pressure
	// request is a cache hit.
	if env.fetcher.calls != 2 {
		t.Errorf("expected 2 upstream fetches, got %d", env.fetcher.calls)
	}
}

func TestFlushForecastCache(t *testing.T) {
	env := setupTestRouter(t, &mockRepo{})

	get, _ := http.NewRequest("GET", "/api/forecast?object_type=ctp&object_id=2045&period=2h", nil)
	env.router.ServeHTTP(httptest.NewRecorder(), get)

	w := httptest.NewRecorder()
	flush, _ := http.NewRequest("DELETE", "/api/forecast/cache", nil)
	env.router.ServeHTTP(w, flush)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", w.Code)
	}

	get2, _ := http.NewRequest("GET", "/api/forecast?object_type=ctp&object_id=2045&period=2h", nil)
	env.router.ServeHTTP(httptest.NewRecorder(), get2)

	if env.fetcher.calls != 2 {
		t.Errorf("expected refetch after flush, got %d calls", env.fetcher.calls)
	}
}

func TestGetGeoJSON(t *testing.T) {
	env := setupTestRouter(t, &mockRepo{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/geojson", nil)
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("expected content-type application/geo+json, got %s", ct)
	}

	var fc geo.FeatureCollection
	if err := json.Unmarshal(w.Body.Bytes(), &fc); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(fc.Features) != 2 {
		t.Errorf("expected 2 features, got %d", len(fc.Features))
	}
}

func TestGetGeoJSON_Flip(t *testing.T) {
	env := setupTestRouter(t, &mockRepo{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/geojson?flip=1", nil)
	env.router.ServeHTTP(w, req)

	var fc geo.FeatureCollection
	json.Unmarshal(w.Body.Bytes(), &fc)

	coords, ok := fc.Features[0].Geometry.Coordinates.([]any)
	if !ok || len(coords) != 2 {
		t.Fatalf("unexpected coordinates %v", fc.Features[0].Geometry.Coordinates)
	}
	if coords[0].(float64) != 55.7 {
		t.Errorf("expected latitude first after flip, got %v", coords)
	}
}

func TestGetHouses(t *testing.T) {
	env := setupTestRouter(t, &mockRepo{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/houses", nil)
	env.router.ServeHTTP(w, req)

	var resp struct {
		Count     int      `json:"count"`
		Addresses []string `json:"addresses"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp.Count != 1 {
		t.Errorf("expected 1 house (the CTP feature has no UNOM), got %d", resp.Count)
	}
	if len(resp.Addresses) != 1 || resp.Addresses[0] != "Lenina 1" {
		t.Errorf("unexpected addresses %v", resp.Addresses)
	}
}

func TestGetHouseByCoordinates(t *testing.T) {
	env := setupTestRouter(t, &mockRepo{})
	env.store.SetAlerts([]models.Alert{
		{ID: "77", ObjectID: "77.0", Severity: models.SeverityHigh},
	}, "")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/houses/by_coordinates?lat=55.7001&lon=37.6001&radius=100", nil)
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		House geo.HouseMatch `json:"house"`
		Alert *models.Alert  `json:"alert"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.House.UNOM != "77" {
		t.Errorf("expected house 77, got %q", resp.House.UNOM)
	}
	if resp.Alert == nil || resp.Alert.ID != "77" {
		t.Errorf("expected the house's active alert, got %v", resp.Alert)
	}
}

func TestGetHouseByCoordinates_NoneInRadius(t *testing.T) {
	env := setupTestRouter(t, &mockRepo{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/houses/by_coordinates?lat=56.5&lon=38.5", nil)
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestGetHouseByCoordinates_MissingParams(t *testing.T) {
	env := setupTestRouter(t, &mockRepo{})

	for _, url := range []string{
		"/api/houses/by_coordinates",
		"/api/houses/by_coordinates?lat=55.7",
		"/api/houses/by_coordinates?lat=abc&lon=37.6",
	} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", url, nil)
		env.router.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", url, w.Code)
		}
	}
}

func TestAlertParameters_GetAndUpdate(t *testing.T) {
	env := setupTestRouter(t, &mockRepo{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/config/alert_parameters", nil)
	env.router.ServeHTTP(w, req)

	var params map[string]settings.Parameter
	if err := json.Unmarshal(w.Body.Bytes(), &params); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if params["pump_cavitation_multiplier"].Value != 1.5 {
		t.Errorf("unexpected default %v", params["pump_cavitation_multiplier"].Value)
	}

	w = httptest.NewRecorder()
	body := strings.NewReader(`{"pump_cavitation_multiplier": 1.8}`)
	put, _ := http.NewRequest("PUT", "/api/config/alert_parameters", body)
	put.Header.Set("Content-Type", "application/json")
	env.router.ServeHTTP(w, put)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if v, _ := env.settings.Get(settings.ParamPumpCavitationMultiplier); v != 1.8 {
		t.Errorf("update not applied, got %v", v)
	}
}

func TestAlertParameters_UpdateOutOfRange(t *testing.T) {
	env := setupTestRouter(t, &mockRepo{})

	w := httptest.NewRecorder()
	body := strings.NewReader(`{"pump_cavitation_multiplier": 3.0}`)
	put, _ := http.NewRequest("PUT", "/api/config/alert_parameters", body)
	put.Header.Set("Content-Type", "application/json")
	env.router.ServeHTTP(w, put)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}
