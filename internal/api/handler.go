package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/teplovod/go-heatnet-alerts/internal/alerts"
	"github.com/teplovod/go-heatnet-alerts/internal/broadcast"
	"github.com/teplovod/go-heatnet-alerts/internal/forecast"
	"github.com/teplovod/go-heatnet-alerts/internal/geo"
	"github.com/teplovod/go-heatnet-alerts/internal/models"
	"github.com/teplovod/go-heatnet-alerts/internal/observability"
	"github.com/teplovod/go-heatnet-alerts/internal/repository"
	"github.com/teplovod/go-heatnet-alerts/internal/settings"
)

type Handler struct {
	store       *alerts.Store
	repo        repository.AlertEventRepository
	cache       *forecast.Cache
	network     geo.FeatureCollection
	settings    *settings.Store
	broadcaster *broadcast.Broadcaster
	metrics     *observability.Metrics
}

func NewHandler(store *alerts.Store, repo repository.AlertEventRepository, cache *forecast.Cache, network geo.FeatureCollection, params *settings.Store, broadcaster *broadcast.Broadcaster, metrics *observability.Metrics) *Handler {
	return &Handler{
		store:       store,
		repo:        repo,
		cache:       cache,
		network:     network,
		settings:    params,
		broadcaster: broadcaster,
		metrics:     metrics,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)

	r.GET("/api/alerts", h.getAlerts)
	r.DELETE("/api/alerts", h.clearAlerts)
	r.GET("/api/alerts/history", h.getAlertHistory)
	r.GET("/api/alerts/stream", h.streamAlerts)
	r.POST("/api/alerts/filter", h.setAlertFilter)
	r.GET("/api/objects/:id/alert", h.getObjectAlert)

	r.GET("/api/forecast", h.getForecast)
	r.GET("/api/forecast/pressure", h.getForecastPressure)
	r.POST("/api/forecast/refresh", h.refreshForecast)
	r.DELETE("/api/forecast", h.invalidateForecast)
	r.DELETE("/api/forecast/cache", h.flushForecastCache)

	r.GET("/api/geojson", h.getGeoJSON)
	r.GET("/api/houses", h.getHouses)
	r.GET("/api/houses/by_coordinates", h.getHouseByCoordinates)

	r.GET("/api/config/alert_parameters", h.getAlertParameters)
	r.PUT("/api/config/alert_parameters", h.updateAlertParameters)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) getAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Snapshot())
}

func (h *Handler) getAlertHistory(c *gin.Context) {
	filter := repository.Filter{
		Limit: 50, // Default if limit param not supplied
	}

	if s := c.Query("severity"); s != "" {
		sev := models.Severity(s)
		if sev.Rank() == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid severity"})
			return
		}
		filter.Severity = &sev
	}
	if o := c.Query("object_id"); o != "" {
		filter.ObjectID = alerts.NormalizeID(o)
	}
	if s := c.Query("since"); s != "" {
		if t, err := time.Parse("2006-01-02", s); err == nil {
			filter.Since = &t
		}
	}
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= 500 {
			filter.Limit = lim
		}
	}
	if o := c.Query("offset"); o != "" {
		if off, err := strconv.Atoi(o); err == nil && off > 0 {
			filter.Offset = off
		}
	}

	events, err := h.repo.ListEvents(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to fetch alert history",
		})
		return
	}
	if events == nil {
		events = []repository.AlertEvent{}
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *Handler) streamAlerts(c *gin.Context) {
	id, ch := h.broadcaster.Subscribe()
	if h.metrics != nil {
		h.metrics.StreamSubscribers.Inc()
	}
	defer func() {
		h.broadcaster.Unsubscribe(id)
		if h.metrics != nil {
			h.metrics.StreamSubscribers.Dec()
		}
	}()

	c.Stream(func(w io.Writer) bool {
		select {
		case alert, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("alert", alert)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (h *Handler) clearAlerts(c *gin.Context) {
	h.store.Clear()
	c.Status(http.StatusNoContent)
}

// setAlertFilter switches the map's filter-by-alerts mode. An explicit
// {"enabled": bool} body sets it; an empty body toggles.
func (h *Handler) setAlertFilter(c *gin.Context) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&body); err == nil && body.Enabled != nil {
		h.store.SetFilterByAlerts(*body.Enabled)
		c.JSON(http.StatusOK, gin.H{"filter_by_alerts": *body.Enabled})
		return
	}
	c.JSON(http.StatusOK, gin.H{"filter_by_alerts": h.store.ToggleFilterByAlerts()})
}

func (h *Handler) getObjectAlert(c *gin.Context) {
	alert, ok := h.store.ActiveFor(c.Param("id"))
	if !ok {
		// Absence is a normal outcome, not an error.
		c.JSON(http.StatusOK, gin.H{"alert": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"alert": alert,
		"color": alert.Severity.Color(),
	})
}

func (h *Handler) forecastParams(c *gin.Context) (forecast.Params, bool) {
	objectType := c.Query("object_type")
	if objectType != forecast.ObjectTypeCTP && objectType != forecast.ObjectTypeUNOM {
		c.JSON(http.StatusBadRequest, gin.H{"error": "object_type must be 'ctp' or 'unom'"})
		return forecast.Params{}, false
	}

	objectID := alerts.NormalizeID(c.Query("object_id"))
	if objectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing object_id"})
		return forecast.Params{}, false
	}

	period, err := forecast.ParsePeriod(c.DefaultQuery("period", "24h"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return forecast.Params{}, false
	}

	return forecast.Params{
		ObjectID:   objectID,
		ObjectType: objectType,
		Period:     period,
		Timestamp:  c.DefaultQuery("timestamp", "NOW"),
	}, true
}

func (h *Handler) getForecast(c *gin.Context) {
	params, ok := h.forecastParams(c)
	if !ok {
		return
	}

	data, err := h.cache.Get(c.Request.Context(), params)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, data)
}

// getForecastPressure serves the pump state payload for a CTP. Pressure
// data only exists for CTPs, so object_type is implied.
func (h *Handler) getForecastPressure(c *gin.Context) {
	objectID := alerts.NormalizeID(c.Query("object_id"))
	if objectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing object_id"})
		return
	}

	period, err := forecast.ParsePeriod(c.DefaultQuery("period", "24h"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	data, err := h.cache.Get(c.Request.Context(), forecast.Params{
		ObjectID:   objectID,
		ObjectType: forecast.ObjectTypeCTP,
		Period:     period,
		Timestamp:  c.DefaultQuery("timestamp", "NOW"),
		Kind:       forecast.KindPressure,
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, data)
}

func (h *Handler) refreshForecast(c *gin.Context) {
	params, ok := h.forecastParams(c)
	if !ok {
		return
	}

	data, err := h.cache.Refresh(c.Request.Context(), params)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, data)
}

func (h *Handler) invalidateForecast(c *gin.Context) {
	params, ok := h.forecastParams(c)
	if !ok {
		return
	}

	h.cache.Invalidate(params)
	c.Status(http.StatusNoContent)
}

func (h *Handler) flushForecastCache(c *gin.Context) {
	h.cache.InvalidateAll()
	c.Status(http.StatusNoContent)
}

func (h *Handler) getGeoJSON(c *gin.Context) {
	fc := h.network
	// The raw export is [lon, lat]; map renderers that want [lat, lon]
	// ask for the flipped variant.
	if c.Query("flip") == "1" {
		fc = geo.Flip(fc)
	}
	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, fc)
}

func (h *Handler) getHouses(c *gin.Context) {
	var (
		count     int
		addresses []string
	)
	for _, f := range h.network.Features {
		unom, ok := f.Properties["UNOM"]
		if !ok || unom == nil {
			continue
		}
		count++
		if addr, ok := f.Properties["address"].(string); ok && addr != "" {
			addresses = append(addresses, addr)
		}
	}
	if addresses == nil {
		addresses = []string{}
	}

	c.JSON(http.StatusOK, gin.H{
		"count":     count,
		"addresses": addresses,
	})
}

// getHouseByCoordinates resolves a map click to the nearest house and its
// current alert, if any. The default search radius is 100 meters.
func (h *Handler) getHouseByCoordinates(c *gin.Context) {
	lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
	lon, lonErr := strconv.ParseFloat(c.Query("lon"), 64)
	if latErr != nil || lonErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid 'lat' or 'lon' parameter"})
		return
	}

	radius := 100.0
	if r := c.Query("radius"); r != "" {
		if v, err := strconv.ParseFloat(r, 64); err == nil && v > 0 {
			radius = v
		}
	}

	match, ok := geo.ClosestHouse(h.network, lat, lon, radius)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no houses found within %gm radius", radius)})
		return
	}

	resp := gin.H{
		"house": match,
		"search": gin.H{
			"lat":           lat,
			"lon":           lon,
			"radius_meters": radius,
		},
	}
	if alert, found := h.store.ActiveFor(match.UNOM); found {
		resp["alert"] = alert
	} else {
		resp["alert"] = nil
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getAlertParameters(c *gin.Context) {
	c.JSON(http.StatusOK, h.settings.All())
}

func (h *Handler) updateAlertParameters(c *gin.Context) {
	var updates map[string]float64
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	applied, err := h.settings.Update(updates)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Parameters updated successfully",
		"updated": applied,
		"current": h.settings.All(),
	})
}
