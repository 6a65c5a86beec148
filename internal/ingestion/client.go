package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/teplovod/go-heatnet-alerts/internal/models"
)

// Client pulls the active alert list from the upstream analytics service.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type upstreamError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// FetchAlerts returns the raw alert records for the given analysis
// timestamp ("NOW" or ISO-8601). A non-array or error payload is reported
// through the coerced upstream message.
func (c *Client) FetchAlerts(ctx context.Context, timestamp string) ([]models.RawAlert, error) {
	q := url.Values{}
	if timestamp != "" {
		q.Set("timestamp", timestamp)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/alerts?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e upstreamError
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return nil, fmt.Errorf("alert fetch failed: %s", coerceErrorMessage(e.Error, e.Message, resp.Status))
	}

	var raw []models.RawAlert
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("error decoding resp.Body: %w", err)
	}
	if raw == nil {
		raw = []models.RawAlert{}
	}

	return raw, nil
}

func coerceErrorMessage(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return "unknown error"
}
