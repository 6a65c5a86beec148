package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Client fetches forecast series from the upstream analytics service.
// CTP forecasts come from /ctp_data keyed by ctp_id, house forecasts from
// /mcd_data keyed by UNOM, and CTP pump pressure payloads from
// /ctp_data_pressure.
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

type forecastResponse struct {
	Predicted []float64 `json:"predicted"`
	Real      []float64 `json:"real"`
	Timestamp []string  `json:"timestamp"`
	Error     string    `json:"error"`
	Message   string    `json:"message"`
}

func (c *Client) FetchForecast(ctx context.Context, p Params) (Data, error) {
	endpoint := "/mcd_data"
	idParam := "unom"
	switch {
	case p.Kind == KindPressure:
		endpoint = "/ctp_data_pressure"
		idParam = "ctp_id"
	case p.ObjectType == ObjectTypeCTP:
		endpoint = "/ctp_data"
		idParam = "ctp_id"
	}

	q := url.Values{}
	q.Set(idParam, p.ObjectID)
	q.Set("timestamp", p.Timestamp)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return Data{}, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Data{}, fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	var body forecastResponse
	if resp.StatusCode != http.StatusOK {
		// Upstream errors carry a JSON body; fall through its message
		// fields before giving up on a generic string.
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return Data{}, fmt.Errorf("forecast fetch failed: %s", coerceErrorMessage(body.Error, body.Message, resp.Status))
	}

	if p.Kind == KindPressure {
		// The pressure payload is a free-form document (system state,
		// pump and pipe curves) rendered as-is by the charts.
		var payload map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return Data{}, fmt.Errorf("error decoding resp.Body: %w", err)
		}
		return Data{
			Timestamp:  p.Timestamp,
			Predicted:  []float64{},
			Real:       []float64{},
			Period:     p.Period,
			ObjectID:   p.ObjectID,
			ObjectType: p.ObjectType,
			Pressure:   payload,
		}, nil
	}

	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Data{}, fmt.Errorf("error decoding resp.Body: %w", err)
	}

	return Data{
		Timestamp:  p.Timestamp,
		Predicted:  orEmpty(body.Predicted),
		Real:       orEmpty(body.Real),
		Period:     p.Period,
		ObjectID:   p.ObjectID,
		ObjectType: p.ObjectType,
	}, nil
}

func orEmpty(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}

// coerceErrorMessage picks the first non-empty candidate, matching how the
// dashboard surfaces upstream failures.
func coerceErrorMessage(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return "unknown error"
}
