// Package solcast reads the rooftop PV forecast from the Solcast API.
package solcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/kilianp07/smartwatt/auth"
	"github.com/kilianp07/smartwatt/core/model"
	"github.com/kilianp07/smartwatt/core/series"
)

const (
	DefaultURL   = "https://api.solcast.com.au"
	DefaultSlots = 48
)

// ErrNoForecast is returned when the response carries no forecast period.
var ErrNoForecast = errors.New("empty solar forecast")

// Config identifies the rooftop site. The API key goes in Auth.Token.
type Config struct {
	URL        string    `json:"url"`
	ResourceID string    `json:"resource_id"`
	Auth       auth.Conf `json:"auth"`
	Slots      int       `json:"slots"`
}

// Enabled reports whether a site is configured.
func (c Config) Enabled() bool { return strings.TrimSpace(c.ResourceID) != "" }

// SetDefaults fills the API URL and horizon.
func (c *Config) SetDefaults() {
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if c.Slots <= 0 {
		c.Slots = DefaultSlots
	}
}

// Validate requires an API key for a configured site.
func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if !c.Auth.Configured() {
		return fmt.Errorf("solcast: api key (auth.token) is required")
	}
	return c.Auth.Validate()
}

// Client implements series.SolarSource.
type Client struct {
	base string
	http *http.Client
	cfg  Config
}

var _ series.SolarSource = (*Client)(nil)

// NewClient returns a client for the configured site.
func NewClient(ctx context.Context, cfg Config) *Client {
	cfg.SetDefaults()
	return &Client{base: strings.TrimSuffix(cfg.URL, "/"), http: auth.NewHTTPClient(ctx, cfg.Auth), cfg: cfg}
}

type forecast struct {
	PVEstimate float64 `json:"pv_estimate"`
	PeriodEnd  string  `json:"period_end"`
	Period     string  `json:"period"`
}

// Solar returns the first Slots forecast periods in watts.
func (c *Client) Solar(ctx context.Context) (model.SolarSeries, error) {
	u := fmt.Sprintf("%s/rooftop_sites/%s/forecasts?format=json", c.base, url.PathEscape(c.cfg.ResourceID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, body)
	}
	var payload struct {
		Forecasts []forecast `json:"forecasts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(payload.Forecasts) == 0 {
		return nil, ErrNoForecast
	}
	n := min(len(payload.Forecasts), c.cfg.Slots)
	out := make(model.SolarSeries, n)
	for i, f := range payload.Forecasts[:n] {
		out[i] = f.PVEstimate * 1000 // kW to W
	}
	return out, nil
}
