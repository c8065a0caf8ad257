// Package homeassistant reads price and power history from the Home Assistant
// REST API.
package homeassistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kilianp07/smartwatt/auth"
	"github.com/kilianp07/smartwatt/core/model"
	"github.com/kilianp07/smartwatt/core/series"
)

const (
	DefaultPriceEntity   = "sensor.nord_pool_ger_current_price"
	DefaultPriceLookback = 24 * time.Hour
	DefaultPriceSlots    = 48
	DefaultPowerLookback = 30 * time.Minute
)

// ErrNoData is returned when the history holds no numeric state.
var ErrNoData = errors.New("no numeric history")

// Config locates the Home Assistant instance and the entities to read.
type Config struct {
	URL           string        `json:"url"`
	Auth          auth.Conf     `json:"auth"`
	PriceEntity   string        `json:"price_entity"`
	PriceLookback time.Duration `json:"price_lookback"`
	PriceSlots    int           `json:"price_slots"`
	PowerLookback time.Duration `json:"power_lookback"`
}

// Enabled reports whether a URL is configured.
func (c Config) Enabled() bool { return strings.TrimSpace(c.URL) != "" }

// SetDefaults fills the price entity and the lookback windows.
func (c *Config) SetDefaults() {
	if c.PriceEntity == "" {
		c.PriceEntity = DefaultPriceEntity
	}
	if c.PriceLookback <= 0 {
		c.PriceLookback = DefaultPriceLookback
	}
	if c.PriceSlots <= 0 {
		c.PriceSlots = DefaultPriceSlots
	}
	if c.PowerLookback <= 0 {
		c.PowerLookback = DefaultPowerLookback
	}
}

// Validate checks the URL and credentials.
func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if _, err := url.ParseRequestURI(c.URL); err != nil {
		return fmt.Errorf("homeassistant: url: %w", err)
	}
	return c.Auth.Validate()
}

// Client queries the history endpoint. It implements series.PriceSource and
// series.PowerSource.
type Client struct {
	base  string
	http  *http.Client
	cfg   Config
	nowFn func() time.Time
}

var (
	_ series.PriceSource = (*Client)(nil)
	_ series.PowerSource = (*Client)(nil)
)

// NewClient returns a client authenticated with cfg.Auth.
func NewClient(ctx context.Context, cfg Config) *Client {
	cfg.SetDefaults()
	return &Client{
		base:  strings.TrimSuffix(cfg.URL, "/"),
		http:  auth.NewHTTPClient(ctx, cfg.Auth),
		cfg:   cfg,
		nowFn: time.Now,
	}
}

type state struct {
	State       string `json:"state"`
	LastChanged string `json:"last_changed"`
}

// History returns the numeric states of entity recorded since since, oldest
// first. Non-numeric states such as "unavailable" are skipped.
func (c *Client) History(ctx context.Context, entity string, since time.Time) ([]float64, error) {
	u := fmt.Sprintf("%s/api/history/period/%s?filter_entity_id=%s&minimal_response",
		c.base, url.PathEscape(since.UTC().Format(time.RFC3339)), url.QueryEscape(entity))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, body)
	}
	var res [][]state
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("%s: %w", entity, ErrNoData)
	}
	values := make([]float64, 0, len(res[0]))
	for _, s := range res[0] {
		v, err := strconv.ParseFloat(strings.TrimSpace(s.State), 64)
		if err != nil {
			continue
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s: %w", entity, ErrNoData)
	}
	return values, nil
}

// Prices returns the most recent PriceSlots values of the price entity.
func (c *Client) Prices(ctx context.Context) (model.PriceSeries, error) {
	values, err := c.History(ctx, c.cfg.PriceEntity, c.nowFn().Add(-c.cfg.PriceLookback))
	if err != nil {
		return nil, err
	}
	if len(values) > c.cfg.PriceSlots {
		values = values[len(values)-c.cfg.PriceSlots:]
	}
	return model.PriceSeries(values), nil
}

// AveragePower returns the mean state of sensor over the power lookback.
func (c *Client) AveragePower(ctx context.Context, sensor string) (float64, error) {
	values, err := c.History(ctx, sensor, c.nowFn().Add(-c.cfg.PowerLookback))
	if err != nil {
		return 0, err
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), nil
}
