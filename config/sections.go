package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kilianp07/smartwatt/infra/homeassistant"
	"github.com/kilianp07/smartwatt/infra/solcast"
)

// SourcesConfig configures the upstream price, power and solar data.
type SourcesConfig struct {
	HomeAssistant homeassistant.Config `json:"homeassistant"`
	Solcast       solcast.Config       `json:"solcast"`
	// Timeout bounds each upstream call.
	Timeout time.Duration `json:"timeout"`
}

func (c *SourcesConfig) SetDefaults() {
	c.HomeAssistant.SetDefaults()
	c.Solcast.SetDefaults()
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

func (c SourcesConfig) Validate() error {
	if err := c.HomeAssistant.Validate(); err != nil {
		return err
	}
	return c.Solcast.Validate()
}

// CacheConfig sizes the upstream series cache.
type CacheConfig struct {
	Size int           `json:"size"`
	TTL  time.Duration `json:"ttl"`
}

func (c *CacheConfig) SetDefaults() {
	if c.Size <= 0 {
		c.Size = 64
	}
	if c.TTL <= 0 {
		c.TTL = 15 * time.Minute
	}
}

// HTTPConfig configures the JSON API listener.
type HTTPConfig struct {
	Addr         string        `json:"addr"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

func (c *HTTPConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	// Solves are bounded by the solver time limit; leave headroom for fetches.
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
}

// LogConfig selects the minimum log level.
type LogConfig struct {
	Level string `json:"level"`
}

func (c *LogConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

func (c LogConfig) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Level)); err != nil {
		return fmt.Errorf("level %q: %w", c.Level, err)
	}
	return nil
}
