package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/smartwatt/core/factory"
	"github.com/kilianp07/smartwatt/core/metrics"
	"github.com/kilianp07/smartwatt/core/model"
	"github.com/kilianp07/smartwatt/core/optimizer"
	"github.com/kilianp07/smartwatt/core/series"
	"github.com/kilianp07/smartwatt/infra/mqtt"
)

// EnvPrefix marks environment overrides: SW_STORE__TYPE sets store.type.
const EnvPrefix = "SW_"

type Config struct {
	Optimizer optimizer.Config     `json:"optimizer"`
	Fallback  series.Fallback      `json:"fallback"`
	Sources   SourcesConfig        `json:"sources"`
	Cache     CacheConfig          `json:"cache"`
	Store     factory.ModuleConfig `json:"store"`
	Recent    factory.ModuleConfig `json:"recent"`
	History   factory.ModuleConfig `json:"history"`
	Metrics   metrics.Config       `json:"metrics"`
	MQTT      mqtt.Config          `json:"mqtt"`
	HTTP      HTTPConfig           `json:"http"`
	Sentry    SentryConfig         `json:"sentry"`
	Log       LogConfig            `json:"log"`
	Devices   []model.Device       `json:"devices"`
}

// Load reads a YAML or JSON file, applies SW_ environment overrides, then
// defaults, and validates the result. An empty path loads defaults and the
// environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	// Optional environment overrides
	prefix := strings.ToLower(EnvPrefix)
	if err := k.Load(env.Provider(EnvPrefix, "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), prefix)
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Optimizer.SetDefaults()
	if c.Fallback.Price <= 0 || c.Fallback.Length <= 0 {
		d := series.DefaultFallback()
		if c.Fallback.Price <= 0 {
			c.Fallback.Price = d.Price
		}
		if c.Fallback.Length <= 0 {
			c.Fallback.Length = d.Length
		}
	}
	c.Sources.SetDefaults()
	c.Cache.SetDefaults()
	if c.Store.Type == "" {
		c.Store = factory.ModuleConfig{Type: "json", Conf: map[string]any{"path": "schedules.json"}}
	}
	if c.Recent.Type == "" {
		c.Recent = factory.ModuleConfig{Type: "json", Conf: map[string]any{"path": "recent_optimizations.json"}}
	}
	if c.History.Type == "" {
		c.History.Type = "none"
	}
	if c.MQTT.Enabled() {
		c.MQTT.SetDefaults()
	}
	c.HTTP.SetDefaults()
	c.Log.SetDefaults()
	if len(c.Devices) == 0 {
		c.Devices = DefaultDevices()
	}
	for i := range c.Devices {
		if c.Devices[i].Sensor == "" {
			c.Devices[i].Sensor = PowerSensor(c.Devices[i].ID)
		}
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Optimizer.Validate(); err != nil {
		return fmt.Errorf("optimizer: %w", err)
	}
	if err := c.Sources.Validate(); err != nil {
		return fmt.Errorf("sources: %w", err)
	}
	if err := c.MQTT.Validate(); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	seen := make(map[string]bool, len(c.Devices))
	for _, d := range c.Devices {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("devices: %w", err)
		}
		if seen[d.ID] {
			return fmt.Errorf("devices: duplicate id %s", d.ID)
		}
		seen[d.ID] = true
	}
	return nil
}

// PowerSensor returns the conventional power sensor of a device entity:
// switch.espee_dryer reads sensor.espee_dryer_power.
func PowerSensor(id string) string {
	obj := id
	if i := strings.IndexByte(id, '.'); i >= 0 {
		obj = id[i+1:]
	}
	return "sensor." + obj + "_power"
}

// DefaultDevices is the household catalog used when none is configured.
func DefaultDevices() []model.Device {
	return []model.Device{
		{ID: "fan.esp_bedroom_hvac", Name: "ESP Bedroom HVAC"},
		{ID: "fan.esp_kitchen_hvac", Name: "ESP Kitchen HVAC"},
		{ID: "switch.espee_washing_machine", Name: "ESP Washing Machine"},
		{ID: "switch.espee_dryer", Name: "ESP Dryer"},
		{ID: "switch.espee_bedroom_lighting", Name: "ESP Bedroom Lighting"},
		{ID: "switch.espee_garage_lighting", Name: "ESP Garage Lighting"},
		{ID: "switch.espee_kitchen_lighting", Name: "ESP Kitchen Lighting"},
		{ID: "switch.espee_laundry_lighting", Name: "ESP Laundry Lighting"},
		{ID: "switch.espee_ev_charger", Name: "ESP EV Charger"},
	}
}
