package optimizer

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/smartwatt/core/solver"
	"github.com/kilianp07/smartwatt/core/timeslot"
)

// Config groups the grids and solver limits used by both optimizers.
type Config struct {
	// Grid is the half-hour grid for single device requests. Slots is
	// derived from the price series when zero.
	Grid timeslot.Grid `json:"grid" yaml:"grid"`
	// FleetGrid is the day grid of the fleet optimizer.
	FleetGrid timeslot.Grid  `json:"fleet_grid" yaml:"fleet_grid"`
	Solver    solver.Options `json:"solver" yaml:"solver"`
}

// DefaultConfig returns the 08:00 half-hour grid, the hourly day grid and the
// default solver limits.
func DefaultConfig() Config {
	return Config{
		Grid:      timeslot.HalfHourly(0),
		FleetGrid: timeslot.Hourly(),
		Solver:    solver.DefaultOptions(),
	}
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	d := DefaultConfig()
	if c.Grid.Width == 0 {
		c.Grid.Origin, c.Grid.Width = d.Grid.Origin, d.Grid.Width
	}
	if c.FleetGrid.Width == 0 {
		c.FleetGrid = d.FleetGrid
	}
	if c.FleetGrid.Slots == 0 {
		c.FleetGrid.Slots = d.FleetGrid.Slots
	}
	if c.Solver.TimeLimit <= 0 {
		c.Solver.TimeLimit = d.Solver.TimeLimit
	}
	if c.Solver.NodeLimit <= 0 {
		c.Solver.NodeLimit = d.Solver.NodeLimit
	}
	if c.Solver.Tol <= 0 {
		c.Solver.Tol = d.Solver.Tol
	}
}

// Validate checks both grids.
func (c Config) Validate() error {
	g := c.Grid
	if g.Slots == 0 {
		g.Slots = 1
	}
	if err := g.Validate(); err != nil {
		return fmt.Errorf("grid: %w", err)
	}
	if err := c.FleetGrid.Validate(); err != nil {
		return fmt.Errorf("fleet_grid: %w", err)
	}
	return nil
}

// LoadConfig loads a Config from a JSON or YAML file and applies defaults.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer func() { _ = f.Close() }()
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return DecodeConfig(f, ext)
}

// DecodeConfig reads a Config in the given format ("yaml", "yml" or "json")
// from r and applies defaults.
func DecodeConfig(r io.Reader, format string) (Config, error) {
	var cfg Config
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
			return cfg, err
		}
	case "json":
		if err := json.NewDecoder(r).Decode(&cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported format: %s", format)
	}
	cfg.SetDefaults()
	return cfg, cfg.Validate()
}
