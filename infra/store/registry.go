// Package store provides the persistence backends of the schedule, the
// recent-optimization log and the optimization history.
package store

import (
	"fmt"

	"github.com/kilianp07/smartwatt/core/factory"
	"github.com/kilianp07/smartwatt/core/schedule"
)

var (
	stores  = factory.NewRegistry[schedule.Store]()
	recents = factory.NewRegistry[schedule.RecentLog]()
	history = factory.NewRegistry[schedule.History]()
)

type pathConf struct {
	Path string `json:"path"`
}

// recentConf configures a recent-optimization backend. The log always holds
// schedule.RecentCap entries, so a size key is refused.
type recentConf struct {
	Path string `json:"path"`
}

func decodeRecent(conf map[string]any, c *recentConf) error {
	for _, k := range []string{"limit", "size", "cap"} {
		if _, ok := conf[k]; ok {
			return fmt.Errorf("recent log: %q is not configurable, the log keeps the newest %d results", k, schedule.RecentCap)
		}
	}
	return factory.Decode(conf, c)
}

type historyConf struct {
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

func init() {
	_ = stores.Register("memory", func(map[string]any) (schedule.Store, error) {
		return schedule.NewMemoryStore(), nil
	})
	_ = stores.Register("json", func(conf map[string]any) (schedule.Store, error) {
		c := pathConf{Path: "schedules.json"}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewJSONFileStore(c.Path)
	})
	_ = stores.Register("sqlite", func(conf map[string]any) (schedule.Store, error) {
		c := pathConf{Path: "smartwatt.db"}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewSQLiteStore(c.Path)
	})

	_ = recents.Register("memory", func(conf map[string]any) (schedule.RecentLog, error) {
		var c recentConf
		if err := decodeRecent(conf, &c); err != nil {
			return nil, err
		}
		return schedule.NewMemoryRecent(), nil
	})
	_ = recents.Register("json", func(conf map[string]any) (schedule.RecentLog, error) {
		c := recentConf{Path: "recent_optimizations.json"}
		if err := decodeRecent(conf, &c); err != nil {
			return nil, err
		}
		return NewJSONRecentLog(c.Path)
	})
	_ = recents.Register("sqlite", func(conf map[string]any) (schedule.RecentLog, error) {
		c := recentConf{Path: "smartwatt.db"}
		if err := decodeRecent(conf, &c); err != nil {
			return nil, err
		}
		return NewSQLiteStore(c.Path)
	})

	_ = history.Register("none", func(map[string]any) (schedule.History, error) {
		return NopHistory{}, nil
	})
	_ = history.Register("jsonl", func(conf map[string]any) (schedule.History, error) {
		c := historyConf{Path: "history/optimizations.jsonl", MaxSizeMB: 10, MaxBackups: 5, MaxAgeDays: 30}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewHistoryLog(c.Path, c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays)
	})
}

// NewStore creates the schedule backend described by cfg.
func NewStore(cfg factory.ModuleConfig) (schedule.Store, error) {
	if cfg.Type == "" {
		cfg.Type = "json"
	}
	return stores.Create(cfg)
}

// NewRecentLog creates the recent-optimization backend described by cfg.
func NewRecentLog(cfg factory.ModuleConfig) (schedule.RecentLog, error) {
	if cfg.Type == "" {
		cfg.Type = "json"
	}
	return recents.Create(cfg)
}

// NewHistory creates the history backend described by cfg.
func NewHistory(cfg factory.ModuleConfig) (schedule.History, error) {
	if cfg.Type == "" {
		cfg.Type = "none"
	}
	return history.Create(cfg)
}
