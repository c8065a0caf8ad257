package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/kilianp07/smartwatt/core/model"
	"github.com/kilianp07/smartwatt/core/schedule"
)

// JSONFileStore keeps the schedule in a single JSON object keyed by device,
// the file read by the control loop.
type JSONFileStore struct {
	path string
	mu   sync.Mutex
}

// NewJSONFileStore ensures the directory of path exists. A missing file reads
// as an empty schedule.
func NewJSONFileStore(path string) (*JSONFileStore, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	return &JSONFileStore{path: path}, nil
}

func (s *JSONFileStore) Get(_ context.Context, device string) (schedule.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.load()
	if err != nil {
		return schedule.Entry{}, err
	}
	e, ok := all[device]
	if !ok {
		return schedule.Entry{}, fmt.Errorf("%w: %s", schedule.ErrNotFound, device)
	}
	return e, nil
}

func (s *JSONFileStore) Put(ctx context.Context, device string, e schedule.Entry) error {
	return s.PutAll(ctx, schedule.Schedule{device: e})
}

// PutAll merges entries into the stored mapping and rewrites the file.
func (s *JSONFileStore) PutAll(_ context.Context, entries schedule.Schedule) error {
	for dev, e := range entries {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("%s: %w", dev, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.load()
	if err != nil {
		return err
	}
	all.Merge(entries)
	return writeJSON(s.path, all)
}

func (s *JSONFileStore) All(context.Context) (schedule.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *JSONFileStore) Close() error { return nil }

func (s *JSONFileStore) load() (schedule.Schedule, error) {
	out := schedule.Schedule{}
	if err := readJSON(s.path, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = schedule.Schedule{}
	}
	return out, nil
}

// JSONRecentLog keeps the recent optimizations as a JSON array, newest first.
type JSONRecentLog struct {
	path string
	mu   sync.Mutex
}

// NewJSONRecentLog returns a log at path keeping the newest
// schedule.RecentCap entries.
func NewJSONRecentLog(path string) (*JSONRecentLog, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	return &JSONRecentLog{path: path}, nil
}

func (l *JSONRecentLog) Record(_ context.Context, r model.OptimizationResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var items []model.OptimizationResult
	if err := readJSON(l.path, &items); err != nil {
		return err
	}
	return writeJSON(l.path, schedule.Prepend(items, r))
}

func (l *JSONRecentLog) List(context.Context) ([]model.OptimizationResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var items []model.OptimizationResult
	if err := readJSON(l.path, &items); err != nil {
		return nil, err
	}
	if len(items) > schedule.RecentCap {
		items = items[:schedule.RecentCap]
	}
	return items, nil
}

func (l *JSONRecentLog) Close() error { return nil }

func ensureDir(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}

// readJSON decodes path into v. Missing and empty files leave v unchanged.
func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// writeJSON replaces path atomically through a temporary file in the same
// directory.
func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
