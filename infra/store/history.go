package store

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kilianp07/smartwatt/core/model"
	"github.com/kilianp07/smartwatt/core/schedule"
)

// HistoryLog appends every optimization result to a JSONL file with
// size-based rotation.
type HistoryLog struct {
	mu     sync.Mutex
	writer *lumberjack.Logger
	path   string
}

// NewHistoryLog creates a history writer. Sizes are in megabytes, age in days.
func NewHistoryLog(path string, maxSizeMB, maxBackups, maxAgeDays int) (*HistoryLog, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
	}
	return &HistoryLog{writer: lj, path: path}, nil
}

// Append writes r as one line.
func (h *HistoryLog) Append(_ context.Context, r model.OptimizationResult) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return json.NewEncoder(h.writer).Encode(r)
}

// Query reads the current and rotated files and returns matching results in
// chronological order.
func (h *HistoryLog) Query(ctx context.Context, q schedule.HistoryQuery) ([]model.OptimizationResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ext := filepath.Ext(h.path)
	base := h.path[:len(h.path)-len(ext)]
	files, err := filepath.Glob(base + "*" + ext)
	if err != nil {
		return nil, err
	}
	var res []model.OptimizationResult
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		file, err := os.Open(f)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			var r model.OptimizationResult
			if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
				continue
			}
			if q.Match(r) {
				res = append(res, r)
			}
		}
		_ = file.Close()
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

// Close closes the underlying writer.
func (h *HistoryLog) Close() error {
	return h.writer.Close()
}

// NopHistory discards results.
type NopHistory struct{}

func (NopHistory) Append(context.Context, model.OptimizationResult) error { return nil }
func (NopHistory) Query(context.Context, schedule.HistoryQuery) ([]model.OptimizationResult, error) {
	return nil, nil
}
func (NopHistory) Close() error { return nil }
