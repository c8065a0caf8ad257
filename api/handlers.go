package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kilianp07/smartwatt/core/model"
	"github.com/kilianp07/smartwatt/core/planner"
	"github.com/kilianp07/smartwatt/core/schedule"
)

func (h *Handler) handleDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.planner.Devices())
}

func (h *Handler) handleOptimizeDevice(w http.ResponseWriter, r *http.Request) {
	var req planner.DeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.planner.OptimizeDevice(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleOptimizeFleet(w http.ResponseWriter, r *http.Request) {
	apply := false
	if v := r.URL.Query().Get("apply"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "apply must be a boolean")
			return
		}
		apply = b
	}
	res, err := h.planner.OptimizeFleet(r.Context(), apply)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleScheduleList(w http.ResponseWriter, r *http.Request) {
	s, err := h.planner.Schedule(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) handleScheduleGet(w http.ResponseWriter, r *http.Request) {
	e, err := h.planner.ScheduleFor(r.Context(), chi.URLParam(r, "device"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) handleSchedulePut(w http.ResponseWriter, r *http.Request) {
	device := chi.URLParam(r, "device")
	var e schedule.Entry
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.planner.SetSchedule(r.Context(), device, e); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) handleRecent(w http.ResponseWriter, r *http.Request) {
	items, err := h.planner.Recent(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if items == nil {
		items = []model.OptimizationResult{}
	}
	writeJSON(w, http.StatusOK, items)
}

// handleHistory filters by device, status and an RFC3339 since/until range.
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := schedule.HistoryQuery{
		Device: r.URL.Query().Get("device"),
		Status: model.Status(r.URL.Query().Get("status")),
	}
	var err error
	if q.Start, err = parseTime(r.URL.Query().Get("since")); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if q.End, err = parseTime(r.URL.Query().Get("until")); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, err := h.planner.History(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if items == nil {
		items = []model.OptimizationResult{}
	}
	writeJSON(w, http.StatusOK, items)
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q", v)
	}
	return t, nil
}
