// Package api exposes the planner over a JSON HTTP API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kilianp07/smartwatt/core/logger"
	"github.com/kilianp07/smartwatt/core/planner"
	"github.com/kilianp07/smartwatt/core/schedule"
)

// RequestTimeout bounds every API request. Solves are capped well below it.
const RequestTimeout = 60 * time.Second

// Handler serves the optimization and schedule endpoints.
type Handler struct {
	planner *planner.Planner
	log     logger.Logger
}

// NewHandler returns a handler backed by p.
func NewHandler(p *planner.Planner, log logger.Logger) *Handler {
	return &Handler{planner: p, log: logger.OrNop(log)}
}

// Routes mounts the API on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api", func(r chi.Router) {
		r.Get("/devices", h.handleDevices)
		r.Route("/optimize", func(r chi.Router) {
			r.Post("/device", h.handleOptimizeDevice)
			r.Post("/fleet", h.handleOptimizeFleet)
		})
		r.Route("/schedule", func(r chi.Router) {
			r.Get("/", h.handleScheduleList)
			r.Get("/{device}", h.handleScheduleGet)
			r.Put("/{device}", h.handleSchedulePut)
		})
		r.Route("/optimizations", func(r chi.Router) {
			r.Get("/recent", h.handleRecent)
			r.Get("/history", h.handleHistory)
		})
	})
}

// NewRouter returns a router with the standard middleware stack and the API
// mounted.
func NewRouter(p *planner.Planner, log logger.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(RequestTimeout))
	NewHandler(p, log).Routes(r)
	return r
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps planner and store errors onto HTTP statuses.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, planner.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, schedule.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.log.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
