package planner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/smartwatt/core/events"
	"github.com/kilianp07/smartwatt/core/logger"
	"github.com/kilianp07/smartwatt/core/model"
	"github.com/kilianp07/smartwatt/core/monitoring"
	"github.com/kilianp07/smartwatt/core/optimizer"
	"github.com/kilianp07/smartwatt/core/schedule"
	"github.com/kilianp07/smartwatt/core/series"
	"github.com/kilianp07/smartwatt/internal/eventbus"
)

// Series supplies aligned input data and resolves device power.
type Series interface {
	Fetch(ctx context.Context) model.Aligned
	ResolveDevices(ctx context.Context, devices []model.Device) []model.Device
}

// Planner runs optimizations and keeps the schedule, the recency log and the
// history in step with their results. Solves run without holding any lock.
type Planner struct {
	cfg     optimizer.Config
	series  Series
	window  *optimizer.WindowOptimizer
	fleet   *optimizer.FleetOptimizer
	store   schedule.Store
	recent  schedule.RecentLog
	devices []model.Device
	log     logger.Logger
	now     func() time.Time

	mu      sync.Mutex
	history schedule.History
	bus     eventbus.EventBus
}

// NewPlanner returns a planner over the given device catalog.
func NewPlanner(cfg optimizer.Config, src Series, store schedule.Store, recent schedule.RecentLog, devices []model.Device, log logger.Logger) *Planner {
	cfg.SetDefaults()
	log = logger.OrNop(log)
	cat := make([]model.Device, len(devices))
	copy(cat, devices)
	return &Planner{
		cfg:     cfg,
		series:  src,
		window:  optimizer.NewWindowOptimizer(cfg.Solver, log.With(map[string]any{"optimizer": "window"})),
		fleet:   optimizer.NewFleetOptimizer(cfg.Solver, log.With(map[string]any{"optimizer": "fleet"})),
		store:   store,
		recent:  recent,
		devices: cat,
		log:     log,
		now:     time.Now,
	}
}

// SetHistory configures the store receiving every result.
func (p *Planner) SetHistory(h schedule.History) {
	p.mu.Lock()
	p.history = h
	p.mu.Unlock()
}

// SetEventBus configures the bus on which results and schedule changes are
// published.
func (p *Planner) SetEventBus(bus eventbus.EventBus) {
	p.mu.Lock()
	p.bus = bus
	p.mu.Unlock()
}

func (p *Planner) publish(ev eventbus.Event) {
	p.mu.Lock()
	bus := p.bus
	p.mu.Unlock()
	if bus != nil {
		bus.Publish(ev)
	}
}

// Devices returns the configured device catalog.
func (p *Planner) Devices() []model.Device {
	out := make([]model.Device, len(p.devices))
	copy(out, p.devices)
	return out
}

// fetch loads the input series and announces substituted fallbacks.
func (p *Planner) fetch(ctx context.Context) model.Aligned {
	a := p.series.Fetch(ctx)
	if a.PriceFallback {
		p.publish(events.FallbackEvent{Source: "prices", Slots: a.Len()})
	}
	if a.SolarFallback {
		p.publish(events.FallbackEvent{Source: "solar", Slots: a.Len()})
	}
	return a
}

// OptimizeDevice finds the cheapest run of one device inside the requested
// window. Invalid windows and infeasible problems are returned as results with
// the Invalid or N/A markers and leave the schedule untouched. Accepted
// results replace the device entry in the schedule. Only unexpected solver or
// store failures are returned as errors.
func (p *Planner) OptimizeDevice(ctx context.Context, req DeviceRequest) (model.OptimizationResult, error) {
	if err := req.Validate(); err != nil {
		return model.OptimizationResult{}, err
	}
	began := time.Now()
	res := model.OptimizationResult{
		ID:            uuid.NewString(),
		Device:        req.Device,
		Kind:          model.KindDevice,
		DurationHours: req.hours(),
		Start:         req.Start,
		End:           req.End,
		Priority:      req.Priority,
		CreatedAt:     p.now(),
	}

	aligned := p.fetch(ctx)
	grid := p.cfg.Grid.WithSlots(aligned.Len())
	// Clocks were validated above.
	startSlot, _ := grid.SlotOf(req.Start)
	endSlot, _ := grid.SlotOf(req.End)
	d := grid.DurationSlots(req.hours())

	block, err := p.window.Optimize(ctx, series.Weights(aligned), model.Window{Start: startSlot, End: endSlot}, d)
	switch {
	case errors.Is(err, optimizer.ErrInvalidWindow), errors.Is(err, optimizer.ErrInvalidDuration):
		p.log.Infof("%s: %v", req.Device, err)
		res.MarkInvalid()
	case errors.Is(err, optimizer.ErrInfeasible):
		p.log.Warnf("%s: %v", req.Device, err)
		res.MarkInfeasible()
	case err != nil:
		return model.OptimizationResult{}, p.fail(err, req.Device, model.KindDevice)
	default:
		res.OptimalStart, res.OptimalEnd = block.Clocks(grid)
		res.Cost = block.Weight
		res.Status = model.StatusOptimal
		if !block.Optimal {
			res.Status = model.StatusIncumbent
		}
		entry := schedule.Entry{Start: res.OptimalStart, End: res.OptimalEnd}
		if err := p.store.Put(ctx, req.Device, entry); err != nil {
			return model.OptimizationResult{}, p.fail(fmt.Errorf("store: %w", err), req.Device, model.KindDevice)
		}
		p.announce(req.Device, entry, OriginOptimizer)
	}

	if err := p.recent.Record(ctx, res); err != nil {
		p.log.Errorf("record recent %s: %v", res.ID, err)
		monitoring.CaptureException(err, map[string]string{"module": "planner", "op": "recent"})
	}
	p.appendHistory(ctx, res)
	p.publish(events.OptimizationEvent{Result: res, Nodes: block.Nodes, Latency: time.Since(began)})
	p.log.Infow("device optimization", map[string]any{
		"device": res.Device, "status": string(res.Status), "start": res.OptimalStart, "end": res.OptimalEnd,
	})
	return res, nil
}

// OptimizeFleet plans every catalog device over the day grid. Durations come
// from the catalog unless the stored entry of a device carries an override.
// With apply set the recommended windows are written to the schedule.
func (p *Planner) OptimizeFleet(ctx context.Context, apply bool) (FleetResult, error) {
	began := time.Now()
	now := p.now()
	out := FleetResult{ID: uuid.NewString(), Schedule: schedule.Schedule{}}

	aligned := p.fetch(ctx)
	T := min(aligned.Len(), p.cfg.FleetGrid.Slots)
	grid := p.cfg.FleetGrid.WithSlots(T)

	stored, err := p.store.All(ctx)
	if err != nil {
		return FleetResult{}, p.fail(fmt.Errorf("store: %w", err), FleetDeviceID, model.KindFleet)
	}
	resolved := p.series.ResolveDevices(ctx, p.devices)
	fds := make([]optimizer.FleetDevice, len(resolved))
	for i, d := range resolved {
		hours := d.Duration()
		if e, ok := stored[d.ID]; ok && e.Duration != nil {
			hours = *e.Duration
		}
		fds[i] = optimizer.FleetDevice{Device: d, Slots: grid.DurationSlots(hours)}
	}

	plan, err := p.fleet.Optimize(ctx, fds, aligned.Prices[:T], aligned.Solar[:T])
	switch {
	case errors.Is(err, optimizer.ErrInvalidDuration):
		out.Status, out.Reason = model.StatusInvalid, err.Error()
	case errors.Is(err, optimizer.ErrInfeasible):
		out.Status, out.Reason = model.StatusInfeasible, err.Error()
	case err != nil:
		return FleetResult{}, p.fail(err, FleetDeviceID, model.KindFleet)
	default:
		out.Plan = plan
		out.Status = model.StatusOptimal
		if !plan.Optimal {
			out.Status = model.StatusIncumbent
		}
		for _, a := range plan.Assignments {
			start, end := a.Clocks(grid)
			out.Schedule[a.Device] = schedule.Entry{Start: start, End: end}
		}
	}
	if !out.Status.Accepted() {
		p.log.Warnf("fleet plan rejected: %s", out.Reason)
	}

	for _, fd := range fds {
		r := model.OptimizationResult{
			ID:            out.ID,
			Device:        fd.Device.ID,
			Kind:          model.KindFleet,
			DurationHours: float64(fd.Slots*grid.Width) / 60,
			Status:        out.Status,
			CreatedAt:     now,
		}
		switch out.Status {
		case model.StatusInvalid:
			r.MarkInvalid()
		case model.StatusInfeasible:
			r.MarkInfeasible()
		default:
			if e, ok := out.Schedule[fd.Device.ID]; ok {
				r.OptimalStart, r.OptimalEnd = e.Start, e.End
			}
		}
		p.appendHistory(ctx, r)
	}

	if apply && out.Status.Accepted() {
		if err := p.Apply(ctx, out.Schedule, OriginPlan); err != nil {
			return FleetResult{}, err
		}
		out.Applied = true
	}

	p.publish(events.OptimizationEvent{
		Result: model.OptimizationResult{
			ID: out.ID, Device: FleetDeviceID, Kind: model.KindFleet, Status: out.Status, Cost: plan.Cost, CreatedAt: now,
		},
		Nodes:   plan.Nodes,
		Latency: time.Since(began),
	})
	p.log.Infow("fleet optimization", map[string]any{
		"status": string(out.Status), "devices": len(out.Schedule), "cost": plan.Cost, "applied": out.Applied,
	})
	return out, nil
}

// Apply writes every entry of s and announces each change. Entries of devices
// absent from s are kept.
func (p *Planner) Apply(ctx context.Context, s schedule.Schedule, origin string) error {
	if len(s) == 0 {
		return nil
	}
	for dev, e := range s {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrBadRequest, dev, err)
		}
	}
	if err := p.store.PutAll(ctx, s); err != nil {
		return p.fail(fmt.Errorf("store: %w", err), FleetDeviceID, model.KindFleet)
	}
	for _, dev := range s.Devices() {
		p.announce(dev, s[dev], origin)
	}
	return nil
}

// SetSchedule writes a manual entry for device.
func (p *Planner) SetSchedule(ctx context.Context, device string, e schedule.Entry) error {
	if device == "" {
		return fmt.Errorf("%w: device is required", ErrBadRequest)
	}
	if err := e.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if err := p.store.Put(ctx, device, e); err != nil {
		return err
	}
	p.announce(device, e, OriginManual)
	return nil
}

// Schedule returns the persisted schedule.
func (p *Planner) Schedule(ctx context.Context) (schedule.Schedule, error) {
	return p.store.All(ctx)
}

// ScheduleFor returns the entry of one device.
func (p *Planner) ScheduleFor(ctx context.Context, device string) (schedule.Entry, error) {
	return p.store.Get(ctx, device)
}

// Recent returns the recency log, newest first.
func (p *Planner) Recent(ctx context.Context) ([]model.OptimizationResult, error) {
	return p.recent.List(ctx)
}

// History returns the recorded results matching q. Without a history store
// it returns nothing.
func (p *Planner) History(ctx context.Context, q schedule.HistoryQuery) ([]model.OptimizationResult, error) {
	p.mu.Lock()
	h := p.history
	p.mu.Unlock()
	if h == nil {
		return nil, nil
	}
	return h.Query(ctx, q)
}

func (p *Planner) appendHistory(ctx context.Context, r model.OptimizationResult) {
	p.mu.Lock()
	h := p.history
	p.mu.Unlock()
	if h == nil {
		return
	}
	if err := h.Append(ctx, r); err != nil {
		p.log.Errorf("append history %s: %v", r.ID, err)
	}
}

func (p *Planner) announce(device string, e schedule.Entry, origin string) {
	p.publish(events.ScheduleChangedEvent{Device: device, Start: e.Start, End: e.End, Origin: origin, Time: p.now()})
}

// fail reports an unexpected error and wraps it for the caller.
func (p *Planner) fail(err error, device string, kind model.Kind) error {
	p.log.Errorf("%s optimization of %s failed: %v", kind, device, err)
	monitoring.CaptureException(err, map[string]string{"module": "planner", "device": device, "kind": kind.String()})
	return fmt.Errorf("optimize %s: %w", device, err)
}
