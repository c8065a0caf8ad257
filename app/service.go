package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kilianp07/smartwatt/api"
	"github.com/kilianp07/smartwatt/config"
	coremetrics "github.com/kilianp07/smartwatt/core/metrics"
	"github.com/kilianp07/smartwatt/core/monitoring"
	"github.com/kilianp07/smartwatt/core/planner"
	"github.com/kilianp07/smartwatt/core/schedule"
	"github.com/kilianp07/smartwatt/core/series"
	"github.com/kilianp07/smartwatt/infra/homeassistant"
	"github.com/kilianp07/smartwatt/infra/logger"
	"github.com/kilianp07/smartwatt/infra/metrics"
	infmon "github.com/kilianp07/smartwatt/infra/monitoring"
	"github.com/kilianp07/smartwatt/infra/mqtt"
	"github.com/kilianp07/smartwatt/infra/solcast"
	"github.com/kilianp07/smartwatt/infra/store"
	"github.com/kilianp07/smartwatt/internal/eventbus"
)

const (
	flushTimeout    = 2 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Service wires the planner to its stores, upstream sources and notifiers.
type Service struct {
	Planner *planner.Planner

	cfg     *config.Config
	cache   *series.Cache
	store   schedule.Store
	recent  schedule.RecentLog
	history schedule.History
	sink    coremetrics.MetricsSink
	mqtt    *mqtt.PahoClient
	bus     *eventbus.Bus
	cancel  context.CancelFunc
	done    []<-chan struct{}
	log     logger.Logger
}

// New creates a Service from the configuration. Bus subscribers (metrics and
// MQTT notifications) start immediately and are drained by Close.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	if err := logger.SetLevel(cfg.Log.Level); err != nil {
		return nil, err
	}
	logg := logger.New("service")

	mon, err := infmon.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, err
	}
	monitoring.Init(mon)

	s := &Service{cfg: cfg, log: logg}
	if err := s.openStores(); err != nil {
		_ = s.closeStores()
		return nil, err
	}

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		_ = s.closeStores()
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	s.sink = sink

	if cfg.MQTT.Enabled() {
		client, err := mqtt.NewPahoClient(cfg.MQTT)
		if err != nil {
			_ = s.closeStores()
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
		s.mqtt = client
	}

	s.cache = series.NewCache(cfg.Cache.Size, cfg.Cache.TTL)
	adapter := s.newAdapter(ctx)

	s.Planner = planner.NewPlanner(cfg.Optimizer, adapter, s.store, s.recent, cfg.Devices, logger.New("planner"))
	s.Planner.SetHistory(s.history)

	s.bus = eventbus.New()
	s.Planner.SetEventBus(s.bus)
	subCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = append(s.done, metrics.StartEventCollector(subCtx, s.bus, s.sink))
	if s.mqtt != nil {
		s.done = append(s.done, mqtt.StartNotifier(subCtx, s.bus, s.mqtt))
	}
	return s, nil
}

func (s *Service) openStores() error {
	var err error
	if s.store, err = store.NewStore(s.cfg.Store); err != nil {
		return fmt.Errorf("schedule store: %w", err)
	}
	if s.recent, err = store.NewRecentLog(s.cfg.Recent); err != nil {
		return fmt.Errorf("recent log: %w", err)
	}
	if s.history, err = store.NewHistory(s.cfg.History); err != nil {
		return fmt.Errorf("history: %w", err)
	}
	return nil
}

// newAdapter builds the series adapter. Disabled sources fall back to the
// configured constants.
func (s *Service) newAdapter(ctx context.Context) *series.Adapter {
	var (
		prices series.PriceSource
		solar  series.SolarSource
	)
	opts := []series.Option{
		series.WithTimeout(s.cfg.Sources.Timeout),
		series.WithLogger(logger.New("series")),
	}
	if s.cfg.Sources.HomeAssistant.Enabled() {
		ha := homeassistant.NewClient(ctx, s.cfg.Sources.HomeAssistant)
		prices = ha
		opts = append(opts, series.WithPowerSource(ha))
	} else {
		s.log.Warnf("home assistant not configured; using fallback prices")
	}
	if s.cfg.Sources.Solcast.Enabled() {
		solar = solcast.NewClient(ctx, s.cfg.Sources.Solcast)
	} else {
		s.log.Warnf("solcast not configured; assuming no solar production")
	}
	return series.NewAdapter(prices, solar, s.cache, s.cfg.Fallback, opts...)
}

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler {
	return api.NewRouter(s.Planner, logger.New("api"))
}

// Run serves the HTTP API and the Prometheus endpoint until ctx is
// canceled.
func (s *Service) Run(ctx context.Context) error {
	defer monitoring.Recover()
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, addr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	srv := &http.Server{
		Addr:         s.cfg.HTTP.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.HTTP.ReadTimeout,
		WriteTimeout: s.cfg.HTTP.WriteTimeout,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("http shutdown: %v", err)
		}
	}()
	s.log.Infof("serving api on %s", s.cfg.HTTP.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close drains pending notifications and releases every resource held by
// the service.
func (s *Service) Close() error {
	if s.bus != nil {
		s.bus.Close()
	}
	timeout := time.After(shutdownTimeout)
wait:
	for _, d := range s.done {
		select {
		case <-d:
		case <-timeout:
			s.log.Warnf("bus subscribers did not stop in time")
			break wait
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.mqtt != nil {
		s.mqtt.Disconnect()
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	if s.cache != nil {
		s.cache.Purge()
	}
	monitoring.Flush(flushTimeout)
	return s.closeStores()
}

func (s *Service) closeStores() error {
	var errs []error
	for _, c := range []interface{ Close() error }{s.store, s.recent, s.history} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
