package series

import (
	"context"
	"time"

	"github.com/kilianp07/smartwatt/core/logger"
	"github.com/kilianp07/smartwatt/core/model"
)

// PriceSource returns the recent grid price history, one value per slot.
type PriceSource interface {
	Prices(ctx context.Context) (model.PriceSeries, error)
}

// SolarSource returns the solar production forecast, one value per slot.
type SolarSource interface {
	Solar(ctx context.Context) (model.SolarSeries, error)
}

// PowerSource returns the measured average draw of a sensor in watts.
type PowerSource interface {
	AveragePower(ctx context.Context, sensor string) (float64, error)
}

const (
	keyPrices = "prices"
	keySolar  = "solar"
	keyPower  = "power:"
)

// Adapter fetches upstream series, applies fallbacks and aligns them.
// Each upstream call is attempted once per Fetch; failures are logged and
// replaced by fallbacks.
type Adapter struct {
	prices   PriceSource
	solar    SolarSource
	power    PowerSource
	cache    *Cache
	fallback Fallback
	timeout  time.Duration
	log      logger.Logger
}

// Option customises an Adapter.
type Option func(*Adapter)

// WithPowerSource enables measured power lookups for devices with a sensor.
func WithPowerSource(p PowerSource) Option {
	return func(a *Adapter) { a.power = p }
}

// WithTimeout bounds each upstream call.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.timeout = d }
}

// WithLogger sets the adapter logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Adapter) { a.log = logger.OrNop(l) }
}

// NewAdapter creates an Adapter. Any source may be nil, in which case its
// fallback is always used. cache may be nil to disable caching.
func NewAdapter(prices PriceSource, solar SolarSource, cache *Cache, fb Fallback, opts ...Option) *Adapter {
	a := &Adapter{
		prices:   prices,
		solar:    solar,
		cache:    cache,
		fallback: fb.withDefaults(),
		timeout:  10 * time.Second,
		log:      logger.NopLogger{},
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Fetch returns aligned series. It never fails: unavailable data becomes the
// configured fallback.
func (a *Adapter) Fetch(ctx context.Context) model.Aligned {
	prices := a.fetch(ctx, keyPrices, func(ctx context.Context) ([]float64, error) {
		if a.prices == nil {
			return nil, nil
		}
		return a.prices.Prices(ctx)
	})
	solar := a.fetch(ctx, keySolar, func(ctx context.Context) ([]float64, error) {
		if a.solar == nil {
			return nil, nil
		}
		return a.solar.Solar(ctx)
	})
	out := Align(prices, solar, a.fallback)
	if out.PriceFallback {
		a.log.Warnf("price series unavailable, using constant %.2f over %d slots", a.fallback.Price, a.fallback.Length)
	}
	if out.SolarFallback {
		a.log.Warnf("solar forecast unavailable, assuming no production over %d slots", a.fallback.Length)
	}
	return out
}

// ResolveDevices fills in measured power for devices that declare a sensor
// and leave PowerW unset. Failed lookups keep the device default.
func (a *Adapter) ResolveDevices(ctx context.Context, devices []model.Device) []model.Device {
	out := make([]model.Device, len(devices))
	copy(out, devices)
	if a.power == nil {
		return out
	}
	for i, d := range out {
		if d.PowerW > 0 || d.Sensor == "" {
			continue
		}
		vals := a.fetch(ctx, keyPower+d.Sensor, func(ctx context.Context) ([]float64, error) {
			p, err := a.power.AveragePower(ctx, d.Sensor)
			if err != nil {
				return nil, err
			}
			return []float64{p}, nil
		})
		if len(vals) == 1 && vals[0] > 0 {
			out[i].PowerW = vals[0]
		} else {
			a.log.Debugw("using default device power", map[string]any{"device": d.ID, "power_w": model.DefaultPowerW})
		}
	}
	return out
}

// Invalidate forgets cached upstream data so the next Fetch goes upstream.
func (a *Adapter) Invalidate() {
	a.cache.Invalidate(keyPrices)
	a.cache.Invalidate(keySolar)
}

func (a *Adapter) fetch(ctx context.Context, key string, get func(context.Context) ([]float64, error)) []float64 {
	if v, ok := a.cache.Get(key); ok {
		return v
	}
	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	v, err := get(cctx)
	if err != nil {
		a.log.Errorf("fetch %s: %v", key, err)
		return nil
	}
	if len(v) > 0 {
		a.cache.Add(key, v)
	}
	return v
}
