package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"autodecide/internal/logger"
	"autodecide/internal/pkg/circuit"

	"golang.org/x/time/rate"
)

var (
	ErrRateLimited = errors.New("notification rate limited")
	ErrCircuitOpen = circuit.ErrOpen
)

// DispatcherConfig bounds delivery per sink.
type DispatcherConfig struct {
	RatePerMinute    int
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

type route struct {
	sink    Sink
	limiter *rate.Limiter
	breaker *circuit.Breaker
}

// Dispatcher fans a notification out to every sink. A slow or failing sink
// does not block the others from being tried; failures are joined.
type Dispatcher struct {
	routes []route
}

func NewDispatcher(cfg DispatcherConfig, sinks ...Sink) *Dispatcher {
	d := &Dispatcher{}
	for _, s := range sinks {
		if s == nil {
			continue
		}
		var limiter *rate.Limiter
		if cfg.RatePerMinute > 0 {
			limiter = rate.NewLimiter(rate.Limit(float64(cfg.RatePerMinute)/60.0), cfg.RatePerMinute)
		}
		d.routes = append(d.routes, route{
			sink:    s,
			limiter: limiter,
			breaker: circuit.New("notify:"+s.Name(), cfg.BreakerThreshold, cfg.BreakerCooldown),
		})
	}
	return d
}

// Sinks lists the registered sink names in dispatch order.
func (d *Dispatcher) Sinks() []string {
	out := make([]string, 0, len(d.routes))
	for _, r := range d.routes {
		out = append(out, r.sink.Name())
	}
	return out
}

func (d *Dispatcher) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, r := range d.routes {
		if err := d.deliver(ctx, r, n); err != nil {
			logger.Warnf("Notifier: sink %s failed: %v", r.sink.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", r.sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) deliver(ctx context.Context, r route, n Notification) error {
	if r.limiter != nil && !r.limiter.Allow() {
		return ErrRateLimited
	}
	return r.breaker.Do(ctx, func(ctx context.Context) error {
		return r.sink.Send(ctx, n)
	})
}
