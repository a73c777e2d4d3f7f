package guards

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"qxbot/pkg/broker"
)

var (
	metricOrdersAttempted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "qxbot_orders_attempted_total", Help: "Orders the engine tried to place"})
	metricOrdersPlaced = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "qxbot_orders_placed_total", Help: "Orders accepted by the broker"})
	metricOrdersFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "qxbot_orders_failed_total", Help: "Orders the broker rejected or that failed in transit"})
	metricOrdersSuppressed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "qxbot_orders_suppressed_total", Help: "Orders blocked by the safety layer (rate cap or duplicate window)"})
	metricRateWindow = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "qxbot_orders_in_last_minute", Help: "Orders counted in the current minute window"})

	registerOnce sync.Once
)

func registerMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			metricOrdersAttempted, metricOrdersPlaced,
			metricOrdersFailed, metricOrdersSuppressed, metricRateWindow,
		)
	})
}

// SafeBroker wraps a broker provider with a per-minute submission cap and a
// duplicate-order suppression window. It only intercepts SubmitOrder; every
// other call passes straight through to the inner provider.
type SafeBroker struct {
	broker.Provider

	perMinuteCap int
	dupWindow    time.Duration
	nowFn        func() time.Time

	mu           sync.Mutex
	orderTimes   []time.Time
	lastOrderKey string
	lastOrderAt  time.Time
}

// Option customises a SafeBroker.
type Option func(*SafeBroker)

// WithClock injects a deterministic time source.
func WithClock(now func() time.Time) Option {
	return func(s *SafeBroker) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// New wraps inner with the safety layer. perMinuteCap <= 0 disables the rate
// cap; dupWindow <= 0 disables duplicate suppression.
func New(inner broker.Provider, perMinuteCap int, dupWindow time.Duration, opts ...Option) *SafeBroker {
	registerMetrics()
	s := &SafeBroker{
		Provider:     inner,
		perMinuteCap: perMinuteCap,
		dupWindow:    dupWindow,
		nowFn:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func orderKey(req broker.OrderRequest) string {
	return fmt.Sprintf("%s|%s|%.2f", req.Instrument, req.Direction, req.Amount)
}

// SubmitOrder applies the safety checks before delegating to the venue.
func (s *SafeBroker) SubmitOrder(ctx context.Context, req broker.OrderRequest) (*broker.OrderReceipt, error) {
	metricOrdersAttempted.Inc()
	now := s.nowFn()

	if err := s.admit(now, req); err != nil {
		metricOrdersSuppressed.Inc()
		return nil, err
	}

	receipt, err := s.Provider.SubmitOrder(ctx, req)
	if err != nil {
		metricOrdersFailed.Inc()
		return nil, err
	}
	metricOrdersPlaced.Inc()
	return receipt, nil
}

func (s *SafeBroker) admit(now time.Time, req broker.OrderRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dupWindow > 0 {
		key := orderKey(req)
		if key == s.lastOrderKey && now.Sub(s.lastOrderAt) < s.dupWindow {
			return broker.NewError(broker.KindRejected, "submit order",
				fmt.Errorf("guards: duplicate order within %s", s.dupWindow))
		}
	}

	if s.perMinuteCap > 0 {
		cutoff := now.Add(-time.Minute)
		kept := s.orderTimes[:0]
		for _, t := range s.orderTimes {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		s.orderTimes = kept
		metricRateWindow.Set(float64(len(s.orderTimes)))
		if len(s.orderTimes) >= s.perMinuteCap {
			return broker.NewError(broker.KindRejected, "submit order",
				fmt.Errorf("guards: per-minute cap %d reached", s.perMinuteCap))
		}
	}

	s.orderTimes = append(s.orderTimes, now)
	s.lastOrderKey = orderKey(req)
	s.lastOrderAt = now
	metricRateWindow.Set(float64(len(s.orderTimes)))
	return nil
}
