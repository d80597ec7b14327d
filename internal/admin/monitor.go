package admin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fornolabs/expedite/internal/alert"
	"github.com/fornolabs/expedite/internal/config"
	"github.com/fornolabs/expedite/internal/failure"
	logpkg "github.com/fornolabs/expedite/pkg/log"
)

// Monitor samples queue health on an interval and raises operator alerts:
// a DLQ backlog at or above the configured threshold, and a failure rate
// (new failure records per second over the sampling window) at or above the
// configured rate.
type Monitor struct {
	backend  Backend
	failures *failure.Store
	alerts   *alert.Emitter
	cfg      config.Config
	logger   logpkg.Logger

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewMonitor wires a Monitor. Call Start to begin sampling.
func NewMonitor(backend Backend, failures *failure.Store, alerts *alert.Emitter, cfg config.Config, logger logpkg.Logger) *Monitor {
	if logger == nil {
		logger = logpkg.NewNop()
	}
	return &Monitor{
		backend:  backend,
		failures: failures,
		alerts:   alerts,
		cfg:      cfg,
		logger:   logger.With(logpkg.Component("monitor")),
		stop:     make(chan struct{}),
	}
}

func (m *Monitor) interval() time.Duration {
	iv := time.Duration(m.cfg.Alerts.MonitorIntervalSeconds) * time.Second
	if iv <= 0 {
		iv = time.Minute
	}
	return iv
}

// Start launches the sampling loop.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		t := time.NewTicker(m.interval())
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-t.C:
				m.sampleOnce(ctx, time.Now().UnixMilli())
			}
		}
	}()
}

// Stop halts the loop and waits for it.
func (m *Monitor) Stop() {
	m.once.Do(func() { close(m.stop) })
	m.wg.Wait()
}

func (m *Monitor) sampleOnce(ctx context.Context, nowMs int64) {
	threshold := m.cfg.Alerts.DLQBacklogThreshold
	if threshold > 0 {
		for _, q := range m.cfg.Queues {
			st, err := m.backend.Stats(q.DLQName)
			if err != nil {
				m.logger.Warn("dlq stats failed", logpkg.Str("queue", q.DLQName), logpkg.Err(err))
				continue
			}
			depth := st.Visible + st.Delayed
			if depth < threshold {
				continue
			}
			m.logger.Warn("dlq backlog over threshold",
				logpkg.Str("queue", q.DLQName), logpkg.Int("depth", depth), logpkg.Int("threshold", threshold))
			m.alerts.Emit(ctx, alert.Payload{
				AlertType: alert.TypeDLQBacklog,
				Message:   fmt.Sprintf("%s backlog at %d (threshold %d)", q.DLQName, depth, threshold),
				Details:   map[string]any{"queue": q.DLQName, "depth": depth, "threshold": threshold},
			})
		}
	}

	rateThreshold := m.cfg.Alerts.FailureRateThreshold
	if rateThreshold <= 0 || m.failures == nil {
		return
	}
	windowMs := m.interval().Milliseconds()
	count, err := m.failures.CountSince(nowMs - windowMs)
	if err != nil {
		m.logger.Warn("failure count failed", logpkg.Err(err))
		return
	}
	rate := float64(count) / (float64(windowMs) / 1000.0)
	if rate < rateThreshold {
		return
	}
	m.logger.Warn("failure rate over threshold", logpkg.Int("failures", count), logpkg.F("rate", rate))
	m.alerts.Emit(ctx, alert.Payload{
		AlertType: alert.TypeFailureRate,
		Message:   fmt.Sprintf("%d job failures in the last %s", count, m.interval()),
		Details:   map[string]any{"failures": count, "ratePerSecond": rate, "threshold": rateThreshold},
	})
}
