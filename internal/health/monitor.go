package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vietddude/botkeeper/internal/core/domain"
	"github.com/vietddude/botkeeper/internal/core/session"
	"github.com/vietddude/botkeeper/internal/metrics"
)

// Pool is the read side of the session registry.
type Pool interface {
	List() []*session.Handle
	Params() []domain.Params
}

// StoreChecker pings a networked snapshot backend.
type StoreChecker interface {
	Health(ctx context.Context) error
}

// Monitor aggregates pool status and keeps the session gauges current.
type Monitor struct {
	pool       Pool
	store      StoreChecker
	backend    string
	clock      clockwork.Clock
	cacheTTL   time.Duration
	lastCheck  time.Time
	lastReport HealthReport
	listeners  []func(SystemStatus)
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor. store may be nil for local backends.
func NewMonitor(pool Pool, store StoreChecker, backend string, clock clockwork.Clock) *Monitor {
	return &Monitor{
		pool:     pool,
		store:    store,
		backend:  backend,
		clock:    clock,
		cacheTTL: 2 * time.Second,
	}
}

// OnChange registers fn to be called with the status after every check.
func (m *Monitor) OnChange(fn func(SystemStatus)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// CheckHealth evaluates the pool. Results are cached briefly so that
// frequent probes do not ping the store each time.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.lastCheck.IsZero() && m.clock.Since(m.lastCheck) < m.cacheTTL {
		return m.lastReport
	}

	report := HealthReport{
		SystemStatus: StatusHealthy,
		ByStatus:     make(map[string]int, len(domain.AllStatuses)),
		Store:        StoreHealth{Backend: m.backend, OK: true},
	}
	for _, s := range domain.AllStatuses {
		report.ByStatus[string(s)] = 0
	}

	handles := m.pool.List()
	for _, h := range handles {
		report.ByStatus[string(h.Status())]++
	}
	report.Total = len(m.pool.Params())
	report.Reconnecting = report.Total - len(handles)

	if m.store != nil {
		if err := m.store.Health(ctx); err != nil {
			report.Store.OK = false
			report.Store.Error = err.Error()
		}
	}

	online := report.ByStatus[string(domain.StatusOnline)]
	switch {
	case report.Total > 0 && online == 0 && report.Reconnecting == 0 &&
		report.ByStatus[string(domain.StatusConnecting)] == 0:
		report.SystemStatus = StatusCritical
	case !report.Store.OK || online < report.Total:
		report.SystemStatus = StatusDegraded
	}

	for status, n := range report.ByStatus {
		metrics.SessionsByStatus.WithLabelValues(status).Set(float64(n))
	}

	if report.SystemStatus != m.lastReport.SystemStatus {
		slog.Info("Pool health changed", "from", m.lastReport.SystemStatus, "to", report.SystemStatus,
			"online", online, "total", report.Total)
	}
	for _, fn := range m.listeners {
		fn(report.SystemStatus)
	}

	m.lastCheck = m.clock.Now()
	m.lastReport = report
	return report
}

// Start refreshes the report on every interval until ctx is done.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()

	m.CheckHealth(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			m.CheckHealth(ctx)
		}
	}
}
