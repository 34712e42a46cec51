package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsByStatus tracks the number of registered sessions per status
	SessionsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "botkeeper_sessions",
			Help: "Number of registered sessions by status",
		},
		[]string{"status"},
	)

	// SessionEvents tracks lifecycle events received from sessions
	SessionEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botkeeper_session_events_total",
			Help: "Total number of session lifecycle events",
		},
		[]string{"event"},
	)

	// ClassifiedErrors tracks failures by scope (session, process) and class
	ClassifiedErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botkeeper_classified_errors_total",
			Help: "Total number of failures by scope and classification",
		},
		[]string{"scope", "class"},
	)

	// Reconnects tracks reconnect outcomes by trigger (manual, sweep)
	Reconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botkeeper_reconnects_total",
			Help: "Total number of reconnects",
		},
		[]string{"trigger", "result"},
	)

	// Sweeps tracks periodic full-pool reconnect sweeps
	Sweeps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "botkeeper_sweeps_total",
			Help: "Total number of periodic reconnect sweeps",
		},
	)

	// SnapshotWrites tracks snapshot writes by backend and result
	SnapshotWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botkeeper_snapshot_writes_total",
			Help: "Total number of snapshot writes",
		},
		[]string{"backend", "result"},
	)

	// SnapshotSize tracks the number of parameters in the last written snapshot
	SnapshotSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "botkeeper_snapshot_entries",
			Help: "Number of entries in the last written snapshot",
		},
	)

	// DBConnectionPoolUsage tracks the usage percentage of the database connection pool
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "botkeeper_db_connection_pool_usage_percent",
			Help: "Percentage of used database connections",
		},
	)
)
