// Package metrics provides Prometheus metrics for the routing core.
package metrics

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the routing core.
type Metrics struct {
	// Registry is the Prometheus registry for this metrics instance.
	Registry *prometheus.Registry

	// Routing metrics
	RoundsExecuted prometheus.Histogram
	QueryDuration  prometheus.Histogram
	ResultLabels   prometheus.Histogram
	QueueDepth     *prometheus.HistogramVec

	// Transfer-build metrics
	TransfersBuilt prometheus.Counter

	// transferstore/sqlitestore connection-pool metrics
	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge
	DBConnectionsIdle  prometheus.Gauge
	DBWaitSecondsTotal prometheus.Counter

	// logger for error reporting
	logger *slog.Logger

	// collectorStarted prevents spawning multiple collector goroutines
	collectorStarted atomic.Bool

	// cancel stops the DB stats collector goroutine
	cancel context.CancelFunc

	// wg tracks the DB stats collector goroutine for graceful shutdown
	wg sync.WaitGroup
}

// New creates and registers all routing-core metrics with a new registry.
func New() *Metrics {
	return NewWithLogger(nil)
}

// NewWithLogger creates metrics with a logger for error reporting.
func NewWithLogger(logger *slog.Logger) *Metrics {
	registry := prometheus.NewRegistry()

	roundsExecuted := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tripbased_rounds_executed",
		Help:    "Number of rounds executed per Route call",
		Buckets: prometheus.LinearBuckets(1, 1, 8),
	})

	queryDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tripbased_query_duration_seconds",
		Help:    "Route call latency distribution",
		Buckets: prometheus.DefBuckets,
	})

	resultLabels := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tripbased_result_labels",
		Help:    "Number of Pareto-optimal result labels returned per Route call",
		Buckets: prometheus.LinearBuckets(1, 1, 10),
	})

	queueDepth := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tripbased_queue_depth",
			Help:    "Number of stopping events enqueued per round",
			Buckets: prometheus.ExponentialBuckets(4, 2, 10),
		},
		[]string{"round"},
	)

	transfersBuilt := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tripbased_transfers_built_total",
		Help: "Total number of transfer edges inserted by TransferBuilder",
	})

	dbConnectionsOpen := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tripbased_db_connections_open",
		Help: "Number of open transferstore database connections",
	})

	dbConnectionsInUse := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tripbased_db_connections_in_use",
		Help: "Number of transferstore database connections currently in use",
	})

	dbConnectionsIdle := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tripbased_db_connections_idle",
		Help: "Number of idle transferstore database connections",
	})

	dbWaitSecondsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tripbased_db_wait_seconds_total",
		Help: "Total time blocked waiting for a transferstore database connection",
	})

	registry.MustRegister(
		roundsExecuted,
		queryDuration,
		resultLabels,
		queueDepth,
		transfersBuilt,
		dbConnectionsOpen,
		dbConnectionsInUse,
		dbConnectionsIdle,
		dbWaitSecondsTotal,
	)

	return &Metrics{
		Registry:           registry,
		RoundsExecuted:     roundsExecuted,
		QueryDuration:      queryDuration,
		ResultLabels:       resultLabels,
		QueueDepth:         queueDepth,
		TransfersBuilt:     transfersBuilt,
		DBConnectionsOpen:  dbConnectionsOpen,
		DBConnectionsInUse: dbConnectionsInUse,
		DBConnectionsIdle:  dbConnectionsIdle,
		DBWaitSecondsTotal: dbWaitSecondsTotal,
		logger:             logger,
	}
}

// StartDBStatsCollector starts a goroutine that periodically collects
// transferstore database connection pool statistics. Idempotent — only the
// first call spawns the collector. Call Shutdown to stop it.
func (m *Metrics) StartDBStatsCollector(db *sql.DB, interval time.Duration) {
	if db == nil {
		return
	}

	if !m.collectorStarted.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	var lastWaitDuration time.Duration

	m.wg.Add(1)
	m.cancel = cancel

	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				if m.logger != nil {
					m.logger.Error("panic in DB stats collector", "error", r)
				}
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				stats := db.Stats()
				m.DBConnectionsOpen.Set(float64(stats.OpenConnections))
				m.DBConnectionsInUse.Set(float64(stats.InUse))
				m.DBConnectionsIdle.Set(float64(stats.Idle))

				waitDelta := stats.WaitDuration - lastWaitDuration
				if waitDelta > 0 {
					m.DBWaitSecondsTotal.Add(waitDelta.Seconds())
				}
				lastWaitDuration = stats.WaitDuration

			case <-ctx.Done():
				return
			}
		}
	}()
}

// Shutdown stops the DB stats collector goroutine and waits for it to exit.
// Safe to call multiple times.
func (m *Metrics) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}
