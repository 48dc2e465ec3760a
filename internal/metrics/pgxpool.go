package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// RegisterPgxPoolMetrics exposes pgx connection pool statistics as gauges.
func RegisterPgxPoolMetrics(pool *pgxpool.Pool) {
	stat := func(f func(*pgxpool.Stat) int32) func() float64 {
		return func() float64 { return float64(f(pool.Stat())) }
	}
	prometheus.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pgxpool_acquired_conns",
			Help:      "Number of currently acquired connections in the pool",
		}, stat((*pgxpool.Stat).AcquiredConns)),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pgxpool_max_conns",
			Help:      "Maximum number of connections in the pool",
		}, stat((*pgxpool.Stat).MaxConns)),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pgxpool_total_conns",
			Help:      "Total number of connections in the pool",
		}, stat((*pgxpool.Stat).TotalConns)),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pgxpool_idle_conns",
			Help:      "Number of idle connections in the pool",
		}, stat((*pgxpool.Stat).IdleConns)),
	)
}
