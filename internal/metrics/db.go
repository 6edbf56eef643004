package metrics

import (
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// poolGauges registers the four connection gauges for one database driver.
func poolGauges(driver string, acquired, max, total, idle func() float64) {
	labels := prometheus.Labels{"driver": driver}
	prometheus.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "backup_db_acquired_conns",
			Help:        "Number of database connections currently in use",
			ConstLabels: labels,
		}, acquired),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "backup_db_max_conns",
			Help:        "Maximum number of open database connections",
			ConstLabels: labels,
		}, max),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "backup_db_total_conns",
			Help:        "Total number of open database connections",
			ConstLabels: labels,
		}, total),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "backup_db_idle_conns",
			Help:        "Number of idle database connections",
			ConstLabels: labels,
		}, idle),
	)
}

// RegisterPgxPool exposes the dump source pool statistics for postgres.
func RegisterPgxPool(pool *pgxpool.Pool) {
	poolGauges("postgres",
		func() float64 { return float64(pool.Stat().AcquiredConns()) },
		func() float64 { return float64(pool.Stat().MaxConns()) },
		func() float64 { return float64(pool.Stat().TotalConns()) },
		func() float64 { return float64(pool.Stat().IdleConns()) },
	)
}

// RegisterSQLStats exposes database/sql pool statistics, as reported by
// stats, for driver.
func RegisterSQLStats(driver string, stats func() sql.DBStats) {
	poolGauges(driver,
		func() float64 { return float64(stats().InUse) },
		func() float64 { return float64(stats().MaxOpenConnections) },
		func() float64 { return float64(stats().OpenConnections) },
		func() float64 { return float64(stats().Idle) },
	)
}
