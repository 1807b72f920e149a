package metrics

import "github.com/jackc/pgx/v5/pgxpool"

// RecordDBPoolMetrics updates DBPoolConnections gauges from a pgx pool snapshot.
func RecordDBPoolMetrics(pool *pgxpool.Pool) {
	stat := pool.Stat()
	DBPoolConnections.WithLabelValues("total").Set(float64(stat.TotalConns()))
	DBPoolConnections.WithLabelValues("idle").Set(float64(stat.IdleConns()))
	DBPoolConnections.WithLabelValues("acquired").Set(float64(stat.AcquiredConns()))
	DBPoolConnections.WithLabelValues("max").Set(float64(stat.MaxConns()))
}
