/*
Package monitoring provides Prometheus-based metrics for the simulation
backend: HTTP request metrics, acquisition/failure counters per IPC type,
deadlock counters, and live entity gauges.

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	metrics.IncAcquisition("queue", "produce")

# Metrics Endpoint

	import "github.com/prometheus/client_golang/prometheus/promhttp"
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
