/*
Package monitoring collects Prometheus metrics for the HTTP surface, sandbox
sessions, resolution attempts and downloads.

Each Metrics owns a private registry; mount Handler on /metrics.

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "musicUrl")
	// ... resolve ...
	timer.Stop("success")
*/
package monitoring
