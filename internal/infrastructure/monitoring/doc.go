/*
Package monitoring provides Prometheus metrics for the relay.

# Overview

Tracks dispatch outcomes, queue depth, circuit state, cache effectiveness,
and the daemon's own HTTP traffic.

# Usage

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)
	router.Use(monitoring.Middleware(metrics))

	metrics.RecordDispatch("success", took)
	metrics.SetQueueDepth(queue.Len())

Expose via the standard Prometheus endpoint:

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
