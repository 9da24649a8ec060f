/*
Package monitoring provides Prometheus metrics for the extension host.

# Features

- Console API request metrics (latency, throughput)
- Extensions per lifecycle state and activation outcomes
- Pending permission prompts
- Bridge messages per event and dispatch outcome, dispatch latency
- Sandbox faults by kind
- Registry fetch latency
- Console stream connections

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	metrics.RecordBridgeMessage("data.query", "ok", elapsed)

Every record method is a no-op on a nil *Metrics.
*/
package monitoring
