/*
Package monitoring provides Prometheus metrics for the bridge.

# Metrics

  - HTTP requests by route template, status and latency
  - Registered sessions, start attempts by outcome, stops by reason
  - Browser launch breaker state
  - Exchanges by result kind, exchange latency and streamed deltas
  - WebSocket connections and messages

Every Metrics value owns its registry, so tests can build as many as they
like. Session hooks are nil-safe.

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics)
	res := sess.Exchange(ctx, msg, opts)
	timer.Stop(res.Kind.String())
*/
package monitoring
