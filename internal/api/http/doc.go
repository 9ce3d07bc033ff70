// Package http exposes the session lifecycle over REST.
//
// Routes:
//
//	POST /start     open a browser session, returns its id
//	POST /message   run one exchange on a session
//	POST /stop      stop a session (id from query or body)
//	GET  /sessions  list live sessions
//	GET  /health    registry and breaker status
//	GET  /metrics/json  running totals without a Prometheus scrape
package http
