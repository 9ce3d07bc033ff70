// Command chatbridge drives a browser-hosted chat application and exposes it
// over HTTP.
//
// Usage:
//
//	# Serve the REST and WebSocket API (configuration from the environment)
//	chatbridge serve --port 10000
//
//	# Sign in once with CHAT_EMAIL / CHAT_PASSWORD and store the auth state
//	chatbridge login
//
//	# Talk to a running server
//	chatbridge chat --server http://127.0.0.1:10000
//
// Signals:
//   - SIGINT, SIGTERM: graceful shutdown, every browser is closed
package main
