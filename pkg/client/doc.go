// Package client talks to a running chatbridge server.
//
// REST calls go through resty behind a circuit breaker; Stream uses the
// WebSocket endpoint to receive a reply as it is written.
//
// Example:
//
//	c := client.New("http://127.0.0.1:10000")
//	id, err := c.Start(ctx)
//	reply, err := c.Message(ctx, id, "Summarize my sources", "")
//	_ = c.Stop(ctx, id)
package client
