// Package ws streams chat replies over a WebSocket.
//
// A client connects to /stream?session_id=<id> for a session that already
// exists. Unknown sessions are rejected with 404 before the upgrade.
//
// Message Types (Client → Server):
//   - message: submit a chat message; optional format "html"
//   - ping: keep-alive ping
//
// Message Types (Server → Client):
//   - system: connection accepted
//   - delta: newly appended reply text
//   - complete: full reply with its status
//   - pong: reply to ping
//   - error: request could not be handled
//
// Example Usage:
//
//	handler := ws.NewHandler(manager, metrics, logger)
//	router.GET("/stream", handler.HandleConnection)
package ws
