// Package session is the registry of live browser sessions.
//
// The Manager maps opaque UUIDs to conversations. Start launches a browser
// through a circuit breaker, so a broken Chromium install fails fast instead
// of spawning a process per request, and registers the session only once it
// is ready. Stop removes the entry under the lock before releasing the
// browser; a second Stop for the same id finds nothing.
//
// Sessions idle longer than Config.IdleTimeout are stopped by a background
// sweep. CloseAll stops everything concurrently at shutdown.
//
// Example Usage:
//
//	factory := session.NewFactory(driver, opts, logger)
//	manager := session.NewManager(factory, session.Config{MaxSessions: 4}, logger)
//	defer manager.Close(ctx)
//
//	id, err := manager.Start(ctx)
//	res, err := manager.Message(ctx, id, "Summarize the sources", conversation.ExchangeOptions{})
//	err = manager.Stop(id)
package session
