// Package server assembles the router, middleware, session registry and
// HTTP listener, and owns their shutdown order.
package server
