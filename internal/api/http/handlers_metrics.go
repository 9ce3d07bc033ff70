package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MetricsJSON reports running totals alongside registry state
func (h *Handlers) MetricsJSON(c *gin.Context) {
	snap := h.metrics.GetSnapshot()
	c.JSON(http.StatusOK, gin.H{
		"requests":        snap.TotalRequests,
		"errors":          snap.TotalErrors,
		"exchanges":       snap.Exchanges,
		"failed_starts":   snap.FailedStarts,
		"ws_connections":  snap.ActiveWS,
		"uptime_seconds":  snap.UptimeSeconds,
		"sessions_active": h.sessions.Count(),
		"breaker_state":   h.sessions.BreakerState().String(),
	})
}
