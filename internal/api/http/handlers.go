package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/chatbridge/internal/domain/conversation"
	"github.com/GriffinCanCode/chatbridge/internal/domain/session"
	"github.com/GriffinCanCode/chatbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/chatbridge/internal/render"
	"github.com/GriffinCanCode/chatbridge/internal/shared/utils"
)

// Version is reported by the root endpoint
const Version = "0.3.0"

// MessageRequest is the body of POST /message.
type MessageRequest struct {
	SessionID string  `json:"session_id" binding:"required"`
	Message   *string `json:"message" binding:"required"`
	Format    string  `json:"format"`
}

// MessageResponse carries the reply. Failed exchanges still answer 200 with
// the session error text and a non-ok status.
type MessageResponse struct {
	Response string `json:"response"`
	Status   string `json:"status"`
	HTML     string `json:"html,omitempty"`
}

// StopRequest is the optional body of POST /stop.
type StopRequest struct {
	SessionID string `json:"session_id"`
}

// Handlers contains all HTTP handlers
type Handlers struct {
	sessions *session.Manager
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

// NewHandlers creates a new handler set
func NewHandlers(sessions *session.Manager, metrics *monitoring.Metrics, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		sessions: sessions,
		metrics:  metrics,
		logger:   logger,
	}
}

// Register mounts every route on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/sessions", h.ListSessions)
	r.GET("/metrics/json", h.MetricsJSON)
	r.POST("/start", h.StartSession)
	r.POST("/message", h.SendMessage)
	r.POST("/stop", h.StopSession)
}

// Root handles health check
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "chatbridge",
		"version": Version,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"sessions": h.sessions.Count(),
		"breaker":  h.sessions.BreakerState().String(),
		"metrics":  h.metrics.GetSnapshot(),
	})
}

// StartSession opens a new browser session
func (h *Handlers) StartSession(c *gin.Context) {
	id, err := h.sessions.Start(c.Request.Context())
	if err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, session.ErrTooManySessions) {
			status = http.StatusTooManyRequests
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.Set("session_id", id)
	c.JSON(http.StatusOK, gin.H{"session_id": id})
}

// SendMessage runs one exchange and returns the full reply
func (h *Handlers) SendMessage(c *gin.Context) {
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := utils.ValidateMessage(*req.Message); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !render.ValidFormat(req.Format) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unsupported format %q", req.Format)})
		return
	}

	c.Set("session_id", req.SessionID)
	res, err := h.sessions.Message(c.Request.Context(), req.SessionID, *req.Message, conversation.ExchangeOptions{
		Format: req.Format,
	})
	if err != nil {
		notFound(c)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{
		Response: res.Text,
		Status:   res.Kind.String(),
		HTML:     res.HTML,
	})
}

// StopSession stops a session named in the query string or the JSON body
func (h *Handlers) StopSession(c *gin.Context) {
	id := c.Query("session_id")
	if id == "" && c.Request.ContentLength != 0 {
		var req StopRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		id = req.SessionID
	}
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}

	c.Set("session_id", id)
	if err := h.sessions.Stop(id); err != nil {
		notFound(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Session %s stopped.", id)})
}

// ListSessions lists all live sessions
func (h *Handlers) ListSessions(c *gin.Context) {
	infos := h.sessions.List()
	c.JSON(http.StatusOK, gin.H{
		"sessions": infos,
		"count":    len(infos),
	})
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"detail": "Session not found"})
}
