package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/chatbridge/internal/domain/conversation"
	"github.com/GriffinCanCode/chatbridge/internal/domain/session"
	"github.com/GriffinCanCode/chatbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/chatbridge/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/chatbridge/internal/render"
	"github.com/GriffinCanCode/chatbridge/internal/shared/id"
	"github.com/GriffinCanCode/chatbridge/internal/shared/utils"
)

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS already allows every origin
	},
}

// Message is a client request
type Message struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Format  string `json:"format,omitempty"`
}

// Handler manages WebSocket connections
type Handler struct {
	sessions *session.Manager
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(sessions *session.Manager, metrics *monitoring.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		sessions: sessions,
		metrics:  metrics,
		logger:   logger,
	}
}

// HandleConnection handles WebSocket upgrade and messages
func (h *Handler) HandleConnection(c *gin.Context) {
	sessionID := c.Query("session_id")
	if _, err := h.sessions.Get(sessionID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Session not found"})
		return
	}
	c.Set("session_id", sessionID)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	log := h.logger.With(tracing.LogFields(c.Request.Context())...).
		With(zap.String("session_id", sessionID), zap.String("conn_id", id.NewConnID().String()))
	log.Debug("WebSocket connected")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	h.send(conn, map[string]interface{}{
		"type":       "system",
		"message":    "connected",
		"session_id": sessionID,
	})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("WebSocket read error", zap.Error(err))
			}
			break
		}
		h.metrics.RecordWSMessage("in", msg.Type)

		switch msg.Type {
		case "message":
			if err := h.handleMessage(ctx, conn, sessionID, msg); err != nil {
				log.Warn("WebSocket write failed", zap.Error(err))
				return
			}
		case "ping":
			h.send(conn, map[string]interface{}{"type": "pong"})
		default:
			h.sendError(conn, "unknown message type")
		}
	}
}

// handleMessage runs one exchange, forwarding every delta as it streams. The
// first failed write aborts the exchange.
func (h *Handler) handleMessage(ctx context.Context, conn *websocket.Conn, sessionID string, msg Message) error {
	if err := utils.ValidateMessage(msg.Message); err != nil {
		return h.sendError(conn, err.Error())
	}
	if !render.ValidFormat(msg.Format) {
		return h.sendError(conn, "unsupported format")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var writeErr error
	res, err := h.sessions.Message(ctx, sessionID, msg.Message, conversation.ExchangeOptions{
		Format: msg.Format,
		OnDelta: func(delta string) {
			if writeErr != nil {
				return
			}
			writeErr = h.send(conn, map[string]interface{}{
				"type":    "delta",
				"content": delta,
			})
			if writeErr != nil {
				cancel()
			}
		},
	})
	if writeErr != nil {
		return writeErr
	}
	if err != nil {
		return h.sendError(conn, "Session not found")
	}

	out := map[string]interface{}{
		"type":      "complete",
		"response":  res.Text,
		"status":    res.Kind.String(),
		"timestamp": time.Now().Unix(),
	}
	if res.HTML != "" {
		out["html"] = res.HTML
	}
	return h.send(conn, out)
}

func (h *Handler) send(conn *websocket.Conn, data map[string]interface{}) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	if err := conn.WriteJSON(data); err != nil {
		return err
	}
	if t, ok := data["type"].(string); ok {
		h.metrics.RecordWSMessage("out", t)
	}
	return nil
}

func (h *Handler) sendError(conn *websocket.Conn, msg string) error {
	return h.send(conn, map[string]interface{}{
		"type":      "error",
		"message":   msg,
		"timestamp": time.Now().Unix(),
	})
}
