package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"

	"github.com/GriffinCanCode/chatbridge/internal/infrastructure/resilience"
)

// DefaultTimeout bounds a single REST call. Exchanges can take minutes.
const DefaultTimeout = 5 * time.Minute

// ErrSessionNotFound is returned for unknown or already stopped sessions.
var ErrSessionNotFound = errors.New("session not found")

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chatbridge: %d %s", e.StatusCode, e.Message)
}

// Is matches ErrSessionNotFound for 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrSessionNotFound && e.StatusCode == http.StatusNotFound
}

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func (b errorBody) message() string {
	if b.Error != "" {
		return b.Error
	}
	return b.Detail
}

// Reply is the outcome of one exchange.
type Reply struct {
	Response string `json:"response"`
	Status   string `json:"status"`
	HTML     string `json:"html,omitempty"`
}

// OK reports whether the server captured a reply.
func (r *Reply) OK() bool {
	return r.Status == "ok"
}

// SessionInfo describes a live session.
type SessionInfo struct {
	ID         string    `json:"session_id"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
	Exchanges  int       `json:"exchanges"`
	Running    bool      `json:"running"`
	Busy       bool      `json:"busy"`
}

// Health is the server status.
type Health struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Breaker  string `json:"breaker"`
}

// Client wraps resty with a circuit breaker
type Client struct {
	baseURL string
	resty   *resty.Client
	breaker *resilience.Breaker
	dialer  *websocket.Dialer
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.resty.SetTimeout(d) }
}

// New creates a client for the server at baseURL
func New(baseURL string, opts ...Option) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	c := &Client{
		baseURL: baseURL,
		dialer:  websocket.DefaultDialer,
	}
	c.resty = resty.New().
		SetBaseURL(baseURL).
		SetTimeout(DefaultTimeout).
		SetHeader("User-Agent", "chatbridge-client/1.0")
	for _, opt := range opts {
		opt(c)
	}

	// Retry idempotent reads only; starting a session twice opens two browsers
	c.resty.
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
				return false
			}
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})

	c.breaker = resilience.New("chatbridge-client", resilience.Settings{
		Cooldown: 10 * time.Second,
		Trip:     resilience.ConsecutiveFailures(5),
		IsFailure: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.StatusCode >= http.StatusInternalServerError
			}
			return err != nil
		},
	})
	return c
}

// call runs one request through the breaker and decodes a successful body into T.
func call[T any](ctx context.Context, c *Client, method, path string, build func(*resty.Request)) (T, error) {
	return resilience.Do(ctx, c.breaker, func(ctx context.Context) (T, error) {
		var (
			out  T
			body errorBody
		)
		req := c.resty.R().SetContext(ctx).SetError(&body).SetResult(&out)
		if build != nil {
			build(req)
		}
		resp, err := req.Execute(method, path)
		if err != nil {
			return out, fmt.Errorf("%s %s: %w", method, path, err)
		}
		if resp.IsError() {
			msg := body.message()
			if msg == "" {
				msg = resp.Status()
			}
			return out, &APIError{StatusCode: resp.StatusCode(), Message: msg}
		}
		return out, nil
	})
}

// Start opens a browser session on the server and returns its id
func (c *Client) Start(ctx context.Context) (string, error) {
	out, err := call[struct {
		SessionID string `json:"session_id"`
	}](ctx, c, http.MethodPost, "/start", nil)
	if err != nil {
		return "", err
	}
	return out.SessionID, nil
}

// Message sends text and waits for the full reply. format is "", "text" or "html".
func (c *Client) Message(ctx context.Context, sessionID, text, format string) (*Reply, error) {
	out, err := call[Reply](ctx, c, http.MethodPost, "/message", func(r *resty.Request) {
		r.SetBody(map[string]string{
			"session_id": sessionID,
			"message":    text,
			"format":     format,
		})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Stop stops a session
func (c *Client) Stop(ctx context.Context, sessionID string) error {
	_, err := call[struct{}](ctx, c, http.MethodPost, "/stop", func(r *resty.Request) {
		r.SetQueryParam("session_id", sessionID)
	})
	return err
}

// Sessions lists live sessions
func (c *Client) Sessions(ctx context.Context) ([]SessionInfo, error) {
	out, err := call[struct {
		Sessions []SessionInfo `json:"sessions"`
	}](ctx, c, http.MethodGet, "/sessions", nil)
	if err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// Health fetches server status
func (c *Client) Health(ctx context.Context) (*Health, error) {
	out, err := call[Health](ctx, c, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type streamFrame struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	Message  string `json:"message"`
	Response string `json:"response"`
	Status   string `json:"status"`
	HTML     string `json:"html"`
}

// Stream sends text over the WebSocket endpoint, calling onDelta for every
// piece of the reply as it arrives.
func (c *Client) Stream(ctx context.Context, sessionID, text string, onDelta func(string)) (*Reply, error) {
	url := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/stream?session_id=" + sessionID
	conn, resp, err := c.dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: "stream rejected"}
		}
		return nil, fmt.Errorf("dial stream: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := conn.WriteJSON(map[string]string{"type": "message", "message": text}); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	for {
		var frame streamFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read stream: %w", err)
		}
		switch frame.Type {
		case "delta":
			if onDelta != nil {
				onDelta(frame.Content)
			}
		case "complete":
			return &Reply{Response: frame.Response, Status: frame.Status, HTML: frame.HTML}, nil
		case "error":
			return nil, fmt.Errorf("stream: %s", frame.Message)
		}
	}
}
