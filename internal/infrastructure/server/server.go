package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"

	api "github.com/GriffinCanCode/chatbridge/internal/api/http"
	"github.com/GriffinCanCode/chatbridge/internal/api/middleware"
	"github.com/GriffinCanCode/chatbridge/internal/api/ws"
	"github.com/GriffinCanCode/chatbridge/internal/browser"
	"github.com/GriffinCanCode/chatbridge/internal/domain/session"
	"github.com/GriffinCanCode/chatbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/chatbridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/chatbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/chatbridge/internal/infrastructure/tracing"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router   *gin.Engine
	http     *http.Server
	sessions *session.Manager
	tracer   *tracing.Tracer
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics
}

// NewServer creates a new server instance driving browsers through driver
func NewServer(cfg *config.Config, driver browser.Driver, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.FromLevel(cfg.Logging.Level, cfg.Logging.Development)
	}

	logger.Info("Initializing chatbridge server",
		zap.String("addr", cfg.Addr()),
		zap.String("driver", driver.Name()),
		zap.String("target", cfg.Chat.TargetURL),
	)

	opts, err := cfg.SessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("chatbridge", logger.Component("tracing"))

	factory := session.NewFactory(driver, opts, logger.Component("session"))
	sessions := session.NewManager(factory, cfg.ManagerConfig(), logger.Component("registry")).WithMetrics(metrics)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))

	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.Server.CORSOrigins
	router.Use(middleware.CORS(cors))

	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
			zap.String("scope", cfg.RateLimit.Scope),
		)
		limits := middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}
		if cfg.RateLimit.Scope == config.RateLimitGlobal {
			router.Use(middleware.GlobalRateLimit(limits))
		} else {
			router.Use(middleware.RateLimit(limits))
		}
	}

	handlers := api.NewHandlers(sessions, metrics, logger.Component("api"))
	handlers.Register(router)

	wsHandler := ws.NewHandler(sessions, metrics, logger.Component("ws"))
	router.GET("/stream", wsHandler.HandleConnection)

	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	s := &Server{
		router:   router,
		sessions: sessions,
		tracer:   tracer,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
	}
	s.http = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server initialized successfully")
	return s, nil
}

// Handler returns the root handler. Responses are gzip compressed when
// enabled, except WebSocket upgrades which need the raw connection.
func (s *Server) Handler() http.Handler {
	if !s.config.Server.Gzip {
		return s.router
	}
	compressed := gzhttp.GzipHandler(s.router)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			s.router.ServeHTTP(w, r)
			return
		}
		compressed.ServeHTTP(w, r)
	})
}

// Sessions exposes the registry
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}

// Run starts the HTTP server and blocks until it stops. A clean Shutdown
// returns nil.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then stops every browser session.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.sessions.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close sessions: %w", err))
	}
	s.tracer.Close()

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("Shutdown finished with errors", zap.Error(err))
		s.logger.Sync()
		return err
	}
	s.logger.Info("Server stopped")
	s.logger.Sync()
	return nil
}
