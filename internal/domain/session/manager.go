package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/chatbridge/internal/browser"
	"github.com/GriffinCanCode/chatbridge/internal/domain/conversation"
	"github.com/GriffinCanCode/chatbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/chatbridge/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/chatbridge/internal/infrastructure/tracing"
)

var (
	ErrNotFound        = errors.New("session not found")
	ErrTooManySessions = errors.New("session limit reached")
	ErrShuttingDown    = errors.New("session manager is shutting down")

	errSessionInUse = errors.New("session in use")
)

// Conversation is what the registry needs from a browser session.
type Conversation interface {
	ID() string
	Start(ctx context.Context) error
	Exchange(ctx context.Context, message string, opts conversation.ExchangeOptions) conversation.Result
	Stop() error
	Info() conversation.Info
}

// Factory builds an unstarted conversation for id.
type Factory func(id string) Conversation

// NewFactory returns a Factory producing conversation.Sessions on driver.
func NewFactory(driver browser.Driver, opts conversation.Options, logger *zap.Logger) Factory {
	return func(id string) Conversation {
		return conversation.New(id, driver, opts, logger)
	}
}

// Config bounds the registry.
type Config struct {
	// MaxSessions caps concurrently registered sessions; 0 means no limit
	MaxSessions int
	// IdleTimeout stops sessions without exchanges for this long; 0 disables
	IdleTimeout time.Duration
	// ReapInterval is how often idle sessions are looked for
	ReapInterval time.Duration
	// Breaker guards browser launches
	Breaker resilience.Settings
}

// Manager owns every live session, keyed by id.
type Manager struct {
	factory Factory
	cfg     Config
	logger  *zap.Logger
	metrics *monitoring.Metrics
	breaker *resilience.Breaker

	mu       sync.RWMutex
	sessions map[string]Conversation
	inflight map[string]int
	pending  int
	closed   bool

	reapStop chan struct{}
	reapDone chan struct{}
}

// NewManager creates a registry. Call Close to stop the idle reaper and every session.
func NewManager(factory Factory, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = time.Minute
	}

	m := &Manager{
		factory:  factory,
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]Conversation),
		inflight: make(map[string]int),
	}

	breakerSettings := cfg.Breaker
	if breakerSettings.IsFailure == nil {
		breakerSettings.IsFailure = countsAgainstBrowser
	}
	userHook := breakerSettings.OnStateChange
	breakerSettings.OnStateChange = func(name string, from, to resilience.State) {
		m.logger.Warn("Browser launch breaker changed state",
			zap.String("from", from.String()), zap.String("to", to.String()))
		m.metrics.SetBreakerState(int(to))
		if userHook != nil {
			userHook(name, from, to)
		}
	}
	m.breaker = resilience.New("browser-launch", breakerSettings)

	if cfg.IdleTimeout > 0 {
		m.reapStop = make(chan struct{})
		m.reapDone = make(chan struct{})
		go m.reapLoop()
	}
	return m
}

// WithMetrics adds metrics tracking to the manager
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// countsAgainstBrowser keeps login and page-shape failures from opening the
// breaker; only launch and navigation failures do.
func countsAgainstBrowser(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, conversation.ErrAuthRequired),
		errors.Is(err, conversation.ErrLoginFailed),
		errors.Is(err, conversation.ErrUnexpectedPage):
		return false
	}
	return true
}

// Start launches a new session and registers it under a fresh id. A session
// that fails to start is released and never registered.
func (m *Manager) Start(ctx context.Context) (string, error) {
	if err := m.reserve(); err != nil {
		m.metrics.RecordSessionStart(startOutcome(err))
		return "", err
	}

	id := uuid.NewString()
	sess := m.factory(id)
	log := m.logger.With(tracing.LogFields(ctx)...).With(zap.String("session_id", id))

	err := m.breaker.Execute(ctx, sess.Start)
	if err != nil {
		m.unreserve()
		m.metrics.RecordSessionStart(startOutcome(err))
		if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
			log.Warn("Session start rejected by launch breaker", zap.Error(err))
		} else {
			log.Error("Session failed to start", zap.Error(err))
		}
		// Start releases its own browser; Stop marks the session unusable.
		_ = sess.Stop()
		return "", fmt.Errorf("start session: %w", err)
	}

	m.mu.Lock()
	m.pending--
	if m.closed {
		m.mu.Unlock()
		_ = sess.Stop()
		m.metrics.RecordSessionStart(startOutcome(ErrShuttingDown))
		return "", ErrShuttingDown
	}
	m.sessions[id] = sess
	count := len(m.sessions)
	m.mu.Unlock()

	m.metrics.RecordSessionStart("ok")
	m.metrics.SetSessionsActive(count)
	log.Info("Session registered", zap.Int("active", count))
	return id, nil
}

// reserve claims a slot so concurrent starts cannot exceed MaxSessions.
func (m *Manager) reserve() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrShuttingDown
	}
	if m.cfg.MaxSessions > 0 && len(m.sessions)+m.pending >= m.cfg.MaxSessions {
		return ErrTooManySessions
	}
	m.pending++
	return nil
}

func (m *Manager) unreserve() {
	m.mu.Lock()
	m.pending--
	m.mu.Unlock()
}

func startOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTooManySessions):
		return "limit"
	case errors.Is(err, ErrShuttingDown):
		return "shutdown"
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		return "breaker_open"
	case errors.Is(err, conversation.ErrAuthRequired), errors.Is(err, conversation.ErrLoginFailed):
		return "auth_required"
	case errors.Is(err, conversation.ErrNotReady), errors.Is(err, conversation.ErrUnexpectedPage):
		return "not_ready"
	default:
		return "launch_failed"
	}
}

// Get returns the session registered under id.
func (m *Manager) Get(id string) (Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Message runs one exchange on session id. Failures inside the exchange are
// reported through the Result, not the error.
func (m *Manager) Message(ctx context.Context, id, text string, opts conversation.ExchangeOptions) (conversation.Result, error) {
	sess, err := m.acquire(id)
	if err != nil {
		return conversation.Result{}, err
	}
	defer m.release(id)

	if m.metrics != nil {
		onDelta := opts.OnDelta
		opts.OnDelta = func(d string) {
			m.metrics.IncStreamDeltas()
			if onDelta != nil {
				onDelta(d)
			}
		}
	}

	timer := monitoring.NewTimer(m.metrics)
	res := sess.Exchange(ctx, text, opts)
	elapsed := timer.Stop(res.Kind.String())

	log := m.logger.With(tracing.LogFields(ctx)...).With(zap.String("session_id", id), zap.Duration("elapsed", elapsed))
	if res.OK() {
		log.Info("Exchange completed", zap.Int("reply_len", len(res.Text)))
	} else {
		log.Warn("Exchange failed", zap.String("result", res.Kind.String()), zap.Error(res.Err))
	}
	return res, nil
}

// acquire looks up id and marks it in use so the idle reaper leaves it alone.
func (m *Manager) acquire(id string) (Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	m.inflight[id]++
	return sess, nil
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inflight[id] <= 1 {
		delete(m.inflight, id)
		return
	}
	m.inflight[id]--
}

// Stop unregisters and stops session id. A second Stop returns ErrNotFound.
func (m *Manager) Stop(id string) error {
	return m.stop(id, "request")
}

func (m *Manager) stop(id, reason string) error {
	return m.stopIf(id, reason, nil)
}

// stopIf unregisters id only when keep is nil or returns false, checked under
// the registry lock.
func (m *Manager) stopIf(id, reason string, keep func(Conversation) bool) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if keep != nil && keep(sess) {
		m.mu.Unlock()
		return errSessionInUse
	}
	delete(m.sessions, id)
	count := len(m.sessions)
	m.mu.Unlock()

	m.metrics.SetSessionsActive(count)
	m.metrics.RecordSessionStop(reason)

	if err := sess.Stop(); err != nil {
		m.logger.Warn("Session stopped with errors", zap.String("session_id", id), zap.Error(err))
	}
	m.logger.Info("Session unregistered", zap.String("session_id", id), zap.String("reason", reason))
	return nil
}

// List returns metadata for every session, oldest first.
func (m *Manager) List() []conversation.Info {
	m.mu.RLock()
	infos := make([]conversation.Info, 0, len(m.sessions))
	for _, sess := range m.sessions {
		infos = append(infos, sess.Info())
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// Count returns the number of registered sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// BreakerState reports the launch breaker state
func (m *Manager) BreakerState() resilience.State {
	return m.breaker.State()
}

// CloseAll stops every registered session concurrently. New starts are
// rejected afterwards.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]Conversation)
	m.mu.Unlock()

	m.metrics.SetSessionsActive(0)

	var g errgroup.Group
	for id, sess := range sessions {
		g.Go(func() error {
			m.metrics.RecordSessionStop("shutdown")
			if err := sess.Stop(); err != nil {
				return fmt.Errorf("stop session %s: %w", id, err)
			}
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			m.logger.Warn("Some sessions stopped with errors", zap.Error(err))
		}
		m.logger.Info("All sessions stopped", zap.Int("count", len(sessions)))
		return err
	case <-ctx.Done():
		return fmt.Errorf("stop sessions: %w", ctx.Err())
	}
}

// Close stops the idle reaper and every session.
func (m *Manager) Close(ctx context.Context) error {
	if m.reapStop != nil {
		select {
		case <-m.reapStop:
		default:
			close(m.reapStop)
		}
		<-m.reapDone
	}
	return m.CloseAll(ctx)
}

func (m *Manager) reapLoop() {
	defer close(m.reapDone)
	ticker := time.NewTicker(m.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.reapStop:
			return
		case now := <-ticker.C:
			m.ReapIdle(now)
		}
	}
}

// ReapIdle stops sessions whose last activity is older than IdleTimeout and
// returns how many were stopped. Sessions in the middle of an exchange are kept.
func (m *Manager) ReapIdle(now time.Time) int {
	if m.cfg.IdleTimeout <= 0 {
		return 0
	}

	inUse := func(sess Conversation) bool {
		info := sess.Info()
		return m.inflight[sess.ID()] > 0 || info.Busy || now.Sub(info.LastActive) <= m.cfg.IdleTimeout
	}

	var idle []string
	m.mu.RLock()
	for id, sess := range m.sessions {
		if !inUse(sess) {
			idle = append(idle, id)
		}
	}
	m.mu.RUnlock()

	reaped := 0
	for _, id := range idle {
		if m.stopIf(id, "idle", inUse) == nil {
			reaped++
		}
	}
	if reaped > 0 {
		m.logger.Info("Stopped idle sessions", zap.Int("count", reaped))
	}
	return reaped
}
