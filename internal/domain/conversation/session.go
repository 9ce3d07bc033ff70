package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/chatbridge/internal/browser"
	"github.com/GriffinCanCode/chatbridge/internal/render"
)

// ExchangeOptions tunes a single exchange.
type ExchangeOptions struct {
	// Format is "" or "text" for plain text only, "html" to also capture markup
	Format string

	// OnDelta receives each appended piece of the reply as it streams
	OnDelta func(delta string)
}

// Info is a snapshot of session metadata.
type Info struct {
	ID         string    `json:"session_id"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
	Exchanges  int       `json:"exchanges"`
	Running    bool      `json:"running"`
	Busy       bool      `json:"busy"`
}

// Session is one conversation bound to one browser page.
type Session struct {
	id     string
	driver browser.Driver
	opts   Options
	logger *zap.Logger
	sleep  Sleeper

	// life is cancelled by Stop so an exchange in flight gives up the lock
	life     context.Context
	lifeStop context.CancelFunc

	// exchangeMu serializes exchanges and guards inst
	exchangeMu sync.Mutex
	inst       browser.Instance
	stopped    bool
	running    atomic.Bool
	busy       atomic.Bool

	statsMu    sync.Mutex
	createdAt  time.Time
	lastActive time.Time
	exchanges  int
}

// New creates a session that has not been started.
func New(id string, driver browser.Driver, opts Options, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := time.Now()
	life, lifeStop := context.WithCancel(context.Background())
	return &Session{
		id:         id,
		life:       life,
		lifeStop:   lifeStop,
		driver:     driver,
		opts:       opts.withDefaults(),
		logger:     logger.With(zap.String("session_id", id)),
		sleep:      sleepContext,
		createdAt:  now,
		lastActive: now,
	}
}

// WithSleeper replaces the wait used between polls.
func (s *Session) WithSleeper(sleep Sleeper) *Session {
	s.sleep = sleep
	return s
}

// ID returns the session identifier
func (s *Session) ID() string { return s.id }

// Start opens the browser, navigates to the chat page and waits until the chat
// input is usable. Every acquired resource is released when Start fails.
func (s *Session) Start(ctx context.Context) error {
	s.exchangeMu.Lock()
	defer s.exchangeMu.Unlock()

	if s.inst != nil || s.stopped {
		return ErrAlreadyStarted
	}

	inst, err := s.driver.Open(ctx, browser.LaunchOptions{
		Headless:  s.opts.Headless,
		StatePath: s.opts.AuthStatePath,
	})
	if err != nil {
		return fmt.Errorf("open browser: %w", err)
	}

	if err := s.prepare(ctx, inst.Page()); err != nil {
		s.logger.Error("Error initializing session", zap.Error(err))
		if cerr := inst.Close(); cerr != nil {
			s.logger.Warn("Failed to release browser after init failure", zap.Error(cerr))
		}
		return err
	}

	if s.opts.AuthStatePath != "" {
		if err := inst.SaveState(s.opts.AuthStatePath); err != nil {
			if s.opts.RequireStateSave {
				s.logger.Error("Failed to save auth state", zap.String("path", s.opts.AuthStatePath), zap.Error(err))
				if cerr := inst.Close(); cerr != nil {
					s.logger.Warn("Failed to release browser after save failure", zap.Error(cerr))
				}
				return fmt.Errorf("%w: %s: %w", ErrStateNotSaved, s.opts.AuthStatePath, err)
			}
			s.logger.Warn("Failed to save auth state", zap.String("path", s.opts.AuthStatePath), zap.Error(err))
		}
	}

	s.inst = inst
	s.running.Store(true)
	s.logger.Info("Session is ready to chat", zap.String("driver", s.driver.Name()))
	return nil
}

func (s *Session) prepare(ctx context.Context, page browser.Page) error {
	sel := s.opts.Selectors

	if err := page.Goto(ctx, s.opts.TargetURL); err != nil {
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	if err := page.WaitForSelector(ctx, sel.readiness(), s.opts.ReadyTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}

	if s.opts.ExpectedTitle != "" {
		title, err := page.Title(ctx)
		if err != nil {
			return fmt.Errorf("%w: read title: %w", ErrNotReady, err)
		}
		if !strings.Contains(title, s.opts.ExpectedTitle) {
			return fmt.Errorf("%w: %q does not contain %q", ErrUnexpectedPage, title, s.opts.ExpectedTitle)
		}
	}

	loginField, err := page.QuerySelector(ctx, sel.LoginEmail)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	if loginField == nil {
		return nil
	}

	if s.opts.LoginStrategy != LoginInteractive {
		return ErrAuthRequired
	}
	return s.login(ctx, page)
}

// login enters email then password, submitting each step.
func (s *Session) login(ctx context.Context, page browser.Page) error {
	creds := s.opts.Credentials
	if !creds.Complete() {
		return fmt.Errorf("%w: no credentials configured", ErrAuthRequired)
	}
	sel := s.opts.Selectors

	s.logger.Info("Login form detected, entering credentials")
	if err := s.fillAndSubmit(ctx, page, sel.LoginEmail, creds.Email, sel.EmailNext); err != nil {
		return fmt.Errorf("%w: email step: %w", ErrLoginFailed, err)
	}
	if err := page.WaitForSelector(ctx, sel.LoginPassword, s.opts.LoginStepTimeout); err != nil {
		return fmt.Errorf("%w: password field: %w", ErrLoginFailed, err)
	}
	if err := s.fillAndSubmit(ctx, page, sel.LoginPassword, creds.Password, sel.PasswordNext); err != nil {
		return fmt.Errorf("%w: password step: %w", ErrLoginFailed, err)
	}
	if err := page.WaitForSelector(ctx, sel.ChatInput, s.opts.LoginStepTimeout); err != nil {
		return fmt.Errorf("%w: chat input after login: %w", ErrLoginFailed, err)
	}
	s.logger.Info("Interactive login succeeded")
	return nil
}

// fillAndSubmit fills field and clicks next when present, otherwise presses Enter.
func (s *Session) fillAndSubmit(ctx context.Context, page browser.Page, field, value, next string) error {
	el, err := page.QuerySelector(ctx, field)
	if err != nil {
		return err
	}
	if el == nil {
		return fmt.Errorf("field %q not found", field)
	}
	if err := el.Fill(ctx, value); err != nil {
		return err
	}
	if next != "" {
		btn, err := page.QuerySelector(ctx, next)
		if err != nil {
			return err
		}
		if btn != nil {
			return btn.Click(ctx)
		}
	}
	return el.Press(ctx, "Enter")
}

// Exchange submits message and returns the streamed reply. It never returns an
// error; failures are reported through the Result kind.
func (s *Session) Exchange(ctx context.Context, message string, opts ExchangeOptions) Result {
	s.exchangeMu.Lock()
	defer s.exchangeMu.Unlock()

	s.touch()
	defer s.touch()
	s.busy.Store(true)
	defer s.busy.Store(false)

	if s.inst == nil {
		return failure(ErrSessionClosed)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	release := context.AfterFunc(s.life, cancel)
	defer release()

	if s.opts.Exchange.MaxDuration > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, s.opts.Exchange.MaxDuration)
		defer cancelTimeout()
	}

	x := &exchange{
		page:    s.inst.Page(),
		sel:     s.opts.Selectors,
		cfg:     s.opts.Exchange,
		sleep:   s.sleep,
		onDelta: opts.OnDelta,
	}

	text, err := x.run(ctx, message)
	if err != nil {
		s.logger.Warn("Error during message exchange", zap.Error(err))
		return failure(err)
	}

	res := success(text)
	if opts.Format == render.FormatHTML {
		html, err := s.replyHTML(ctx, x)
		if err != nil {
			s.logger.Warn("Failed to capture reply markup", zap.Error(err))
		}
		res.HTML = html
	}

	s.statsMu.Lock()
	s.exchanges++
	s.statsMu.Unlock()
	return res
}

func (s *Session) replyHTML(ctx context.Context, x *exchange) (string, error) {
	markup, err := x.lastReplyHTML(ctx)
	if err != nil {
		return "", err
	}
	return render.SanitizeHTML(markup)
}

// Stop interrupts any exchange in flight and releases the browser. Only the
// first call does any work.
func (s *Session) Stop() error {
	s.lifeStop()

	s.exchangeMu.Lock()
	defer s.exchangeMu.Unlock()

	if s.stopped {
		return nil
	}
	s.stopped = true
	s.running.Store(false)

	var err error
	if s.inst != nil {
		err = s.inst.Close()
		s.inst = nil
	}
	if err != nil {
		s.logger.Warn("Session stopped with release errors", zap.Error(err))
	} else {
		s.logger.Info("Session has been stopped")
	}
	return err
}

// Running reports whether the session has a live browser.
func (s *Session) Running() bool {
	return s.running.Load()
}

func (s *Session) touch() {
	s.statsMu.Lock()
	s.lastActive = time.Now()
	s.statsMu.Unlock()
}

// Info returns current metadata without waiting for a running exchange.
func (s *Session) Info() Info {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return Info{
		ID:         s.id,
		CreatedAt:  s.createdAt,
		LastActive: s.lastActive,
		Exchanges:  s.exchanges,
		Running:    s.running.Load(),
		Busy:       s.busy.Load(),
	}
}
