package conversation

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/chatbridge/internal/browser/browsertest"
	"github.com/GriffinCanCode/chatbridge/internal/render"
)

const (
	chatInputSelector = ".message-container input"
	emailSelector     = "input[type='email']"
	passwordSelector  = "input[type='password']"
)

// chatPage returns a page whose input posts reply when Enter is pressed.
func chatPage(reply *browsertest.Element) (*browsertest.Page, *browsertest.Element) {
	page := browsertest.NewPage()
	input := browsertest.NewElement()
	input.OnPress = func(string) {
		if reply != nil {
			page.Add(replySelector, reply)
		}
	}
	page.Add(chatInputSelector, input)
	return page, input
}

func testOptions(t *testing.T) Options {
	opts := DefaultOptions()
	opts.AuthStatePath = filepath.Join(t.TempDir(), "auth_state.json")
	return opts
}

func startedSession(t *testing.T, page *browsertest.Page) (*Session, *browsertest.Driver) {
	t.Helper()
	driver := browsertest.NewDriver(func() *browsertest.Page { return page })
	s := New("s-1", driver, testOptions(t), nil).WithSleeper(noSleep)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop() })
	return s, driver
}

func TestStartReady(t *testing.T) {
	page, _ := chatPage(nil)
	driver := browsertest.NewDriver(func() *browsertest.Page { return page })
	opts := testOptions(t)
	opts.Headless = false

	s := New("s-1", driver, opts, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Equal(t, 1, driver.Opened())
	inst := driver.Instances[0]
	assert.Equal(t, opts.AuthStatePath, inst.Opts.StatePath)
	assert.False(t, inst.Opts.Headless)
	assert.Equal(t, []string{opts.AuthStatePath}, inst.SavedPaths)
	assert.Equal(t, []string{DefaultTargetURL}, page.Visited)
	assert.True(t, s.Running())
	assert.True(t, s.Info().Running)
}

func TestStartTwice(t *testing.T) {
	page, _ := chatPage(nil)
	s, _ := startedSession(t, page)
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)
}

func TestStartReleasesBrowserOnFailure(t *testing.T) {
	tests := []struct {
		name    string
		page    func() *browsertest.Page
		opts    func(*Options)
		wantErr error
	}{
		{
			name:    "page never ready",
			page:    browsertest.NewPage,
			wantErr: ErrNotReady,
		},
		{
			name: "navigation fails",
			page: func() *browsertest.Page {
				p, _ := chatPage(nil)
				p.GotoErr = errors.New("net::ERR_NAME_NOT_RESOLVED")
				return p
			},
			wantErr: ErrNotReady,
		},
		{
			name: "login required without interactive strategy",
			page: func() *browsertest.Page {
				return browsertest.NewPage().Add(emailSelector, browsertest.NewElement())
			},
			wantErr: ErrAuthRequired,
		},
		{
			name: "interactive login without credentials",
			page: func() *browsertest.Page {
				return browsertest.NewPage().Add(emailSelector, browsertest.NewElement())
			},
			opts:    func(o *Options) { o.LoginStrategy = LoginInteractive },
			wantErr: ErrAuthRequired,
		},
		{
			name: "interactive login never shows password field",
			page: func() *browsertest.Page {
				return browsertest.NewPage().Add(emailSelector, browsertest.NewElement())
			},
			opts: func(o *Options) {
				o.LoginStrategy = LoginInteractive
				o.Credentials = &Credentials{Email: "me@example.com", Password: "secret"}
			},
			wantErr: ErrLoginFailed,
		},
		{
			name: "unexpected title",
			page: func() *browsertest.Page {
				p, _ := chatPage(nil)
				p.TitleText = "Sign in - Google Accounts"
				return p
			},
			opts:    func(o *Options) { o.ExpectedTitle = "NotebookLM" },
			wantErr: ErrUnexpectedPage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver := browsertest.NewDriver(tt.page)
			opts := testOptions(t)
			if tt.opts != nil {
				tt.opts(&opts)
			}

			s := New("s-1", driver, opts, nil)
			err := s.Start(context.Background())

			assert.ErrorIs(t, err, tt.wantErr)
			require.Equal(t, 1, driver.Opened())
			assert.Equal(t, 1, driver.Instances[0].Closed())
			assert.Empty(t, driver.Instances[0].SavedPaths)
			assert.False(t, s.Running())
		})
	}
}

func TestStartOpenFailure(t *testing.T) {
	driver := browsertest.NewDriver(nil)
	driver.OpenErr = errors.New("chromium not installed")

	s := New("s-1", driver, testOptions(t), nil)
	err := s.Start(context.Background())
	assert.ErrorContains(t, err, "chromium not installed")
	assert.False(t, s.Running())
}

func TestStartExpectedTitle(t *testing.T) {
	page, _ := chatPage(nil)
	page.TitleText = "Research notes - NotebookLM"
	driver := browsertest.NewDriver(func() *browsertest.Page { return page })
	opts := testOptions(t)
	opts.ExpectedTitle = "NotebookLM"

	s := New("s-1", driver, opts, nil)
	require.NoError(t, s.Start(context.Background()))
	assert.NoError(t, s.Stop())
}

func TestStartSaveStateFailureIsNotFatal(t *testing.T) {
	page, _ := chatPage(nil)
	driver := browsertest.NewDriver(func() *browsertest.Page { return page })
	driver.SaveErr = errors.New("read-only filesystem")

	s := New("s-1", driver, testOptions(t), nil)
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.Running())
	assert.NoError(t, s.Stop())
}

func TestStartRequiredStateSaveFailure(t *testing.T) {
	page, _ := chatPage(nil)
	driver := browsertest.NewDriver(func() *browsertest.Page { return page })
	driver.SaveErr = errors.New("disk full")

	opts := testOptions(t)
	opts.RequireStateSave = true
	s := New("s-1", driver, opts, nil)

	err := s.Start(context.Background())
	assert.ErrorIs(t, err, ErrStateNotSaved)
	assert.ErrorContains(t, err, "disk full")
	assert.False(t, s.Running())
	assert.Equal(t, 1, driver.Instances[0].Closed())
}

func TestInteractiveLogin(t *testing.T) {
	page := browsertest.NewPage()
	email := browsertest.NewElement()
	password := browsertest.NewElement()
	email.OnPress = func(string) {
		page.Remove(emailSelector)
		page.Add(passwordSelector, password)
	}
	password.OnPress = func(string) {
		page.Remove(passwordSelector)
		page.Add(chatInputSelector, browsertest.NewElement())
	}
	page.Add(emailSelector, email)

	driver := browsertest.NewDriver(func() *browsertest.Page { return page })
	opts := testOptions(t)
	opts.LoginStrategy = LoginInteractive
	opts.Credentials = &Credentials{Email: "me@example.com", Password: "secret"}

	s := New("s-1", driver, opts, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Equal(t, []string{"me@example.com"}, email.Filled)
	assert.Equal(t, []string{"secret"}, password.Filled)
	assert.Equal(t, []string{"Enter"}, email.Pressed)
	assert.Equal(t, []string{opts.AuthStatePath}, driver.Instances[0].SavedPaths)
}

func TestInteractiveLoginClicksNext(t *testing.T) {
	page := browsertest.NewPage()
	email := browsertest.NewElement()
	next := browsertest.NewElement()
	page.Add(emailSelector, email)
	page.Add("#identifierNext button", next)

	driver := browsertest.NewDriver(func() *browsertest.Page { return page })
	opts := testOptions(t)
	opts.LoginStrategy = LoginInteractive
	opts.Credentials = &Credentials{Email: "me@example.com", Password: "secret"}

	s := New("s-1", driver, opts, nil)
	err := s.Start(context.Background())

	// the fake never reveals the password field after the click
	assert.ErrorIs(t, err, ErrLoginFailed)
	assert.Equal(t, 1, next.Clicks)
	assert.Empty(t, email.Pressed)
}

func TestExchange(t *testing.T) {
	reply := browsertest.NewElement("", "Go is", "Go is a language.")
	page, input := chatPage(reply)
	s, _ := startedSession(t, page)

	var deltas []string
	res := s.Exchange(context.Background(), "What is Go?", ExchangeOptions{
		OnDelta: func(d string) { deltas = append(deltas, d) },
	})

	require.True(t, res.OK(), "unexpected error: %v", res.Err)
	assert.Equal(t, ResultOK, res.Kind)
	assert.Equal(t, "Go is a language.", res.Text)
	assert.Empty(t, res.HTML)
	assert.Equal(t, res.Text, strings.Join(deltas, ""))
	assert.Equal(t, []string{"What is Go?"}, input.Filled)
	assert.Equal(t, 1, s.Info().Exchanges)
}

func TestExchangeHTMLFormat(t *testing.T) {
	reply := browsertest.NewElement("Hi there")
	reply.HTML = `<p>Hi <b>there</b></p><script>alert(1)</script>`
	page, _ := chatPage(reply)
	s, _ := startedSession(t, page)

	res := s.Exchange(context.Background(), "hello", ExchangeOptions{Format: render.FormatHTML})

	require.True(t, res.OK())
	assert.Equal(t, "Hi there", res.Text)
	assert.Contains(t, res.HTML, "<b>there</b>")
	assert.NotContains(t, res.HTML, "script")
}

func TestExchangeInputMissing(t *testing.T) {
	page, _ := chatPage(nil)
	s, _ := startedSession(t, page)
	page.Remove(chatInputSelector)

	res := s.Exchange(context.Background(), "hello", ExchangeOptions{})

	assert.Equal(t, ResultNotAuthenticated, res.Kind)
	assert.Equal(t, SessionErrorText, res.Text)
	assert.ErrorIs(t, res.Err, ErrInputNotFound)
	assert.Zero(t, s.Info().Exchanges)
}

func TestExchangeTransportError(t *testing.T) {
	reply := browsertest.NewElement("x")
	reply.ReadErr = errors.New("target closed")
	page, _ := chatPage(reply)
	s, _ := startedSession(t, page)

	res := s.Exchange(context.Background(), "hello", ExchangeOptions{})

	assert.Equal(t, ResultTransportError, res.Kind)
	assert.Equal(t, SessionErrorText, res.Text)
	assert.ErrorContains(t, res.Err, "target closed")
}

func TestExchangeBeforeStart(t *testing.T) {
	s := New("s-1", browsertest.NewDriver(nil), testOptions(t), nil)

	res := s.Exchange(context.Background(), "hello", ExchangeOptions{})
	assert.Equal(t, ResultTransportError, res.Kind)
	assert.ErrorIs(t, res.Err, ErrSessionClosed)
}

func TestExchangeMaxDuration(t *testing.T) {
	reply := &browsertest.Element{TextFunc: func(read int) string {
		return strings.Repeat("a", read+1)
	}}
	page, _ := chatPage(reply)
	driver := browsertest.NewDriver(func() *browsertest.Page { return page })
	opts := testOptions(t)
	opts.Exchange.MaxDuration = 50 * time.Millisecond
	opts.Exchange.PollInterval = time.Millisecond
	opts.Exchange.FirstTokenInterval = time.Millisecond

	s := New("s-1", driver, opts, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	res := s.Exchange(context.Background(), "never ends", ExchangeOptions{})
	assert.Equal(t, ResultTransportError, res.Kind)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestStopInterruptsExchange(t *testing.T) {
	reply := &browsertest.Element{TextFunc: func(read int) string {
		return strings.Repeat("a", read+1)
	}}
	page, _ := chatPage(reply)
	driver := browsertest.NewDriver(func() *browsertest.Page { return page })
	opts := testOptions(t)
	opts.Exchange.PollInterval = time.Millisecond
	opts.Exchange.FirstTokenInterval = time.Millisecond

	s := New("s-1", driver, opts, nil)
	require.NoError(t, s.Start(context.Background()))

	done := make(chan Result, 1)
	go func() {
		done <- s.Exchange(context.Background(), "never ends", ExchangeOptions{})
	}()

	require.Eventually(t, func() bool { return reply.Reads() > 10 }, time.Second, time.Millisecond)
	require.NoError(t, s.Stop())

	select {
	case res := <-done:
		assert.ErrorIs(t, res.Err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("exchange did not return after Stop")
	}
	assert.Equal(t, 1, driver.Instances[0].Closed())
}

func TestStopIsIdempotent(t *testing.T) {
	page, _ := chatPage(nil)
	driver := browsertest.NewDriver(func() *browsertest.Page { return page })
	s := New("s-1", driver, testOptions(t), nil)
	require.NoError(t, s.Start(context.Background()))

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())

	assert.Equal(t, 1, driver.Instances[0].Closed())
	assert.False(t, s.Running())
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)

	res := s.Exchange(context.Background(), "hello", ExchangeOptions{})
	assert.ErrorIs(t, res.Err, ErrSessionClosed)
}

func TestStopBeforeStart(t *testing.T) {
	s := New("s-1", browsertest.NewDriver(nil), testOptions(t), nil)
	assert.NoError(t, s.Stop())
}

func TestParseLoginStrategy(t *testing.T) {
	got, err := ParseLoginStrategy("")
	require.NoError(t, err)
	assert.Equal(t, LoginNone, got)

	got, err = ParseLoginStrategy("interactive")
	require.NoError(t, err)
	assert.Equal(t, LoginInteractive, got)

	_, err = ParseLoginStrategy("oauth")
	assert.Error(t, err)
}

func TestResultKindString(t *testing.T) {
	assert.Equal(t, "ok", ResultOK.String())
	assert.Equal(t, "transport_error", ResultTransportError.String())
	assert.Equal(t, "not_authenticated", ResultNotAuthenticated.String())
}
