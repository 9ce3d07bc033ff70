package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errLaunch = errors.New("chromium exited")

// clock is a manually advanced time source.
type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(settings Settings) (*Breaker, *clock) {
	c := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := New("test", settings)
	b.now = c.now
	b.expiry = c.now().Add(b.settings.Interval)
	return b, c
}

func fail(context.Context) error    { return errLaunch }
func succeed(context.Context) error { return nil }

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name     string
		requests []bool // true = success
		want     State
	}{
		{name: "stays closed on successes", requests: []bool{true, true, true}, want: StateClosed},
		{name: "opens after consecutive failures", requests: []bool{false, false, false}, want: StateOpen},
		{name: "success resets the streak", requests: []bool{false, false, true, false, false}, want: StateClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBreaker(Settings{Trip: ConsecutiveFailures(3)})
			for _, ok := range tt.requests {
				fn := fail
				if ok {
					fn = succeed
				}
				_ = b.Execute(context.Background(), fn)
			}
			assert.Equal(t, tt.want, b.State())
		})
	}
}

func TestBreakerCounts(t *testing.T) {
	b, _ := newTestBreaker(Settings{})

	require.NoError(t, b.Execute(context.Background(), succeed))
	counts := b.Counts()
	assert.Equal(t, uint32(1), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalSuccesses)
	assert.Equal(t, uint32(1), counts.ConsecutiveSuccesses)

	assert.ErrorIs(t, b.Execute(context.Background(), fail), errLaunch)
	counts = b.Counts()
	assert.Equal(t, uint32(2), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalFailures)
	assert.Equal(t, uint32(1), counts.ConsecutiveFailures)
	assert.Zero(t, counts.ConsecutiveSuccesses)
}

func TestBreakerIntervalClearsCounts(t *testing.T) {
	b, c := newTestBreaker(Settings{Interval: time.Minute, Trip: ConsecutiveFailures(2)})

	_ = b.Execute(context.Background(), fail)
	c.advance(2 * time.Minute)
	_ = b.Execute(context.Background(), fail)

	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, uint32(1), b.Counts().ConsecutiveFailures)
}

func TestBreakerRejectsWhileOpen(t *testing.T) {
	b, _ := newTestBreaker(Settings{Trip: ConsecutiveFailures(2)})
	for i := 0; i < 2; i++ {
		_ = b.Execute(context.Background(), fail)
	}

	called := false
	err := b.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpen(t *testing.T) {
	b, c := newTestBreaker(Settings{
		HalfOpenProbes: 2,
		Cooldown:       10 * time.Second,
		Trip:           ConsecutiveFailures(2),
	})
	for i := 0; i < 2; i++ {
		_ = b.Execute(context.Background(), fail)
	}
	require.Equal(t, StateOpen, b.State())

	c.advance(11 * time.Second)
	require.Equal(t, StateHalfOpen, b.State())

	for i := 0; i < 2; i++ {
		require.NoError(t, b.Execute(context.Background(), succeed))
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b, c := newTestBreaker(Settings{Cooldown: time.Second, Trip: ConsecutiveFailures(1)})
	_ = b.Execute(context.Background(), fail)
	c.advance(2 * time.Second)
	require.Equal(t, StateHalfOpen, b.State())

	_ = b.Execute(context.Background(), fail)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerHalfOpenLimitsProbes(t *testing.T) {
	b, c := newTestBreaker(Settings{Cooldown: time.Second, Trip: ConsecutiveFailures(1)})
	_ = b.Execute(context.Background(), fail)
	c.advance(2 * time.Second)

	err := b.Execute(context.Background(), func(ctx context.Context) error {
		// a concurrent caller arriving while the probe runs
		return b.Execute(ctx, succeed)
	})
	assert.ErrorIs(t, err, ErrTooManyRequests)
}

func TestBreakerIgnoresUncountedErrors(t *testing.T) {
	errAuth := errors.New("login required")
	b, _ := newTestBreaker(Settings{
		Trip:      ConsecutiveFailures(1),
		IsFailure: func(err error) bool { return err != nil && !errors.Is(err, errAuth) },
	})

	err := b.Execute(context.Background(), func(context.Context) error { return errAuth })
	assert.ErrorIs(t, err, errAuth)
	assert.Equal(t, StateClosed, b.State())
	assert.Zero(t, b.Counts().TotalFailures)
}

func TestBreakerCancelledContextNotCounted(t *testing.T) {
	b, _ := newTestBreaker(Settings{Trip: ConsecutiveFailures(1)})
	ctx, cancel := context.WithCancel(context.Background())

	err := b.Execute(ctx, func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, b.State())
	assert.Zero(t, b.Counts().Requests)

	assert.ErrorIs(t, b.Execute(ctx, succeed), context.Canceled)
}

func TestBreakerCallbacks(t *testing.T) {
	var transitions []string
	b, c := newTestBreaker(Settings{
		Cooldown: time.Second,
		Trip:     ConsecutiveFailures(2),
		OnStateChange: func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	for i := 0; i < 2; i++ {
		_ = b.Execute(context.Background(), fail)
	}
	c.advance(2 * time.Second)
	require.NoError(t, b.Execute(context.Background(), succeed))

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestDo(t *testing.T) {
	b, _ := newTestBreaker(Settings{})
	id, err := Do(context.Background(), b, func(context.Context) (string, error) {
		return "sess-1", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "sess-1", id)
}

func TestExecuteRecordsPanics(t *testing.T) {
	b, _ := newTestBreaker(Settings{Trip: ConsecutiveFailures(1)})
	assert.Panics(t, func() {
		_ = b.Execute(context.Background(), func(context.Context) error { panic("boom") })
	})
	assert.Equal(t, StateOpen, b.State())
}
