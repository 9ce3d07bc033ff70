package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/GriffinCanCode/chatbridge/internal/browser"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Accumulator reassembles a streamed reply from successive full-text reads.
// It assumes the text only ever grows by appending.
type Accumulator struct {
	last      string
	text      strings.Builder
	unchanged int
}

// Observe records one read and returns the appended suffix. A read equal to
// the previous one counts toward stability instead.
func (a *Accumulator) Observe(current string) (delta string, changed bool) {
	if current == a.last {
		a.unchanged++
		return "", false
	}
	delta = suffix(a.last, current)
	a.text.WriteString(delta)
	a.last = current
	a.unchanged = 0
	return delta, true
}

// Stable reports whether the last threshold reads were all unchanged.
func (a *Accumulator) Stable(threshold int) bool {
	return a.unchanged >= threshold
}

// Text returns everything accumulated so far.
func (a *Accumulator) Text() string {
	return a.text.String()
}

// Last returns the most recent full read.
func (a *Accumulator) Last() string {
	return a.last
}

// suffix slices by the previous length. Rewritten (non-appended) text yields a
// wrong or empty delta rather than an error.
func suffix(prev, current string) string {
	if len(current) <= len(prev) {
		return ""
	}
	return current[len(prev):]
}

// exchange runs submit -> await first token -> stream -> return on one page.
type exchange struct {
	page    browser.Page
	sel     Selectors
	cfg     ExchangeConfig
	sleep   Sleeper
	onDelta func(string)
}

func (x *exchange) run(ctx context.Context, message string) (string, error) {
	before, err := x.snapshot(ctx)
	if err != nil {
		return "", err
	}
	if err := x.submit(ctx, message); err != nil {
		return "", err
	}
	if err := x.awaitFirstToken(ctx, before); err != nil {
		return "", err
	}
	return x.stream(ctx)
}

// replySnapshot is the reply list as it stood before submitting.
type replySnapshot struct {
	count    int
	lastText string
}

// isNew reports whether the newest reply, read as text out of count
// elements, differs from the snapshot. A grown list counts as new; so does
// changed text in a list that is capped or virtualized and never grows.
func (b replySnapshot) isNew(count int, text string) bool {
	return count > b.count || text != b.lastText
}

func (x *exchange) snapshot(ctx context.Context) (replySnapshot, error) {
	els, err := x.page.QuerySelectorAll(ctx, x.sel.ReplyText)
	if err != nil {
		return replySnapshot{}, fmt.Errorf("query replies: %w", err)
	}
	snap := replySnapshot{count: len(els)}
	if len(els) > 0 {
		text, err := els[len(els)-1].InnerText(ctx)
		if err != nil {
			return replySnapshot{}, fmt.Errorf("read reply: %w", err)
		}
		snap.lastText = strings.TrimSpace(text)
	}
	return snap, nil
}

func (x *exchange) submit(ctx context.Context, message string) error {
	input, err := x.page.QuerySelector(ctx, x.sel.ChatInput)
	if err != nil {
		return fmt.Errorf("query input: %w", err)
	}
	if input == nil {
		return ErrInputNotFound
	}
	if err := input.Fill(ctx, message); err != nil {
		return err
	}
	return input.Press(ctx, "Enter")
}

// awaitFirstToken polls until a reply not present in before has text.
// Running out of attempts is not an error; streaming starts regardless.
func (x *exchange) awaitFirstToken(ctx context.Context, before replySnapshot) error {
	for i := 0; i < x.cfg.FirstTokenAttempts; i++ {
		els, err := x.page.QuerySelectorAll(ctx, x.sel.ReplyText)
		if err != nil {
			return fmt.Errorf("query replies: %w", err)
		}
		if len(els) > 0 {
			text, err := els[len(els)-1].InnerText(ctx)
			if err != nil {
				return fmt.Errorf("read reply: %w", err)
			}
			text = strings.TrimSpace(text)
			if text != "" && before.isNew(len(els), text) {
				return nil
			}
		}
		if err := x.sleep(ctx, x.cfg.FirstTokenInterval); err != nil {
			return err
		}
	}
	return nil
}

// stream reads the last reply until StableReads consecutive reads match.
func (x *exchange) stream(ctx context.Context) (string, error) {
	var acc Accumulator
	for {
		els, err := x.page.QuerySelectorAll(ctx, x.sel.ReplyText)
		if err != nil {
			return "", fmt.Errorf("query replies: %w", err)
		}
		if len(els) > 0 {
			text, err := els[len(els)-1].InnerText(ctx)
			if err != nil {
				return "", fmt.Errorf("read reply: %w", err)
			}
			delta, changed := acc.Observe(strings.TrimSpace(text))
			if changed && delta != "" && x.onDelta != nil {
				x.onDelta(delta)
			}
			if acc.Stable(x.cfg.StableReads) {
				return acc.Text(), nil
			}
		}
		if err := x.sleep(ctx, x.cfg.PollInterval); err != nil {
			return "", err
		}
	}
}

// lastReplyHTML returns the markup of the newest reply element.
func (x *exchange) lastReplyHTML(ctx context.Context) (string, error) {
	els, err := x.page.QuerySelectorAll(ctx, x.sel.ReplyText)
	if err != nil {
		return "", fmt.Errorf("query replies: %w", err)
	}
	if len(els) == 0 {
		return "", nil
	}
	return els[len(els)-1].InnerHTML(ctx)
}
