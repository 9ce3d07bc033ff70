// Package browsertest provides a scripted in-memory browser for tests.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/chatbridge/internal/browser"
)

// ErrTimeout is returned by WaitForSelector when no selector in the list is present.
var ErrTimeout = errors.New("browsertest: timeout waiting for selector")

// Driver hands out fake instances. NewPage builds the page for each Open call.
type Driver struct {
	mu sync.Mutex

	OpenErr error
	// SaveErr is handed to every instance opened afterwards
	SaveErr error
	NewPage func() *Page

	Instances []*Instance
}

// NewDriver creates a driver whose instances all use pages built by newPage.
func NewDriver(newPage func() *Page) *Driver {
	return &Driver{NewPage: newPage}
}

func (d *Driver) Name() string { return "fake" }

func (d *Driver) Open(ctx context.Context, opts browser.LaunchOptions) (browser.Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	page := NewPage()
	if d.NewPage != nil {
		page = d.NewPage()
	}
	inst := &Instance{page: page, Opts: opts, SaveErr: d.SaveErr}
	d.Instances = append(d.Instances, inst)
	return inst, nil
}

// Opened returns the number of instances opened so far.
func (d *Driver) Opened() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Instances)
}

// Instance records lifecycle calls.
type Instance struct {
	mu   sync.Mutex
	page *Page

	Opts       browser.LaunchOptions
	SaveErr    error
	SavedPaths []string
	CloseCalls int
}

func (i *Instance) Page() browser.Page { return i.page }

// FakePage returns the scripted page behind the instance.
func (i *Instance) FakePage() *Page { return i.page }

func (i *Instance) SaveState(path string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.SaveErr != nil {
		return i.SaveErr
	}
	i.SavedPaths = append(i.SavedPaths, path)
	return nil
}

func (i *Instance) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.CloseCalls++
	return nil
}

// Closed returns how many times Close was called.
func (i *Instance) Closed() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.CloseCalls
}

// Page is a DOM made of selector -> elements. Comma separated selector lists
// match when any member matches.
type Page struct {
	mu       sync.Mutex
	elements map[string][]*Element

	TitleText string
	GotoErr   error
	QueryErr  error
	Visited   []string
}

// NewPage creates an empty page.
func NewPage() *Page {
	return &Page{elements: make(map[string][]*Element)}
}

// Add appends elements under selector.
func (p *Page) Add(selector string, els ...*Element) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.elements[selector] = append(p.elements[selector], els...)
	return p
}

// Remove drops every element registered under selector.
func (p *Page) Remove(selector string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.elements, selector)
}

func (p *Page) lookup(selector string) []*Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*Element
	for _, part := range strings.Split(selector, ",") {
		out = append(out, p.elements[strings.TrimSpace(part)]...)
	}
	return out
}

func (p *Page) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Visited = append(p.Visited, url)
	return p.GotoErr
}

func (p *Page) WaitForSelector(ctx context.Context, selector string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(p.lookup(selector)) == 0 {
		return fmt.Errorf("%w: %s", ErrTimeout, selector)
	}
	return nil
}

func (p *Page) QuerySelector(ctx context.Context, selector string) (browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.QueryErr != nil {
		return nil, p.QueryErr
	}
	els := p.lookup(selector)
	if len(els) == 0 {
		return nil, nil
	}
	return els[0], nil
}

func (p *Page) QuerySelectorAll(ctx context.Context, selector string) ([]browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.QueryErr != nil {
		return nil, p.QueryErr
	}
	els := p.lookup(selector)
	out := make([]browser.Element, len(els))
	for i, el := range els {
		out[i] = el
	}
	return out, nil
}

func (p *Page) Title(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.TitleText, nil
}

// Element returns scripted text. Texts are consumed one per InnerText call and
// the last value repeats once exhausted. TextFunc, when set, wins and receives
// the zero based read count.
type Element struct {
	mu sync.Mutex

	Texts    []string
	TextFunc func(read int) string
	HTML     string
	ReadErr  error
	FillErr  error

	// OnPress runs after a key press, typically to mutate the page.
	OnPress func(key string)

	reads   int
	Filled  []string
	Pressed []string
	Clicks  int
}

// NewElement creates an element that returns texts in order.
func NewElement(texts ...string) *Element {
	return &Element{Texts: texts}
}

func (e *Element) Fill(ctx context.Context, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.FillErr != nil {
		return e.FillErr
	}
	e.Filled = append(e.Filled, value)
	return nil
}

func (e *Element) Press(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	e.Pressed = append(e.Pressed, key)
	hook := e.OnPress
	e.mu.Unlock()
	if hook != nil {
		hook(key)
	}
	return nil
}

func (e *Element) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Clicks++
	return nil
}

func (e *Element) InnerText(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ReadErr != nil {
		return "", e.ReadErr
	}
	n := e.reads
	e.reads++
	if e.TextFunc != nil {
		return e.TextFunc(n), nil
	}
	if len(e.Texts) == 0 {
		return "", nil
	}
	if n >= len(e.Texts) {
		return e.Texts[len(e.Texts)-1], nil
	}
	return e.Texts[n], nil
}

func (e *Element) InnerHTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.HTML, nil
}

// Reads returns how many times InnerText was called.
func (e *Element) Reads() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reads
}

// ChatPages returns a page factory for a minimal chat UI. Every Enter on the
// input posts a new reply element under replySelector that reads replies in
// order.
func ChatPages(inputSelector, replySelector string, replies ...string) func() *Page {
	return func() *Page {
		page := NewPage()
		input := NewElement()
		input.OnPress = func(string) {
			page.Add(replySelector, NewElement(replies...))
		}
		return page.Add(inputSelector, input)
	}
}
