package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// Supported driver names
const (
	DriverPlaywright = "playwright"
	DriverRod        = "rod"
)

// Default values for launch options
const (
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
	DefaultTimeout        = 30 * time.Second
)

// ErrUnknownDriver is returned by New for an unsupported driver name
var ErrUnknownDriver = errors.New("unknown browser driver")

// Driver launches browser instances.
type Driver interface {
	Name() string
	Open(ctx context.Context, opts LaunchOptions) (Instance, error)
}

// Instance is one browser, one context and one page owned by a single session.
type Instance interface {
	Page() Page
	// SaveState persists cookies and storage so later instances can skip login.
	SaveState(path string) error
	// Close releases the context, the browser and the library handle in that order.
	Close() error
}

// Page is the subset of page operations the conversation logic relies on.
type Page interface {
	Goto(ctx context.Context, url string) error
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	// QuerySelector returns a nil Element and nil error when nothing matches.
	QuerySelector(ctx context.Context, selector string) (Element, error)
	QuerySelectorAll(ctx context.Context, selector string) ([]Element, error)
	Title(ctx context.Context) (string, error)
}

// Element is a handle to a DOM node.
type Element interface {
	Fill(ctx context.Context, value string) error
	Press(ctx context.Context, key string) error
	Click(ctx context.Context) error
	InnerText(ctx context.Context) (string, error)
	InnerHTML(ctx context.Context) (string, error)
}

// LaunchOptions configures a new instance.
type LaunchOptions struct {
	Headless bool

	// StatePath is restored when the file exists
	StatePath string

	Viewport Viewport

	// DefaultTimeout bounds individual page operations
	DefaultTimeout time.Duration
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

func (o LaunchOptions) withDefaults() LaunchOptions {
	if o.Viewport.Width == 0 {
		o.Viewport.Width = DefaultViewportWidth
	}
	if o.Viewport.Height == 0 {
		o.Viewport.Height = DefaultViewportHeight
	}
	if o.DefaultTimeout == 0 {
		o.DefaultTimeout = DefaultTimeout
	}
	return o
}

// stateExists reports whether a saved authentication state is available.
func stateExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// New returns the driver registered under name. chromeBin is only used by the
// rod driver; empty means the launcher's own lookup.
func New(name, chromeBin string) (Driver, error) {
	switch name {
	case "", DriverPlaywright:
		return NewPlaywright(), nil
	case DriverRod:
		return NewRod(chromeBin), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, name)
	}
}
