package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// rodState is the on-disk authentication state written by the rod driver.
type rodState struct {
	Cookies []*proto.NetworkCookie `json:"cookies"`
}

// rodDriver launches a local Chrome through go-rod's launcher.
type rodDriver struct {
	bin string
}

// NewRod creates a rod-backed driver. An empty bin uses the launcher's default
// browser lookup.
func NewRod(bin string) Driver {
	return &rodDriver{bin: bin}
}

func (d *rodDriver) Name() string { return DriverRod }

// Open launches Chrome, connects over CDP, restores cookies and opens a page.
// The launched process is not bound to ctx so it outlives the request that
// created it.
func (d *rodDriver) Open(ctx context.Context, opts LaunchOptions) (Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	l := launcher.New().Headless(opts.Headless)
	if d.bin != "" {
		l = l.Bin(d.bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}
	inst := &rodInstance{launcher: l}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		_ = inst.Close()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	inst.browser = browser

	if stateExists(opts.StatePath) {
		if err := restoreCookies(browser, opts.StatePath); err != nil {
			_ = inst.Close()
			return nil, err
		}
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = inst.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}
	inst.page = &rodPage{page: page, timeout: opts.DefaultTimeout}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             opts.Viewport.Width,
		Height:            opts.Viewport.Height,
		DeviceScaleFactor: 1.0,
	}); err != nil {
		_ = inst.Close()
		return nil, fmt.Errorf("set viewport: %w", err)
	}

	return inst, nil
}

func restoreCookies(browser *rod.Browser, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read auth state: %w", err)
	}
	var state rodState
	if err := sonic.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("decode auth state %s: %w", path, err)
	}
	if len(state.Cookies) == 0 {
		return nil
	}
	if err := browser.SetCookies(proto.CookiesToParams(state.Cookies)); err != nil {
		return fmt.Errorf("restore cookies: %w", err)
	}
	return nil
}

type rodInstance struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rodPage
}

func (i *rodInstance) Page() Page { return i.page }

func (i *rodInstance) SaveState(path string) error {
	if i.browser == nil {
		return errors.New("browser not connected")
	}
	cookies, err := i.browser.GetCookies()
	if err != nil {
		return fmt.Errorf("read cookies: %w", err)
	}
	data, err := sonic.Marshal(rodState{Cookies: cookies})
	if err != nil {
		return fmt.Errorf("encode auth state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write auth state: %w", err)
	}
	return nil
}

// Close closes the page, the browser connection and finally the Chrome process.
func (i *rodInstance) Close() error {
	var errs []error
	if i.page != nil {
		if err := i.page.page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close page: %w", err))
		}
	}
	if i.browser != nil {
		if err := i.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
	}
	if i.launcher != nil {
		i.launcher.Kill()
		i.launcher.Cleanup()
	}
	return errors.Join(errs...)
}

type rodPage struct {
	page    *rod.Page
	timeout time.Duration
}

func (p *rodPage) Goto(ctx context.Context, url string) error {
	page := p.page.Context(ctx).Timeout(p.timeout)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

func (p *rodPage) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	if _, err := p.page.Context(ctx).Timeout(timeout).Element(selector); err != nil {
		return fmt.Errorf("wait failed: %w", err)
	}
	return nil
}

func (p *rodPage) QuerySelector(ctx context.Context, selector string) (Element, error) {
	has, el, err := p.page.Context(ctx).Has(selector)
	if err != nil {
		return nil, fmt.Errorf("selector query failed: %w", err)
	}
	if !has {
		return nil, nil
	}
	return &rodElement{el: el}, nil
}

func (p *rodPage) QuerySelectorAll(ctx context.Context, selector string) ([]Element, error) {
	els, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("selector query failed: %w", err)
	}
	elements := make([]Element, 0, len(els))
	for _, el := range els {
		elements = append(elements, &rodElement{el: el})
	}
	return elements, nil
}

func (p *rodPage) Title(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.Title, nil
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Fill(ctx context.Context, value string) error {
	el := e.el.Context(ctx)
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	if value == "" {
		if err := el.Type(input.Backspace); err != nil {
			return fmt.Errorf("fill failed: %w", err)
		}
		return nil
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	return nil
}

var rodKeys = map[string]input.Key{
	"Enter":     input.Enter,
	"Tab":       input.Tab,
	"Escape":    input.Escape,
	"Backspace": input.Backspace,
}

func (e *rodElement) Press(ctx context.Context, key string) error {
	k, ok := rodKeys[key]
	if !ok {
		return fmt.Errorf("unsupported key %q", key)
	}
	if err := e.el.Context(ctx).Type(k); err != nil {
		return fmt.Errorf("press failed: %w", err)
	}
	return nil
}

func (e *rodElement) Click(ctx context.Context) error {
	if err := e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

func (e *rodElement) InnerText(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}

func (e *rodElement) InnerHTML(ctx context.Context) (string, error) {
	prop, err := e.el.Context(ctx).Property("innerHTML")
	if err != nil {
		return "", err
	}
	return prop.Str(), nil
}
