package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// playwrightDriver launches Chromium through playwright-go. Every instance gets
// its own Playwright handle so closing one session never affects another.
type playwrightDriver struct {
	runOpts *playwright.RunOptions

	installOnce sync.Once
	installErr  error
}

// NewPlaywright creates a playwright-backed driver.
func NewPlaywright() Driver {
	return &playwrightDriver{
		runOpts: &playwright.RunOptions{
			Browsers: []string{"chromium"},
			Verbose:  false,
			Stdout:   io.Discard,
			Stderr:   io.Discard,
		},
	}
}

func (d *playwrightDriver) Name() string { return DriverPlaywright }

func (d *playwrightDriver) install() error {
	d.installOnce.Do(func() {
		if err := playwright.Install(d.runOpts); err != nil {
			d.installErr = fmt.Errorf("failed to install playwright: %w", err)
		}
	})
	return d.installErr
}

// Open launches Chromium, creates a context (restoring saved state when present)
// and opens a page. Partially acquired resources are released on failure.
func (d *playwrightDriver) Open(ctx context.Context, opts LaunchOptions) (Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	if err := d.install(); err != nil {
		return nil, err
	}

	pw, err := playwright.Run(d.runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	inst := &playwrightInstance{pw: pw}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		_ = inst.Close()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	inst.browser = browser

	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  opts.Viewport.Width,
			Height: opts.Viewport.Height,
		},
	}
	if stateExists(opts.StatePath) {
		contextOpts.StorageStatePath = playwright.String(opts.StatePath)
	}
	bctx, err := browser.NewContext(contextOpts)
	if err != nil {
		_ = inst.Close()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}
	inst.context = bctx

	page, err := bctx.NewPage()
	if err != nil {
		_ = inst.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(float64(opts.DefaultTimeout.Milliseconds()))
	inst.page = &playwrightPage{page: page}

	return inst, nil
}

type playwrightInstance struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    *playwrightPage
}

func (i *playwrightInstance) Page() Page { return i.page }

func (i *playwrightInstance) SaveState(path string) error {
	if i.context == nil {
		return errors.New("browser context not open")
	}
	if _, err := i.context.StorageState(path); err != nil {
		return fmt.Errorf("failed to save storage state: %w", err)
	}
	return nil
}

func (i *playwrightInstance) Close() error {
	var errs []error
	if i.context != nil {
		if err := i.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close context: %w", err))
		}
	}
	if i.browser != nil {
		if err := i.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
	}
	if i.pw != nil {
		if err := i.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop playwright: %w", err))
		}
	}
	return errors.Join(errs...)
}

type playwrightPage struct {
	page playwright.Page
}

func (p *playwrightPage) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := p.page.Goto(url); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

func (p *playwrightPage) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("wait failed: %w", err)
	}
	return nil
}

func (p *playwrightPage) QuerySelector(ctx context.Context, selector string) (Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	handle, err := p.page.QuerySelector(selector)
	if err != nil {
		return nil, fmt.Errorf("selector query failed: %w", err)
	}
	if handle == nil {
		return nil, nil
	}
	return &playwrightElement{handle: handle}, nil
}

func (p *playwrightPage) QuerySelectorAll(ctx context.Context, selector string) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	handles, err := p.page.QuerySelectorAll(selector)
	if err != nil {
		return nil, fmt.Errorf("selector query failed: %w", err)
	}
	elements := make([]Element, 0, len(handles))
	for _, h := range handles {
		elements = append(elements, &playwrightElement{handle: h})
	}
	return elements, nil
}

func (p *playwrightPage) Title(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.Title()
}

type playwrightElement struct {
	handle playwright.ElementHandle
}

func (e *playwrightElement) Fill(ctx context.Context, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.handle.Fill(value); err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	return nil
}

func (e *playwrightElement) Press(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.handle.Press(key); err != nil {
		return fmt.Errorf("press failed: %w", err)
	}
	return nil
}

func (e *playwrightElement) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.handle.Click(); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

func (e *playwrightElement) InnerText(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.handle.InnerText()
}

func (e *playwrightElement) InnerHTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.handle.InnerHTML()
}
