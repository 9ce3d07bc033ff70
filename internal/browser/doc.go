// Package browser wraps browser automation libraries behind a small capability.
//
// The conversation logic only needs to navigate, wait for selectors, query
// elements, fill and press keys, and read text. Two implementations exist:
//   - playwright: github.com/playwright-community/playwright-go (default)
//   - rod: github.com/go-rod/rod
//
// Each Instance owns exactly one browser context and page. Saved authentication
// state is restored on Open when the state file exists and written back with
// SaveState.
//
// Example Usage:
//
//	driver, err := browser.New("playwright", "")
//	inst, err := driver.Open(ctx, browser.LaunchOptions{Headless: true, StatePath: "auth_state.json"})
//	defer inst.Close()
//	err = inst.Page().Goto(ctx, "https://example.com")
package browser
