// Package pages holds page objects for the application's screens.
//
// A page object binds named user actions to one screen. Every operation waits explicitly for
// the element or network response it depends on and returns an error when that never happens;
// nothing here retries. Fixed sleeps appear only where the UI debounces input.
package pages

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kuitang/knowledge-e2e/internal/artifacts"
	"github.com/playwright-community/playwright-go"
)

// DefaultTimeout bounds element waits when Base.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// debounce is how long search and filter inputs take to settle.
const debounce = 500 * time.Millisecond

// ToastKind selects a toast notification.
type ToastKind string

const (
	ToastSuccess ToastKind = "success"
	ToastError   ToastKind = "error"
	ToastInfo    ToastKind = "info"
)

// Base carries the primitives every page shares.
type Base struct {
	Page    playwright.Page
	BaseURL string
	Timeout time.Duration
	// Artifacts receives TakeScreenshot output. Nil writes under ./reports.
	Artifacts artifacts.Sink
}

// NewBase binds a page handle to the application at baseURL.
func NewBase(page playwright.Page, baseURL string) *Base {
	return &Base{
		Page:    page,
		BaseURL: strings.TrimRight(baseURL, "/"),
		Timeout: DefaultTimeout,
	}
}

func (b *Base) timeoutMS() *float64 {
	d := b.Timeout
	if d <= 0 {
		d = DefaultTimeout
	}
	return playwright.Float(float64(d.Milliseconds()))
}

// URL resolves path against the base URL. Absolute URLs pass through.
func (b *Base) URL(path string) string {
	if u, err := url.Parse(path); err == nil && u.IsAbs() {
		return path
	}
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return b.BaseURL + path
}

// Navigate opens path relative to the base URL and waits for DOMContentLoaded.
func (b *Base) Navigate(path string) error {
	target := b.URL(path)
	if _, err := b.Page.Goto(target, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   b.timeoutMS(),
	}); err != nil {
		return fmt.Errorf("navigate to %s: %w", target, err)
	}
	return nil
}

// WaitForLoadComplete waits until the network is idle and the DOM is loaded.
func (b *Base) WaitForLoadComplete() error {
	for _, state := range []*playwright.LoadState{playwright.LoadStateNetworkidle, playwright.LoadStateDomcontentloaded} {
		if err := b.Page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State:   state,
			Timeout: b.timeoutMS(),
		}); err != nil {
			return fmt.Errorf("wait for load state %s: %w", *state, err)
		}
	}
	return nil
}

// Title returns the document title.
func (b *Base) Title() (string, error) {
	return b.Page.Title()
}

// TakeScreenshot captures the full page as screenshots/<name>.png and returns where it was stored.
func (b *Base) TakeScreenshot(ctx context.Context, name string) (string, error) {
	png, err := b.Page.Screenshot(playwright.PageScreenshotOptions{FullPage: playwright.Bool(true)})
	if err != nil {
		return "", fmt.Errorf("screenshot %s: %w", name, err)
	}
	sink := b.Artifacts
	if sink == nil {
		sink = artifacts.NewDirSink("reports")
	}
	return sink.Put(ctx, "screenshots/"+name+".png", "image/png", png)
}

// WaitForElement waits for selector to become visible.
func (b *Base) WaitForElement(selector string) error {
	return b.waitFor(b.Page.Locator(selector).First(), selector, playwright.WaitForSelectorStateVisible)
}

// WaitForElementHidden waits for selector to be hidden or detached.
func (b *Base) WaitForElementHidden(selector string) error {
	return b.waitFor(b.Page.Locator(selector).First(), selector, playwright.WaitForSelectorStateHidden)
}

func (b *Base) waitFor(loc playwright.Locator, what string, state *playwright.WaitForSelectorState) error {
	if err := loc.WaitFor(playwright.LocatorWaitForOptions{State: state, Timeout: b.timeoutMS()}); err != nil {
		return fmt.Errorf("wait for %s to be %s: %w", what, *state, err)
	}
	return nil
}

// ClickElement clicks the first element matching selector.
func (b *Base) ClickElement(selector string) error {
	if err := b.Page.Locator(selector).First().Click(playwright.LocatorClickOptions{Timeout: b.timeoutMS()}); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

// FillInput replaces the value of an input.
func (b *Base) FillInput(selector, value string) error {
	if err := b.Page.Locator(selector).First().Fill(value, playwright.LocatorFillOptions{Timeout: b.timeoutMS()}); err != nil {
		return fmt.Errorf("fill %s: %w", selector, err)
	}
	return nil
}

// SelectOption picks an option of a <select> by value or label.
func (b *Base) SelectOption(selector, value string) error {
	return b.selectOn(b.Page.Locator(selector).First(), selector, value)
}

func (b *Base) selectOn(loc playwright.Locator, what, value string) error {
	if _, err := loc.SelectOption(playwright.SelectOptionValues{Values: &[]string{value}},
		playwright.LocatorSelectOptionOptions{Timeout: b.timeoutMS()}); err != nil {
		return fmt.Errorf("select %q in %s: %w", value, what, err)
	}
	return nil
}

// GetText returns the text content of the first match once it is attached.
func (b *Base) GetText(selector string) (string, error) {
	text, err := b.Page.Locator(selector).First().TextContent(playwright.LocatorTextContentOptions{Timeout: b.timeoutMS()})
	if err != nil {
		return "", fmt.Errorf("text of %s: %w", selector, err)
	}
	return text, nil
}

// GetElementText waits for selector to be visible and returns its trimmed text.
func (b *Base) GetElementText(selector string) (string, error) {
	if err := b.WaitForElement(selector); err != nil {
		return "", err
	}
	text, err := b.GetText(selector)
	return strings.TrimSpace(text), err
}

// IsVisible reports whether the first match is visible right now. It does not wait.
func (b *Base) IsVisible(selector string) (bool, error) {
	return b.Page.Locator(selector).First().IsVisible()
}

// IsElementVisible is IsVisible under the name the student screens use.
func (b *Base) IsElementVisible(selector string) (bool, error) {
	return b.IsVisible(selector)
}

// IsEnabled reports whether the first match is enabled.
func (b *Base) IsEnabled(selector string) (bool, error) {
	return b.Page.Locator(selector).First().IsEnabled(playwright.LocatorIsEnabledOptions{Timeout: b.timeoutMS()})
}

// WaitForNavigation waits until the URL matches pattern, e.g. "**/dashboard".
func (b *Base) WaitForNavigation(pattern string) error {
	if pattern == "" {
		pattern = "**/*"
	}
	if err := b.Page.WaitForURL(pattern, playwright.PageWaitForURLOptions{Timeout: b.timeoutMS()}); err != nil {
		return fmt.Errorf("wait for navigation to %s: %w", pattern, err)
	}
	return nil
}

const errorMessageSelector = `[data-testid="error-message"], .error, .alert-danger`

// GetErrorMessage returns the visible page-level error text, or "" when none is shown.
func (b *Base) GetErrorMessage() (string, error) {
	loc := b.Page.Locator(errorMessageSelector).First()
	visible, err := loc.IsVisible()
	if err != nil || !visible {
		return "", err
	}
	text, err := loc.TextContent()
	return strings.TrimSpace(text), err
}

// WaitForToast waits for a toast of the given kind and returns its text.
func (b *Base) WaitForToast(kind ToastKind) (string, error) {
	if kind == "" {
		kind = ToastSuccess
	}
	selector := fmt.Sprintf(`[data-testid="toast-%s"], .toast.%s`, kind, kind)
	return b.GetElementText(selector)
}

// DismissToast closes the current toast if one has a close button showing.
func (b *Base) DismissToast() error {
	const selector = `[data-testid="toast-close"], .toast-close`
	visible, err := b.IsVisible(selector)
	if err != nil || !visible {
		return err
	}
	return b.ClickElement(selector)
}

// ScrollToElement scrolls the first match into view.
func (b *Base) ScrollToElement(selector string) error {
	if err := b.Page.Locator(selector).First().ScrollIntoViewIfNeeded(playwright.LocatorScrollIntoViewIfNeededOptions{
		Timeout: b.timeoutMS(),
	}); err != nil {
		return fmt.Errorf("scroll to %s: %w", selector, err)
	}
	return nil
}

// ResponseMatch selects the network response an action should produce.
type ResponseMatch struct {
	URLContains string
	// Status of 0 accepts any status.
	Status int
}

func (m ResponseMatch) matches(resp playwright.Response) bool {
	if !strings.Contains(resp.URL(), m.URLContains) {
		return false
	}
	return m.Status == 0 || resp.Status() == m.Status
}

// WaitForAPIResponse runs action and waits for the first response it triggers that matches.
func (b *Base) WaitForAPIResponse(match ResponseMatch, action func() error) (playwright.Response, error) {
	resp, err := b.Page.ExpectResponse(func(r playwright.Response) bool {
		return match.matches(r)
	}, action, playwright.PageExpectResponseOptions{Timeout: b.timeoutMS()})
	if err != nil {
		return nil, fmt.Errorf("wait for response %s (status %d): %w", match.URLContains, match.Status, err)
	}
	return resp, nil
}

// WaitForAPIJSON is WaitForAPIResponse followed by decoding the JSON body into v.
func (b *Base) WaitForAPIJSON(match ResponseMatch, v any, action func() error) error {
	resp, err := b.WaitForAPIResponse(match, action)
	if err != nil {
		return err
	}
	body, err := resp.Body()
	if err != nil {
		return fmt.Errorf("read %s body: %w", resp.URL(), err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s body: %w", resp.URL(), err)
	}
	return nil
}

// InterceptRequest routes requests matching pattern (a glob such as "**/api/extract/**")
// through handler.
func (b *Base) InterceptRequest(pattern string, handler func(playwright.Route)) error {
	if err := b.Page.Route(pattern, handler); err != nil {
		return fmt.Errorf("route %s: %w", pattern, err)
	}
	return nil
}

// MockAPIResponse answers every request to **/endpoint with data encoded as JSON.
func (b *Base) MockAPIResponse(endpoint string, data any, status int) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode mock for %s: %w", endpoint, err)
	}
	if status == 0 {
		status = 200
	}
	return b.InterceptRequest("**/"+strings.TrimLeft(endpoint, "/"), func(route playwright.Route) {
		_ = route.Fulfill(playwright.RouteFulfillOptions{
			Status:      playwright.Int(status),
			ContentType: playwright.String("application/json"),
			Body:        body,
		})
	})
}

// LocalStorageItem returns a localStorage value; ok is false when the key is absent.
func (b *Base) LocalStorageItem(key string) (value string, ok bool, err error) {
	raw, err := b.Page.Evaluate(`key => localStorage.getItem(key)`, key)
	if err != nil {
		return "", false, fmt.Errorf("read localStorage %q: %w", key, err)
	}
	s, ok := raw.(string)
	return s, ok, nil
}

// SetLocalStorageItem writes a localStorage value.
func (b *Base) SetLocalStorageItem(key, value string) error {
	if _, err := b.Page.Evaluate(`([k, v]) => localStorage.setItem(k, v)`, []string{key, value}); err != nil {
		return fmt.Errorf("write localStorage %q: %w", key, err)
	}
	return nil
}

// ClearLocalStorage empties localStorage for the current origin.
func (b *Base) ClearLocalStorage() error {
	_, err := b.Page.Evaluate(`() => localStorage.clear()`)
	return err
}

// Cookies returns the cookies of the page's browser context.
func (b *Base) Cookies() ([]playwright.Cookie, error) {
	return b.Page.Context().Cookies()
}

// SetCookie adds a cookie scoped to the base URL's host.
func (b *Base) SetCookie(name, value string) error {
	u, err := url.Parse(b.BaseURL)
	if err != nil {
		return fmt.Errorf("parse base URL: %w", err)
	}
	return b.Page.Context().AddCookies([]playwright.OptionalCookie{{
		Name:   name,
		Value:  value,
		Domain: playwright.String(u.Hostname()),
		Path:   playwright.String("/"),
	}})
}

// ClearCookies removes all cookies from the browser context.
func (b *Base) ClearCookies() error {
	return b.Page.Context().ClearCookies()
}

// pause models UI debounce.
func (b *Base) pause() {
	b.Page.WaitForTimeout(float64(debounce.Milliseconds()))
}
