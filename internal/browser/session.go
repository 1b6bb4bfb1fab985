// Package browser launches Playwright for a configuration profile and hands tests isolated
// pages that capture screenshots, videos and traces when the test fails.
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/kuitang/knowledge-e2e/internal/artifacts"
	"github.com/kuitang/knowledge-e2e/internal/config"
	"github.com/kuitang/knowledge-e2e/internal/obs"
	"github.com/playwright-community/playwright-go"
)

// Session is one launched browser for one profile.
type Session struct {
	cfg     *config.Config
	profile config.Profile
	sink    artifacts.Sink

	pw      *playwright.Playwright
	browser playwright.Browser
}

// Launch starts Playwright and the profile's engine. It fails for profiles without a browser.
func Launch(cfg *config.Config, profileName string, sink artifacts.Sink) (*Session, error) {
	profile, err := cfg.Profile(profileName)
	if err != nil {
		return nil, err
	}
	if !profile.UsesBrowser() {
		return nil, fmt.Errorf("profile %q does not use a browser", profileName)
	}
	if sink == nil {
		sink = artifacts.NewDirSink(cfg.ArtifactsDir)
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	var engine playwright.BrowserType
	switch profile.Browser {
	case config.BrowserFirefox:
		engine = pw.Firefox
	case config.BrowserWebKit:
		engine = pw.WebKit
	default:
		engine = pw.Chromium
	}
	b, err := engine.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch %s: %w", profile.Browser, err)
	}

	obs.Pkg("browser").Info("browser_launched", "profile", profile.Name, "engine", profile.Browser, "device", profile.Device)
	return &Session{cfg: cfg, profile: profile, sink: sink, pw: pw, browser: b}, nil
}

// Profile returns the profile the session was launched for.
func (s *Session) Profile() config.Profile {
	return s.profile
}

// ContextOptions builds context options from the profile: device descriptor first, then
// the profile's explicit viewport and headers on top.
func (s *Session) ContextOptions() playwright.BrowserNewContextOptions {
	opts := playwright.BrowserNewContextOptions{
		BaseURL: playwright.String(s.cfg.BaseURL),
	}
	if d, ok := s.pw.Devices[s.profile.Device]; ok && d != nil {
		opts.UserAgent = playwright.String(d.UserAgent)
		opts.Viewport = d.Viewport
		opts.DeviceScaleFactor = playwright.Float(d.DeviceScaleFactor)
		opts.IsMobile = playwright.Bool(d.IsMobile)
		opts.HasTouch = playwright.Bool(d.HasTouch)
	}
	if v := s.profile.Viewport; v != nil {
		opts.Viewport = &playwright.Size{Width: v.Width, Height: v.Height}
	}
	if len(s.profile.ExtraHTTPHeaders) > 0 {
		opts.ExtraHttpHeaders = s.profile.ExtraHTTPHeaders
	}
	return opts
}

// NewContext creates an isolated context with the configured timeouts. videoDir, when
// set, records every page of the context there.
func (s *Session) NewContext(videoDir string) (playwright.BrowserContext, error) {
	opts := s.ContextOptions()
	if videoDir != "" {
		opts.RecordVideo = &playwright.RecordVideo{Dir: videoDir}
	}
	bctx, err := s.browser.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("new browser context: %w", err)
	}
	bctx.SetDefaultTimeout(float64(s.cfg.ActionTimeout.Milliseconds()))
	bctx.SetDefaultNavigationTimeout(float64(s.cfg.NavigationTimeout.Milliseconds()))
	return bctx, nil
}

// NewPage opens a page in a fresh context for the test. When the test ends the context
// is closed and, depending on the capture modes, a screenshot, video and trace are
// stored in the artifact sink under <kind>/<test>-<profile>.
func (s *Session) NewPage(t testing.TB) playwright.Page {
	t.Helper()

	attempt := s.cfg.RetryAttempt
	var videoDir string
	if ShouldRecord(s.cfg.Video, attempt) {
		videoDir = t.TempDir()
	}
	bctx, err := s.NewContext(videoDir)
	if err != nil {
		t.Fatalf("%v", err)
	}
	tracing := ShouldRecord(s.cfg.Trace, attempt)
	if tracing {
		if err := bctx.Tracing().Start(playwright.TracingStartOptions{
			Screenshots: playwright.Bool(true),
			Snapshots:   playwright.Bool(true),
		}); err != nil {
			t.Logf("trace not started: %v", err)
			tracing = false
		}
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		t.Fatalf("new page: %v", err)
	}

	t.Cleanup(func() {
		s.finish(t, bctx, page, tracing)
	})
	return page
}

func (s *Session) finish(t testing.TB, bctx playwright.BrowserContext, page playwright.Page, tracing bool) {
	ctx := context.Background()
	failed := t.Failed()
	attempt := s.cfg.RetryAttempt
	base := artifacts.CleanName(t.Name()) + "-" + s.profile.Name
	logger := obs.From(obs.WithTest(ctx, t.Name())).With("pkg", "browser")

	store := func(kind, name, contentType string, data []byte) {
		where, err := s.sink.Put(ctx, kind+"/"+name, contentType, data)
		if err != nil {
			logger.Warn("artifact_store_failed", "kind", kind, "error", err)
			return
		}
		t.Logf("%s saved to %s", kind, where)
	}

	if failed && s.cfg.Screenshot != config.CaptureOff {
		if png, err := page.Screenshot(playwright.PageScreenshotOptions{FullPage: playwright.Bool(true)}); err == nil {
			store("screenshots", base+".png", "image/png", png)
		} else {
			logger.Warn("screenshot_failed", "error", err)
		}
	}

	if tracing {
		tracePath := filepath.Join(os.TempDir(), base+"-trace.zip")
		if err := bctx.Tracing().Stop(tracePath); err != nil {
			logger.Warn("trace_stop_failed", "error", err)
		} else {
			if ShouldKeep(s.cfg.Trace, failed, attempt) {
				if data, err := os.ReadFile(tracePath); err == nil {
					store("traces", base+".zip", "application/zip", data)
				}
			}
			_ = os.Remove(tracePath)
		}
	}

	var videoPath string
	if v := page.Video(); v != nil {
		videoPath, _ = v.Path()
	}
	if err := bctx.Close(); err != nil {
		logger.Warn("context_close_failed", "error", err)
	}
	if videoPath != "" && ShouldKeep(s.cfg.Video, failed, attempt) {
		if data, err := os.ReadFile(videoPath); err == nil {
			store("videos", base+".webm", "video/webm", data)
		}
	}
}

// Close shuts the browser and the Playwright driver down.
func (s *Session) Close() error {
	var firstErr error
	if s.browser != nil {
		firstErr = s.browser.Close()
	}
	if s.pw != nil {
		if err := s.pw.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ShouldRecord reports whether a capture mode needs recording to start on this attempt.
func ShouldRecord(mode string, attempt int) bool {
	switch mode {
	case config.CaptureOnlyOnFailure, config.CaptureRetainOnFailure:
		return true
	case config.CaptureOnFirstRetry:
		return attempt == 1
	default:
		return false
	}
}

// ShouldKeep reports whether a finished recording is stored.
func ShouldKeep(mode string, failed bool, attempt int) bool {
	switch mode {
	case config.CaptureOnlyOnFailure, config.CaptureRetainOnFailure:
		return failed
	case config.CaptureOnFirstRetry:
		return attempt == 1
	default:
		return false
	}
}

var (
	sharedMu sync.Mutex
	shared   = map[string]*Session{}
)

// Shared returns a session for the profile that is reused across the package's tests.
// It skips the test in -short mode and when Playwright or the engine is unavailable.
// Call CloseShared from TestMain.
func Shared(t testing.TB, cfg *config.Config, profileName string, sink artifacts.Sink) *Session {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping browser test in short mode")
	}

	sharedMu.Lock()
	defer sharedMu.Unlock()
	if s, ok := shared[profileName]; ok {
		return s
	}
	s, err := Launch(cfg, profileName, sink)
	if err != nil {
		t.Skip("Playwright not available:", err)
	}
	shared[profileName] = s
	return s
}

// CloseShared closes every session opened by Shared.
func CloseShared() {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	for name, s := range shared {
		_ = s.Close()
		delete(shared, name)
	}
}
