// Package fetch - browser.go renders pages in a headless browser and collects
// the artifacts an accessibility audit needs.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/device"
	"go.uber.org/zap"

	"github.com/jonathan/a11y-auditor/internal/axe"
	"github.com/jonathan/a11y-auditor/internal/types"
)

const (
	// DefaultSettleDelay is the fixed wait after DOM readiness for script-driven rendering.
	DefaultSettleDelay = 5 * time.Second
	// DefaultResizeSettle is the wait after resizing the viewport before the screenshot.
	DefaultResizeSettle = 1 * time.Second
	// DefaultMaxScreenshotHeight caps the viewport height used for screenshots.
	DefaultMaxScreenshotHeight = 3000
	// DefaultCaptureTimeout bounds everything after the page body is ready.
	DefaultCaptureTimeout = 60 * time.Second

	desktopWidth  = 1280
	desktopHeight = 800
)

// Page holds everything captured from one rendered page.
type Page struct {
	URL        string
	Device     types.DeviceProfile
	HTML       string
	Screenshot []byte
	Report     *axe.Report
	Facts      *types.PageFacts
}

// RendererOptions configures a Renderer.
type RendererOptions struct {
	// ExecPath points at the Chrome binary; empty uses chromedp's lookup.
	ExecPath            string
	SettleDelay         time.Duration
	ResizeSettle        time.Duration
	MaxScreenshotHeight int
	// CaptureTimeout bounds settle, axe, resize and capture together.
	CaptureTimeout      time.Duration
	Axe                 axe.Source
	Logger              *zap.Logger
}

// Renderer loads pages in a fresh headless Chrome per call.
type Renderer struct {
	opts   RendererOptions
	axe    *axe.Loader
	logger *zap.Logger
}

// NewRenderer creates a Renderer, filling zero options with defaults. It
// fails when a configured local axe script cannot be read.
func NewRenderer(opts RendererOptions) (*Renderer, error) {
	if opts.SettleDelay == 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.ResizeSettle == 0 {
		opts.ResizeSettle = DefaultResizeSettle
	}
	if opts.MaxScreenshotHeight <= 0 {
		opts.MaxScreenshotHeight = DefaultMaxScreenshotHeight
	}
	if opts.CaptureTimeout <= 0 {
		opts.CaptureTimeout = DefaultCaptureTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	loader, err := axe.NewLoader(opts.Axe, nil)
	if err != nil {
		return nil, err
	}
	return &Renderer{opts: opts, axe: loader, logger: logger.Named("renderer")}, nil
}

// Render launches a browser for profile, loads url and captures HTML, a
// screenshot and the axe report. The browser is always shut down before
// Render returns. Failures are *RenderError values.
func (r *Renderer) Render(ctx context.Context, url string, profile types.DeviceProfile, timeout time.Duration) (*Page, error) {
	if !profile.Valid() {
		return nil, &RenderError{Category: types.ErrorUnexpected, Device: profile, Message: "unknown device profile"}
	}
	if timeout <= 0 {
		timeout = types.DefaultWaitTimeout
	}
	log := r.logger.With(zap.String("url", url), zap.String("device", string(profile)))

	script, err := r.axe.Script(ctx)
	if err != nil {
		return nil, &RenderError{Category: types.ErrorUnexpected, Device: profile, Message: "failed to load axe-core", Cause: err}
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(desktopWidth, desktopHeight),
	)
	if r.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(r.opts.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer func() {
		cancelBrowser()
		log.Debug("browser closed")
	}()

	log.Info("launching browser")
	if err := chromedp.Run(browserCtx); err != nil {
		return nil, classify(ctx, browserCtx, profile, stageLaunch, timeout, err)
	}

	// CSP is bypassed so pages with a strict policy can still be audited.
	if err := chromedp.Run(browserCtx, page.SetBypassCSP(true), emulate(profile)); err != nil {
		return nil, classify(ctx, browserCtx, profile, stageLaunch, timeout, err)
	}

	// Readiness is bounded by timeout; the browser itself lives on.
	loadCtx, cancelLoad := context.WithTimeout(browserCtx, timeout)
	err = chromedp.Run(loadCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	cancelLoad()
	if err != nil {
		return nil, classify(ctx, browserCtx, profile, stageLoad, timeout, err)
	}
	log.Info("page body located, waiting for dynamic content", zap.Duration("settle", r.opts.SettleDelay))

	captureCtx, cancelCapture := context.WithTimeout(browserCtx, r.opts.CaptureTimeout)
	defer cancelCapture()

	result := &Page{URL: url, Device: profile}
	var height float64
	err = chromedp.Run(captureCtx,
		chromedp.Sleep(r.opts.SettleDelay),
		axe.Inject(script),
		axe.Run(&result.Report),
		chromedp.Evaluate(`document.body.scrollHeight`, &height),
	)
	if err != nil {
		return nil, classify(ctx, browserCtx, profile, stageCapture, r.opts.CaptureTimeout, err)
	}
	log.Info("axe analysis complete", zap.Int("violations", result.Report.Count()))

	err = chromedp.Run(captureCtx,
		resize(profile, screenshotHeight(height, r.opts.MaxScreenshotHeight)),
		chromedp.Sleep(r.opts.ResizeSettle),
		chromedp.CaptureScreenshot(&result.Screenshot),
		chromedp.OuterHTML("html", &result.HTML, chromedp.ByQuery),
	)
	if err != nil {
		return nil, classify(ctx, browserCtx, profile, stageCapture, r.opts.CaptureTimeout, err)
	}

	facts, err := ExtractFacts(result.HTML)
	if err != nil {
		log.Warn("failed to extract page facts", zap.Error(err))
	} else {
		result.Facts = facts
	}

	log.Info("render complete",
		zap.Int("html_bytes", len(result.HTML)),
		zap.Int("screenshot_bytes", len(result.Screenshot)))
	return result, nil
}

// emulate applies the device's viewport and emulation flags.
func emulate(profile types.DeviceProfile) chromedp.Action {
	if profile == types.DeviceMobile {
		return chromedp.Emulate(device.IPhoneX)
	}
	return chromedp.EmulateViewport(desktopWidth, desktopHeight)
}

// resize sets the viewport to the content height, keeping the device width.
func resize(profile types.DeviceProfile, height int64) chromedp.Action {
	if profile == types.DeviceMobile {
		info := device.IPhoneX.Device()
		return emulation.SetDeviceMetricsOverride(info.Width, height, info.Scale, true)
	}
	return emulation.SetDeviceMetricsOverride(desktopWidth, height, 1, false)
}

// screenshotHeight clamps the measured content height to [1, maxHeight].
func screenshotHeight(contentHeight float64, maxHeight int) int64 {
	if math.IsNaN(contentHeight) || contentHeight < 1 {
		return desktopHeight
	}
	return int64(math.Min(math.Ceil(contentHeight), float64(maxHeight)))
}

type stage string

const (
	stageLaunch  stage = "launch"
	stageLoad    stage = "load"
	stageCapture stage = "capture"
)

// classify maps a chromedp failure to a RenderError category. timeout is the
// deadline of the stage that failed.
func classify(parent, browserCtx context.Context, profile types.DeviceProfile, st stage, timeout time.Duration, err error) *RenderError {
	switch {
	case parent.Err() != nil:
		return &RenderError{Category: types.ErrorUnexpected, Device: profile, Message: "audit cancelled", Cause: err}
	case st == stageLaunch:
		return &RenderError{Category: types.ErrorDriver, Device: profile, Message: "failed to start browser", Cause: err}
	case browserCtx.Err() != nil:
		return &RenderError{Category: types.ErrorDriver, Device: profile, Message: "browser exited unexpectedly", Cause: err}
	case st == stageLoad && errors.Is(err, context.DeadlineExceeded):
		return &RenderError{
			Category: types.ErrorTimeout,
			Device:   profile,
			Message:  fmt.Sprintf("page not ready after %s", timeout),
			Cause:    err,
		}
	case st == stageCapture && errors.Is(err, context.DeadlineExceeded):
		return &RenderError{
			Category: types.ErrorUnexpected,
			Device:   profile,
			Message:  fmt.Sprintf("capture not finished after %s", timeout),
			Cause:    err,
		}
	default:
		return &RenderError{Category: types.ErrorUnexpected, Device: profile, Message: fmt.Sprintf("%s failed", st), Cause: err}
	}
}
