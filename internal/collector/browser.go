package collector

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const (
	consentFrame      = `iframe[title*="TrustArc Cookie Consent Manager"]`
	consentButtonText = "Agree and proceed with standard settings"

	DefaultSettle         = 15 * time.Second
	DefaultConsentWait    = 20 * time.Second
	DefaultBrowserTimeout = 3 * time.Minute
	DefaultScreenshotFile = "debug_screenshot.png"
)

// BrowserListing renders the listing in a Chrome session, for when the
// portal only fills the table client-side.
type BrowserListing struct {
	BaseURL        string
	ExecPath       string // browser binary; empty means look it up on PATH
	Headless       bool
	Settle         time.Duration
	ConsentWait    time.Duration
	Timeout        time.Duration
	DebugFile      string
	ScreenshotFile string
	Logger         *zap.Logger
}

func NewBrowserListing(baseURL, execPath string, headless bool, logger *zap.Logger) *BrowserListing {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BrowserListing{
		BaseURL:        baseURL,
		ExecPath:       execPath,
		Headless:       headless,
		Settle:         DefaultSettle,
		ConsentWait:    DefaultConsentWait,
		Timeout:        DefaultBrowserTimeout,
		DebugFile:      DefaultDebugFile,
		ScreenshotFile: DefaultScreenshotFile,
		Logger:         logger,
	}
}

func (l *BrowserListing) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", l.Headless),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(userAgent),
	)
	if l.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.ExecPath))
	}
	return opts
}

func (l *BrowserListing) FetchListing(ctx context.Context, scope Scope) ([]Row, error) {
	endpoint, err := SearchURL(l.BaseURL, scope)
	if err != nil {
		return nil, err
	}
	l.Logger.Info("rendering errata listing", zap.String("url", endpoint), zap.Bool("headless", l.Headless), zap.String("exec_path", l.ExecPath))

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, l.allocatorOptions()...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	runCtx, cancel := context.WithTimeout(browserCtx, l.Timeout)
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.Navigate(endpoint)); err != nil {
		return nil, fmt.Errorf("navigate to listing: %w", err)
	}

	l.dismissConsent(runCtx)

	var html, loc string
	err = chromedp.Run(runCtx,
		chromedp.Sleep(l.Settle),
		chromedp.Location(&loc),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		l.screenshot(runCtx)
		return nil, fmt.Errorf("capture rendered listing: %w", err)
	}
	locURL, err := url.Parse(loc)
	if err != nil {
		locURL = nil
	}
	rows, err := rowsFromHTML(html, locURL, l.DebugFile, l.Logger)
	if err != nil {
		l.screenshot(runCtx)
		return nil, err
	}
	return rows, nil
}

// dismissConsent clicks through the cookie banner when it shows up. Failure
// is not fatal: the banner may already be accepted or its markup changed.
func (l *BrowserListing) dismissConsent(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, l.ConsentWait)
	defer cancel()

	var frames []*cdp.Node
	if err := chromedp.Run(cctx, chromedp.Nodes(consentFrame, &frames, chromedp.ByQuery)); err != nil || len(frames) == 0 {
		l.Logger.Info("consent banner not handled, continuing", zap.Error(err))
		return
	}
	var links []*cdp.Node
	if err := chromedp.Run(cctx, chromedp.Nodes("a", &links, chromedp.ByQueryAll, chromedp.FromNode(frames[0]))); err != nil {
		l.Logger.Info("consent banner not handled, continuing", zap.Error(err))
		return
	}
	for _, link := range links {
		var text string
		if err := chromedp.Run(cctx, chromedp.Text([]cdp.NodeID{link.NodeID}, &text, chromedp.ByNodeID)); err != nil {
			continue
		}
		if strings.Contains(text, consentButtonText) {
			if err := chromedp.Run(cctx, chromedp.MouseClickNode(link)); err != nil {
				l.Logger.Info("consent click failed, continuing", zap.Error(err))
				return
			}
			l.Logger.Info("consent banner dismissed")
			return
		}
	}
	l.Logger.Info("consent button not found, continuing")
}

func (l *BrowserListing) screenshot(ctx context.Context) {
	if l.ScreenshotFile == "" || ctx.Err() != nil {
		return
	}
	var buf []byte
	if err := chromedp.Run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		l.Logger.Warn("cannot capture screenshot", zap.Error(err))
		return
	}
	if err := os.WriteFile(l.ScreenshotFile, buf, 0o644); err != nil {
		l.Logger.Warn("cannot write screenshot", zap.String("path", l.ScreenshotFile), zap.Error(err))
		return
	}
	l.Logger.Warn("browser screenshot saved for inspection", zap.String("path", l.ScreenshotFile))
}
