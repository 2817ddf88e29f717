package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// BrowserSession is a chromedp-driven browser bound to the persistent
// profile directory. The uploader drives it; the ArtifactDumper captures
// from it.
type BrowserSession struct {
	ctx           context.Context
	cancel        context.CancelFunc
	processLog    *os.File
	consoleErrors []string
}

// NewBrowserSession launches a browser against the run's profile. Browser
// process output is redirected into chromedriver.log in the artifact
// directory and Chrome's own verbose log into chrome.log, both best-effort.
func NewBrowserSession(cfg *Config, debugDir string) (*BrowserSession, error) {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.UserDataDir(cfg.ProfileDir),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1280, 800),
	}

	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromePath))
	}

	bs := &BrowserSession{}

	if debugDir != "" {
		opts = append(opts,
			chromedp.Flag("enable-logging", true),
			chromedp.Flag("v", "1"),
			chromedp.Flag("log-file", filepath.Join(debugDir, "chrome.log")),
		)
		if f, err := os.OpenFile(filepath.Join(debugDir, "chromedriver.log"),
			os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err == nil {
			bs.processLog = f
			opts = append(opts, chromedp.CombinedOutput(f))
		}
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	bs.ctx = ctx
	bs.cancel = func() {
		cancel()
		allocCancel()
	}

	chromedp.ListenTarget(bs.ctx, func(ev any) {
		if ev, ok := ev.(*runtime.EventExceptionThrown); ok {
			bs.consoleErrors = append(bs.consoleErrors, ev.ExceptionDetails.Text)
		}
	})

	// Force the browser to actually start so launch failures surface here,
	// not on the first capture.
	startCtx, startCancel := context.WithTimeout(bs.ctx, 30*time.Second)
	defer startCancel()
	if err := chromedp.Run(startCtx); err != nil {
		bs.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return bs, nil
}

// Context returns the chromedp browser context for driving the page.
func (bs *BrowserSession) Context() context.Context {
	return bs.ctx
}

// Navigate loads a URL and waits for the body to be ready.
func (bs *BrowserSession) Navigate(ctx context.Context, url string) error {
	return chromedp.Run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// CapturePage returns the current page HTML, a full screenshot and the
// current URL. Implements PageCapturer.
func (bs *BrowserSession) CapturePage(ctx context.Context) (string, []byte, string, error) {
	return capturePage(ctx)
}

// capturePage grabs the page state of whatever browser the chromedp
// context is attached to, local or remote.
func capturePage(ctx context.Context) (string, []byte, string, error) {
	captureCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var html, url string
	var shot []byte
	err := chromedp.Run(captureCtx,
		chromedp.Location(&url),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.FullScreenshot(&shot, 90),
	)
	if err != nil {
		return "", nil, "", err
	}
	return html, shot, url, nil
}

// ConsoleErrors returns exceptions thrown on the page so far.
func (bs *BrowserSession) ConsoleErrors() []string {
	return bs.consoleErrors
}

// Close tears down the browser and its allocator.
func (bs *BrowserSession) Close() {
	if bs.cancel != nil {
		bs.cancel()
		bs.cancel = nil
	}
	if bs.processLog != nil {
		bs.processLog.Close()
		bs.processLog = nil
	}
}

// AttachRemote attaches to an already-running browser through its DevTools
// endpoint, for inspecting the interactive login session.
func AttachRemote(parent context.Context, debugPort int) (context.Context, context.CancelFunc) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(parent,
		fmt.Sprintf("http://127.0.0.1:%d", debugPort))
	ctx, cancel := chromedp.NewContext(allocCtx)
	return ctx, func() {
		cancel()
		allocCancel()
	}
}

// remotePage adapts a remote-attached chromedp context to PageCapturer.
type remotePage struct{}

func (remotePage) CapturePage(ctx context.Context) (string, []byte, string, error) {
	return capturePage(ctx)
}
