package facility

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// PageRenderer returns the final DOM of a page after scripts have run
type PageRenderer interface {
	Render(ctx context.Context, url string) (string, error)
}

const defaultRenderTimeout = 30 * time.Second

// ErrEmptyRender is returned when the browser produced no document
var ErrEmptyRender = errors.New("renderer: rendered page is empty")

// ChromedpConfig contains configuration for the headless-browser renderer
type ChromedpConfig struct {
	// Timeout bounds a single page render
	Timeout time.Duration
	// RemoteURL is the websocket URL of a running Chrome (optional).
	// If empty, chromedp launches a local headless browser.
	RemoteURL string
	// NoSandbox runs Chrome without sandbox (required for Docker/root)
	NoSandbox bool
	// WaitSelector is awaited before the DOM is captured
	WaitSelector string
}

// ChromedpRenderer renders JavaScript-built listing pages with Chrome
// DevTools Protocol.
type ChromedpRenderer struct {
	config      ChromedpConfig
	logger      *zap.Logger
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

// NewChromedpRenderer creates a renderer and its browser allocator
func NewChromedpRenderer(config ChromedpConfig, logger *zap.Logger) *ChromedpRenderer {
	if config.Timeout <= 0 {
		config.Timeout = defaultRenderTimeout
	}
	if config.WaitSelector == "" {
		config.WaitSelector = "body"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &ChromedpRenderer{config: config, logger: logger.Named("renderer")}
	if config.RemoteURL != "" {
		r.allocCtx, r.allocCancel = chromedp.NewRemoteAllocator(context.Background(), config.RemoteURL)
		return r
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
	)
	if config.NoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}
	r.allocCtx, r.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	return r
}

// Render navigates to url and returns the outer HTML of the document
func (r *ChromedpRenderer) Render(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	browserCtx, browserCancel := chromedp.NewContext(r.allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			r.logger.Debug(fmt.Sprintf(format, args...))
		}),
	)
	defer browserCancel()

	// Tie the browser tab to the caller's deadline.
	stop := context.AfterFunc(ctx, browserCancel)
	defer stop()

	var html string
	err := chromedp.Run(browserCtx,
		emulation.SetUserAgentOverride(userAgent),
		network.Enable(),
		chromedp.Navigate(url),
		chromedp.WaitReady(r.config.WaitSelector, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("render %s timed out after %v: %w", url, r.config.Timeout, ctx.Err())
		}
		r.logger.Warn("chromedp render failed", zap.String("url", url), zap.Error(err))
		return "", fmt.Errorf("render %s: %w", url, err)
	}
	if strings.TrimSpace(html) == "" {
		return "", ErrEmptyRender
	}
	return html, nil
}

// Close releases the browser allocator
func (r *ChromedpRenderer) Close() error {
	if r.allocCancel != nil {
		r.allocCancel()
	}
	return nil
}

// Ensure ChromedpRenderer implements PageRenderer
var _ PageRenderer = (*ChromedpRenderer)(nil)
