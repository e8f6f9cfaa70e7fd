// Package browser provides the headless Chrome session shared by every group in a run.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/desertthunder/rankwatch/internal/extract"
	"github.com/desertthunder/rankwatch/internal/models"
	"github.com/desertthunder/rankwatch/internal/shared"
)

// hideWebdriver runs before any page script so navigator.webdriver reads as undefined.
const hideWebdriver = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined})`

const scrollScript = `(() => {
	const el = document.querySelector(%q);
	if (!el) { throw new Error("no element matches %s"); }
	el.scrollTop = el.scrollHeight;
	return true;
})()`

// defaultTimeout bounds operations that are not navigations.
const defaultTimeout = 15 * time.Second

// Session is a chromedp-backed [extract.Session].
type Session struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	pageTimeout time.Duration
	logger      *log.Logger
}

// AllocatorOptions translates the browser config into Chrome flags.
func AllocatorOptions(cfg shared.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.Width > 0 && cfg.Height > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.Width, cfg.Height))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// Open launches Chrome and prepares a session. Failures wrap [shared.ErrSessionUnavailable].
func Open(ctx context.Context, cfg shared.BrowserConfig, logger *log.Logger) (*Session, error) {
	if logger == nil {
		logger = log.Default()
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), AllocatorOptions(cfg)...)
	browserCtx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Debugf),
		chromedp.WithErrorf(logger.Debugf),
	)

	s := &Session{
		ctx:         browserCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
		pageTimeout: cfg.PageLoadTimeout.Duration,
		logger:      logger,
	}
	if s.pageTimeout <= 0 {
		s.pageTimeout = 30 * time.Second
	}

	// The first Run allocates the browser and must run on the browser context itself.
	err := chromedp.Run(browserCtx,
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(hideWebdriver).Do(ctx)
			return err
		}),
	)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: %v", shared.ErrSessionUnavailable, err)
	}
	logger.Debug("browser session started", "headless", cfg.Headless, "timeout", s.pageTimeout)
	return s, nil
}

// Opener adapts [Open] to the engine's session factory.
func Opener(cfg shared.BrowserConfig, logger *log.Logger) func(ctx context.Context) (extract.Session, error) {
	return func(ctx context.Context) (extract.Session, error) {
		s, err := Open(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// run executes actions on the browser context, bounded by timeout and cancelled with ctx.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

// classify maps deadline errors onto timeout sentinels, leaving caller cancellation intact.
func classify(ctx context.Context, err error, timeout error, what string) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", timeout, what)
	}
	return err
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	err := s.run(ctx, s.pageTimeout, chromedp.Navigate(url))
	return classify(ctx, err, shared.ErrNavigationTimeout, url)
}

func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, defaultTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, classify(ctx, err, shared.ErrWaitTimeout, "document html")
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	err := s.run(ctx, defaultTimeout, chromedp.Location(&loc))
	return loc, classify(ctx, err, shared.ErrWaitTimeout, "location")
}

// Screenshot captures the full page. Quality 100 keeps the capture lossless PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := s.run(ctx, s.pageTimeout, chromedp.FullScreenshot(&buf, 100))
	return buf, classify(ctx, err, shared.ErrWaitTimeout, "screenshot")
}

func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	err := s.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
	return classify(ctx, err, shared.ErrWaitTimeout, selector)
}

func (s *Session) ScrollToBottom(ctx context.Context, selector string) error {
	var ok bool
	err := s.run(ctx, defaultTimeout, chromedp.Evaluate(fmt.Sprintf(scrollScript, selector, selector), &ok))
	return classify(ctx, err, shared.ErrWaitTimeout, selector)
}

func (s *Session) SetGeolocation(ctx context.Context, at models.Coordinates, accuracy float64) error {
	err := s.run(ctx, defaultTimeout,
		emulation.SetGeolocationOverride().
			WithLatitude(at.Lat).
			WithLongitude(at.Lng).
			WithAccuracy(accuracy),
	)
	return classify(ctx, err, shared.ErrWaitTimeout, "geolocation override")
}

func (s *Session) SetCookie(ctx context.Context, c extract.Cookie) error {
	err := s.run(ctx, defaultTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		params := network.SetCookie(c.Name, c.Value)
		if c.Domain != "" {
			params = params.WithDomain(c.Domain)
		}
		if c.Path != "" {
			params = params.WithPath(c.Path)
		}
		return params.Do(ctx)
	}))
	return classify(ctx, err, shared.ErrWaitTimeout, "cookie "+c.Name)
}

// Close shuts the browser down. It is safe to call more than once.
func (s *Session) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	return nil
}
