package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"guapassist-backend/internal/components/assert"
	"guapassist-backend/internal/components/telemetry"
	"guapassist-backend/internal/scraperr"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const (
	report_chrome_launch = "chrome.launch"
	report_chrome_close  = "chrome.close"
	report_chrome_error  = "chrome.cdp"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

type ChromeOptions struct {
	// Headful shows the browser window, browsers are headless by default.
	Headful bool `json:"headful"`
	// ExecPath overrides the chrome binary, empty means look it up on PATH.
	ExecPath string `json:"exec_path"`
	// RemoteURL connects to an already running browser (ex. a headless-shell
	// container) over its devtools websocket instead of launching one.
	RemoteURL    string `json:"remote_url"`
	UserAgent    string `json:"user_agent"`
	WindowWidth  int    `json:"window_width"`
	WindowHeight int    `json:"window_height"`
	NoSandbox    bool   `json:"no_sandbox"`
	// LaunchTimeout bounds how long starting the browser may take.
	LaunchTimeout time.Duration `json:"-"`
}

// ChromeLauncher launches one chrome process per page using chromedp.
type ChromeLauncher struct {
	// root outlives every request, browsers must not die with the request
	// that happened to create them.
	root context.Context
	opts ChromeOptions
	tel  telemetry.API
}

func NewChromeLauncher(root context.Context, opts ChromeOptions, tel telemetry.API) *ChromeLauncher {
	assert.NotNil(root, "root")
	assert.NotNil(tel, "tel")

	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.WindowWidth == 0 || opts.WindowHeight == 0 {
		opts.WindowWidth, opts.WindowHeight = 1366, 768
	}
	if opts.LaunchTimeout == 0 {
		opts.LaunchTimeout = 30 * time.Second
	}

	return &ChromeLauncher{
		root: root,
		opts: opts,
		tel:  telemetry.NewScopedAPI("browser", tel),
	}
}

func (l *ChromeLauncher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if l.opts.Headful {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if l.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.opts.ExecPath))
	}
	opts = append(opts,
		chromedp.UserAgent(l.opts.UserAgent),
		chromedp.WindowSize(l.opts.WindowWidth, l.opts.WindowHeight),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-gpu", !l.opts.Headful),
	)
	if l.opts.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	return opts
}

func (l *ChromeLauncher) allocator() (context.Context, context.CancelFunc) {
	if l.opts.RemoteURL != "" {
		return chromedp.NewRemoteAllocator(l.root, l.opts.RemoteURL)
	}
	return chromedp.NewExecAllocator(l.root, l.allocatorOptions()...)
}

func (l *ChromeLauncher) Launch(ctx context.Context) (Page, error) {
	allocCtx, allocCancel := l.allocator()
	tabCtx, tabCancel := chromedp.NewContext(
		allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			l.tel.ReportDebug(fmt.Sprintf(format, args...))
		}),
		chromedp.WithErrorf(func(format string, args ...any) {
			l.tel.ReportWarning(report_chrome_error, fmt.Sprintf(format, args...))
		}),
	)
	release := func() {
		tabCancel()
		allocCancel()
	}

	launchCtx, cancel := context.WithTimeout(ctx, l.opts.LaunchTimeout)
	defer cancel()

	// the first Run on a fresh context starts the browser, it is bound to the
	// tab context so it is raced against the caller's deadline here.
	started := make(chan error, 1)
	go func() {
		started <- chromedp.Run(tabCtx)
	}()

	select {
	case err := <-started:
		if err != nil {
			release()
			l.tel.ReportBroken(report_chrome_launch, err)
			return nil, scraperr.Wrapf(scraperr.KindTransient, "browser.launch", err, "start browser")
		}
	case <-launchCtx.Done():
		release()
		return nil, scraperr.Wrapf(scraperr.KindTransient, "browser.launch", launchCtx.Err(), "start browser")
	}

	return &chromePage{
		ctx:     tabCtx,
		release: release,
		tel:     l.tel,
	}, nil
}

type chromePage struct {
	ctx     context.Context
	release func()
	tel     telemetry.API

	closeOnce sync.Once
	closeErr  error
}

// run executes actions against the tab, the actions are aborted if either
// ctx is done or timeout elapses. Cancelling a context derived from the tab
// context only aborts the actions, not the tab.
func (p *chromePage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if p.ctx.Err() != nil {
		return scraperr.New(scraperr.KindTransient, "browser.run", "page closed")
	}
	runCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

const actionTimeout = 10 * time.Second

func (p *chromePage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	err := p.run(ctx, timeout, chromedp.Navigate(url))
	if err == nil {
		return nil
	}
	if runCtxExpired(err) {
		return scraperr.Wrapf(scraperr.KindTransient, "browser.navigate", err, "navigation timeout of %s exceeded for %s", timeout, url)
	}
	return scraperr.FromAutomation("browser.navigate", err)
}

func (p *chromePage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	err := p.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
	if err == nil {
		return nil
	}
	if runCtxExpired(err) {
		return scraperr.Wrapf(scraperr.KindTransient, "browser.wait", err, "waiting for selector `%s` failed", selector)
	}
	return scraperr.FromAutomation("browser.wait", err)
}

const waitAnyScript = `(() => {
	const selectors = %s;
	for (let i = 0; i < selectors.length; i++) {
		if (document.querySelector(selectors[i])) {
			return i + 1;
		}
	}
	return 0;
})()`

func (p *chromePage) WaitAny(ctx context.Context, selectors []string, timeout time.Duration) (int, error) {
	encoded, err := json.Marshal(selectors)
	if err != nil {
		return -1, err
	}
	var matched int
	err = p.run(
		ctx,
		timeout,
		chromedp.Poll(
			fmt.Sprintf(waitAnyScript, encoded),
			&matched,
			chromedp.WithPollingInterval(200*time.Millisecond),
			chromedp.WithPollingTimeout(timeout),
		),
	)
	if err != nil {
		if runCtxExpired(err) {
			return -1, scraperr.Wrapf(
				scraperr.KindTransient,
				"browser.wait-any",
				err,
				"waiting for selector `%s` failed",
				strings.Join(selectors, "`, `"),
			)
		}
		return -1, scraperr.FromAutomation("browser.wait-any", err)
	}
	return matched - 1, nil
}

func (p *chromePage) SendKeys(ctx context.Context, selector, text string) error {
	err := p.run(ctx, actionTimeout, chromedp.SendKeys(selector, text, chromedp.ByQuery))
	return scraperr.FromAutomation("browser.send-keys", err)
}

func (p *chromePage) Click(ctx context.Context, selector string) error {
	err := p.run(ctx, actionTimeout, chromedp.Click(selector, chromedp.ByQuery))
	return scraperr.FromAutomation("browser.click", err)
}

func (p *chromePage) ExpectNavigation() (<-chan struct{}, func()) {
	listenCtx, cancel := context.WithCancel(p.ctx)
	done := make(chan struct{})
	var once sync.Once
	chromedp.ListenTarget(listenCtx, func(ev any) {
		switch ev.(type) {
		case *page.EventLoadEventFired, *page.EventNavigatedWithinDocument:
			once.Do(func() { close(done) })
		}
	})
	return done, cancel
}

func (p *chromePage) Location(ctx context.Context) (string, error) {
	var location string
	err := p.run(ctx, actionTimeout, chromedp.Location(&location))
	if err != nil {
		return "", scraperr.FromAutomation("browser.location", err)
	}
	return location, nil
}

func (p *chromePage) HTML(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, actionTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	if err != nil {
		return "", scraperr.FromAutomation("browser.html", err)
	}
	return html, nil
}

const textScript = `(() => {
	const el = document.querySelector(%s);
	return el ? el.textContent.trim() : "";
})()`

func (p *chromePage) Text(ctx context.Context, selector string) (string, error) {
	encoded, err := json.Marshal(selector)
	if err != nil {
		return "", err
	}
	var text string
	err = p.run(ctx, actionTimeout, chromedp.Evaluate(fmt.Sprintf(textScript, encoded), &text))
	if err != nil {
		return "", scraperr.FromAutomation("browser.text", err)
	}
	return text, nil
}

func (p *chromePage) Alive(ctx context.Context) bool {
	if p.ctx.Err() != nil {
		return false
	}
	var hasBody bool
	err := p.run(ctx, 5*time.Second, chromedp.Evaluate(`!!document.body`, &hasBody))
	return err == nil && hasBody
}

func (p *chromePage) Close() error {
	p.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			done <- chromedp.Cancel(p.ctx)
		}()
		select {
		case err := <-done:
			p.closeErr = err
		case <-ctx.Done():
			p.closeErr = fmt.Errorf("close browser: %w", ctx.Err())
		}
		p.release()
		if p.closeErr != nil {
			p.tel.ReportWarning(report_chrome_close, p.closeErr)
		}
	})
	return p.closeErr
}

func runCtxExpired(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
