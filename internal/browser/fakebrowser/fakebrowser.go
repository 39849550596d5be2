// Package fakebrowser is a scripted in-memory browser.Page for tests, pages
// are plain HTML documents served by a router and queried with goquery.
package fakebrowser

import (
	"context"
	"errors"
	"fmt"
	"guapassist-backend/internal/browser"
	"guapassist-backend/internal/scraperr"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Document is what the page renders after a navigation.
type Document struct {
	Location string
	HTML     string
}

// Router resolves the url of a navigation to the document the page lands on.
type Router func(url string) (Document, error)

// Routes serves documents by exact url, unknown urls fail like an
// unresolvable host does.
func Routes(routes map[string]Document) Router {
	return func(url string) (Document, error) {
		doc, ok := routes[url]
		if !ok {
			return Document{}, fmt.Errorf("net::ERR_NAME_NOT_RESOLVED at %s", url)
		}
		if doc.Location == "" {
			doc.Location = url
		}
		return doc, nil
	}
}

// ClickHandler is invoked for every click, it usually swaps the document with
// SetDocument to simulate a form submission.
type ClickHandler func(p *Page, selector string) error

type Page struct {
	router  Router
	onClick ClickHandler

	mu          sync.Mutex
	doc         Document
	parsed      *goquery.Document
	typed       map[string]string
	navigations []string
	clicks      []string
	waiters     []chan struct{}
	crashed     bool
	closed      bool
}

var _ browser.Page = (*Page)(nil)

func New(router Router, onClick ClickHandler) *Page {
	p := &Page{
		router:  router,
		onClick: onClick,
		typed:   map[string]string{},
	}
	p.SetDocument(Document{Location: "about:blank", HTML: "<html><body></body></html>"})
	return p
}

// SetDocument replaces the rendered document and fires every armed
// navigation listener.
func (p *Page) SetDocument(doc Document) {
	parsed, err := goquery.NewDocumentFromReader(strings.NewReader(doc.HTML))
	if err != nil {
		panic(err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.doc = doc
	p.parsed = parsed
	for _, ch := range p.waiters {
		close(ch)
	}
	p.waiters = nil
}

// Crash makes the page behave like a browser whose target went away.
func (p *Page) Crash() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.crashed = true
}

func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.navigations...)
}

func (p *Page) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.clicks...)
}

// Typed returns everything sent to selector so far.
func (p *Page) Typed(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.typed[selector]
}

func (p *Page) usable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("session closed")
	}
	if p.crashed {
		return errors.New("Target closed")
	}
	return nil
}

func (p *Page) find(selector string) *goquery.Selection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.parsed.Find(selector)
}

func (p *Page) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if err := p.usable(ctx); err != nil {
		return scraperr.FromAutomation("browser.navigate", err)
	}

	p.mu.Lock()
	p.navigations = append(p.navigations, url)
	p.mu.Unlock()

	doc, err := p.router(url)
	if err != nil {
		return scraperr.FromAutomation("browser.navigate", err)
	}
	p.SetDocument(doc)
	return nil
}

func (p *Page) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if err := p.usable(ctx); err != nil {
		return scraperr.FromAutomation("browser.wait", err)
	}
	if p.find(selector).Length() == 0 {
		return scraperr.Wrapf(
			scraperr.KindTransient,
			"browser.wait",
			context.DeadlineExceeded,
			"waiting for selector `%s` failed", selector,
		)
	}
	return nil
}

func (p *Page) WaitAny(ctx context.Context, selectors []string, timeout time.Duration) (int, error) {
	if err := p.usable(ctx); err != nil {
		return -1, scraperr.FromAutomation("browser.wait-any", err)
	}
	for i, selector := range selectors {
		if p.find(selector).Length() > 0 {
			return i, nil
		}
	}
	return -1, scraperr.Wrapf(
		scraperr.KindTransient,
		"browser.wait-any",
		context.DeadlineExceeded,
		"waiting for selector `%s` failed", strings.Join(selectors, "`, `"),
	)
}

func (p *Page) SendKeys(ctx context.Context, selector, text string) error {
	if err := p.usable(ctx); err != nil {
		return scraperr.FromAutomation("browser.send-keys", err)
	}
	if p.find(selector).Length() == 0 {
		return scraperr.Wrapf(scraperr.KindTransient, "browser.send-keys", context.DeadlineExceeded, "waiting for selector `%s` failed", selector)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typed[selector] += text
	return nil
}

func (p *Page) Click(ctx context.Context, selector string) error {
	if err := p.usable(ctx); err != nil {
		return scraperr.FromAutomation("browser.click", err)
	}
	if p.find(selector).Length() == 0 {
		return scraperr.Wrapf(scraperr.KindTransient, "browser.click", context.DeadlineExceeded, "waiting for selector `%s` failed", selector)
	}

	p.mu.Lock()
	p.clicks = append(p.clicks, selector)
	p.mu.Unlock()

	if p.onClick == nil {
		return nil
	}
	return p.onClick(p, selector)
}

func (p *Page) ExpectNavigation() (<-chan struct{}, func()) {
	ch := make(chan struct{})
	p.mu.Lock()
	p.waiters = append(p.waiters, ch)
	p.mu.Unlock()

	stop := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, waiter := range p.waiters {
			if waiter == ch {
				p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
				return
			}
		}
	}
	return ch, stop
}

func (p *Page) Location(ctx context.Context) (string, error) {
	if err := p.usable(ctx); err != nil {
		return "", scraperr.FromAutomation("browser.location", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Location, nil
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	if err := p.usable(ctx); err != nil {
		return "", scraperr.FromAutomation("browser.html", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.HTML, nil
}

func (p *Page) Text(ctx context.Context, selector string) (string, error) {
	if err := p.usable(ctx); err != nil {
		return "", scraperr.FromAutomation("browser.text", err)
	}
	return strings.TrimSpace(p.find(selector).First().Text()), nil
}

func (p *Page) Alive(ctx context.Context) bool {
	if p.usable(ctx) != nil {
		return false
	}
	return p.find("body").Length() > 0
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Launcher hands out pages built by a factory and remembers them.
type Launcher struct {
	factory func() *Page

	mu    sync.Mutex
	pages []*Page
	err   error
	delay time.Duration
}

var _ browser.Launcher = (*Launcher)(nil)

func NewLauncher(factory func() *Page) *Launcher {
	return &Launcher{factory: factory}
}

// FailWith makes every following launch fail with err, nil restores launching.
func (l *Launcher) FailWith(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

// SlowDown makes every following launch take d, it is useful to widen race
// windows in concurrency tests.
func (l *Launcher) SlowDown(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.delay = d
}

func (l *Launcher) Launch(ctx context.Context) (browser.Page, error) {
	l.mu.Lock()
	err := l.err
	delay := l.delay
	l.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, scraperr.Wrapf(scraperr.KindTransient, "browser.launch", err, "start browser")
	}

	page := l.factory()
	l.mu.Lock()
	l.pages = append(l.pages, page)
	l.mu.Unlock()
	return page, nil
}

// Pages returns every page launched so far, in launch order.
func (l *Launcher) Pages() []*Page {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Page{}, l.pages...)
}

// Open counts the launched pages that were not closed yet.
func (l *Launcher) Open() int {
	count := 0
	for _, p := range l.Pages() {
		if !p.Closed() {
			count++
		}
	}
	return count
}
