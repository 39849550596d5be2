// Package browser is the narrow surface of browser automation the rest of the
// repository needs: one controlled browser with one active page.
package browser

import (
	"context"
	"time"
)

// Page is a single tab inside a browser instance owned by the page, closing
// the page releases the browser along with it.
//
// note: fault injection point
type Page interface {
	// Navigate loads url and waits for the load event, bounded by timeout.
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// WaitVisible waits for the first element matching selector to become visible.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// WaitAny waits until any of the selectors matches an element and returns
	// the index of the first one that matched.
	WaitAny(ctx context.Context, selectors []string, timeout time.Duration) (int, error)
	SendKeys(ctx context.Context, selector, text string) error
	Click(ctx context.Context, selector string) error
	// ExpectNavigation arms a listener for the next load event of the page,
	// the returned channel is closed when it fires. The listener must be
	// stopped with the returned func once the caller no longer cares.
	ExpectNavigation() (<-chan struct{}, func())
	Location(ctx context.Context) (string, error)
	// HTML returns the outer HTML of the rendered document.
	HTML(ctx context.Context) (string, error)
	// Text returns the trimmed text content of the first element matching
	// selector, or an empty string if nothing matches.
	Text(ctx context.Context, selector string) (string, error)
	// Alive returns true if the page is open and has a document body.
	Alive(ctx context.Context) bool
	Close() error
}

// Launcher opens a new browser with a single page.
//
// note: fault injection point
type Launcher interface {
	Launch(ctx context.Context) (Page, error)
}
