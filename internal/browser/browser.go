// Package browser is the capability the scraper drives: a page that can be
// navigated, queried and scripted. Chrome (chromedp) and Firefox (WebDriver)
// implement it; tests substitute fakes.
package browser

import (
	"context"
	"errors"
)

var (
	// ErrStaleElement means the node went away after it was found.
	ErrStaleElement = errors.New("stale element reference")
	// ErrClickIntercepted means another node received the click.
	ErrClickIntercepted = errors.New("element click intercepted")
)

type Browser interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	// Find returns the elements currently matching a CSS selector without
	// waiting. No match is an empty slice, not an error.
	Find(ctx context.Context, selector string) ([]Element, error)
	// Execute evaluates a script in the page and decodes its result into res.
	Execute(ctx context.Context, script string, res any) error
	Close() error
}

type Element interface {
	Text(ctx context.Context) (string, error)
	// Attribute reports ok=false when the attribute is not set.
	Attribute(ctx context.Context, name string) (value string, ok bool, err error)
	Value(ctx context.Context) (string, error)
	Visible(ctx context.Context) (bool, error)
	// Click dispatches a script click on the element.
	Click(ctx context.Context) error
	SendKeys(ctx context.Context, keys string) error
	Clear(ctx context.Context) error
	PressEnter(ctx context.Context) error
	OuterHTML(ctx context.Context) (string, error)
}

// Options are the knobs shared by both engines.
type Options struct {
	Headless     bool
	ExecPath     string
	UserAgent    string
	WebDriverURL string
	Lang         string
}
