package scrape

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"CrawlerJobStreet/internal/browser"
)

// Condition is what Locate waits for on a matched element.
type Condition int

const (
	Present Condition = iota
	Visible
)

// Locator wraps Browser.Find with bounded polling. Every wait re-checks at
// a fixed interval and gives up with a typed error once its budget is spent.
type Locator struct {
	b    browser.Browser
	poll time.Duration
	log  *logrus.Entry
}

func NewLocator(b browser.Browser, poll time.Duration, log *logrus.Entry) *Locator {
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	return &Locator{b: b, poll: poll, log: log}
}

// Locate tries each candidate selector in order, each with the full timeout,
// and returns the first element that meets cond.
func (l *Locator) Locate(ctx context.Context, selectors []string, timeout time.Duration, cond Condition) (browser.Element, error) {
	var lastErr error = &NotFoundError{Selector: strings.Join(selectors, " | "), Timeout: timeout}
	for _, sel := range selectors {
		el, err := l.locateOne(ctx, sel, timeout, cond)
		if err == nil {
			return el, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		l.log.WithField("selector", sel).Debug("candidate selector not found")
		lastErr = err
	}
	return nil, lastErr
}

func (l *Locator) locateOne(ctx context.Context, sel string, timeout time.Duration, cond Condition) (browser.Element, error) {
	var found browser.Element
	err := l.Until(ctx, timeout, func(ctx context.Context) bool {
		found = l.match(ctx, sel, cond)
		return found != nil
	})
	if err != nil {
		if errors.Is(err, ErrWaitTimeout) {
			return nil, &NotFoundError{Selector: sel, Timeout: timeout}
		}
		return nil, err
	}
	return found, nil
}

func (l *Locator) match(ctx context.Context, sel string, cond Condition) browser.Element {
	els, err := l.b.Find(ctx, sel)
	if err != nil {
		return nil
	}
	for _, el := range els {
		if cond == Present {
			return el
		}
		if ok, err := el.Visible(ctx); err == nil && ok {
			return el
		}
	}
	return nil
}

// LocateAll returns every element matching the first candidate that
// matches anything within the timeout.
func (l *Locator) LocateAll(ctx context.Context, selectors []string, timeout time.Duration) ([]browser.Element, error) {
	for _, sel := range selectors {
		var els []browser.Element
		err := l.Until(ctx, timeout, func(ctx context.Context) bool {
			found, err := l.b.Find(ctx, sel)
			if err != nil || len(found) == 0 {
				return false
			}
			els = found
			return true
		})
		if err == nil {
			return els, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, &NotFoundError{Selector: strings.Join(selectors, " | "), Timeout: timeout}
}

// Exists reports, without waiting, whether any candidate matches.
func (l *Locator) Exists(ctx context.Context, selectors []string) bool {
	for _, sel := range selectors {
		if l.match(ctx, sel, Present) != nil {
			return true
		}
	}
	return false
}

// AnyVisible reports, without waiting, whether any candidate matches a
// visible element.
func (l *Locator) AnyVisible(ctx context.Context, selectors []string) bool {
	for _, sel := range selectors {
		if l.match(ctx, sel, Visible) != nil {
			return true
		}
	}
	return false
}

// TextEquals reports, without waiting, whether some element matching a
// candidate has trimmed text equal to want.
func (l *Locator) TextEquals(ctx context.Context, selectors []string, want string) bool {
	want = strings.TrimSpace(want)
	for _, sel := range selectors {
		els, err := l.b.Find(ctx, sel)
		if err != nil {
			continue
		}
		for _, el := range els {
			if t, err := el.Text(ctx); err == nil && strings.TrimSpace(t) == want {
				return true
			}
		}
	}
	return false
}

// WaitText waits until TextEquals holds.
func (l *Locator) WaitText(ctx context.Context, selectors []string, want string, timeout time.Duration) error {
	return l.Until(ctx, timeout, func(ctx context.Context) bool {
		return l.TextEquals(ctx, selectors, want)
	})
}

// Until polls cond until it returns true, the timeout passes (ErrWaitTimeout)
// or ctx ends.
func (l *Locator) Until(ctx context.Context, timeout time.Duration, cond func(context.Context) bool) error {
	deadline := time.Now().Add(timeout)
	for {
		if cond(ctx) {
			return nil
		}
		if !time.Now().Before(deadline) {
			return ErrWaitTimeout
		}
		if err := sleep(ctx, l.poll); err != nil {
			return err
		}
	}
}

// Click dispatches a script click. Stale or intercepted clicks come back as
// false; the caller has to locate the element again before retrying.
func (l *Locator) Click(ctx context.Context, el browser.Element) bool {
	err := el.Click(ctx)
	switch {
	case err == nil:
		return true
	case errors.Is(err, browser.ErrStaleElement), errors.Is(err, browser.ErrClickIntercepted):
		l.log.WithError(err).Warn("element not clickable")
	default:
		l.log.WithError(err).Warn("click failed")
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
