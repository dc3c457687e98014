package scrape_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CrawlerJobStreet/internal/browser"
	"CrawlerJobStreet/internal/config"
)

// fakeBrowser is a selector-keyed page: Find returns whatever was set for
// the exact selector string.
type fakeBrowser struct {
	url         string
	dom         map[string][]*fakeElement
	delay       map[string]int
	navigations []string
	finds       map[string]int
	closes      int
	onNavigate  func(url string)
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{
		dom:   map[string][]*fakeElement{},
		delay: map[string]int{},
		finds: map[string]int{},
	}
}

func (b *fakeBrowser) set(sel string, els ...*fakeElement) { b.dom[sel] = els }
func (b *fakeBrowser) remove(sel string) { delete(b.dom, sel) }

func (b *fakeBrowser) Navigate(_ context.Context, url string) error {
	b.url = url
	b.navigations = append(b.navigations, url)
	if b.onNavigate != nil {
		b.onNavigate(url)
	}
	return nil
}

func (b *fakeBrowser) CurrentURL(context.Context) (string, error) { return b.url, nil }

func (b *fakeBrowser) Find(_ context.Context, sel string) ([]browser.Element, error) {
	b.finds[sel]++
	if b.delay[sel] > 0 {
		b.delay[sel]--
		return nil, nil
	}
	var out []browser.Element
	for _, el := range b.dom[sel] {
		out = append(out, el)
	}
	return out, nil
}

func (b *fakeBrowser) Execute(context.Context, string, any) error { return nil }

func (b *fakeBrowser) Close() error {
	b.closes++
	return nil
}

type fakeElement struct {
	text       string
	attrs      map[string]string
	value      string
	hidden     bool
	html       string
	clickErr   error
	ignoreKeys bool

	onClick func()
	onKeys  func(value string)
	onEnter func()
	onClear func()

	clicks int
	enters int
}

func el(text string) *fakeElement { return &fakeElement{text: text, attrs: map[string]string{}} }

func (e *fakeElement) Text(context.Context) (string, error) { return e.text, nil }

func (e *fakeElement) Attribute(_ context.Context, name string) (string, bool, error) {
	v, ok := e.attrs[name]
	return v, ok, nil
}

func (e *fakeElement) Value(context.Context) (string, error) { return e.value, nil }
func (e *fakeElement) Visible(context.Context) (bool, error) { return !e.hidden, nil }
func (e *fakeElement) OuterHTML(context.Context) (string, error) { return e.html, nil }

func (e *fakeElement) Click(context.Context) error {
	e.clicks++
	if e.clickErr != nil {
		return e.clickErr
	}
	if e.onClick != nil {
		e.onClick()
	}
	return nil
}

func (e *fakeElement) SendKeys(_ context.Context, keys string) error {
	if e.ignoreKeys {
		return nil
	}
	e.value += keys
	if e.onKeys != nil {
		e.onKeys(e.value)
	}
	return nil
}

func (e *fakeElement) Clear(context.Context) error {
	e.value = ""
	if e.onClear != nil {
		e.onClear()
	}
	return nil
}

func (e *fakeElement) PressEnter(context.Context) error {
	e.enters++
	if e.onEnter != nil {
		e.onEnter()
	}
	return nil
}

// scriptedCodes hands out codes in order and errors once exhausted.
type scriptedCodes struct {
	codes []string
	calls int
}

func (c *scriptedCodes) Code(context.Context, int) (string, error) {
	if c.calls >= len(c.codes) {
		return "", errors.New("no more codes")
	}
	c.calls++
	return c.codes[c.calls-1], nil
}

type panickingCodes struct{}

func (panickingCodes) Code(context.Context, int) (string, error) { panic("operator went away") }

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Site.Email = "ops@example.com"
	cfg.Timing = config.Timing{
		LongWait:        60 * time.Millisecond,
		ShortWait:       30 * time.Millisecond,
		PollInterval:    time.Millisecond,
		FallbackSleep:   time.Millisecond,
		ConfirmInterval: time.Millisecond,
	}
	return cfg
}

// loginPage wires sign-in, email and OTP inputs. Typing goodCode shows the
// home marker; any other full code shows the invalid alert, which clearing
// the input hides again.
type loginPage struct {
	signIn, email, otp, alert, home *fakeElement
}

func setupLogin(b *fakeBrowser, sel config.Selectors, goodCode string) *loginPage {
	p := &loginPage{
		signIn: el("Sign in"),
		email:  el(""),
		otp:    el(""),
		alert:  el("Invalid code"),
		home:   el(""),
	}
	b.set(sel.SignIn[0], p.signIn)
	b.set(sel.EmailInput[0], p.email)
	b.set(sel.OTPInput[0], p.otp)
	p.otp.onKeys = func(v string) {
		if len(v) < 6 {
			return
		}
		if v == goodCode {
			b.set(sel.HomePage[0], p.home)
			return
		}
		b.set(sel.OTPInvalid[0], p.alert)
	}
	p.otp.onClear = func() { b.remove(sel.OTPInvalid[0]) }
	return p
}

// resultsPage wires the search bar, split view, sort menu and count.
type resultsPage struct {
	keyword, location, trigger, byDate, count *fakeElement
}

func setupResults(b *fakeBrowser, cfg config.Config, total string) *resultsPage {
	sel := cfg.Selectors
	p := &resultsPage{
		keyword:  el(""),
		location: el(""),
		trigger:  el("Sort"),
		byDate:   el("Date"),
		count:    el(total),
	}
	b.set(sel.KeywordInput[0], p.keyword)
	b.set(sel.LocationInput[0], p.location)
	b.set(sel.InitialView[0], el(""))
	b.set(sel.InitialViewHeading[0], el("  "+cfg.Site.InitialViewHeading+"\n"))
	b.set(sel.SortTrigger[0], p.trigger)
	b.set(sel.SortMenu[0], el(""))
	b.set(sel.SortByDate[0], p.byDate)
	b.set(sel.TotalCount[0], p.count)
	return p
}

func card(n int) *fakeElement {
	c := el(fmt.Sprintf("card %d", n))
	c.attrs["id"] = fmt.Sprintf("jobcard-%d", n)
	return c
}

func cardIDs(els []browser.Element) []string {
	var ids []string
	for _, e := range els {
		id, _, _ := e.Attribute(context.Background(), "id")
		ids = append(ids, id)
	}
	return ids
}
