package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// Chrome drives a Chromium instance through the DevTools protocol.
type Chrome struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

func chromeAllocatorOptions(o Options) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", o.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("start-maximized", true),
		// notifications, push and the automation banner
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("disable-features", "PushMessaging"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if o.Lang != "" {
		opts = append(opts, chromedp.Flag("lang", o.Lang))
	}
	if o.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(o.UserAgent))
	}
	if o.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(o.ExecPath))
	}
	return opts
}

// NewChrome starts the browser and opens a blank tab. The returned handle must
// be closed by its owner.
func NewChrome(parent context.Context, o Options) (*Chrome, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, chromeAllocatorOptions(o)...)
	bctx, cancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(bctx, chromedp.Navigate("about:blank")); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("starting chrome: %w", err)
	}
	return &Chrome{ctx: bctx, cancel: cancel, allocCancel: allocCancel}, nil
}

// scoped runs on the browser context but honours the caller's deadline and
// cancellation.
func (c *Chrome) scoped(ctx context.Context) (context.Context, context.CancelFunc) {
	var (
		rctx   context.Context
		cancel context.CancelFunc
	)
	if dl, ok := ctx.Deadline(); ok {
		rctx, cancel = context.WithDeadline(c.ctx, dl)
	} else {
		rctx, cancel = context.WithCancel(c.ctx)
	}
	stop := context.AfterFunc(ctx, cancel)
	return rctx, func() {
		stop()
		cancel()
	}
}

func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	rctx, cancel := c.scoped(ctx)
	defer cancel()
	return chromedp.Run(rctx, actions...)
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	return c.run(ctx, chromedp.Navigate(url))
}

func (c *Chrome) CurrentURL(ctx context.Context) (string, error) {
	var u string
	err := c.run(ctx, chromedp.Location(&u))
	return u, err
}

func (c *Chrome) Find(ctx context.Context, selector string) ([]Element, error) {
	var nodes []*cdp.Node
	if err := c.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return nil, err
	}
	out := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &chromeElement{c: c, node: n})
	}
	return out, nil
}

func (c *Chrome) Execute(ctx context.Context, script string, res any) error {
	return c.run(ctx, chromedp.Evaluate(script, res))
}

func (c *Chrome) Close() error {
	c.cancel()
	c.allocCancel()
	return nil
}

type chromeElement struct {
	c    *Chrome
	node *cdp.Node
}

func (e *chromeElement) call(ctx context.Context, fn string, res any) error {
	err := e.c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return chromedp.CallFunctionOnNode(ctx, e.node, fn, res)
	}))
	return chromeErr(err)
}

func (e *chromeElement) ids() []cdp.NodeID { return []cdp.NodeID{e.node.NodeID} }

func (e *chromeElement) Text(ctx context.Context) (string, error) {
	var s string
	err := e.call(ctx, `function(){ return this.innerText || this.textContent || ""; }`, &s)
	return s, err
}

func (e *chromeElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	var res struct {
		Value string `json:"value"`
		OK    bool   `json:"ok"`
	}
	fn := fmt.Sprintf(`function(){ const v = this.getAttribute(%q); return {value: v === null ? "" : v, ok: v !== null}; }`, name)
	err := e.call(ctx, fn, &res)
	return res.Value, res.OK, err
}

func (e *chromeElement) Value(ctx context.Context) (string, error) {
	var s string
	err := e.call(ctx, `function(){ return this.value === undefined ? "" : String(this.value); }`, &s)
	return s, err
}

func (e *chromeElement) Visible(ctx context.Context) (bool, error) {
	var ok bool
	err := e.call(ctx, `function(){
		const s = window.getComputedStyle(this);
		const r = this.getBoundingClientRect();
		return s.display !== "none" && s.visibility !== "hidden" && r.width > 0 && r.height > 0;
	}`, &ok)
	return ok, err
}

func (e *chromeElement) Click(ctx context.Context) error {
	var ok bool
	return e.call(ctx, `function(){ this.click(); return true; }`, &ok)
}

func (e *chromeElement) SendKeys(ctx context.Context, keys string) error {
	return chromeErr(e.c.run(ctx, chromedp.SendKeys(e.ids(), keys, chromedp.ByNodeID)))
}

func (e *chromeElement) Clear(ctx context.Context) error {
	var ok bool
	return e.call(ctx, `function(){
		this.value = "";
		this.dispatchEvent(new Event("input", {bubbles: true}));
		return true;
	}`, &ok)
}

func (e *chromeElement) PressEnter(ctx context.Context) error {
	return e.SendKeys(ctx, kb.Enter)
}

func (e *chromeElement) OuterHTML(ctx context.Context) (string, error) {
	var s string
	err := e.call(ctx, `function(){ return this.outerHTML; }`, &s)
	return s, err
}

// chromeErr maps DevTools "node is gone" replies onto ErrStaleElement.
func chromeErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "No node with given id") ||
		strings.Contains(msg, "Could not find node") ||
		strings.Contains(msg, "Node is detached") ||
		strings.Contains(msg, "Cannot find context with specified id") {
		return fmt.Errorf("%w: %v", ErrStaleElement, err)
	}
	return err
}
