package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/firefox"
)

// firefoxPrefs keep notification prompts and the webdriver flag out of the page.
var firefoxPrefs = map[string]interface{}{
	"dom.webnotifications.enabled":             false,
	"dom.push.enabled":                         false,
	"permissions.default.desktop-notification": 2,
	"dom.webdriver.enabled":                    false,
	"useAutomationExtension":                   false,
}

// Firefox drives a Firefox instance behind a WebDriver (geckodriver or a
// selenium server) listening on Options.WebDriverURL.
type Firefox struct {
	wd selenium.WebDriver
}

func NewFirefox(o Options) (*Firefox, error) {
	caps := selenium.Capabilities{"browserName": "firefox"}
	ff := firefox.Capabilities{Prefs: map[string]interface{}{}}
	for k, v := range firefoxPrefs {
		ff.Prefs[k] = v
	}
	if o.Headless {
		ff.Args = append(ff.Args, "-headless")
	}
	if o.ExecPath != "" {
		ff.Binary = o.ExecPath
	}
	if o.UserAgent != "" {
		ff.Prefs["general.useragent.override"] = o.UserAgent
	}
	if o.Lang != "" {
		ff.Prefs["intl.accept_languages"] = o.Lang
	}
	caps.AddFirefox(ff)

	wd, err := selenium.NewRemote(caps, o.WebDriverURL)
	if err != nil {
		return nil, fmt.Errorf("starting firefox via %s: %w", o.WebDriverURL, err)
	}
	_ = wd.MaximizeWindow("")
	return &Firefox{wd: wd}, nil
}

func (f *Firefox) Navigate(_ context.Context, url string) error {
	return f.wd.Get(url)
}

func (f *Firefox) CurrentURL(_ context.Context) (string, error) {
	return f.wd.CurrentURL()
}

func (f *Firefox) Find(_ context.Context, selector string) ([]Element, error) {
	els, err := f.wd.FindElements(selenium.ByCSSSelector, selector)
	if err != nil {
		if isNoSuchElement(err) {
			return nil, nil
		}
		return nil, seleniumErr(err)
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &firefoxElement{f: f, el: el})
	}
	return out, nil
}

func (f *Firefox) Execute(_ context.Context, script string, res any) error {
	if !strings.Contains(script, "return") {
		script = "return " + script
	}
	v, err := f.wd.ExecuteScript(script, nil)
	if err != nil || res == nil {
		return seleniumErr(err)
	}
	// round-trip through JSON so callers decode the same way as with chromedp
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, res)
}

func (f *Firefox) Close() error {
	return f.wd.Quit()
}

type firefoxElement struct {
	f  *Firefox
	el selenium.WebElement
}

func (e *firefoxElement) script(js string) (interface{}, error) {
	v, err := e.f.wd.ExecuteScript(js, []interface{}{e.el})
	return v, seleniumErr(err)
}

func (e *firefoxElement) Text(_ context.Context) (string, error) {
	s, err := e.el.Text()
	return s, seleniumErr(err)
}

func (e *firefoxElement) Attribute(_ context.Context, name string) (string, bool, error) {
	v, err := e.script(fmt.Sprintf(`return arguments[0].getAttribute(%q);`, name))
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return fmt.Sprint(v), true, nil
}

func (e *firefoxElement) Value(_ context.Context) (string, error) {
	v, err := e.script(`return arguments[0].value === undefined ? "" : String(arguments[0].value);`)
	if err != nil || v == nil {
		return "", err
	}
	return fmt.Sprint(v), nil
}

func (e *firefoxElement) Visible(_ context.Context) (bool, error) {
	ok, err := e.el.IsDisplayed()
	return ok, seleniumErr(err)
}

func (e *firefoxElement) Click(_ context.Context) error {
	_, err := e.script(`arguments[0].click();`)
	return err
}

func (e *firefoxElement) SendKeys(_ context.Context, keys string) error {
	return seleniumErr(e.el.SendKeys(keys))
}

func (e *firefoxElement) Clear(_ context.Context) error {
	return seleniumErr(e.el.Clear())
}

func (e *firefoxElement) PressEnter(_ context.Context) error {
	return seleniumErr(e.el.SendKeys(selenium.EnterKey))
}

func (e *firefoxElement) OuterHTML(_ context.Context) (string, error) {
	v, err := e.script(`return arguments[0].outerHTML;`)
	if err != nil || v == nil {
		return "", err
	}
	return fmt.Sprint(v), nil
}

func isNoSuchElement(err error) bool {
	return strings.Contains(err.Error(), "no such element")
}

func seleniumErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "stale element"):
		return fmt.Errorf("%w: %v", ErrStaleElement, err)
	case strings.Contains(msg, "click intercepted"):
		return fmt.Errorf("%w: %v", ErrClickIntercepted, err)
	}
	return err
}
