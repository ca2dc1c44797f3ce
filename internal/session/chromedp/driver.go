// Package chromedp implements the interactive browser session on headless
// Chrome via the DevTools protocol.
package chromedp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/leadscout/leadscout/internal/lead"
	"github.com/leadscout/leadscout/internal/session"
	"github.com/leadscout/leadscout/internal/session/detector"
)

// itemsJS captures visible feed items with their anchor hrefs as JSON.
const itemsJS = `(() => {
	const sel = '[data-id^="urn:li:activity"], div.feed-shared-update-v2, li.reusable-search__result-container, div[data-urn]';
	let nodes = Array.from(document.querySelectorAll(sel));
	if (nodes.length === 0) {
		nodes = Array.from(document.querySelectorAll('main article, main li'));
	}
	const items = [];
	for (const n of nodes) {
		const text = (n.innerText || '').trim();
		if (!text) continue;
		const anchors = Array.from(n.querySelectorAll('a[href]')).map(a => a.getAttribute('href') || '');
		items.push({text: text, anchors: anchors});
	}
	return JSON.stringify(items);
})()`

const focusInputJS = `(() => {
	const isInput = e => e && (e.tagName === 'INPUT' || e.tagName === 'TEXTAREA');
	let el = document.activeElement;
	if (!isInput(el)) {
		el = document.querySelector('input[autocomplete="one-time-code"], input[name*="pin" i], input[id*="pin" i], input[type="tel"], input[type="number"], input[type="text"]');
		if (el) el.focus();
	}
	return isInput(document.activeElement);
})()`

// Config controls the browser session.
type Config struct {
	Headless          bool
	UserAgent         string
	NavigationTimeout time.Duration
	OperationTimeout  time.Duration
}

// Driver implements session.Driver on a long-lived chromedp context.
type Driver struct {
	cfg         Config
	allocCancel context.CancelFunc
	browserCtx  context.Context
	browserStop context.CancelFunc
}

// New launches a browser and returns a live session driver.
func New(ctx context.Context, cfg Config) (*Driver, error) {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 15 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserStop := chromedp.NewContext(allocCtx)

	d := &Driver{
		cfg:         cfg,
		allocCancel: allocCancel,
		browserCtx:  browserCtx,
		browserStop: browserStop,
	}

	setup := []chromedp.Action{}
	if cfg.UserAgent != "" {
		setup = append(setup, chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetUserAgentOverride(cfg.UserAgent).Do(ctx)
		}))
	}
	// Starts the browser even when no user agent override is needed.
	setup = append(setup, chromedp.ActionFunc(func(context.Context) error { return nil }))
	if err := chromedp.Run(browserCtx, setup...); err != nil {
		browserStop()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return d, nil
}

// Navigate loads the URL and waits for the document body.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	opCtx, cancel := d.opContext(ctx, d.cfg.NavigationTimeout)
	defer cancel()
	err := chromedp.Run(opCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500*time.Millisecond),
	)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// Login signs in through the source's login form.
func (d *Driver) Login(ctx context.Context, loginURL, username, password string) error {
	if err := d.Navigate(ctx, loginURL); err != nil {
		return err
	}
	opCtx, cancel := d.opContext(ctx, d.cfg.NavigationTimeout)
	defer cancel()
	err := chromedp.Run(opCtx,
		chromedp.WaitVisible(`#username`, chromedp.ByID),
		chromedp.SendKeys(`#username`, username, chromedp.ByID),
		chromedp.SendKeys(`#password`, password, chromedp.ByID),
		chromedp.Click(`button[type="submit"]`, chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
	)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	return nil
}

type rawJSONItem struct {
	Text    string   `json:"text"`
	Anchors []string `json:"anchors"`
}

// ExtractItems captures the visible short-text items on the current page.
func (d *Driver) ExtractItems(ctx context.Context) ([]lead.RawItem, error) {
	opCtx, cancel := d.opContext(ctx, d.cfg.OperationTimeout)
	defer cancel()

	var (
		encoded string
		url     string
	)
	err := chromedp.Run(opCtx,
		chromedp.Location(&url),
		chromedp.Evaluate(itemsJS, &encoded),
	)
	if err != nil {
		return nil, fmt.Errorf("extract items: %w", err)
	}
	var raw []rawJSONItem
	if err := json.Unmarshal([]byte(encoded), &raw); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	items := make([]lead.RawItem, 0, len(raw))
	for _, r := range raw {
		anchors := make([]lead.AnchorHint, 0, len(r.Anchors))
		for _, href := range r.Anchors {
			if href != "" {
				anchors = append(anchors, lead.AnchorHint{Href: href})
			}
		}
		items = append(items, lead.RawItem{
			Text:      r.Text,
			SourceURL: url,
			Anchors:   anchors,
		})
	}
	return items, nil
}

// IsChallengePage probes the page title, URL and body for verification markers.
func (d *Driver) IsChallengePage(ctx context.Context) (bool, error) {
	opCtx, cancel := d.opContext(ctx, d.cfg.OperationTimeout)
	defer cancel()

	var (
		title string
		url   string
		body  string
	)
	err := chromedp.Run(opCtx,
		chromedp.Title(&title),
		chromedp.Location(&url),
		chromedp.Evaluate(`(document.body && document.body.innerText) || ''`, &body),
	)
	if err != nil {
		return false, fmt.Errorf("probe challenge: %w", err)
	}
	return detector.IsChallenge(title, url, body), nil
}

// CaptureArtifacts grabs a screenshot and the page HTML.
func (d *Driver) CaptureArtifacts(ctx context.Context) (session.Artifacts, error) {
	opCtx, cancel := d.opContext(ctx, d.cfg.OperationTimeout)
	defer cancel()

	var art session.Artifacts
	var html string
	err := chromedp.Run(opCtx,
		chromedp.CaptureScreenshot(&art.Screenshot),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&art.URL),
		chromedp.Title(&art.Title),
	)
	if err != nil {
		return session.Artifacts{}, fmt.Errorf("capture artifacts: %w", err)
	}
	art.HTML = []byte(html)
	return art, nil
}

// InjectInput focuses the most plausible input and types the text.
func (d *Driver) InjectInput(ctx context.Context, text string) error {
	opCtx, cancel := d.opContext(ctx, d.cfg.OperationTimeout)
	defer cancel()

	var focused bool
	err := chromedp.Run(opCtx,
		chromedp.Evaluate(focusInputJS, &focused),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return input.InsertText(text).Do(ctx)
		}),
	)
	if err != nil {
		return fmt.Errorf("inject input: %w", err)
	}
	if !focused {
		return fmt.Errorf("inject input: no input field found")
	}
	return nil
}

// DispatchClick clicks at normalized page coordinates in [0,1]. The target
// element is clicked directly, falling back to a synthetic MouseEvent.
func (d *Driver) DispatchClick(ctx context.Context, x, y float64) error {
	opCtx, cancel := d.opContext(ctx, d.cfg.OperationTimeout)
	defer cancel()

	x = clamp01(x)
	y = clamp01(y)
	js := fmt.Sprintf(`(() => {
	const vw = window.innerWidth || document.documentElement.clientWidth || 1920;
	const vh = window.innerHeight || document.documentElement.clientHeight || 1080;
	const px = Math.floor(%f * vw);
	const py = Math.floor(%f * vh);
	const el = document.elementFromPoint(px, py);
	if (!el) return false;
	el.scrollIntoView({block: 'center'});
	try { el.click(); return true; } catch (e) {}
	const ev = new MouseEvent('click', {bubbles: true, cancelable: true, clientX: px, clientY: py});
	el.dispatchEvent(ev);
	return true;
})()`, x, y)

	var clicked bool
	if err := chromedp.Run(opCtx, chromedp.Evaluate(js, &clicked)); err != nil {
		return fmt.Errorf("dispatch click: %w", err)
	}
	if !clicked {
		return fmt.Errorf("dispatch click: no element at point")
	}
	return nil
}

// SendKey dispatches one of the allowed special keys.
func (d *Driver) SendKey(ctx context.Context, key session.Key) error {
	if !session.ValidKey(key) {
		return fmt.Errorf("send key: unsupported key %q", key)
	}
	opCtx, cancel := d.opContext(ctx, d.cfg.OperationTimeout)
	defer cancel()

	var seq string
	switch key {
	case session.KeyEnter:
		seq = kb.Enter
	case session.KeyTab:
		seq = kb.Tab
	case session.KeyEscape:
		seq = kb.Escape
	}
	if err := chromedp.Run(opCtx, chromedp.KeyEvent(seq)); err != nil {
		return fmt.Errorf("send key %s: %w", key, err)
	}
	return nil
}

// Close tears the browser down.
func (d *Driver) Close(_ context.Context) error {
	d.browserStop()
	d.allocCancel()
	return nil
}

// opContext derives a deadline context for one operation. Cancelling it does
// not close the tab.
func (d *Driver) opContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	opCtx, cancel1 := context.WithTimeout(d.browserCtx, timeout)
	stop := context.AfterFunc(ctx, cancel1)
	return opCtx, func() {
		stop()
		cancel1()
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
