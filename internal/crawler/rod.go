package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sjsage522/listingharvester/services/proxy"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// requestIdleWindow is how long the page must stay without requests to count as idle
const requestIdleWindow = 500 * time.Millisecond

const clickLoadMoreJS = `(labels) => {
	const nodes = document.querySelectorAll('button, a, [role="button"]');
	for (const node of nodes) {
		const text = (node.innerText || '').trim();
		if (text && labels.some((label) => text.includes(label))) {
			node.click();
			return true;
		}
	}
	return false;
}`

// RodOptions configures the headless browser used by RodRenderer
type RodOptions struct {
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
	Locale         string
	// Bin is the browser binary; empty means look it up or download it
	Bin string
	// Proxies route each launched browser through the next upstream proxy
	Proxies *proxy.Pool
}

// RodRenderer opens one fresh stealth browser per session
type RodRenderer struct {
	opts RodOptions
}

// NewRodRenderer creates a new go-rod backed renderer
func NewRodRenderer(opts RodOptions) *RodRenderer {
	return &RodRenderer{opts: opts}
}

// Open launches a browser, opens a stealth page and navigates to targetURL
func (r *RodRenderer) Open(ctx context.Context, targetURL string) (Session, error) {
	l := launcher.New().Context(ctx).Headless(r.opts.Headless)
	if r.opts.Bin != "" {
		l = l.Bin(r.opts.Bin)
	} else if path, found := launcher.LookPath(); found {
		l = l.Bin(path)
	}
	if r.opts.Locale != "" {
		l = l.Set("lang", r.opts.Locale)
	}
	if server := r.opts.Proxies.ServerFlag(); server != "" {
		l = l.Proxy(server)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	s := &rodSession{launcher: l, browser: browser, viewportHeight: r.opts.ViewportHeight}
	if err := s.open(ctx, targetURL, r.opts); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

type rodSession struct {
	launcher       *launcher.Launcher
	browser        *rod.Browser
	page           *rod.Page
	viewportHeight int
}

func (s *rodSession) open(ctx context.Context, targetURL string, opts RodOptions) error {
	page, err := stealth.Page(s.browser)
	if err != nil {
		return fmt.Errorf("failed to create page: %w", err)
	}
	s.page = page

	p := page.Context(ctx)
	if err := p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             opts.ViewportWidth,
		Height:            opts.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		return fmt.Errorf("failed to set viewport: %w", err)
	}

	if opts.Locale != "" {
		if err := (proto.EmulationSetLocaleOverride{Locale: opts.Locale}).Call(p); err != nil {
			return fmt.Errorf("failed to set locale: %w", err)
		}
		if _, err := p.SetExtraHeaders([]string{"Accept-Language", opts.Locale}); err != nil {
			return fmt.Errorf("failed to set headers: %w", err)
		}
	}

	wait := p.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := p.Navigate(targetURL); err != nil {
		return fmt.Errorf("failed to navigate: %w", err)
	}
	wait()
	return ctx.Err()
}

func (s *rodSession) CurrentMarkup(ctx context.Context) (string, error) {
	return s.page.Context(ctx).HTML()
}

func (s *rodSession) ElementCount(ctx context.Context, selector string) (int, error) {
	res, err := s.page.Context(ctx).Eval(`(sel) => document.querySelectorAll(sel).length`, selector)
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

func (s *rodSession) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	p := s.page.Context(ctx).Timeout(timeout)
	defer p.CancelTimeout()

	_, err := p.Element(selector)
	return err
}

func (s *rodSession) ScrollElementIntoView(ctx context.Context, selector string, index int, timeout time.Duration) Attempt {
	p := s.page.Context(ctx).Timeout(timeout)
	defer p.CancelTimeout()

	elements, err := p.Elements(selector)
	if err != nil || index < 0 || index >= len(elements) {
		return Skipped
	}
	if err := elements[index].ScrollIntoView(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return TimedOut
		}
		return Skipped
	}
	return Succeeded
}

func (s *rodSession) ScrollByOffset(ctx context.Context, px int) Attempt {
	if _, err := s.page.Context(ctx).Eval(`(y) => window.scrollBy(0, y)`, px); err != nil {
		return Skipped
	}
	return Succeeded
}

func (s *rodSession) WaitForNetworkIdle(ctx context.Context, timeout time.Duration) Attempt {
	p := s.page.Context(ctx).Timeout(timeout)
	defer p.CancelTimeout()

	p.WaitRequestIdle(requestIdleWindow, nil, nil, nil)()
	if errors.Is(p.GetContext().Err(), context.DeadlineExceeded) {
		return TimedOut
	}
	return Succeeded
}

func (s *rodSession) ClickIfPresent(ctx context.Context, labels []string) bool {
	res, err := s.page.Context(ctx).Eval(clickLoadMoreJS, labels)
	if err != nil {
		return false
	}
	return res.Value.Bool()
}

func (s *rodSession) ViewportHeight() int {
	return s.viewportHeight
}

// Close releases the page, the browser and the browser process
func (s *rodSession) Close() error {
	var errList []error
	if s.page != nil {
		errList = append(errList, s.page.Close())
	}
	if s.browser != nil {
		errList = append(errList, s.browser.Close())
	}
	s.launcher.Kill()
	s.launcher.Cleanup()
	return errors.Join(errList...)
}
