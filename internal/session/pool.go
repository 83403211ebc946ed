// Package session owns the browser automation sessions used to load
// pages from the source site, including anti-detection configuration,
// challenge classification and navigation pacing.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hltv-tools/hltv-sync/internal/hltv"
)

// stealthJS hides the automation marker the site's scripts probe for.
const stealthJS = "Object.defineProperty(navigator, 'webdriver', {get: () => undefined});"

// viewports are common desktop resolutions; each session picks one at
// random so the pool does not present a uniform fingerprint.
var viewports = [][2]int64{
	{1366, 768},
	{1440, 900},
	{1536, 864},
	{1920, 1080},
}

// PageSpec supplies the URL template and content-readiness predicate
// for one page kind. Templates containing %d are resolved with the
// entity's external id.
type PageSpec struct {
	URLTemplate   string
	ReadySelector string
}

// Config controls the session pool.
type Config struct {
	PoolSize    int
	UserAgent   string
	Headless    bool
	NavTimeout  time.Duration
	MinNavDelay time.Duration
	Pages       map[hltv.PageKind]PageSpec
}

// Pool implements hltv.Loader with a pool of browser sessions. The
// underlying browser processes start on first acquire and are torn down
// by Close; there is no ambient global handle.
type Pool struct {
	cfg        Config
	classifier *Classifier
	probe      *Probe
	clock      hltv.Clock
	logger     *zap.Logger

	initOnce sync.Once
	initErr  error

	allocCtx    context.Context
	allocCancel context.CancelFunc
	free        chan *session

	closeOnce sync.Once
}

// session is one browser context. It remembers the page kind it last
// served; acquiring it for an unrelated kind rotates the browser so one
// navigation's suspicion score does not leak into the next page class.
type session struct {
	kind      hltv.PageKind
	tab       context.Context
	tabCancel context.CancelFunc
	limiter   *rate.Limiter
	viewport  [2]int64
}

// NewPool builds a Pool. Browsers are not started until the first load.
func NewPool(cfg Config, classifier *Classifier, probe *Probe, clock hltv.Clock, logger *zap.Logger) (*Pool, error) {
	if cfg.PoolSize <= 0 {
		return nil, fmt.Errorf("pool size must be > 0")
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 25 * time.Second
	}
	if classifier == nil {
		classifier = NewClassifier(DefaultSignals(), DefaultThreshold)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		cfg:        cfg,
		classifier: classifier,
		probe:      probe,
		clock:      clock,
		logger:     logger,
	}, nil
}

// Load fetches one page of the given kind, preferring the plain-HTTP
// probe and promoting to a browser session when the probe is flagged or
// the content is not ready.
func (p *Pool) Load(ctx context.Context, kind hltv.PageKind, entityID int64) (hltv.Page, error) {
	spec, ok := p.cfg.Pages[kind]
	if !ok {
		return hltv.Page{}, fmt.Errorf("no page config for kind %q", kind)
	}
	url := resolveURL(spec.URLTemplate, entityID)
	start := p.clock.Now()

	if p.probe != nil {
		if pg, served := p.tryProbe(ctx, kind, url, spec.ReadySelector, start); served {
			return pg, nil
		}
	}
	return p.loadBrowser(ctx, kind, url, spec, start)
}

func (p *Pool) tryProbe(ctx context.Context, kind hltv.PageKind, url, readySelector string, start time.Time) (hltv.Page, bool) {
	status, body, err := p.probe.Fetch(ctx, url)
	if err != nil || status >= 400 {
		p.logger.Debug("probe promoted to browser",
			zap.String("url", url),
			zap.Int("status", status),
			zap.Error(err),
		)
		return hltv.Page{}, false
	}
	if blocked, signals := p.classifier.Classify(body); blocked {
		p.logger.Debug("probe flagged, promoting to browser",
			zap.String("url", url),
			zap.Strings("signals", signals),
		)
		return hltv.Page{}, false
	}
	if readySelector != "" && !selectorPresent(body, readySelector) {
		return hltv.Page{}, false
	}
	return hltv.Page{
		Kind:        kind,
		URL:         url,
		FinalURL:    url,
		StatusCode:  status,
		Body:        body,
		FetchedAt:   start,
		Duration:    p.clock.Now().Sub(start),
		UsedBrowser: false,
	}, true
}

func (p *Pool) loadBrowser(ctx context.Context, kind hltv.PageKind, url string, spec PageSpec, start time.Time) (hltv.Page, error) {
	s, err := p.acquire(ctx, kind)
	if err != nil {
		return hltv.Page{}, err
	}
	defer p.release(s)

	// Scheduling floor between navigations of the same session.
	if err := s.limiter.Wait(ctx); err != nil {
		return hltv.Page{}, fmt.Errorf("navigation pacing: %w", err)
	}

	navCtx, cancel := context.WithTimeout(s.tab, p.cfg.NavTimeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	meta := newResponseMeta()
	chromedp.ListenTarget(navCtx, meta.captureEvent)

	var html string
	err = chromedp.Run(navCtx,
		network.Enable(),
		p.sessionSetupAction(s),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return hltv.Page{}, navError(ctx, url, err)
	}

	body := []byte(html)
	if blocked, signals := p.classifier.Classify(body); blocked {
		return hltv.Page{}, &hltv.BlockedError{URL: url, Signals: signals}
	}

	if spec.ReadySelector != "" && !selectorPresent(body, spec.ReadySelector) {
		err = chromedp.Run(navCtx,
			chromedp.WaitVisible(spec.ReadySelector, chromedp.ByQuery),
			chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		)
		if err != nil {
			return hltv.Page{}, navError(ctx, url, fmt.Errorf("content not ready: %w", err))
		}
		body = []byte(html)
		if blocked, signals := p.classifier.Classify(body); blocked {
			return hltv.Page{}, &hltv.BlockedError{URL: url, Signals: signals}
		}
	}

	status, finalURL := meta.snapshot(url)
	return hltv.Page{
		Kind:        kind,
		URL:         url,
		FinalURL:    finalURL,
		StatusCode:  status,
		Body:        body,
		FetchedAt:   start,
		Duration:    p.clock.Now().Sub(start),
		UsedBrowser: true,
	}, nil
}

func (p *Pool) sessionSetupAction(s *session) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if _, err := page.AddScriptToEvaluateOnNewDocument(stealthJS).Do(ctx); err != nil {
			return fmt.Errorf("install stealth script: %w", err)
		}
		if p.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(p.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if err := emulation.SetDeviceMetricsOverride(s.viewport[0], s.viewport[1], 1, false).Do(ctx); err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
		return nil
	})
}

func (p *Pool) acquire(ctx context.Context, kind hltv.PageKind) (*session, error) {
	p.initOnce.Do(p.init)
	if p.initErr != nil {
		return nil, p.initErr
	}
	select {
	case s := <-p.free:
		if s.kind != "" && s.kind != kind {
			p.rotate(s)
		}
		s.kind = kind
		return s, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire session: %w", ctx.Err())
	}
}

func (p *Pool) release(s *session) {
	select {
	case p.free <- s:
	default:
	}
}

func (p *Pool) init() {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.UserAgent(p.cfg.UserAgent),
	)
	p.allocCtx, p.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)

	p.free = make(chan *session, p.cfg.PoolSize)
	for i := 0; i < p.cfg.PoolSize; i++ {
		tab, cancel := chromedp.NewContext(p.allocCtx)
		p.free <- &session{
			tab:       tab,
			tabCancel: cancel,
			limiter:   newNavLimiter(p.cfg.MinNavDelay),
			viewport:  viewports[rand.Intn(len(viewports))],
		}
	}
}

// rotate discards the session's browser and starts a fresh one, so the
// next page class begins without carried-over state.
func (p *Pool) rotate(s *session) {
	s.tabCancel()
	s.tab, s.tabCancel = chromedp.NewContext(p.allocCtx)
	s.viewport = viewports[rand.Intn(len(viewports))]
}

// Close tears down all browser sessions and the allocator.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		if p.free == nil {
			return
		}
		for {
			select {
			case s := <-p.free:
				s.tabCancel()
			default:
				p.allocCancel()
				return
			}
		}
	})
}

func newNavLimiter(minDelay time.Duration) *rate.Limiter {
	if minDelay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(minDelay), 1)
}

func resolveURL(template string, entityID int64) string {
	if strings.Contains(template, "%d") {
		return fmt.Sprintf(template, entityID)
	}
	return template
}

func selectorPresent(body []byte, selector string) bool {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	return doc.Find(selector).Length() > 0
}

func navError(ctx context.Context, url string, err error) error {
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("load %s canceled: %w", url, ctx.Err())
	}
	return &hltv.TransientError{URL: url, Err: err}
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

type responseMeta struct {
	once    sync.Once
	status  int
	url     string
	mu      sync.Mutex
	applied bool
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.once.Do(func() {
		m.mu.Lock()
		m.status = int(resp.Response.Status)
		m.url = resp.Response.URL
		m.applied = true
		m.mu.Unlock()
	})
}

func (m *responseMeta) snapshot(requestURL string) (int, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := m.status
	url := m.url
	if status == 0 {
		status = 200
	}
	if url == "" {
		url = requestURL
	}
	return status, url
}
