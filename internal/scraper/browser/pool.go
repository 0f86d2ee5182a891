// Package browser provides headless browser rendering for retailer pages that
// only show prices after JavaScript runs.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// ErrPoolClosed is returned when pages are requested after Close.
var ErrPoolClosed = errors.New("browser pool is closed")

// Pool manages a fixed set of browser pages shared by scrapers
type Pool struct {
	browser     *rod.Browser
	pagePool    chan *rod.Page
	maxPages    int
	pageTimeout time.Duration
	logger      *slog.Logger
	mu          sync.Mutex
	closed      bool
}

// PoolConfig holds configuration for the browser pool
type PoolConfig struct {
	MaxPages    int           // concurrent pages (default: 3)
	PageTimeout time.Duration // per render (default: 60s)
	Headless    bool
	BinPath     string // use an installed Chromium instead of downloading one
}

// DefaultPoolConfig returns the default pool configuration
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxPages:    3,
		PageTimeout: 60 * time.Second,
		Headless:    true,
	}
}

// NewPool launches a browser and pre-warms MaxPages pages.
func NewPool(cfg PoolConfig, logger *slog.Logger) (*Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 3
	}

	l := launcher.New().
		Headless(cfg.Headless).
		Set("disable-gpu").
		Set("no-sandbox").
		Set("disable-dev-shm-usage").
		Set("disable-setuid-sandbox").
		Set("lang", "en-CA")
	if cfg.BinPath != "" {
		l = l.Bin(cfg.BinPath)
	}

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}

	pool := &Pool{
		browser:     browser,
		pagePool:    make(chan *rod.Page, cfg.MaxPages),
		maxPages:    cfg.MaxPages,
		pageTimeout: cfg.PageTimeout,
		logger:      logger,
	}

	for i := 0; i < cfg.MaxPages; i++ {
		page, err := pool.createPage()
		if err != nil {
			_ = pool.Close()
			return nil, fmt.Errorf("creating page %d: %w", i, err)
		}
		pool.pagePool <- page
	}

	logger.Info("Browser pool initialized",
		slog.Int("max_pages", cfg.MaxPages),
		slog.Bool("headless", cfg.Headless),
	)

	return pool, nil
}

func (p *Pool) createPage() (*rod.Page, error) {
	page, err := p.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, err
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  1920,
		Height: 1080,
	}); err != nil {
		return nil, err
	}

	// Basic anti-detection; some retailers serve an empty shell to webdriver.
	_, err = page.EvalOnNewDocument(`
		Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
		Object.defineProperty(navigator, 'languages', { get: () => ['en-CA', 'en'] });
	`)
	if err != nil {
		p.logger.Warn("Failed to apply stealth script", slog.String("error", err.Error()))
	}

	return page, nil
}

// Acquire gets a page from the pool (blocks if none available)
func (p *Pool) Acquire(ctx context.Context) (*rod.Page, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.mu.Unlock()

	select {
	case page, ok := <-p.pagePool:
		if !ok {
			return nil, ErrPoolClosed
		}
		return page, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a page to the pool
func (p *Pool) Release(page *rod.Page) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		_ = page.Close()
		return
	}

	_ = page.Navigate("about:blank")
	_ = page.SetCookies(nil)

	select {
	case p.pagePool <- page:
	default:
		_ = page.Close()
	}
}

// Render loads url in a pooled page and returns the rendered HTML. When
// waitSelector is set, Render waits for that element before reading the DOM.
func (p *Pool) Render(ctx context.Context, url, waitSelector string) ([]byte, error) {
	page, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(page)

	pg := page.Context(ctx)
	if p.pageTimeout > 0 {
		pg = pg.Timeout(p.pageTimeout)
	}

	if err := pg.Navigate(url); err != nil {
		return nil, fmt.Errorf("navigating to %s: %w", url, err)
	}
	if err := pg.WaitLoad(); err != nil {
		return nil, fmt.Errorf("waiting for load: %w", err)
	}
	if waitSelector != "" {
		if _, err := pg.Element(waitSelector); err != nil {
			return nil, fmt.Errorf("waiting for selector %s: %w", waitSelector, err)
		}
	}

	html, err := pg.HTML()
	if err != nil {
		return nil, fmt.Errorf("reading page html: %w", err)
	}
	return []byte(html), nil
}

// Close shuts down the browser pool
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	close(p.pagePool)
	for page := range p.pagePool {
		_ = page.Close()
	}

	if err := p.browser.Close(); err != nil {
		return fmt.Errorf("closing browser: %w", err)
	}

	p.logger.Info("Browser pool closed")
	return nil
}
