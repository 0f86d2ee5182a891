// Package retailers provides the retailer-specific scrapers.
package retailers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/cheapfinder/backend/internal/model"
	"github.com/cheapfinder/backend/internal/ratelimit"
	"github.com/cheapfinder/backend/internal/scraper"
)

const maxBodyBytes = 8 << 20

// Common user agents for rotation
var userAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.2 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
}

// GetRandomUserAgent returns a random user agent
func GetRandomUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}

// Renderer loads a page in a headless browser. Implemented by browser.Pool.
type Renderer interface {
	Render(ctx context.Context, url, waitSelector string) ([]byte, error)
}

// Gate spaces out requests to one domain. Implemented by ratelimit.Registry.
type Gate interface {
	Acquire(ctx context.Context, domain string) error
}

// BaseScraper provides common functionality for all retailer scrapers.
// The caller's limiter grant covers the first request of a price lookup.
// Any further request (a browser render, every page of a brand search) waits
// for its own slot through Gate when one is set.
type BaseScraper struct {
	Client   *http.Client
	Info     model.Retailer
	Renderer Renderer
	Gate     Gate
}

func (b *BaseScraper) ID() string               { return b.Info.ID }
func (b *BaseScraper) Name() string             { return b.Info.Name }
func (b *BaseScraper) Retailer() model.Retailer { return b.Info }

// HealthCheck reports whether the retailer's home page answers 200.
func (b *BaseScraper) HealthCheck(ctx context.Context) bool {
	if b.Info.BaseURL == "" {
		return true
	}
	_, err := b.fetch(ctx, b.Info.BaseURL, "text/html")
	return err == nil
}

// Absolute resolves a retailer-relative link.
func (b *BaseScraper) Absolute(href string) string {
	switch {
	case href == "":
		return ""
	case strings.HasPrefix(href, "//"):
		return "https:" + href
	case strings.HasPrefix(href, "http://"), strings.HasPrefix(href, "https://"):
		return href
	case strings.HasPrefix(href, "/"):
		return strings.TrimRight(b.Info.BaseURL, "/") + href
	default:
		return strings.TrimRight(b.Info.BaseURL, "/") + "/" + href
	}
}

// pace waits for the gate before a request not covered by the caller's grant.
func (b *BaseScraper) pace(ctx context.Context, url string) error {
	if b.Gate == nil {
		return nil
	}
	return b.Gate.Acquire(ctx, ratelimit.DomainOf(url))
}

// FetchPage fetches a web page and returns the parsed document and raw body.
func (b *BaseScraper) FetchPage(ctx context.Context, url string) (*goquery.Document, []byte, error) {
	body, err := b.fetch(ctx, url, "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	if err != nil {
		return nil, nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, body, scraper.ParseFailure(b.ID(), "parse html", err, body)
	}
	return doc, body, nil
}

// RenderPage loads url through the headless browser.
func (b *BaseScraper) RenderPage(ctx context.Context, url, waitSelector string) (*goquery.Document, []byte, error) {
	if b.Renderer == nil {
		return nil, nil, scraper.ParseFailure(b.ID(), "render", errors.New("browser rendering disabled"), nil)
	}
	if err := b.pace(ctx, url); err != nil {
		return nil, nil, err
	}

	body, err := b.Renderer.Render(ctx, url, waitSelector)
	if err != nil {
		return nil, nil, scraper.Transient(b.ID(), "render", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, body, scraper.ParseFailure(b.ID(), "parse rendered html", err, body)
	}
	return doc, body, nil
}

// FetchJSON fetches url and decodes the response into v.
func (b *BaseScraper) FetchJSON(ctx context.Context, url string, v any) ([]byte, error) {
	body, err := b.fetch(ctx, url, "application/json")
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return body, scraper.ParseFailure(b.ID(), "decode json", err, body)
	}
	return body, nil
}

func (b *BaseScraper) fetch(ctx context.Context, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, scraper.NotFound(b.ID(), "build request", fmt.Errorf("creating request: %w", err))
	}

	req.Header.Set("User-Agent", GetRandomUserAgent())
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-CA,en;q=0.9,fr-CA;q=0.8")
	req.Header.Set("Cache-Control", "max-age=0")

	resp, err := b.client().Do(req)
	if err != nil {
		return nil, scraper.Transient(b.ID(), "fetch", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, scraper.FromStatus(b.ID(), "fetch "+url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, scraper.Transient(b.ID(), "read body", err)
	}

	if looksLikeChallenge(body) {
		return nil, scraper.Blocked(b.ID(), "fetch", errors.New("bot challenge page"))
	}
	return body, nil
}

func (b *BaseScraper) client() *http.Client {
	if b.Client != nil {
		return b.Client
	}
	return http.DefaultClient
}

// looksLikeChallenge spots captcha and bot-wall pages served with 200.
func looksLikeChallenge(body []byte) bool {
	head := body
	if len(head) > 4096 {
		head = head[:4096]
	}
	lower := bytes.ToLower(head)
	for _, marker := range [][]byte{
		[]byte("cf-chl-bypass"),
		[]byte("captcha-delivery.com"),
		[]byte("px-captcha"),
		[]byte("<title>access denied</title>"),
	} {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	return false
}
