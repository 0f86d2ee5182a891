package retailers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"github.com/cheapfinder/backend/internal/model"
	"github.com/cheapfinder/backend/internal/scraper"
)

// PageConfig describes a retailer whose product pages carry JSON-LD or
// price meta tags.
type PageConfig struct {
	Info model.Retailer
	// SearchURL builds the brand listing URL. Nil disables SearchBrand.
	SearchURL func(base, brand string) string
	// WaitSelector is awaited when the page has to be rendered in a browser.
	WaitSelector string
}

// PageScraper reads prices from structured data embedded in product pages.
// When the static page has none and the retailer needs JavaScript, it falls
// back to the headless browser.
type PageScraper struct {
	BaseScraper
	searchURL    func(base, brand string) string
	waitSelector string
}

// NewPageScraper creates a structured-data scraper.
func NewPageScraper(cfg PageConfig, client *http.Client, renderer Renderer) *PageScraper {
	return &PageScraper{
		BaseScraper: BaseScraper{
			Client:   client,
			Info:     cfg.Info,
			Renderer: renderer,
		},
		searchURL:    cfg.SearchURL,
		waitSelector: cfg.WaitSelector,
	}
}

// GetPrice fetches the product page and extracts its offer price.
func (s *PageScraper) GetPrice(ctx context.Context, product model.Product) (*model.RawPrice, error) {
	target := s.Absolute(product.URL)

	doc, body, err := s.FetchPage(ctx, target)
	if err != nil {
		return nil, err
	}

	raw, err := s.extract(doc, body)
	if err == nil || !errors.Is(err, scraper.ErrParse) || !s.Info.RequiresJS || s.Renderer == nil {
		return raw, err
	}

	doc, body, err = s.RenderPage(ctx, target, s.waitSelector)
	if err != nil {
		return nil, err
	}
	return s.extract(doc, body)
}

func (s *PageScraper) extract(doc *goquery.Document, body []byte) (*model.RawPrice, error) {
	p, ok := jsonLDPrice(doc)
	if !ok {
		p, ok = metaPrice(doc)
	}
	if !ok {
		return nil, scraper.ParseFailure(s.ID(), "extract price", errors.New("no structured price on page"), body)
	}
	if p.unavailable() {
		return nil, scraper.NotFound(s.ID(), "extract price", fmt.Errorf("product unavailable: %s", p.Availability))
	}
	return p.raw(body), nil
}

// SearchBrand lists products from the retailer's brand or search page.
func (s *PageScraper) SearchBrand(ctx context.Context, brand string) ([]model.ProductCandidate, error) {
	if s.searchURL == nil {
		return nil, nil
	}

	target := s.searchURL(s.Info.BaseURL, brand)
	if err := s.pace(ctx, target); err != nil {
		return nil, err
	}

	doc, _, err := s.FetchPage(ctx, target)
	if err != nil {
		return nil, err
	}

	candidates := jsonLDCandidates(doc, s.Absolute)
	for i := range candidates {
		if candidates[i].Currency == "" {
			candidates[i].Currency = s.Info.HomeCurrency
		}
	}
	return candidates, nil
}

func querySearch(path string) func(base, brand string) string {
	return func(base, brand string) string {
		return base + fmt.Sprintf(path, url.QueryEscape(brand))
	}
}

// NewGeneric creates the fallback scraper used for unrecognised URLs. It has
// no brand search.
func NewGeneric(client *http.Client) *PageScraper {
	return NewPageScraper(PageConfig{
		Info: model.Retailer{ID: "generic", Name: "Generic", HomeCurrency: "CAD"},
	}, client, nil)
}

// NewHaven creates the Haven scraper. JSON-LD is present in the static HTML.
func NewHaven(client *http.Client) *PageScraper {
	return NewPageScraper(PageConfig{
		Info: model.Retailer{ID: "haven", Name: "Haven", BaseURL: "https://havenshop.com", HomeCurrency: "CAD"},
		SearchURL: func(base, brand string) string {
			return base + "/collections/" + slugify(brand)
		},
	}, client, nil)
}

// NewSimons creates the Simons scraper.
func NewSimons(client *http.Client) *PageScraper {
	return NewPageScraper(PageConfig{
		Info:      model.Retailer{ID: "simons", Name: "Simons", BaseURL: "https://www.simons.ca", HomeCurrency: "CAD"},
		SearchURL: querySearch("/en/search?query=%s"),
	}, client, nil)
}

// NewSportingLife creates the Sporting Life scraper.
func NewSportingLife(client *http.Client) *PageScraper {
	return NewPageScraper(PageConfig{
		Info: model.Retailer{ID: "sporting_life", Name: "Sporting Life", BaseURL: "https://www.sportinglife.ca", HomeCurrency: "CAD"},
		SearchURL: func(base, brand string) string {
			q := url.QueryEscape(brand)
			return base + "/en-CA/search?q=" + q + "&prefn1=brand&prefv1=" + q
		},
	}, client, nil)
}

// NewNordstrom creates the Nordstrom Canada scraper.
func NewNordstrom(client *http.Client) *PageScraper {
	return NewPageScraper(PageConfig{
		Info:      model.Retailer{ID: "nordstrom", Name: "Nordstrom", BaseURL: "https://www.nordstrom.ca", HomeCurrency: "CAD"},
		SearchURL: querySearch("/sr?keyword=%s"),
	}, client, nil)
}

// NewHipStore creates The Hip Store scraper. Prices are in GBP.
func NewHipStore(client *http.Client) *PageScraper {
	return NewPageScraper(PageConfig{
		Info:      model.Retailer{ID: "hip_store", Name: "The Hip Store", BaseURL: "https://www.thehipstore.co.uk", HomeCurrency: "GBP"},
		SearchURL: querySearch("/search/%s"),
	}, client, nil)
}

// NewAltitudeSports creates the Altitude Sports scraper. The site is a
// single-page app, so prices usually need the browser.
func NewAltitudeSports(client *http.Client, renderer Renderer) *PageScraper {
	return NewPageScraper(PageConfig{
		Info: model.Retailer{ID: "altitude_sports", Name: "Altitude Sports", BaseURL: "https://www.altitude-sports.com", HomeCurrency: "CAD", RequiresJS: true},
		SearchURL: func(base, brand string) string {
			return base + "/c/" + slugify(brand)
		},
		WaitSelector: `script[type="application/ld+json"]`,
	}, client, renderer)
}
